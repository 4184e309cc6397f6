package async

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kcenon/dbcore/logging"
)

func errRecovered(r interface{}) error {
	return errors.Errorf("async: stream handler panicked: %v", r)
}

// Poller is one channel's poll-until-result source, generalizing the
// XREAD-then-block loop icingadb/runtime_updates.go's xRead runs per stream
// key and redis/client.go's XReadUntilResult runs per consumer: block until
// at least one message is available, then return the batch.
type Poller interface {
	Poll(ctx context.Context) ([]interface{}, error)
}

// Handler processes one message delivered on a channel.
type Handler func(ctx context.Context, msg interface{}) error

// StreamProcessor fans a set of named channels out to per-channel pollers,
// dispatching each polled message to that channel's handlers and to any
// handlers registered globally (via Subscribe("", handler)). One handler's
// error never stops delivery to the channel's other handlers, nor to other
// channels — mirroring structifyStream's per-entity-type isolation.
type StreamProcessor struct {
	logger *logging.Logger

	mu       sync.Mutex
	channels map[string]Poller
	handlers map[string][]Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamProcessor returns an idle StreamProcessor; call Start to begin
// polling.
func NewStreamProcessor(logger *logging.Logger) *StreamProcessor {
	return &StreamProcessor{
		logger:   logger,
		channels: make(map[string]Poller),
		handlers: make(map[string][]Handler),
	}
}

// Register adds a channel source. Must be called before Start.
func (p *StreamProcessor) Register(name string, poller Poller) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[name] = poller
}

// Subscribe attaches handler to name. An empty name subscribes to every
// channel's messages (a global handler), run alongside that channel's own
// handlers on every delivery.
func (p *StreamProcessor) Subscribe(name string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], handler)
}

// Start launches one poll loop per registered channel under an errgroup, the
// same fan-out shape RuntimeUpdates.Sync uses per entity type. Start returns
// immediately; loops run until ctx is canceled or Stop is called.
func (p *StreamProcessor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.mu.Lock()
	channels := make(map[string]Poller, len(p.channels))
	for name, poller := range p.channels {
		channels[name] = poller
	}
	p.mu.Unlock()

	go func() {
		defer close(p.done)

		g, gctx := errgroup.WithContext(ctx)
		for name, poller := range channels {
			name, poller := name, poller
			g.Go(func() error {
				p.pollLoop(gctx, name, poller)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// pollLoop repeatedly calls poller.Poll and dispatches each returned message
// until ctx is canceled, the same block-then-dispatch-then-reblock loop
// xRead runs against a single Redis stream key.
func (p *StreamProcessor) pollLoop(ctx context.Context, name string, poller Poller) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Errorw("stream poll failed", "channel", name, "error", err)
			continue
		}

		for _, msg := range msgs {
			p.dispatch(ctx, name, msg)
		}
	}
}

// dispatch runs every handler registered for name plus every global handler
// against msg, isolating each handler's failure from the others.
func (p *StreamProcessor) dispatch(ctx context.Context, name string, msg interface{}) {
	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.handlers[name])+len(p.handlers[""]))
	handlers = append(handlers, p.handlers[name]...)
	handlers = append(handlers, p.handlers[""]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		if err := p.safeRun(ctx, handler, msg); err != nil {
			p.logger.Errorw("stream handler failed", "channel", name, "error", err)
		}
	}
}

func (p *StreamProcessor) safeRun(ctx context.Context, handler Handler, msg interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errRecovered(r)
		}
	}()
	return handler(ctx, msg)
}

// Stop cancels all poll loops and waits for them to exit.
func (p *StreamProcessor) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

package logsink

import (
	"sync"
	"sync/atomic"
	"time"
)

// Writer receives drained batches of entries, in declaration (registration)
// order. Flush is called once on shutdown after the final drain.
type Writer interface {
	Write(entries []*Entry) error
	Flush() error
}

// DrainBatchSize is the maximum number of entries the consumer pulls per
// wakeup.
const DrainBatchSize = 256

// pollInterval is how often the consumer checks hasWork when idle. The ring
// itself is lock-free; this is just the consumer's wakeup cadence, not a
// producer-facing wait.
const pollInterval = time.Millisecond

// Stats is the sink's reported counters.
type Stats struct {
	Processed   uint64
	Dropped     uint64
	CurrentSize int
	Capacity    int
}

// DropRate returns dropped / (processed + dropped), or 0 if nothing has
// been offered yet.
func (s Stats) DropRate() float64 {
	total := s.Processed + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total)
}

// Sink is the lock-free logging sink: producers call Enqueue from any
// goroutine; a single consumer goroutine drains batches and fans them out
// to every registered Writer.
type Sink struct {
	ring *ring

	processed atomic.Uint64

	writersMu sync.Mutex
	writers   []Writer

	stop chan struct{}
	done chan struct{}
}

// New returns a Sink with the given ring capacity (rounded up to the next
// power of two; DefaultCapacity if capacity <= 0).
func New(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{
		ring: newRing(capacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// RegisterWriter adds a writer. Writers are invoked in registration order
// on every drained batch.
func (s *Sink) RegisterWriter(w Writer) {
	s.writersMu.Lock()
	defer s.writersMu.Unlock()
	s.writers = append(s.writers, w)
}

// Enqueue attempts a single-slot push and never blocks. It returns false if
// the ring was full (the entry was dropped).
func (s *Sink) Enqueue(e Entry) bool {
	return s.ring.push(&e)
}

// Start launches the consumer goroutine. Call Shutdown to stop it and
// flush every writer.
func (s *Sink) Start() {
	go s.consume()
}

func (s *Sink) consume() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			s.drainAndDispatch()
			s.flushAll()
			return
		default:
		}

		if !s.ring.hasWork.Load() {
			time.Sleep(pollInterval)
			continue
		}

		s.drainAndDispatch()
	}
}

func (s *Sink) drainAndDispatch() {
	for {
		batch := s.ring.drain(DrainBatchSize)
		if len(batch) == 0 {
			return
		}

		s.processed.Add(uint64(len(batch)))

		s.writersMu.Lock()
		writers := append([]Writer(nil), s.writers...)
		s.writersMu.Unlock()

		for _, w := range writers {
			_ = w.Write(batch)
		}
	}
}

func (s *Sink) flushAll() {
	s.writersMu.Lock()
	writers := append([]Writer(nil), s.writers...)
	s.writersMu.Unlock()

	for _, w := range writers {
		_ = w.Flush()
	}
}

// Shutdown stops the consumer after it drains whatever remains in the ring
// and flushes every writer.
func (s *Sink) Shutdown() {
	close(s.stop)
	<-s.done
}

// Stats returns the sink's current counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Processed:   s.processed.Load(),
		Dropped:     s.ring.dropped.Load(),
		CurrentSize: s.ring.size(),
		Capacity:    s.ring.capacity(),
	}
}

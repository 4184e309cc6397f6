package logsink

import (
	"go.uber.org/zap/zapcore"
)

// Core wraps another zapcore.Core, forwarding every Write to it unchanged
// while also pushing the same entry into a Sink (C9) as a non-blocking
// Enqueue. The wrapped core stays the logger's primary output; the sink is
// a second, backpressure-bounded consumer fed from the same call site.
type Core struct {
	zapcore.Core
	sink *Sink
}

// NewCore returns a Core tee-ing next's log calls into sink.
func NewCore(next zapcore.Core, sink *Sink) *Core {
	return &Core{Core: next, sink: sink}
}

// With returns a Core carrying the added fields, preserving the tee to sink.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	return &Core{Core: c.Core.With(fields), sink: c.sink}
}

// Check defers to the wrapped core's level enabling, adding this Core (not
// the wrapped one directly) so Write below is the one zap calls.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write pushes ent into the sink, then delegates to the wrapped core. The
// sink push never blocks: a full ring just increments the drop counter.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.sink.Enqueue(Entry{
		Level:   ent.Level.String(),
		Message: ent.Message,
		Fields:  fieldsToMap(fields),
		Time:    ent.Time,
	})

	return c.Core.Write(ent, fields)
}

func fieldsToMap(fields []zapcore.Field) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

package logsink

import (
	"github.com/ssgreg/journald"
)

// journaldPriorities mirrors logging/journald_core.go's level map, reduced
// to the plain string levels this package's Entry carries.
var journaldPriorities = map[string]journald.Priority{
	"debug": journald.PriorityDebug,
	"info":  journald.PriorityInfo,
	"warn":  journald.PriorityWarning,
	"error": journald.PriorityErr,
	"fatal": journald.PriorityCrit,
	"panic": journald.PriorityCrit,
}

// JournaldWriter adapts Sink's drained batches to systemd-journald sends,
// one journald.Send call per entry, the same per-entry dispatch
// logging/journald_core.go's zapcore.Core.Write does for zap's log
// pipeline.
type JournaldWriter struct {
	Identifier string
}

// Write sends every entry in the batch to journald.
func (w JournaldWriter) Write(entries []*Entry) error {
	var firstErr error
	for _, e := range entries {
		pri, ok := journaldPriorities[e.Level]
		if !ok {
			pri = journald.PriorityInfo
		}

		fields := make(map[string]interface{}, len(e.Fields)+1)
		for k, v := range e.Fields {
			fields[k] = v
		}
		fields["SYSLOG_IDENTIFIER"] = w.Identifier

		if err := journald.Send(e.Message, pri, fields); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush is a no-op: journald.Send delivers synchronously, there's nothing
// buffered on this side to flush.
func (w JournaldWriter) Flush() error { return nil }

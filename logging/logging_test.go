package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogging_EnableSinkFeedsEveryLogCall(t *testing.T) {
	l, err := NewLoggingFromConfig("dbcore-test", Config{Output: CONSOLE, Interval: time.Second})
	require.NoError(t, err)

	sink := l.EnableSink(16)
	defer sink.Shutdown()

	logger := l.GetLogger()
	logger.Infow("hello", "k", "v")

	require.Eventually(t, func() bool {
		return sink.Stats().Processed == 1
	}, time.Second, time.Millisecond)
}

func TestLogging_WithoutEnableSinkDoesNotPanic(t *testing.T) {
	l, err := NewLoggingFromConfig("dbcore-test", Config{Output: CONSOLE, Interval: time.Second})
	require.NoError(t, err)

	logger := l.GetLogger()
	logger.Infow("hello")
}

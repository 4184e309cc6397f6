package logsink

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collectingWriter struct {
	mu      sync.Mutex
	entries []*Entry
	flushed bool
}

func (w *collectingWriter) Write(entries []*Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entries...)
	return nil
}

func (w *collectingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed = true
	return nil
}

func (w *collectingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func TestRing_NextPowerOfTwo(t *testing.T) {
	require.Equal(t, 1, nextPowerOfTwo(0))
	require.Equal(t, 1, nextPowerOfTwo(1))
	require.Equal(t, 16, nextPowerOfTwo(9))
	require.Equal(t, 16384, nextPowerOfTwo(16384))
}

func TestSink_EnqueueAndDrainDeliversInOrder(t *testing.T) {
	s := New(64)
	w := &collectingWriter{}
	s.RegisterWriter(w)
	s.Start()
	defer s.Shutdown()

	for i := 0; i < 10; i++ {
		require.True(t, s.Enqueue(Entry{Level: "info", Message: "m"}))
	}

	require.Eventually(t, func() bool { return w.count() == 10 }, time.Second, time.Millisecond)
}

func TestSink_ShutdownFlushesWriters(t *testing.T) {
	s := New(16)
	w := &collectingWriter{}
	s.RegisterWriter(w)
	s.Start()

	s.Enqueue(Entry{Level: "info", Message: "m"})
	s.Shutdown()

	w.mu.Lock()
	defer w.mu.Unlock()
	require.True(t, w.flushed)
}

// TestSink_DropsExcessWhenProducerOutpacesConsumer encodes scenario S6:
// enqueue C+K entries from one producer faster than the (never-started)
// consumer drains -> exactly K dropped, processed+dropped == C+K.
func TestSink_DropsExcessWhenProducerOutpacesConsumer(t *testing.T) {
	capacity := 8
	s := New(capacity)

	const extra = 5
	total := capacity + extra

	accepted := 0
	for i := 0; i < total; i++ {
		if s.Enqueue(Entry{Level: "info", Message: "m"}) {
			accepted++
		}
	}

	stats := s.Stats()
	require.Equal(t, capacity, accepted)
	require.Equal(t, uint64(extra), stats.Dropped)
	require.Equal(t, 0, int(stats.Processed))

	w := &collectingWriter{}
	s.RegisterWriter(w)
	s.Start()
	defer s.Shutdown()

	require.Eventually(t, func() bool { return w.count() == capacity }, time.Second, time.Millisecond)

	final := s.Stats()
	require.Equal(t, uint64(total), final.Processed+final.Dropped)
	require.InDelta(t, float64(extra)/float64(total), final.DropRate(), 0.001)
}

func TestSink_ConcurrentProducers(t *testing.T) {
	s := New(1024)
	w := &collectingWriter{}
	s.RegisterWriter(w)
	s.Start()
	defer s.Shutdown()

	var wg sync.WaitGroup
	producers, perProducer := 8, 50
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				s.Enqueue(Entry{Level: "info", Message: "m"})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return w.count() == producers*perProducer }, time.Second, time.Millisecond)
}

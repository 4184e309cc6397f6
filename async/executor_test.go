package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kcenon/dbcore/driver"
)

type fakeDriver struct{ kind driver.DatabaseKind }

func (f *fakeDriver) Kind() driver.DatabaseKind                                { return f.kind }
func (f *fakeDriver) GetAddr() string                                          { return "fake" }
func (f *fakeDriver) Connect(ctx context.Context, connString string) bool      { return true }
func (f *fakeDriver) Disconnect(ctx context.Context) bool                      { return true }
func (f *fakeDriver) CreateQuery(ctx context.Context, q string) bool           { return true }
func (f *fakeDriver) InsertQuery(ctx context.Context, q string) uint32         { return 1 }
func (f *fakeDriver) UpdateQuery(ctx context.Context, q string) uint32         { return 1 }
func (f *fakeDriver) DeleteQuery(ctx context.Context, q string) uint32         { return 1 }
func (f *fakeDriver) SelectQuery(ctx context.Context, q string) driver.Result  { return driver.Result{} }
func (f *fakeDriver) ExecuteQuery(ctx context.Context, q string) bool          { return true }
func (f *fakeDriver) HasTable(ctx context.Context, name string) bool           { return true }

func TestExecutor_SubmitAndGet(t *testing.T) {
	e := NewExecutor(2, 4)
	defer e.Shutdown(context.Background())

	future, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)

	value, err := future.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, value)
}

func TestExecutor_RejectsWhenQueueFull(t *testing.T) {
	e := NewExecutor(1, 1)
	defer e.Shutdown(context.Background())

	block := make(chan struct{})
	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	// Fill the single queue slot behind the in-flight task.
	_, err = e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, nil })
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, ErrTaskRejected)

	close(block)
}

func TestExecutor_RejectsAfterShutdown(t *testing.T) {
	e := NewExecutor(1, 1)
	require.NoError(t, e.Shutdown(context.Background()))

	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, ErrTaskRejected)
}

func TestExecutor_RecoversPanic(t *testing.T) {
	e := NewExecutor(1, 1)
	defer e.Shutdown(context.Background())

	future, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		panic("boom")
	})
	require.NoError(t, err)

	_, err = future.Get(context.Background())
	require.Error(t, err)
}

func TestExecutor_ExecuteBatchAsyncPreservesOrder(t *testing.T) {
	e := NewExecutor(4, 8)
	defer e.Shutdown(context.Background())

	d := &fakeDriver{kind: driver.Postgres}
	future, err := e.ExecuteBatchAsync(context.Background(), d, []string{"a", "b", "c"})
	require.NoError(t, err)

	value, err := future.Get(context.Background())
	require.NoError(t, err)

	results := value.([]BatchResult)
	require.Len(t, results, 3)
	for _, r := range results {
		require.True(t, r.OK)
	}
}

func TestExecutor_ShutdownWaitsForInFlight(t *testing.T) {
	e := NewExecutor(1, 1)

	var ran atomic.Bool
	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))
	require.True(t, ran.Load())
}

func TestExecutor_ShutdownRespectsContextDeadline(t *testing.T) {
	e := NewExecutor(1, 1)

	_, err := e.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = e.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

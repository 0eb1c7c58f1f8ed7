package starlark

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_GetPut(t *testing.T) {
	pool := NewThreadPool(5, nil)

	// Get a thread
	thread := pool.Get("test1")
	require.NotNil(t, thread, "Get returned nil")
	assert.Equal(t, "test1", thread.Name, "thread.Name")

	// Return it
	pool.Put(thread)
	assert.Equal(t, 1, pool.Size(), "pool size after put")

	// Get it again - should be reused
	thread2 := pool.Get("test2")
	assert.Equal(t, 0, pool.Size(), "pool size after get")
	assert.Equal(t, "test2", thread2.Name, "thread.Name after reuse")
}

func TestThreadPool_MaxSize(t *testing.T) {
	pool := NewThreadPool(2, nil)

	threads := make([]*starlark.Thread, 3)
	for i := 0; i < 3; i++ {
		threads[i] = pool.Get("test")
	}
	for _, thread := range threads {
		pool.Put(thread)
	}

	assert.Equal(t, 2, pool.Size(), "pool size should be max (2)")
}

func TestThreadPool_DefaultSize(t *testing.T) {
	pool := NewThreadPool(0, nil)

	for i := 0; i < 5; i++ {
		pool.Put(pool.Get("test"))
	}

	assert.NotEqual(t, 0, pool.Size(), "pool size should not be 0 after puts")
}

func TestThreadPool_Concurrent(t *testing.T) {
	pool := NewThreadPool(10, nil)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Put(pool.Get("concurrent"))
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, pool.Size(), 10, "pool size should not exceed max of 10")
}

func loadEntry(t *testing.T, src string) *ExecutionContext {
	t.Helper()
	ec, err := Load("test.star", src, "evaluate", Predeclared(nil), NewThreadPool(4, nil))
	require.NoError(t, err)
	return ec
}

func TestThreadPool_CallReusesThreads(t *testing.T) {
	pool := NewThreadPool(2, nil)
	fn := starlark.NewBuiltin("twice", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return args[0].(starlark.Float) * 2, nil
	})

	v, err := pool.Call(context.Background(), "call", fn, starlark.Tuple{starlark.Float(4)})
	require.NoError(t, err)
	assert.Equal(t, starlark.Float(8), v)
	assert.Equal(t, 1, pool.Size())
}

func TestThreadPool_CallCancelled(t *testing.T) {
	ec := loadEntry(t, `
def evaluate(n):
    total = 0
    for i in range(int(n)):
        total += i
    return (total,)
`)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ec.Call(ctx, starlark.Tuple{starlark.Float(1e12)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThreadPool_CallAfterCancel(t *testing.T) {
	pool := NewThreadPool(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Call(ctx, "call", starlark.NewBuiltin("noop", nil), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, pool.Size())
}

func TestParallelExecutor_Execute(t *testing.T) {
	ec := loadEntry(t, `
def evaluate(x, y):
    return (x + y,)
`)
	executor := ec.Executor(2)

	tasks := []CallTask{
		{Name: "row1", Args: starlark.Tuple{starlark.Float(1), starlark.Float(10)}},
		{Name: "row2", Args: starlark.Tuple{starlark.Float(2), starlark.Float(20)}},
		{Name: "row3", Args: starlark.Tuple{starlark.Float(3), starlark.Float(30)}},
	}

	results := executor.Execute(context.Background(), tasks)
	require.Len(t, results, 3)

	// order is preserved
	expected := []float64{11, 22, 33}
	for i, result := range results {
		require.NoError(t, result.Error, "task %d error", i)
		assert.Equal(t, tasks[i].Name, result.Name)
		tuple := result.Value.(starlark.Tuple)
		assert.Equal(t, starlark.Float(expected[i]), tuple[0], "task %d result", i)
	}
}

func TestParallelExecutor_ExecuteWithErrors(t *testing.T) {
	ec := loadEntry(t, `
def evaluate(x):
    return (1.0 / x,)
`)

	results := ec.Executor(2).Execute(context.Background(), []CallTask{
		{Name: "valid", Args: starlark.Tuple{starlark.Float(4)}},
		{Name: "invalid", Args: starlark.Tuple{starlark.Float(0)}},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Error, "task 0 should succeed")
	assert.Error(t, results[1].Error, "task 1 should fail with division by zero")
}

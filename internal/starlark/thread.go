package starlark

import (
	"context"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// contextKey is the thread-local slot holding the context of the call a
// thread serves.
const contextKey = "leapcell.context"

// ThreadContext returns the context of the call thread serves, or
// context.Background when it serves none.
func ThreadContext(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local(contextKey).(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

// ThreadPool recycles Starlark threads across calls of compiled programs.
// A thread serves one call at a time.
type ThreadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
	logger  *slog.Logger
}

// NewThreadPool creates a pool keeping at most maxSize idle threads.
// Output of print() in user functions goes to logger at debug level.
func NewThreadPool(maxSize int, logger *slog.Logger) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10 // default pool size
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ThreadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
		logger:  logger,
	}
}

// Get retrieves a thread from the pool or creates a new one.
// The thread name is used for error reporting.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) > 0 {
		thread := p.threads[len(p.threads)-1]
		p.threads = p.threads[:len(p.threads)-1]
		thread.Name = name
		return thread
	}

	return &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			p.logger.Debug("starlark print", "thread", t.Name, "message", msg)
		},
	}
}

// Put returns a thread to the pool for reuse.
// If the pool is full, the thread is discarded.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		thread.SetLocal(contextKey, nil)
		thread.Uncancel()
		p.threads = append(p.threads, thread)
	}
}

// Size returns the current number of idle threads in the pool.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Call invokes fn on a pooled thread. Builtins reach ctx through
// ThreadContext. When ctx is done the thread is cancelled and ctx.Err() is
// returned.
func (p *ThreadPool) Call(ctx context.Context, name string, fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thread := p.Get(name)
	thread.SetLocal(contextKey, ctx)
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})

	result, err := starlark.Call(thread, fn, args, nil)
	if !stop() {
		// cancelled; the thread may carry the cancellation, so it is dropped
		return nil, ctx.Err()
	}
	p.Put(thread)
	return result, err
}

// CallTask is one invocation of a ParallelExecutor.
type CallTask struct {
	Name string // identifies the task in errors
	Args starlark.Tuple
}

// CallResult is the outcome of a CallTask.
type CallResult struct {
	Name  string
	Value starlark.Value
	Error error
}

// ParallelExecutor calls one frozen function with many argument tuples
// concurrently.
type ParallelExecutor struct {
	pool           *ThreadPool
	fn             starlark.Callable
	maxConcurrency int
}

// NewParallelExecutor creates an executor running at most maxConcurrency
// calls at once.
func NewParallelExecutor(pool *ThreadPool, fn starlark.Callable, maxConcurrency int) *ParallelExecutor {
	if maxConcurrency <= 0 {
		maxConcurrency = pool.maxSize
	}
	return &ParallelExecutor{pool: pool, fn: fn, maxConcurrency: maxConcurrency}
}

// Execute runs every task and returns results in task order. A failed task
// does not stop the others; a done ctx fails the tasks not yet finished.
func (e *ParallelExecutor) Execute(ctx context.Context, tasks []CallTask) []CallResult {
	results := make([]CallResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			value, err := e.pool.Call(ctx, task.Name, e.fn, task.Args)
			results[i] = CallResult{Name: task.Name, Value: value, Error: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

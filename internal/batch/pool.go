// Package batch runs independent chunk tasks on a shared worker pool and
// gathers their results in index order.
package batch

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sealpack/sealpack/internal/sealtype"
)

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("batch: task panicked")

// Pool is a fixed set of goroutines consuming tasks.
//
// Submission never blocks: a task goes to an idle worker or runs on the
// submitting goroutine. Tasks may therefore call Run on the same pool
// without deadlocking.
type Pool struct {
	tasks   chan func()
	workers int
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts a pool with n workers. Values <= 0 use GOMAXPROCS.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		tasks:   make(chan func()),
		workers: n,
	}
	p.wg.Add(n)
	for range n {
		go p.worker()
	}
	return p
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide pool, sized to GOMAXPROCS on first use.
func Default() *Pool {
	defaultOnce.Do(func() {
		defaultPool = NewPool(0)
	})
	return defaultPool
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Close stops the workers after their current tasks. Run keeps working
// on a closed pool, executing everything on the caller.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// submit hands task to an idle worker or runs it inline.
func (p *Pool) submit(task func()) {
	p.mu.RLock()
	if !p.closed {
		select {
		case p.tasks <- task:
			p.mu.RUnlock()
			return
		default:
		}
	}
	p.mu.RUnlock()
	task()
}

// Run calls fn for every index in [0, n) on pool p (Default if nil) and
// returns the results in index order.
//
// If any call fails, Run returns no results and the failure with the
// lowest index among those observed, as a *sealtype.ChunkError. A
// panicking call fails with ErrPanic. Once a failure is seen, tasks that
// have not started are skipped.
func Run[T any](p *Pool, n int, fn func(i int) (T, error)) ([]T, error) {
	if n <= 0 {
		return []T{}, nil
	}
	if p == nil {
		p = Default()
	}

	results := make([]T, n)
	errs := make([]error, n)
	var failed atomic.Bool
	var wg sync.WaitGroup

	wg.Add(n)
	for i := range n {
		if failed.Load() {
			wg.Add(i - n)
			break
		}
		p.submit(func() {
			defer wg.Done()
			if failed.Load() {
				return
			}
			v, err := call(fn, i)
			if err != nil {
				errs[i] = err
				failed.Store(true)
				return
			}
			results[i] = v
		})
	}
	wg.Wait()

	if failed.Load() {
		for i, err := range errs {
			if err != nil {
				return nil, &sealtype.ChunkError{Index: i, Err: err}
			}
		}
	}
	return results, nil
}

// call runs fn(i), turning a panic into an error so that a failing task
// on a worker goroutine cannot take down the process.
func call[T any](fn func(i int) (T, error), i int) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(i)
}

// Span is the half-open byte range [Start, End) of one chunk.
type Span struct {
	Start int
	End   int
}

// Len returns the span length.
func (s Span) Len() int {
	return s.End - s.Start
}

// Split partitions n bytes into spans of size bytes; the last span may be
// shorter. A size <= 0 yields a single span. Split(0, size) is empty.
func Split(n, size int) []Span {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size > n {
		size = n
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, n)})
	}
	return spans
}

package server

import (
	"context"
	"errors"
	"fmt"
)

// compileRequest represents a unit of work run on a worker goroutine.
type compileRequest struct {
	fn   func() (any, error)
	done chan compileResult
}

// compileResult holds the return value from a unit of work.
type compileResult struct {
	value any
	err   error
}

// Worker runs compilations on a fixed number of goroutines, bounding the
// work in flight and turning compiler panics into errors.
type Worker struct {
	requests chan compileRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts n processing goroutines.
func NewWorker(n int) *Worker {
	if n < 1 {
		n = 1
	}
	w := &Worker{
		requests: make(chan compileRequest, 64),
		quit:     make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go w.loop()
	}
	return w
}

// loop processes requests until the worker stops.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() (any, error)) compileResult {
	var result compileResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("internal compiler error: %v", r)
			}
		}()
		result.value, result.err = fn()
	}()
	return result
}

// errWorkerStopped is returned for work submitted after Stop.
var errWorkerStopped = errors.New("worker stopped")

// Do submits fn and blocks until it completes or ctx is done.
func (w *Worker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-w.quit:
		return nil, errWorkerStopped
	default:
	}

	req := compileRequest{
		fn:   fn,
		done: make(chan compileResult, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
}

// Stop shuts down the worker goroutines.
func (w *Worker) Stop() {
	close(w.quit)
}

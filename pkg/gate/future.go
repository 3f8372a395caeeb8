package gate

import "context"

// Future is the pending result of a submitted task.
type Future[T any] struct {
	taskID string
	done   chan struct{}
	value  T
	err    error
}

func newFuture[T any](taskID string) *Future[T] {
	return &Future[T]{taskID: taskID, done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// TaskID returns the id the task was submitted with.
func (f *Future[T]) TaskID() string { return f.taskID }

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

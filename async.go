package apicore

import (
	"context"
)

// Future is a handle to an in-flight operation. Wait blocks until the result
// is available; repeated calls return the same outcome.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Wait blocks until the operation completes or ctx is done. A ctx error does
// not cancel the underlying operation; it only abandons this wait.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// DoAsync starts the request on its own goroutine and returns a Future for
// the decoded result. The request still honors the client's retry policy.
func DoAsync[T any](ctx context.Context, c *Client, opts *RequestOptions) *Future[*T] {
	f := newFuture[*T]()
	go func() {
		dst := new(T)
		if err := c.Do(ctx, opts, dst); err != nil {
			f.resolve(nil, err)
			return
		}
		f.resolve(dst, nil)
	}()
	return f
}

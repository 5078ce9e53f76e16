// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"sync"
)

// Background is an abstraction of a long-running background process (such as
// a single network connection) which contexts may need to tie to. It ends
// exactly once, recording the error that ended it.
type Background struct {
	mu   sync.Mutex
	err  error
	done chan struct{}
}

func NewBackground() *Background {
	return &Background{done: make(chan struct{})}
}

// Close ends the background process. Only the first call has any effect.
func (b *Background) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return
	default:
	}

	if err == nil {
		err = context.Canceled
	}
	b.err = err
	close(b.done)
}

// Err returns the error that ended the process, or nil if it is still
// running.
func (b *Background) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Background) Done() <-chan struct{} {
	return b.done
}

// With returns a context that is cancelled, with the recorded error as its
// cause, once the background process ends.
func (b *Background) With(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-b.done:
			cancel(b.Err())
		case <-c.Done():
		}
	}()
	return c, func() { cancel(context.Canceled) }
}

package feed

import (
	"context"
	"sync"
	"time"
)

// Task is a handle on a background goroutine. Stop cancels it and waits for
// it to return, so no callback runs after Stop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start runs fn in a goroutine with a context derived from parent.
func Start(parent context.Context, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// Stop is safe to call more than once and on a nil Task.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed when the goroutine has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Every calls fn immediately and then on each interval until ctx is done.
// A call that overruns the interval delays the next one; calls never overlap.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

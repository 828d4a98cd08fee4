// Package queuetest provides an in-memory publisher for tests.
package queuetest

import (
	"context"
	"sync"

	"kitchen_requests/internal/queue"
)

// Recorder keeps every published change. While Fail is set, Publish returns it
// and records nothing.
type Recorder struct {
	mu     sync.Mutex
	events []queue.StatusChange
	fail   error
}

func (r *Recorder) Publish(_ context.Context, msg queue.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, msg)
	return nil
}

// SetFail makes subsequent publishes fail with err; nil restores success.
func (r *Recorder) SetFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Events returns a copy of the recorded changes in publish order.
func (r *Recorder) Events() []queue.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.StatusChange(nil), r.events...)
}

// For returns the recorded changes of one request.
func (r *Recorder) For(requestID uint) []queue.StatusChange {
	var out []queue.StatusChange
	for _, e := range r.Events() {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

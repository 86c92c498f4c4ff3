package storage

import (
	"context"
	"errors"
	"time"
)

// ErrBusy indicates the write queue was full or the mutation was not
// admitted within the configured timeout. Callers treat it as transient.
var ErrBusy = errors.New("storage: write queue full")

// writeGate serializes mutations: one write in flight, at most depth callers
// queued behind it. Readers never pass through the gate.
type writeGate struct {
	queue   chan struct{}
	writer  chan struct{}
	timeout time.Duration
}

func newWriteGate(depth int, timeout time.Duration) *writeGate {
	if depth <= 0 {
		depth = 1
	}
	return &writeGate{
		queue:   make(chan struct{}, depth),
		writer:  make(chan struct{}, 1),
		timeout: timeout,
	}
}

// enter admits one writer. It fails with ErrBusy when the queue is full or
// the writer slot stays occupied past the timeout. The returned release must
// be called once the write ends.
func (g *writeGate) enter(ctx context.Context) (release func(), err error) {
	select {
	case g.queue <- struct{}{}:
	default:
		return nil, ErrBusy
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case g.writer <- struct{}{}:
		return func() {
			<-g.writer
			<-g.queue
		}, nil
	case <-timer.C:
		<-g.queue
		return nil, ErrBusy
	case <-ctx.Done():
		<-g.queue
		return nil, ctx.Err()
	}
}

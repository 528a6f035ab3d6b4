package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mrz1836/hwclaim/internal/metrics"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// queue admits one transport call at a time. Waiters give up when their
// context ends or when the queue is reset.
type queue struct {
	slot    chan struct{}
	waiting atomic.Int32

	mu    sync.Mutex
	reset chan struct{}
}

func newQueue() *queue {
	return &queue{
		slot:  make(chan struct{}, 1),
		reset: make(chan struct{}),
	}
}

// generation returns the channel closed by the next reset.
func (q *queue) generation() chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reset
}

// acquire blocks until the slot is free. The returned channel is closed if
// the queue is reset while the caller holds the slot.
func (q *queue) acquire(ctx context.Context) (func(), <-chan struct{}, error) {
	gen := q.generation()
	select {
	case <-gen:
		return nil, nil, hwerr.ErrDeviceReset
	default:
	}

	q.waiting.Add(1)
	defer q.waiting.Add(-1)

	select {
	case q.slot <- struct{}{}:
		return func() { <-q.slot }, gen, nil
	case <-gen:
		return nil, nil, hwerr.ErrDeviceReset
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// resetAll wakes every waiter and the current holder with ErrDeviceReset.
func (q *queue) resetAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	close(q.reset)
	q.reset = make(chan struct{})
}

// runner serializes calls and tags their errors. Both adapters embed it.
type runner struct {
	vendor  Vendor
	queue   *queue
	metrics *metrics.Metrics
	logger  Logger
}

func newRunner(vendor Vendor, opts Options) runner {
	return runner{
		vendor:  vendor,
		queue:   newQueue(),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// run executes fn while holding the queue slot. fn's context is cancelled
// if the queue is reset mid-call.
func (r *runner) run(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	release, gen, err := r.queue.acquire(ctx)
	if err != nil {
		r.metrics.RecordDeviceCall(r.vendor.String(), method, err)
		return err
	}
	defer release()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-gen:
			cancel()
		case <-callCtx.Done():
		}
	}()

	r.logger.Debug("%s %s", r.vendor, method)
	err = fn(callCtx)

	select {
	case <-gen:
		if err != nil {
			err = hwerr.ErrDeviceReset
		}
	default:
	}

	err = classify(ctx, method, err)
	r.metrics.RecordDeviceCall(r.vendor.String(), method, err)
	if err != nil {
		r.logger.Error("%s %s failed: %v", r.vendor, method, err)
	}
	return err
}

// classify makes sure every transport failure carries a device error code.
// Caller cancellations pass through untouched.
func classify(ctx context.Context, method string, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	case errors.Is(err, hwerr.ErrDevice),
		errors.Is(err, hwerr.ErrDeviceNotConnected),
		errors.Is(err, hwerr.ErrDeviceRejected),
		errors.Is(err, hwerr.ErrDeviceBusy),
		errors.Is(err, hwerr.ErrDeviceReset),
		errors.Is(err, hwerr.ErrInvalidInput):
		return err
	}
	return fmt.Errorf("%w: %s: %w", hwerr.ErrDevice, method, err)
}

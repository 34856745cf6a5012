package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"rhema/internal/logger"
	"rhema/internal/redis"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrDispatcherBusy means every stream slot is taken and the wait queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrStreamOpen means the caller already has an answer streaming.
	ErrStreamOpen = errors.New("a response is already streaming for this caller")
)

type DispatcherConfig struct {
	MaxWorkers int
	QueueSize  int
}

// Dispatcher admits at most MaxWorkers concurrent streams and at most one
// open stream per caller key. Up to QueueSize callers may wait for a slot.
type Dispatcher struct {
	slots     *semaphore.Weighted
	queueSize int64
	waiting   atomic.Int64
	active    atomic.Int64

	mu    sync.Mutex
	open  map[string]struct{}
	locks *streamLocks
	log   *logger.Logger
}

func NewDispatcher(cfg DispatcherConfig, client *redis.Client, log *logger.Logger) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		slots:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		queueSize: int64(cfg.QueueSize),
		open:      make(map[string]struct{}),
		locks:     newStreamLocks(client),
		log:       log,
	}
}

// Acquire reserves a stream slot for key. The returned release must be called
// once the stream reaches a terminal state; calling it again is a no-op.
func (d *Dispatcher) Acquire(ctx context.Context, key string) (func(), error) {
	if !d.markOpen(key) {
		return nil, ErrStreamOpen
	}
	held, err := d.locks.acquire(ctx, key)
	if err != nil {
		d.log.Warn("stream lock unavailable, continuing with local lock", "error", err)
	} else if !held {
		d.markClosed(key)
		return nil, ErrStreamOpen
	}

	if !d.slots.TryAcquire(1) {
		if d.waiting.Add(1) > d.queueSize {
			d.waiting.Add(-1)
			d.unlock(key, held)
			debugLog(d.log, "stream rejected, queue full", "key", key)
			return nil, ErrDispatcherBusy
		}
		debugLog(d.log, "stream queued", "key", key)
		err := d.slots.Acquire(ctx, 1)
		d.waiting.Add(-1)
		if err != nil {
			d.unlock(key, held)
			return nil, err
		}
	}
	d.active.Add(1)
	debugLog(d.log, "stream slot assigned", "key", key, "active", d.active.Load())

	var once sync.Once
	return func() {
		once.Do(func() {
			d.active.Add(-1)
			d.slots.Release(1)
			d.unlock(key, held)
			debugLog(d.log, "stream slot released", "key", key)
		})
	}, nil
}

// Active returns the number of streams currently holding a slot.
func (d *Dispatcher) Active() int { return int(d.active.Load()) }

// IsOpen reports whether key has a stream admitted or waiting.
func (d *Dispatcher) IsOpen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.open[key]
	return ok
}

func (d *Dispatcher) markOpen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.open[key]; ok {
		return false
	}
	d.open[key] = struct{}{}
	return true
}

func (d *Dispatcher) markClosed(key string) {
	d.mu.Lock()
	delete(d.open, key)
	d.mu.Unlock()
}

func (d *Dispatcher) unlock(key string, held bool) {
	d.markClosed(key)
	if held {
		d.locks.release(key)
	}
}

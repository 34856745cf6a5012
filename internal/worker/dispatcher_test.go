package worker

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"rhema/internal/config"
	"rhema/internal/redis"
)

func TestDispatcherOneStreamPerCaller(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 4}, nil, nil)
	release, err := d.Acquire(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("first Acquire error: %v", err)
	}
	if _, err := d.Acquire(context.Background(), "user_1"); !errors.Is(err, ErrStreamOpen) {
		t.Fatalf("expected ErrStreamOpen, got %v", err)
	}
	other, err := d.Acquire(context.Background(), "user_2")
	if err != nil {
		t.Fatalf("other caller should be admitted: %v", err)
	}
	if d.Active() != 2 {
		t.Fatalf("expected 2 active, got %d", d.Active())
	}

	release()
	release()
	other()
	if d.Active() != 0 || d.IsOpen("user_1") {
		t.Fatalf("release did not free the slot")
	}
	again, err := d.Acquire(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Acquire after release error: %v", err)
	}
	again()
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 0}, nil, nil)
	release, err := d.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	defer release()
	if _, err := d.Acquire(context.Background(), "b"); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
	if d.IsOpen("b") {
		t.Fatalf("rejected caller should not stay open")
	}
}

func TestDispatcherQueuedCallerGetsSlot(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 1}, nil, nil)
	release, err := d.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		r, err := d.Acquire(context.Background(), "b")
		if err == nil {
			r()
		}
		got <- err
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-got:
		t.Fatalf("queued caller returned early: %v", err)
	default:
	}
	release()
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("queued Acquire error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("queued caller never admitted")
	}
}

func TestDispatcherQueuedCallerCancelled(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 1}, nil, nil)
	release, err := d.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := d.Acquire(ctx, "b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if d.IsOpen("b") {
		t.Fatalf("cancelled caller should not stay open")
	}
}

func TestStreamLocksAcrossDispatchers(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	a := NewDispatcher(DispatcherConfig{MaxWorkers: 2}, client, nil)
	b := NewDispatcher(DispatcherConfig{MaxWorkers: 2}, client, nil)

	release, err := a.Acquire(context.Background(), "shared_user")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if _, err := b.Acquire(context.Background(), "shared_user"); !errors.Is(err, ErrStreamOpen) {
		t.Fatalf("expected ErrStreamOpen from second instance, got %v", err)
	}
	release()
	r2, err := b.Acquire(context.Background(), "shared_user")
	if err != nil {
		t.Fatalf("Acquire after release error: %v", err)
	}
	r2()
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(config.RedisConfig{Host: host, Port: port})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	return client
}

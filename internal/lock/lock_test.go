package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestNoopLockerAlwaysObtains(t *testing.T) {
	var l Locker = NoopLocker{}
	release, err := l.Obtain(context.Background(), "order-1", time.Second)
	if err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, "")
	ctx := context.Background()

	release, err := l.Obtain(ctx, "order:po-1", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("first obtain: %v", err)
	}
	if !srv.Exists("costing:lock:order:po-1") {
		t.Fatalf("expected prefixed lock key, have %v", srv.Keys())
	}

	if _, err := l.Obtain(ctx, "order:po-1", 300*time.Millisecond); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected second holder to be refused, got %v", err)
	}
	if _, err := l.Obtain(ctx, "order:po-2", time.Second); err != nil {
		t.Fatalf("other keys should be free: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := l.Obtain(ctx, "order:po-1", time.Second)
	if err != nil {
		t.Fatalf("obtain after release: %v", err)
	}
	if err := again(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if err := again(ctx); err != nil {
		t.Fatalf("releasing a lock no longer held should be quiet, got %v", err)
	}
}

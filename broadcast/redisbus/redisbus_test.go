package redisbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goAuthz/broadcast"
)

func newBusTest(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestBusDeliversPayloads(t *testing.T) {
	rdb, _, done := newBusTest(t)
	defer done()

	bus := New(rdb, "")
	if bus.Channel() != DefaultChannel {
		t.Fatalf("expected default channel, got %q", bus.Channel())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan []byte, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- bus.Subscribe(ctx, func(p []byte) { got <- p })
	}()

	select {
	case <-bus.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	if err := bus.Publish(ctx, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case p := <-got:
		if string(p) != "hello" {
			t.Fatalf("unexpected payload %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("payload not delivered")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("subscribe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not stop")
	}
}

func TestPublishWrapsRedisFailure(t *testing.T) {
	rdb, mr, done := newBusTest(t)
	defer done()
	mr.Close()

	err := New(rdb, "c").Publish(context.Background(), []byte("x"))
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestBroadcastersShareInvalidationsOverRedis(t *testing.T) {
	rdb, _, done := newBusTest(t)
	defer done()

	busA, busB := New(rdb, "perm"), New(rdb, "perm")
	a := broadcast.New(busA, broadcast.Options{Origin: "a"})
	b := broadcast.New(busB, broadcast.Options{Origin: "b"})

	received := make(chan broadcast.Update, 4)
	b.Subscribe(func(_ context.Context, u broadcast.Update) { received <- u })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)
	<-busA.Ready()
	<-busB.Ready()

	if err := a.Publish(ctx, broadcast.Update{Type: broadcast.PermissionUpdated, Resource: "products"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case u := <-received:
		if u.Type != broadcast.PermissionUpdated || u.Resource != "products" || u.Origin != "a" {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update not delivered across instances")
	}
}

// Package redisbus carries broadcast updates over Redis Pub/Sub.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is used when New is given an empty channel name.
const DefaultChannel = "goauthz:permission-updates"

var (
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrSubscriptionLost = errors.New("redis subscription closed")
)

// Bus implements broadcast.Transport on one Redis Pub/Sub channel. The
// client is owned by the caller.
type Bus struct {
	client  redis.UniversalClient
	channel string

	readyOnce sync.Once
	ready     chan struct{}
}

// New returns a Bus publishing and subscribing on channel.
func New(client redis.UniversalClient, channel string) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{
		client:  client,
		channel: channel,
		ready:   make(chan struct{}),
	}
}

// Channel returns the Pub/Sub channel name.
func (b *Bus) Channel() string {
	return b.channel
}

// Ready is closed once the first subscription has been confirmed by Redis.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Publish sends payload to the channel.
func (b *Bus) Publish(ctx context.Context, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Subscribe delivers every message on the channel until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, deliver func(payload []byte)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionLost
			}
			deliver([]byte(msg.Payload))
		}
	}
}

// Close is a no-op; the Redis client belongs to the caller.
func (b *Bus) Close() error {
	return nil
}

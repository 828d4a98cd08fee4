package redis

import (
	"context"
	"fmt"
	"strconv"

	rd "github.com/redis/go-redis/v9"

	"kitchen_requests/internal/logger"
)

// Broadcaster receives request ids forwarded from the bus.
type Broadcaster interface {
	Broadcast(requestID uint)
}

// LiveBus carries request change announcements between service instances over redis
// pub/sub, so a stream served by one instance sees updates made on another.
type LiveBus struct {
	rdb     *rd.Client
	channel string
	log     *logger.Logger
}

func NewLiveBus(rdb *rd.Client, channel string, log *logger.Logger) *LiveBus {
	return &LiveBus{rdb: rdb, channel: channel, log: log.With("service", "RedisLiveBus")}
}

func (b *LiveBus) Announce(ctx context.Context, requestID uint) error {
	return b.rdb.Publish(ctx, b.channel, strconv.FormatUint(uint64(requestID), 10)).Err()
}

// Forward subscribes to the channel and hands every announcement to local. It
// returns once the subscription is live; forwarding stops when ctx ends.
func (b *LiveBus) Forward(ctx context.Context, local Broadcaster) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				id, err := strconv.ParseUint(m.Payload, 10, 64)
				if err != nil || id == 0 {
					b.log.Warn("bad live bus payload", "payload", m.Payload)
					continue
				}
				local.Broadcast(uint(id))
			}
		}
	}()
	return nil
}

package hub

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "orderhub:group:"

// RedisBackplane fans broadcasts out across processes over Redis Pub/Sub.
type RedisBackplane struct {
	client redis.UniversalClient
}

// NewRedisBackplane wraps an existing client. The caller owns the client.
func NewRedisBackplane(client redis.UniversalClient) *RedisBackplane {
	return &RedisBackplane{client: client}
}

func channelFor(group string) string { return channelPrefix + group }

func groupFrom(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(channel, channelPrefix), true
}

// Publish implements Backplane.
func (b *RedisBackplane) Publish(ctx context.Context, group string, payload []byte) error {
	return b.client.Publish(ctx, channelFor(group), payload).Err()
}

// Listen implements Backplane.
func (b *RedisBackplane) Listen(ctx context.Context, ready func(), fn func(group string, payload []byte)) error {
	ps := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	// wait for the subscription to be confirmed so early publishes are not missed
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	ready()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if group, ok := groupFrom(msg.Channel); ok {
				fn(group, []byte(msg.Payload))
			}
		}
	}
}

var _ Backplane = (*RedisBackplane)(nil)

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisChannelPrefix namespaces group channels so the layer can share a
// Redis database with other tenants.
const redisChannelPrefix = "print-service:group:"

// Redis is a group layer backed by Redis pub/sub. Every process holding
// subscribers for a group keeps one Redis subscription for that group and
// fans received events out to its local subscribers, so Send reaches
// sessions hosted by other processes as well.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger

	mu     sync.Mutex
	groups map[string]*redisGroup
	closed bool
	wg     sync.WaitGroup
}

type redisGroup struct {
	subs   map[Subscriber]struct{}
	pubsub *redis.PubSub
}

// NewRedis connects to Redis at the given URL and returns a group layer
// backed by it. The layer owns the connection and closes it on Close.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		logger: logger.With().Str("component", "redis_layer").Logger(),
		groups: make(map[string]*redisGroup),
	}, nil
}

// Join adds sub to the named group. The first local subscriber of a group
// opens the Redis subscription for it.
func (r *Redis) Join(ctx context.Context, group string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrLayerClosed
	}

	g, ok := r.groups[group]
	if !ok {
		pubsub := r.client.Subscribe(ctx, redisChannelPrefix+group)
		// Force the SUBSCRIBE onto the wire before reporting membership.
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return fmt.Errorf("subscribe group %s: %w", group, err)
		}
		g = &redisGroup{
			subs:   make(map[Subscriber]struct{}),
			pubsub: pubsub,
		}
		r.groups[group] = g

		r.wg.Add(1)
		go r.fanOut(group, pubsub)
	}

	g.subs[sub] = struct{}{}
	return nil
}

// Leave removes sub from the named group. The last local subscriber leaving
// closes the Redis subscription.
func (r *Redis) Leave(_ context.Context, group string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrLayerClosed
	}

	g, ok := r.groups[group]
	if !ok {
		return nil
	}
	delete(g.subs, sub)
	if len(g.subs) == 0 {
		g.pubsub.Close()
		delete(r.groups, group)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (r *Redis) Ping(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrLayerClosed
	}
	r.mu.Unlock()

	return r.client.Ping(ctx).Err()
}

// Send publishes the event to the group's channel. Processes subscribed to
// the group (this one included) deliver it to their local subscribers.
func (r *Redis) Send(ctx context.Context, group string, event Event) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrLayerClosed
	}
	r.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, redisChannelPrefix+group, data).Err(); err != nil {
		return fmt.Errorf("publish to group %s: %w", group, err)
	}
	return nil
}

// fanOut delivers events received from Redis to the group's local
// subscribers. It exits when the group's subscription closes.
func (r *Redis) fanOut(group string, pubsub *redis.PubSub) {
	defer r.wg.Done()

	for msg := range pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.logger.Warn().Err(err).Str("group", group).Msg("dropping undecodable group event")
			continue
		}

		r.mu.Lock()
		g, ok := r.groups[group]
		var subs []Subscriber
		if ok {
			subs = make([]Subscriber, 0, len(g.subs))
			for sub := range g.subs {
				subs = append(subs, sub)
			}
		}
		r.mu.Unlock()

		for _, sub := range subs {
			sub.Deliver(event)
		}
	}
}

// Close closes every group subscription and the Redis connection.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, g := range r.groups {
		g.pubsub.Close()
	}
	r.groups = nil
	r.mu.Unlock()

	r.wg.Wait()
	return r.client.Close()
}

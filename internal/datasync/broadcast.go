package datasync

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broadcast is the cross-context signaling primitive: a monotonically
// increasing version marker visible to every context, plus change
// notifications. One context publishing a new version is how another
// context learns it must refetch.
type Broadcast interface {
	// Publish bumps the shared version marker and notifies observers.
	Publish(ctx context.Context) error
	// Changes delivers version values as other contexts publish them.
	// The channel closes when ctx is done.
	Changes(ctx context.Context) (<-chan uint64, error)
}

// MemoryBroadcast is an in-process hub; contexts sharing the same
// instance see each other's signals. Used in dev and tests to simulate
// sibling tabs.
type MemoryBroadcast struct {
	mu      sync.Mutex
	version uint64
	subs    map[chan uint64]struct{}
}

// NewMemoryBroadcast creates a hub with version 0.
func NewMemoryBroadcast() *MemoryBroadcast {
	return &MemoryBroadcast{subs: make(map[chan uint64]struct{})}
}

// Publish bumps the version and fans it out without blocking.
func (b *MemoryBroadcast) Publish(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.version++
	for ch := range b.subs {
		select {
		case ch <- b.version:
		default:
		}
	}
	return nil
}

// Changes subscribes until ctx is done.
func (b *MemoryBroadcast) Changes(ctx context.Context) (<-chan uint64, error) {
	ch := make(chan uint64, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Version returns the current marker value.
func (b *MemoryBroadcast) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// RedisBroadcast carries the version marker in a shared key and signals
// through pub/sub, so independent processes observe each other.
type RedisBroadcast struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisBroadcast creates a broadcast over an existing client.
func NewRedisBroadcast(client *redis.Client, key string) *RedisBroadcast {
	if key == "" {
		key = "biomark:data_version"
	}
	return &RedisBroadcast{client: client, key: key, channel: key + ":changed"}
}

// Publish increments the shared marker and announces the new value.
func (b *RedisBroadcast) Publish(ctx context.Context) error {
	version, err := b.client.Incr(ctx, b.key).Result()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, strconv.FormatInt(version, 10)).Err()
}

// Changes subscribes to marker announcements until ctx is done.
func (b *RedisBroadcast) Changes(ctx context.Context) (<-chan uint64, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan uint64, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				version, err := strconv.ParseUint(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- version:
				default:
				}
			}
		}
	}()
	return out, nil
}

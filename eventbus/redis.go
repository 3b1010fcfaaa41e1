package eventbus

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
)

// Codec marshals/unmarshals a topic's payload to/from bytes for transport
// over Redis Pub/Sub. Mirrors the marshal/unmarshal function-pair
// constructor arguments of MyDiscoverer/adapters/myredis.NewCache.
type Codec struct {
	Marshal   func(any) ([]byte, error)
	Unmarshal func([]byte) (any, error)
}

// RedisBus is a cross-process Bus backed by Redis Pub/Sub. Every topic is
// a Redis channel named prefix+":"+topic. A Codec must be registered per
// topic that will actually be published or subscribed to; publishing or
// subscribing to a topic with no codec is a programmer error and panics,
// matching the pack's NilPanic/StrPanic fail-fast convention for missing
// required wiring.
type RedisBus struct {
	client codecClient
	prefix string
	logger log.Logger
	codecs map[string]Codec

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
	wg     sync.WaitGroup
}

// codecClient is the slice of redis.UniversalClient RedisBus needs;
// narrowed for testability.
type codecClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Ping(ctx context.Context) *redis.StatusCmd
}

// NewRedisBus creates a Redis-backed event bus. channelPrefix namespaces
// the Redis channels (e.g. "grid"); codecs maps topic name to its
// Codec for every topic this process will publish or subscribe to.
func NewRedisBus(client redis.UniversalClient, channelPrefix string, codecs map[string]Codec, logger log.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		prefix: channelPrefix,
		logger: log.With(logger, "component", "eventbus_redis"),
		codecs: codecs,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]map[int]Handler),
	}
}

func (b *RedisBus) channel(topic string) string {
	return b.prefix + ":" + topic
}

func (b *RedisBus) codecFor(topic string) Codec {
	c, ok := b.codecs[topic]
	if !ok {
		panic("eventbus: no codec registered for topic " + topic)
	}
	return c
}

// Publish serializes payload with the topic's codec and publishes it
// on the topic's Redis channel. Marshal errors are logged and swallowed:
// Publish has no error return in the Bus contract.
func (b *RedisBus) Publish(topic string, payload any) {
	codec := b.codecFor(topic)
	data, err := codec.Marshal(payload)
	if err != nil {
		level.Error(b.logger).Log("msg", "marshal event failed", "topic", topic, "err", err)
		return
	}
	if err := b.client.Publish(b.ctx, b.channel(topic), data).Err(); err != nil {
		level.Error(b.logger).Log("msg", "publish event failed", "topic", topic, "err", err)
	}
}

// Subscribe registers handler for topic, starting a Redis subscription
// goroutine the first time topic is subscribed to. Decoded payloads are
// dispatched to every handler currently registered for the topic.
func (b *RedisBus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	first := b.subs[topic] == nil
	if first {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	b.mu.Unlock()

	if first {
		b.startListening(topic)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[topic]; m != nil {
			delete(m, id)
		}
	}
}

// startListening spins up the Redis subscription goroutine for topic.
func (b *RedisBus) startListening(topic string) {
	codec := b.codecFor(topic)
	sub := b.client.Subscribe(b.ctx, b.channel(topic))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				payload, err := codec.Unmarshal([]byte(msg.Payload))
				if err != nil {
					level.Error(b.logger).Log("msg", "unmarshal event failed", "topic", topic, "err", err)
					continue
				}
				b.dispatch(topic, payload)
			}
		}
	}()
}

func (b *RedisBus) dispatch(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		b.safeCall(topic, h, payload)
	}
}

func (b *RedisBus) safeCall(topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(b.logger).Log("msg", "event handler panicked", "topic", topic, "panic", r)
		}
	}()
	h(payload)
}

func (b *RedisBus) IsReady() bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return false
	}
	return b.client.Ping(b.ctx).Err() == nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
	return nil
}

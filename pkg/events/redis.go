package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a [RedisBus].
type RedisOptions struct {
	// Consumer names this process within its groups. Default: random.
	Consumer string
	// Block bounds one XREADGROUP call (default 2s).
	Block time.Duration
	// Batch is the XREADGROUP count (default 16).
	Batch int64
	// MaxLen caps each stream approximately. Zero keeps everything.
	MaxLen int64
	Logger *log.Logger
}

// RedisBus is a [Bus] over Redis Streams. Each topic is a stream, groups are
// stream consumer groups, and a message is acknowledged only after its
// handler succeeds. On subscribe, messages this consumer read but never
// acknowledged are processed first.
type RedisBus struct {
	client   redis.UniversalClient
	owned    bool
	consumer string
	block    time.Duration
	batch    int64
	maxLen   int64
	logger   *log.Logger
}

// NewRedisBus wraps an existing client. Close leaves the client open.
func NewRedisBus(client redis.UniversalClient, opts RedisOptions) *RedisBus {
	if opts.Consumer == "" {
		opts.Consumer = "depscanner-" + uuid.NewString()[:8]
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 16
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &RedisBus{
		client:   client,
		consumer: opts.Consumer,
		block:    opts.Block,
		batch:    opts.Batch,
		maxLen:   opts.MaxLen,
		logger:   opts.Logger,
	}
}

// DialRedisBus connects to addr and verifies the connection with PING.
func DialRedisBus(ctx context.Context, addr, password string, db int, opts RedisOptions) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	b := NewRedisBus(client, opts)
	b.owned = true
	return b, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"payload": payload},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, topic, err)
	}

	// An explicit id replays this consumer's pending entries after it;
	// ">" reads new ones.
	cursor := "0"
	for ctx.Err() == nil {
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{topic, cursor},
			Count:    b.batch,
			Block:    b.block,
		}).Result()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case errors.Is(err, redis.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("read %s as %s/%s: %w", topic, group, b.consumer, err)
		}

		last := ""
		for _, s := range streams {
			for _, m := range s.Messages {
				last = m.ID
				b.handle(ctx, topic, group, m, h)
			}
		}
		if cursor != ">" {
			if last == "" {
				cursor = ">"
			} else {
				cursor = last
			}
		}
	}
	return nil
}

func (b *RedisBus) handle(ctx context.Context, topic, group string, m redis.XMessage, h Handler) {
	msg := Message{ID: m.ID, Topic: topic}
	switch p := m.Values["payload"].(type) {
	case string:
		msg.Payload = []byte(p)
	case []byte:
		msg.Payload = p
	}
	if err := h(ctx, msg); err != nil {
		b.logger.Warn("event handler failed, leaving message pending", "topic", topic, "group", group, "id", m.ID, "err", err)
		return
	}
	if err := b.client.XAck(ctx, topic, group, m.ID).Err(); err != nil {
		b.logger.Warn("ack failed", "topic", topic, "group", group, "id", m.ID, "err", err)
	}
}

func (b *RedisBus) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}

var _ Bus = (*RedisBus)(nil)

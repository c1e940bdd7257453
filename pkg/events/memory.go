package events

import (
	"context"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
)

// MemoryBus is an in-process [Bus]. Each topic keeps an append-only log and
// each consumer group its read offset, so messages published before a group
// subscribes are still delivered. Handler errors are logged; there is no
// redelivery.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]*memoryTopic
	closed bool
	done   chan struct{}
	logger *log.Logger
}

type memoryTopic struct {
	log    []Message
	groups map[string]int
	notify chan struct{}
}

// NewMemoryBus creates an empty bus. A nil logger uses log.Default().
func NewMemoryBus(logger *log.Logger) *MemoryBus {
	if logger == nil {
		logger = log.Default()
	}
	return &MemoryBus{
		topics: make(map[string]*memoryTopic),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (b *MemoryBus) topic(name string) *memoryTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{groups: make(map[string]int), notify: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	t := b.topic(topic)
	t.log = append(t.log, Message{
		ID:      strconv.Itoa(len(t.log) + 1),
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
	})
	close(t.notify)
	t.notify = make(chan struct{})
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, h Handler) error {
	for {
		msg, wait, open := b.next(topic, group)
		if !open {
			return nil
		}
		if wait != nil {
			select {
			case <-wait:
				continue
			case <-b.done:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
		if err := h(ctx, msg); err != nil {
			b.logger.Warn("event handler failed", "topic", topic, "group", group, "id", msg.ID, "err", err)
		}
	}
}

// next claims the next unread message for group, or returns a channel that
// is closed once one is published. open is false after Close.
func (b *MemoryBus) next(topic, group string) (msg Message, wait <-chan struct{}, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Message{}, nil, false
	}
	t := b.topic(topic)
	offset := t.groups[group]
	if offset >= len(t.log) {
		return Message{}, t.notify, true
	}
	t.groups[group] = offset + 1
	return t.log[offset], nil, true
}

// Close stops all subscribers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

var _ Bus = (*MemoryBus)(nil)

package bus

import (
	"log/slog"
	"sync"
	"time"

	"kisanbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process communication.
type InMemoryBus struct {
	inbound  chan domain.Message
	outbound func(domain.OutboundReply)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.Message, bufferSize),
		logger:  logger,
	}
}

// Publish blocks up to 10 seconds if the bus is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "user", msg.UserID, "message_id", msg.MessageID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "user", msg.UserID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"user", msg.UserID,
				"message_id", msg.MessageID,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Message {
	return b.inbound
}

func (b *InMemoryBus) SendOutbound(reply domain.OutboundReply) {
	b.mu.RLock()
	handler := b.outbound
	b.mu.RUnlock()

	if handler == nil {
		b.logger.Warn("no outbound handler registered", "user", reply.UserID)
		return
	}

	handler(reply)
}

func (b *InMemoryBus) OnOutbound(handler func(domain.OutboundReply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = handler
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}

package events

import (
	"context"
	"sync"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/utils"
)

const DefaultSubscriberBuffer = 32

// Hub fans events out to in-process stream subscribers. A subscriber that
// falls behind loses events rather than stalling the publisher.
type Hub struct {
	log         logger.Logger
	bufferSize  int
	mu          sync.RWMutex
	subscribers map[string]chan dto.Event
	closed      bool
}

func NewHub(log logger.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		log:         log,
		bufferSize:  bufferSize,
		subscribers: make(map[string]chan dto.Event),
	}
}

func (h *Hub) Name() string {
	return "stream"
}

// Subscribe registers a new subscriber. The channel is closed on Unsubscribe
// or when the hub shuts down.
func (h *Hub) Subscribe() (string, <-chan dto.Event) {
	id := utils.GenerateNanoIDWithPrefix("sub", 12)
	ch := make(chan dto.Event, h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish never blocks. A subscriber whose buffer is full is disconnected so
// its client reconnects and receives a fresh snapshot.
func (h *Hub) Publish(_ context.Context, event dto.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.log.Warnf("Stream subscriber %s is full on %s event, disconnecting", id, event.Type)
			delete(h.subscribers, id)
			close(ch)
		}
	}
	return nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
	h.closed = true
	return nil
}

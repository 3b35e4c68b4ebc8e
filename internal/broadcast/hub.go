package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"loadboard/internal/api"
)

// ErrClosed is returned by Fetch once the hub has been closed.
var ErrClosed = errors.New("broadcast hub closed")

// DefaultCapacity bounds each topic buffer when NewHub is given zero.
const DefaultCapacity = 512

// Hub stores recent events per topic and wakes long-poll waiters when new
// events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	topics   map[string]*topicLog
	closed   bool
	now      func() time.Time
}

type topicLog struct {
	buffer  []api.Event
	nextSeq uint64
}

// NewHub constructs a hub keeping at most capacity events per topic.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Hub{
		capacity: capacity,
		topics:   make(map[string]*topicLog),
		now:      time.Now,
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends evt to topic, assigning its sequence number, and returns
// the stored event.
func (h *Hub) Publish(topic string, evt api.Event) api.Event {
	if h == nil {
		return evt
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return evt
	}
	log := h.logLocked(topic)
	log.nextSeq++
	evt.Sequence = log.nextSeq
	evt.Topic = topic
	if evt.Timestamp == "" {
		evt.Timestamp = api.FormatTime(h.now())
	}
	if len(log.buffer) == h.capacity {
		copy(log.buffer, log.buffer[1:])
		log.buffer = log.buffer[:h.capacity-1]
	}
	log.buffer = append(log.buffer, evt)
	h.cond.Broadcast()
	return evt
}

// Head reports the latest sequence published on topic.
func (h *Hub) Head(topic string) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if log, ok := h.topics[topic]; ok {
		return log.nextSeq
	}
	return 0
}

// Fetch returns events on topic with sequence greater than since, at most
// limit of them, along with the cursor for the next call. When wait is true
// Fetch blocks until at least one event is available, the hub closes or ctx
// ends.
func (h *Hub) Fetch(ctx context.Context, topic string, since uint64, limit int, wait bool) ([]api.Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		if h.closed {
			return nil, since, ErrClosed
		}
		events, next := h.snapshotLocked(topic, since, limit)
		if len(events) > 0 {
			return events, next, nil
		}
		if !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, since, err
		}
	}
}

// Close wakes every waiter; later fetches fail with ErrClosed.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

func (h *Hub) logLocked(topic string) *topicLog {
	log, ok := h.topics[topic]
	if !ok {
		log = &topicLog{}
		h.topics[topic] = log
	}
	return log
}

func (h *Hub) snapshotLocked(topic string, since uint64, limit int) ([]api.Event, uint64) {
	log, ok := h.topics[topic]
	if !ok {
		if since > 0 {
			return []api.Event{gapEvent(topic, 0)}, 0
		}
		return nil, 0
	}
	if since > log.nextSeq || (len(log.buffer) > 0 && log.buffer[0].Sequence > since+1) {
		return []api.Event{gapEvent(topic, log.nextSeq)}, log.nextSeq
	}
	start := len(log.buffer)
	for i, evt := range log.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	if start == len(log.buffer) {
		return nil, since
	}
	end := min(start+limit, len(log.buffer))
	out := make([]api.Event, end-start)
	copy(out, log.buffer[start:end])
	return out, out[len(out)-1].Sequence
}

// gapEvent tells a subscriber that events it never saw were dropped.
func gapEvent(topic string, seq uint64) api.Event {
	return api.Event{Sequence: seq, Topic: topic, Type: api.EventChanged}
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

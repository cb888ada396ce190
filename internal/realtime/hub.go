// Package realtime fans database row changes out to in-process subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"kwetu-store/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Change types carried in a notification.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
)

// Change is one row change from the change feed.
type Change struct {
	Table     string          `json:"table"`
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`

	fields map[string]interface{}
}

// Decode unmarshals the new row into v.
func (c *Change) Decode(v interface{}) error {
	return json.Unmarshal(c.Record, v)
}

// DecodeOld unmarshals the previous row into v. It fails for inserts.
func (c *Change) DecodeOld(v interface{}) error {
	if len(c.OldRecord) == 0 || string(c.OldRecord) == "null" {
		return fmt.Errorf("%s change on %s has no old record", c.Type, c.Table)
	}
	return json.Unmarshal(c.OldRecord, v)
}

// Field returns a column of the new row rendered as a string.
func (c *Change) Field(column string) (string, bool) {
	if c.fields == nil {
		if err := json.Unmarshal(c.Record, &c.fields); err != nil {
			return "", false
		}
	}
	v, ok := c.fields[column]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Filter selects changes for one table, optionally narrowed to rows where
// Column equals Value.
type Filter struct {
	Table  string
	Column string
	Value  string
}

func (f Filter) matches(c *Change) bool {
	if f.Table != c.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := c.Field(f.Column)
	return ok && v == f.Value
}

// Subscription receives matching changes on C until it is closed.
type Subscription struct {
	ID     string
	C      <-chan Change
	ch     chan Change
	filter Filter
	hub    *Hub
	once   sync.Once
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub dispatches published changes to matching subscriptions.
type Hub struct {
	subs      map[string]*Subscription
	broadcast chan Change
	done      chan struct{}
	buffer    int
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewHub creates a hub whose subscriptions buffer up to buffer changes.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:      make(map[string]*Subscription),
		broadcast: make(chan Change, 256),
		done:      make(chan struct{}),
		buffer:    buffer,
		logger:    util.Component("realtime-hub"),
	}
}

// Run dispatches changes until ctx is cancelled, then closes every subscription.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down")
			h.closeAll()
			return
		case change := <-h.broadcast:
			h.dispatch(change)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Publish queues a change for dispatch. It never blocks: when the queue is full
// the change is dropped and counted.
func (h *Hub) Publish(change Change) {
	select {
	case h.broadcast <- change:
	default:
		util.RealtimeDroppedTotal.Inc()
		h.logger.Warn("Broadcast queue full, dropping change", zap.String("table", change.Table))
	}
}

// Subscribe registers a subscription for changes matching f.
func (h *Hub) Subscribe(f Filter) *Subscription {
	ch := make(chan Change, h.buffer)
	sub := &Subscription{
		ID:     uuid.New().String(),
		C:      ch,
		ch:     ch,
		filter: f,
		hub:    h,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	util.RealtimeSubscriptions.Inc()
	h.logger.Debug("Subscribed",
		zap.String("id", sub.ID),
		zap.String("table", f.Table),
		zap.String("column", f.Column))
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, sub.ID)
		close(sub.ch)
		h.mu.Unlock()
		util.RealtimeSubscriptions.Dec()
	})
}

func (h *Hub) dispatch(change Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.matches(&change) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			util.RealtimeDroppedTotal.Inc()
			h.logger.Warn("Subscriber too slow, dropping change",
				zap.String("id", sub.ID),
				zap.String("table", change.Table))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.unsubscribe(sub)
	}
}

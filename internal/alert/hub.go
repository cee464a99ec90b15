package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
	"insiderwatch/backend/internal/metrics"
)

const defaultWriteTimeout = 5 * time.Second

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one live connection of an organization's channel. Writes are serialized.
type Subscriber struct {
	orgID string
	mu    sync.Mutex
	conn  Conn
}

func (s *Subscriber) send(v any, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *Subscriber) ping(messageType int, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(messageType, nil, time.Now().Add(timeout))
}

// Hub keeps the live subscribers of every organization.
type Hub struct {
	mu           sync.RWMutex
	rooms        map[string]map[*Subscriber]struct{}
	writeTimeout time.Duration
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscriber]struct{}), writeTimeout: defaultWriteTimeout}
}

// Subscribe adds conn to the channel of orgID.
func (h *Hub) Subscribe(orgID string, conn Conn) *Subscriber {
	s := &Subscriber{orgID: orgID, conn: conn}
	h.mu.Lock()
	room, ok := h.rooms[orgID]
	if !ok {
		room = make(map[*Subscriber]struct{})
		h.rooms[orgID] = room
	}
	room[s] = struct{}{}
	h.mu.Unlock()
	metrics.AlertSubscribers.Inc()
	return s
}

// Unsubscribe removes s and closes its connection. Removing a subscriber twice is a no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	room := h.rooms[s.orgID]
	_, ok := room[s]
	if ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.orgID)
		}
	}
	h.mu.Unlock()
	if ok {
		metrics.AlertSubscribers.Dec()
		_ = s.conn.Close()
	}
}

// Count returns the number of subscribers of orgID.
func (h *Hub) Count(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orgID])
}

// Close unsubscribes every subscriber, closing their connections.
func (h *Hub) Close() {
	h.mu.RLock()
	var subs []*Subscriber
	for _, room := range h.rooms {
		for s := range room {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.Unsubscribe(s)
	}
}

// Broadcast sends msg to every subscriber of orgID and returns how many received it. The
// subscriber set is snapshotted first so subscriptions may change during delivery; subscribers
// whose write fails are removed.
func (h *Hub) Broadcast(ctx context.Context, orgID string, msg any) int {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.rooms[orgID]))
	for s := range h.rooms[orgID] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if ctx.Err() != nil {
			break
		}
		if err := s.send(msg, h.writeTimeout); err != nil {
			logger.Get().Warn("alert: dropping live subscriber", zap.String("organization_id", orgID), zap.Error(err))
			metrics.AlertDeliveries.WithLabelValues(ChannelWebsocket, metrics.Result(false)).Inc()
			h.Unsubscribe(s)
			continue
		}
		metrics.AlertDeliveries.WithLabelValues(ChannelWebsocket, metrics.Result(true)).Inc()
		delivered++
	}
	return delivered
}

// Delivery channels reported in metrics.
const (
	ChannelWebsocket = "websocket"
	ChannelEmail     = "email"
)

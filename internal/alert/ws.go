package alert

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"insiderwatch/backend/internal/logger"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// WSHandler upgrades dashboard connections and subscribes them to their organization's alerts.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewWSHandler returns a handler accepting connections from allowedOrigins. "*" accepts any origin;
// an empty list accepts same-host origins only.
func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	h := &WSHandler{hub: hub}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		}
	}
	return h
}

// RegisterRoutes mounts the websocket route under r.
func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/alerts/{organizationID}", h.ServeWS)
}

// ServeWS holds the connection open until the client goes away. Client messages are ignored.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Warn("alert: websocket upgrade failed", zap.String("organization_id", orgID), zap.Error(err))
		return
	}
	sub := h.hub.Subscribe(orgID, conn)
	logger.Get().Info("alert: live subscriber connected",
		zap.String("organization_id", orgID), zap.Int("subscribers", h.hub.Count(orgID)))

	done := make(chan struct{})
	go h.keepAlive(sub, done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	close(done)
	h.hub.Unsubscribe(sub)
	logger.Get().Info("alert: live subscriber disconnected", zap.String("organization_id", orgID))
}

func (h *WSHandler) keepAlive(sub *Subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sub.ping(websocket.PingMessage, h.hub.writeTimeout); err != nil {
				return
			}
		}
	}
}

func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(allowed, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}

package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/storefront/internal/observability/metrics"
	"github.com/aryan0dhankhar/storefront/internal/security"
	"github.com/aryan0dhankhar/storefront/internal/security/auth"
	"github.com/aryan0dhankhar/storefront/internal/service"
)

const (
	studioPingInterval = 15 * time.Second
	studioWriteWait    = 5 * time.Second
	studioSendBuffer   = 16
)

type studioClient struct {
	storeID string
	subject string
	send    chan []byte
}

// StudioHub keeps theme editors connected over websockets and pushes them
// theme events for their store
type StudioHub struct {
	mu             sync.RWMutex
	clients        map[string]map[*studioClient]struct{}
	tokens         *auth.TokenManager
	authz          *security.AuthorizationService
	allowedOrigins []string
	logger         *slog.Logger
}

// NewStudioHub creates a hub
func NewStudioHub(tokens *auth.TokenManager, authz *security.AuthorizationService, allowedOrigins []string, logger *slog.Logger) *StudioHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudioHub{
		clients:        make(map[string]map[*studioClient]struct{}),
		tokens:         tokens,
		authz:          authz,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// upgrader is built per request from the hub's allowed origins
func (h *StudioHub) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /studio/ws?store={id}&token={jwt}
func (h *StudioHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store")
	if storeID == "" {
		http.Error(w, "missing store", http.StatusBadRequest)
		return
	}
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		http.Error(w, "missing auth", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if err := h.authz.Authorize(claims, security.PermUseStudio, storeID); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &studioClient{storeID: storeID, subject: claims.Subject, send: make(chan []byte, studioSendBuffer)}
	h.add(c)
	defer h.remove(c)

	done := make(chan struct{})
	go h.writePump(ws, c, done)
	h.readPump(ws, c)
	close(done)
}

// readPump consumes client frames until the connection closes. Editors
// only send pings.
func (h *StudioHub) readPump(ws *websocket.Conn, c *studioClient) {
	ws.SetReadLimit(4096)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("studio connection closed",
					slog.String("store_id", c.storeID),
					slog.String("reason", err.Error()),
				)
			}
			return
		}
		var in struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &in) == nil && in.Type == "ping" {
			h.enqueue(c, []byte(`{"type":"pong"}`))
		}
	}
}

func (h *StudioHub) writePump(ws *websocket.Conn, c *studioClient, done <-chan struct{}) {
	ticker := time.NewTicker(studioPingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(studioWriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(studioWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *StudioHub) add(c *studioClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.storeID] == nil {
		h.clients[c.storeID] = make(map[*studioClient]struct{})
	}
	h.clients[c.storeID][c] = struct{}{}
	metrics.IncrementStudioClients()
	h.logger.Info("studio client connected", slog.String("store_id", c.storeID), slog.String("subject", c.subject))
}

func (h *StudioHub) remove(c *studioClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.storeID][c]; !ok {
		return
	}
	delete(h.clients[c.storeID], c)
	if len(h.clients[c.storeID]) == 0 {
		delete(h.clients, c.storeID)
	}
	metrics.DecrementStudioClients()
}

// enqueue drops the message when the client is not keeping up
func (h *StudioHub) enqueue(c *studioClient, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("studio client too slow, dropping event", slog.String("store_id", c.storeID))
	}
}

// Notify sends event to every editor connected to storeID
func (h *StudioHub) Notify(storeID string, event service.ThemeEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode studio event", slog.String("error", err.Error()))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[storeID] {
		h.enqueue(c, msg)
	}
}

// Clients returns the number of editors connected to storeID
func (h *StudioHub) Clients(storeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[storeID])
}

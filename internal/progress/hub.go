package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/pkg/logger"
)

const redisChannel = "outreach:progress"

// Hub broadcasts progress events to SSE clients keyed by session id.
// Events also pass through a Redis channel so every instance sees runs
// started on its peers. Slow clients lose events rather than stalling
// the publisher.
type Hub struct {
	redis *redis.Client

	mu      sync.RWMutex
	clients map[string]map[chan []byte]bool // session id -> subscriber channels

	local chan []byte
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		redis:   rdb,
		clients: make(map[string]map[chan []byte]bool),
		local:   make(chan []byte, 256),
	}
}

// Start launches the fan-out loop and, when Redis is configured, the
// cross-instance subscription. Returns when ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	go h.dispatchLoop(ctx)
	if h.redis != nil {
		go h.subscribeLoop(ctx)
	}
}

// Publish sends one event. With Redis configured, events route through
// the shared channel so every instance's subscribers see them exactly
// once; the local channel is the fallback when Redis is down or absent.
func (h *Hub) Publish(ctx context.Context, ev *Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	if h.redis != nil {
		err := h.redis.Publish(ctx, redisChannel, data).Err()
		if err == nil {
			return
		}
		logger.Debug("progress publish to redis failed", "error", err.Error())
	}

	select {
	case h.local <- data:
	default:
		// backlogged, drop
	}
}

func (h *Hub) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.local:
			h.fanOut(data)
		}
	}
}

// subscribeLoop relays events published on the shared Redis channel,
// including this instance's own.
func (h *Hub) subscribeLoop(ctx context.Context) {
	sub := h.redis.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.fanOut([]byte(msg.Payload))
		}
	}
}

func (h *Hub) fanOut(data []byte) {
	var ev struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.SessionID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients[ev.SessionID] {
		select {
		case ch <- data:
		default:
			// slow client, drop
		}
	}
}

// Subscribe registers an SSE client for one session. The returned cancel
// func must be called when the client goes away.
func (h *Hub) Subscribe(sessionID string) (chan []byte, func()) {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[chan []byte]bool)
	}
	h.clients[sessionID][ch] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.clients[sessionID], ch)
		if len(h.clients[sessionID]) == 0 {
			delete(h.clients, sessionID)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// HandleSSE streams progress events for {sessionID} as Server-Sent
// Events until the client disconnects.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe(sessionID)
	defer cancel()

	// Let the client know the stream is live before the first event.
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

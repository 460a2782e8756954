package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"taproot-sync/internal/sync/dispatch"
)

// backlogSize bounds the replay buffer handed to connecting clients. A
// wallet UI that reconnects mid-payment replays the paid notification it
// would otherwise have missed.
const backlogSize = 32

// keepaliveInterval paces SSE comment frames so idle streams survive
// proxies that cut quiet connections.
const keepaliveInterval = 25 * time.Second

// streamClient is one connected SSE consumer. Its channel is buffered and
// never closed; the broker delivers under its lock, so a disconnect cannot
// race an in-flight broadcast.
type streamClient struct {
	events chan []byte
}

// SSEBroker fans wallet notifications out to connected stream clients. It
// implements dispatch.Notifier, so it plugs straight into the dispatcher's
// notifier chain.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	backlog [][]byte
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[*streamClient]struct{})}
}

// Notify implements dispatch.Notifier.
func (b *SSEBroker) Notify(_ context.Context, notification dispatch.Notification) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return
	}
	b.publish(payload)
}

// publish records the payload in the backlog and delivers it to every
// client while holding the lock. Client channels are buffered; a slow
// client drops the event rather than stall the dispatcher.
func (b *SSEBroker) publish(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backlog = append(b.backlog, payload)
	if len(b.backlog) > backlogSize {
		b.backlog = b.backlog[len(b.backlog)-backlogSize:]
	}
	for client := range b.clients {
		select {
		case client.events <- payload:
		default:
		}
	}
}

// subscribe registers a client and returns the backlog snapshot the caller
// replays before streaming live events.
func (b *SSEBroker) subscribe() (*streamClient, [][]byte) {
	client := &streamClient{events: make(chan []byte, 16)}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	replay := make([][]byte, len(b.backlog))
	copy(replay, b.backlog)
	return client, replay
}

// unsubscribe removes a client. The channel stays open; the handler exits
// through its request context instead.
func (b *SSEBroker) unsubscribe(client *streamClient) {
	b.mu.Lock()
	delete(b.clients, client)
	b.mu.Unlock()
}

// StreamHandler serves the SSE notification stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/notifications/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client, replay := h.broker.subscribe()
	defer h.broker.unsubscribe(client)

	writeFrame(w, "ready", []byte("{}"))
	for _, payload := range replay {
		writeFrame(w, "notification", payload)
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	done := r.Context().Done()
	for {
		select {
		case payload := <-client.events:
			writeFrame(w, "notification", payload)
			flusher.Flush()
		case <-keepalive.C:
			_, _ = io.WriteString(w, ": keepalive\n\n")
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeFrame(w io.Writer, event string, data []byte) {
	_, _ = io.WriteString(w, "event: ")
	_, _ = io.WriteString(w, event)
	_, _ = io.WriteString(w, "\ndata: ")
	_, _ = w.Write(data)
	_, _ = io.WriteString(w, "\n\n")
}

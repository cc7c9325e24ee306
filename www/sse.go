package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitemanager/engine"
	"sitemanager/store"
)

// SSEEvent is the typed envelope sent to SSE clients.
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type sseClient struct {
	events chan SSEEvent
}

// EventHub manages SSE client connections and broadcasts.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[*sseClient]struct{}
	broadcast chan SSEEvent
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
	log       *zap.Logger
}

// NewEventHub creates a new EventHub.
func NewEventHub(log *zap.Logger) *EventHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHub{
		clients:   make(map[*sseClient]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
		log:       log,
	}
}

// Start begins the event fan-out loop.
func (h *EventHub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop shuts down the event hub.
func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()
}

// Broadcast sends an event to all connected clients.
func (h *EventHub) Broadcast(evt SSEEvent) {
	select {
	case h.broadcast <- evt:
	default:
		h.log.Debug("sse broadcast buffer full, event dropped", zap.String("type", evt.Type))
	}
}

func (h *EventHub) register(c *sseClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) unregister(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	close(c.events)
	h.mu.Unlock()
}

func (h *EventHub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.events <- evt:
				default:
					// Client buffer full, drop event
				}
			}
			h.mu.RUnlock()
		}
	}
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSE(w http.ResponseWriter, f http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	f.Flush()
	return nil
}

// HandleSSE streams engine events to the client.
func (h *EventHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	sseHeaders(w)

	client := &sseClient{events: make(chan SSEEvent, 64)}
	h.register(client)
	defer h.unregister(client)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt, ok := <-client.events:
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, evt.Type, evt.Data); err != nil {
				h.log.Warn("sse encode", zap.String("type", evt.Type), zap.Error(err))
			}
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// SetupEngineListeners forwards every engine event to SSE clients under its
// kebab-case name.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.Subscribe(func(evt engine.Event) {
		h.Broadcast(SSEEvent{Type: evt.Type.String(), Data: evt.Payload})
	})
	h.log.Debug("SSE listeners wired to engine events")
}

// watchCollection streams a collection's current contents and every change
// to it until the client goes away.
func (h *Handlers) watchCollection(name string, c collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)

		updates := store.Watch(r.Context(), h.engine.DB(), c.query, c.tables...)
		for {
			select {
			case <-h.eventHub.stopChan:
				return
			case v, ok := <-updates:
				if !ok {
					return
				}
				if err := writeSSE(w, flusher, name, v); err != nil {
					h.log.Warn("sse encode", zap.String("collection", name), zap.Error(err))
				}
			}
		}
	}
}

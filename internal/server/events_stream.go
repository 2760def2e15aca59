package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aprovatas/margind/internal/events"
)

// streamClient is one connected websocket subscriber
type streamClient struct {
	events  chan *events.Event
	allowed map[events.EventType]bool
}

// EventsStreamHandler fans system events out to websocket subscribers. It
// holds a single permanent bus subscription; per-connection channels come
// and go with the connections.
type EventsStreamHandler struct {
	log     zerolog.Logger
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewEventsStreamHandler creates the handler and subscribes it to the bus
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	h := &EventsStreamHandler{
		log:     log.With().Str("component", "events_stream").Logger(),
		clients: make(map[*streamClient]struct{}),
	}
	bus.SubscribeAll(h.broadcast)
	return h
}

// broadcast delivers an event to every connected client. Slow clients drop
// events rather than blocking the publisher.
func (h *EventsStreamHandler) broadcast(event *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.allowed != nil && !client.allowed[event.Type] {
			continue
		}
		select {
		case client.events <- event:
		default:
		}
	}
}

// ServeHTTP handles GET /api/events/stream websocket upgrades. An optional
// types query parameter filters to a comma-separated list of event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	client := &streamClient{events: make(chan *events.Event, 64)}
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		client.allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			client.allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
	}()

	h.log.Info().Msg("Events stream client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-client.events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.log.Error().Err(err).Msg("Failed to encode event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Events stream client disconnected")
				return
			}
		}
	}
}

// Package events provides the event bus and typed event payloads the
// accounting core emits for telemetry and operator streams.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of system event
type EventType string

const (
	// FillProcessed fires after a fill mutates the position ledger
	FillProcessed EventType = "fill_processed"
	// CashChanged fires on any cash book mutation
	CashChanged EventType = "cash_changed"
	// PortfolioChanged fires when the cached portfolio valuation is invalidated
	PortfolioChanged EventType = "portfolio_changed"
	// SettlementScanned fires after an unsettled-cash settlement scan
	SettlementScanned EventType = "settlement_scanned"
	// TradingDayRolled fires after the daily T0 bucket roll
	TradingDayRolled EventType = "trading_day_rolled"
	// OrderRejected fires when an order fails its buying-power check
	OrderRejected EventType = "order_rejected"
	// ErrorOccurred fires on unexpected internal errors
	ErrorOccurred EventType = "error_occurred"
)

// Event represents a system event with its payload
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Handler receives published events
type Handler func(event *Event)

// Bus is an in-process publish/subscribe fanout. Publishing never blocks on
// subscribers; handlers run on the publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for a single event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	b.all = append(b.all, handler)
	b.mu.Unlock()
}

// Publish delivers the event to all matching handlers
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	typed := make([]Handler, len(b.handlers[event.Type]))
	copy(typed, b.handlers[event.Type])
	all := make([]Handler, len(b.all))
	copy(all, b.all)
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}

// Manager emits events to the bus and mirrors them into the structured log
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit publishes a typed event and logs it
func (m *Manager) Emit(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	m.bus.Publish(event)

	m.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event emitted")
}

// EmitError publishes an error event
func (m *Manager) EmitError(module string, err error) {
	m.Emit(module, &ErrorEventData{Error: err.Error()})
}

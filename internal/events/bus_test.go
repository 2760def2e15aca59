package events

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToTypedSubscribers(t *testing.T) {
	bus := NewBus()

	var fills, cash int
	bus.Subscribe(FillProcessed, func(*Event) { fills++ })
	bus.Subscribe(CashChanged, func(*Event) { cash++ })

	bus.Publish(&Event{Type: FillProcessed, Timestamp: time.Now()})
	bus.Publish(&Event{Type: FillProcessed, Timestamp: time.Now()})
	bus.Publish(&Event{Type: CashChanged, Timestamp: time.Now()})

	assert.Equal(t, 2, fills)
	assert.Equal(t, 1, cash)
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var seen []EventType
	bus.SubscribeAll(func(e *Event) { seen = append(seen, e.Type) })

	bus.Publish(&Event{Type: FillProcessed})
	bus.Publish(&Event{Type: TradingDayRolled})

	assert.Equal(t, []EventType{FillProcessed, TradingDayRolled}, seen)
}

func TestManagerEmitStampsTypeAndModule(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.SubscribeAll(func(e *Event) { got = e })

	manager.Emit("portfolio", &PortfolioChangedData{Reason: "fill processed"})

	require.NotNil(t, got)
	assert.Equal(t, PortfolioChanged, got.Type)
	assert.Equal(t, "portfolio", got.Module)
	assert.False(t, got.Timestamp.IsZero())

	data, ok := got.Data.(*PortfolioChangedData)
	require.True(t, ok)
	assert.Equal(t, "fill processed", data.Reason)
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus()
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("journal", errors.New("disk full"))

	require.NotNil(t, got)
	data, ok := got.Data.(*ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "disk full", data.Error)
}

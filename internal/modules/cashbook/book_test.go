package cashbook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/securities"
)

func TestBookSeedsAccountCurrency(t *testing.T) {
	book := NewBook("USD", zerolog.Nop())

	cash, ok := book.Get("USD")
	require.True(t, ok)
	assert.True(t, cash.IsAccountCurrency())
	assert.Equal(t, 1.0, cash.ConversionRate())
}

func TestBookAddAccumulates(t *testing.T) {
	book := NewBook("USD", zerolog.Nop())

	book.Add("EUR", 100, 1.1)
	cash := book.Add("EUR", 50, 0)

	assert.Equal(t, 150.0, cash.Amount())
	assert.Equal(t, 1.1, cash.ConversionRate())
}

func TestBookTotalValueInAccountCurrency(t *testing.T) {
	book := NewBook("USD", zerolog.Nop())
	book.Add("USD", 1000, 0)
	book.Add("EUR", 100, 1.1)
	book.Add("XYZ", 999, 0) // unresolved rate contributes nothing

	assert.InDelta(t, 1000+110, book.TotalValueInAccountCurrency(), 1e-9)
}

func TestBookConvertToAccountCurrency(t *testing.T) {
	book := NewBook("USD", zerolog.Nop())
	book.Add("EUR", 0, 1.1)

	converted, err := book.ConvertToAccountCurrency(200, "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 220, converted, 1e-9)

	same, err := book.ConvertToAccountCurrency(42, "USD")
	require.NoError(t, err)
	assert.Equal(t, 42.0, same)

	_, err = book.ConvertToAccountCurrency(1, "GBP")
	assert.Error(t, err, "unknown currency has no rate")

	book.Add("XYZ", 10, 0)
	_, err = book.ConvertToAccountCurrency(1, "XYZ")
	assert.Error(t, err, "unresolved rate cannot convert")
}

func TestEnsureCurrencyDataFeedsExplicitCurrencyRequiresPair(t *testing.T) {
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	// A deliberately-funded currency with no pair anywhere is a
	// configuration fault
	book := NewBook("USD", zerolog.Nop())
	book.Add("XYZ", 42, 0)
	err := book.EnsureCurrencyDataFeeds(directory, registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoConversionPair)

	// The same currency created as a fill side effect degrades instead
	auto := NewBook("USD", zerolog.Nop())
	auto.GetOrCreate("XYZ")
	require.NoError(t, auto.EnsureCurrencyDataFeeds(directory, registry))
	cash, ok := auto.Get("XYZ")
	require.True(t, ok)
	assert.Equal(t, 0.0, cash.ConversionRate())
}

func TestBookNotifiesOnAnyMutation(t *testing.T) {
	book := NewBook("USD", zerolog.Nop())

	var notifications int
	book.Subscribe(func() { notifications++ })

	book.Add("EUR", 100, 1.1) // new currency
	before := notifications
	assert.Greater(t, before, 0)

	cash, _ := book.Get("EUR")
	cash.AddAmount(1) // entry mutation chains into the book
	assert.Greater(t, notifications, before)
}

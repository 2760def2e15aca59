package cashbook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/securities"
)

func testPairSymbol(value string) domain.Symbol {
	return domain.NewSymbol(value, domain.SecurityTypeForex, domain.MarketOanda)
}

func testPairProps(quote string) domain.SymbolProperties {
	props := domain.DefaultSymbolProperties(quote)
	return props
}

func TestCashValueInvariant(t *testing.T) {
	cash := NewCash("EUR", 1000, 1.1, zerolog.Nop())

	assert.Equal(t, cash.Amount()*cash.ConversionRate(), cash.ValueInAccountCurrency())

	cash.AddAmount(500)
	assert.Equal(t, cash.Amount()*cash.ConversionRate(), cash.ValueInAccountCurrency())

	cash.SetConversionRate(1.25)
	assert.Equal(t, cash.Amount()*cash.ConversionRate(), cash.ValueInAccountCurrency())
	assert.InDelta(t, 1875.0, cash.ValueInAccountCurrency(), 1e-9)
}

func TestEnsureConversionSecurityAccountCurrency(t *testing.T) {
	cash := NewCash("USD", 1000, 0, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	sec, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err)
	assert.Nil(t, sec)
	assert.Equal(t, 1.0, cash.ConversionRate())
	assert.True(t, cash.IsAccountCurrency())
}

func TestEnsureConversionSecurityBindsExistingDirect(t *testing.T) {
	cash := NewCash("EUR", 1000, 0, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	sec := domain.NewSecurity(testPairSymbol("EURUSD"), testPairProps("USD"))
	sec.SetMarketPrice(1.08)
	directory.Add(sec)

	created, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err)
	assert.Nil(t, created, "existing security needs no new subscription")
	assert.InDelta(t, 1.08, cash.ConversionRate(), 1e-9)
}

func TestEnsureConversionSecurityBindsExistingInverse(t *testing.T) {
	cash := NewCash("JPY", 100000, 0, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	sec := domain.NewSecurity(testPairSymbol("USDJPY"), testPairProps("JPY"))
	sec.SetMarketPrice(150)
	directory.Add(sec)

	created, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.InDelta(t, 1.0/150, cash.ConversionRate(), 1e-9)

	// Ticks on an inverse-bound pair keep inverting
	cash.Update(160)
	assert.InDelta(t, 1.0/160, cash.ConversionRate(), 1e-9)
}

func TestEnsureConversionSecurityCreatesFromRegistry(t *testing.T) {
	cash := NewCash("GBP", 500, 0, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()
	registry.Register(testPairSymbol("GBPUSD"), testPairProps("USD"))

	created, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.Internal, "discovery subscriptions are hidden from operator UIs")

	bound, ok := directory.Get("GBPUSD")
	require.True(t, ok)
	assert.Same(t, created, bound)
}

func TestEnsureConversionSecurityDegradesWhenNoPairExists(t *testing.T) {
	cash := NewCash("XYZ", 42, 0.5, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	sec, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err, "an exotic currency must not abort the run")
	assert.Nil(t, sec)
	assert.Equal(t, 0.0, cash.ConversionRate())
	assert.Equal(t, 0.0, cash.ValueInAccountCurrency())
}

func TestUpdateSkipsAccountCurrency(t *testing.T) {
	cash := NewCash("USD", 1000, 0, zerolog.Nop())
	directory := securities.NewDirectory(zerolog.Nop())
	registry := securities.NewPropertiesRegistry()

	_, err := cash.EnsureConversionSecurity(directory, registry, "USD")
	require.NoError(t, err)

	cash.Update(1.5)
	assert.Equal(t, 1.0, cash.ConversionRate())
}

func TestCashSubscribeNotifies(t *testing.T) {
	cash := NewCash("USD", 0, 1, zerolog.Nop())

	var notifications int
	cash.Subscribe(func() { notifications++ })

	cash.AddAmount(10)
	cash.SetAmount(20)
	cash.SetConversionRate(1.2)
	assert.Equal(t, 3, notifications)
}

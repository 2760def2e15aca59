// Package cashbook implements the per-currency ledger: settled and unsettled
// cash balances with resolved conversion rates into the account currency.
package cashbook

import (
	"fmt"
	"sync"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/securities"
	"github.com/rs/zerolog"
)

// SecurityDirectory is the subset of the security directory the cash ledger
// needs for conversion-pair discovery
type SecurityDirectory interface {
	// Find returns an already-registered security with the given symbol
	// value among the given types
	Find(value string, types []domain.SecurityType) (*domain.Security, bool)

	// AddConversionSecurity registers a new internal market-data
	// subscription created by pair discovery
	AddConversionSecurity(symbol domain.Symbol, props domain.SymbolProperties) (*domain.Security, error)
}

// PairRegistry lists the tradeable currency pairs known to the
// symbol-properties registry
type PairRegistry interface {
	TradeablePairs(types []domain.SecurityType) []securities.PairEntry
}

// Cash is a single-currency balance with a resolved conversion rate into the
// account currency. Fills mutate the amount, market-data ticks on the bound
// conversion security mutate the rate.
type Cash struct {
	mu sync.Mutex

	currency          string
	amount            float64
	conversionRate    float64
	security          *domain.Security // pair the rate is bound to, nil for the account currency
	invertRate        bool             // the bound pair quotes ACCOUNT+CUR instead of CUR+ACCOUNT
	isAccountCurrency bool
	explicit          bool

	onUpdate []func()
	log      zerolog.Logger
}

// NewCash creates a cash balance. A zero conversion rate means the rate is
// unresolved until EnsureConversionSecurity binds a pair.
func NewCash(currency string, amount, conversionRate float64, log zerolog.Logger) *Cash {
	return &Cash{
		currency:       currency,
		amount:         amount,
		conversionRate: conversionRate,
		log:            log.With().Str("component", "cash").Str("currency", currency).Logger(),
	}
}

// Currency returns the ISO currency code
func (c *Cash) Currency() string {
	return c.currency
}

// Amount returns the current balance in the cash's own currency
func (c *Cash) Amount() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amount
}

// ConversionRate returns the resolved rate into the account currency
func (c *Cash) ConversionRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversionRate
}

// IsAccountCurrency reports whether this cash is the account currency itself
func (c *Cash) IsAccountCurrency() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAccountCurrency
}

// ConversionSecurity returns the pair the rate is bound to, nil when the
// cash is the account currency or the rate is unresolved
func (c *Cash) ConversionSecurity() *domain.Security {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.security
}

// MarkExplicit records that this balance was funded deliberately (account
// seeding, an authoritative brokerage report) rather than created as a side
// effect of a fill. Discovery treats explicit currencies strictly: no
// conversion pair is a configuration fault, not a degradation.
func (c *Cash) MarkExplicit() {
	c.mu.Lock()
	c.explicit = true
	c.mu.Unlock()
}

// Explicit reports whether the balance was funded deliberately
func (c *Cash) Explicit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.explicit
}

// ValueInAccountCurrency returns amount * conversion_rate
func (c *Cash) ValueInAccountCurrency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amount * c.conversionRate
}

// AddAmount adds delta (which may be negative) to the balance
func (c *Cash) AddAmount(delta float64) {
	c.mu.Lock()
	c.amount += delta
	c.mu.Unlock()
	c.notify()
}

// SetAmount replaces the balance
func (c *Cash) SetAmount(amount float64) {
	c.mu.Lock()
	c.amount = amount
	c.mu.Unlock()
	c.notify()
}

// SetConversionRate replaces the resolved conversion rate
func (c *Cash) SetConversionRate(rate float64) {
	c.mu.Lock()
	c.conversionRate = rate
	c.mu.Unlock()
	c.notify()
}

// Update applies a new price tick from the bound conversion security as the
// new conversion rate. Account-currency cash ignores ticks entirely.
func (c *Cash) Update(price float64) {
	c.mu.Lock()
	if c.isAccountCurrency || price <= 0 {
		c.mu.Unlock()
		return
	}
	if c.invertRate {
		c.conversionRate = 1 / price
	} else {
		c.conversionRate = price
	}
	c.mu.Unlock()
	c.notify()
}

// Subscribe registers a callback fired after every mutation. Callbacks run
// outside the instance lock.
func (c *Cash) Subscribe(fn func()) {
	c.mu.Lock()
	c.onUpdate = append(c.onUpdate, fn)
	c.mu.Unlock()
}

func (c *Cash) notify() {
	c.mu.Lock()
	subs := make([]func(), len(c.onUpdate))
	copy(subs, c.onUpdate)
	c.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// EnsureConversionSecurity resolves how this cash converts into the account
// currency:
//
//  1. The account currency itself is pinned at rate 1.
//  2. An existing FX/CFD/Crypto security quoting CUR+ACCOUNT (direct) or
//     ACCOUNT+CUR (inverse) is bound without any new subscription.
//  3. Otherwise the symbol-properties registry is searched across all
//     currency-pair markets; a matching pair becomes a new internal
//     market-data subscription.
//  4. No pair anywhere in the registry: an explicitly-funded currency is a
//     configuration fault and returns a hard error; a currency that appeared
//     as a fill side effect degrades to rate 0 so exotic currencies do not
//     abort the run, simply contributing nothing until data arrives.
//
// A registry pair that exists but cannot be wired is a configuration fault
// and returns a hard error. Callers must serialize discovery per account:
// it mutates the shared security set.
func (c *Cash) EnsureConversionSecurity(directory SecurityDirectory, registry PairRegistry, accountCurrency string) (*domain.Security, error) {
	if c.currency == accountCurrency {
		c.mu.Lock()
		c.isAccountCurrency = true
		c.conversionRate = 1
		c.security = nil
		c.mu.Unlock()
		return nil, nil
	}

	direct := c.currency + accountCurrency
	inverse := accountCurrency + c.currency

	// Prefer a security that already has a live data feed
	if sec, ok := directory.Find(direct, domain.CurrencyPairTypes); ok {
		c.bind(sec, false)
		return nil, nil
	}
	if sec, ok := directory.Find(inverse, domain.CurrencyPairTypes); ok {
		c.bind(sec, true)
		return nil, nil
	}

	// Search every tradeable pair the registry knows across FX/CFD/Crypto markets
	for _, entry := range registry.TradeablePairs(domain.CurrencyPairTypes) {
		base, quote, ok := domain.DecomposePair(entry.Symbol.Value, entry.Props.QuoteCurrency)
		if !ok {
			continue
		}

		var invert bool
		switch {
		case base == c.currency && quote == accountCurrency:
			invert = false
		case base == accountCurrency && quote == c.currency:
			invert = true
		default:
			continue
		}

		sec, err := directory.AddConversionSecurity(entry.Symbol, entry.Props)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", domain.ErrNoConversionPair, c.currency, err)
		}
		c.bind(sec, invert)

		c.log.Info().
			Str("pair", entry.Symbol.Value).
			Bool("inverted", invert).
			Msg("Created internal conversion feed for currency")
		return sec, nil
	}

	// No pair in any registry entry. A deliberately-funded currency that
	// cannot be priced is a configuration fault; one created as a fill side
	// effect degrades rather than crashing the run.
	if c.Explicit() {
		return nil, fmt.Errorf("%w %s: no tradeable pair in any market", domain.ErrNoConversionPair, c.currency)
	}
	c.log.Error().
		Str("account_currency", accountCurrency).
		Msg("No tradeable pair found to convert currency, conversion rate set to 0")
	c.mu.Lock()
	c.conversionRate = 0
	c.mu.Unlock()
	return nil, nil
}

func (c *Cash) bind(sec *domain.Security, invert bool) {
	c.mu.Lock()
	c.security = sec
	c.invertRate = invert
	if price := sec.Price(); price > 0 {
		if invert {
			c.conversionRate = 1 / price
		} else {
			c.conversionRate = price
		}
	}
	c.mu.Unlock()
}

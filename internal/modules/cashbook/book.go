package cashbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Book maps currency codes to cash balances, with a distinguished
// account-currency entry. Every mutation fires the book's change
// notification, which the portfolio aggregator uses to invalidate its
// cached valuation. Two books exist per portfolio: settled and unsettled.
type Book struct {
	mu              sync.RWMutex
	accountCurrency string
	currencies      map[string]*Cash
	onChanged       []func()
	log             zerolog.Logger
}

// NewBook creates a cash book with an account-currency entry at rate 1
func NewBook(accountCurrency string, log zerolog.Logger) *Book {
	b := &Book{
		accountCurrency: accountCurrency,
		currencies:      make(map[string]*Cash),
		log:             log.With().Str("component", "cashbook").Logger(),
	}
	base := NewCash(accountCurrency, 0, 1, log)
	base.isAccountCurrency = true
	b.attach(base)
	b.currencies[accountCurrency] = base
	return b
}

// AccountCurrency returns the account reporting currency
func (b *Book) AccountCurrency() string {
	return b.accountCurrency
}

// Add registers a cash balance for the currency, or adds to an existing
// one, and returns the entry. Balances added this way are explicit:
// discovery failure for them is a configuration fault.
func (b *Book) Add(currency string, amount, conversionRate float64) *Cash {
	b.mu.Lock()
	cash, ok := b.currencies[currency]
	if ok {
		b.mu.Unlock()
		cash.MarkExplicit()
		cash.AddAmount(amount)
		if conversionRate > 0 {
			cash.SetConversionRate(conversionRate)
		}
		return cash
	}
	cash = NewCash(currency, amount, conversionRate, b.log)
	cash.MarkExplicit()
	b.attach(cash)
	b.currencies[currency] = cash
	b.mu.Unlock()
	b.notify()
	return cash
}

// Get returns the cash entry for the currency
func (b *Book) Get(currency string) (*Cash, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cash, ok := b.currencies[currency]
	return cash, ok
}

// GetOrCreate returns the cash entry, creating an empty unresolved one when
// the currency has never been seen. Entries created this way are implicit
// fill side effects, so discovery may degrade them instead of failing.
func (b *Book) GetOrCreate(currency string) *Cash {
	if cash, ok := b.Get(currency); ok {
		return cash
	}
	b.mu.Lock()
	if cash, ok := b.currencies[currency]; ok {
		b.mu.Unlock()
		return cash
	}
	cash := NewCash(currency, 0, 0, b.log)
	b.attach(cash)
	b.currencies[currency] = cash
	b.mu.Unlock()
	b.notify()
	return cash
}

// All returns the cash entries ordered by currency code
func (b *Book) All() []*Cash {
	b.mu.RLock()
	out := make([]*Cash, 0, len(b.currencies))
	for _, cash := range b.currencies {
		out = append(out, cash)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Currency() < out[j].Currency() })
	return out
}

// TotalValueInAccountCurrency sums every balance converted at its resolved rate
func (b *Book) TotalValueInAccountCurrency() float64 {
	total := 0.0
	for _, cash := range b.All() {
		total += cash.ValueInAccountCurrency()
	}
	return total
}

// ConvertToAccountCurrency converts an amount of the given currency using
// the book's resolved rate. Implements domain.CurrencyConverter.
func (b *Book) ConvertToAccountCurrency(amount float64, currency string) (float64, error) {
	if currency == b.accountCurrency {
		return amount, nil
	}
	cash, ok := b.Get(currency)
	if !ok {
		return 0, fmt.Errorf("failed to convert %s: currency not in cash book", currency)
	}
	rate := cash.ConversionRate()
	if rate <= 0 {
		return 0, fmt.Errorf("failed to convert %s: conversion rate not resolved", currency)
	}
	return amount * rate, nil
}

// EnsureCurrencyDataFeeds resolves conversion securities for every currency
// in the book. It mutates the shared security set, so it must not run
// concurrently with another discovery call for the same account; the book
// lock enforces that.
func (b *Book) EnsureCurrencyDataFeeds(directory SecurityDirectory, registry PairRegistry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cash := range b.currencies {
		if _, err := cash.EnsureConversionSecurity(directory, registry, b.accountCurrency); err != nil {
			return fmt.Errorf("failed to ensure currency data feed: %w", err)
		}
	}
	return nil
}

// UpdateRatesFor applies a price tick to every cash entry whose conversion
// rate is bound to the given security
func (b *Book) UpdateRatesFor(symbolValue string, price float64) {
	b.mu.RLock()
	entries := make([]*Cash, 0, len(b.currencies))
	for _, cash := range b.currencies {
		entries = append(entries, cash)
	}
	b.mu.RUnlock()

	for _, cash := range entries {
		if sec := cash.ConversionSecurity(); sec != nil && sec.Symbol.Value == symbolValue {
			cash.Update(price)
		}
	}
}

// Subscribe registers a callback fired after any mutation to the book or
// any of its cash entries
func (b *Book) Subscribe(fn func()) {
	b.mu.Lock()
	b.onChanged = append(b.onChanged, fn)
	b.mu.Unlock()
}

// attach chains a cash entry's update notification into the book's.
// Caller holds b.mu.
func (b *Book) attach(cash *Cash) {
	cash.Subscribe(b.notify)
}

func (b *Book) notify() {
	b.mu.RLock()
	subs := make([]func(), len(b.onChanged))
	copy(subs, b.onChanged)
	b.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

package domain

// FeeModel computes the brokerage fee for an order. Fee schedules live
// outside this core; implementations are injected at setup time.
type FeeModel interface {
	// GetOrderFee returns the fee charged for executing the order, in
	// whatever currency the venue charges it
	GetOrderFee(security *Security, order *Order) (Money, error)
}

// CurrencyConverter converts amounts into the account currency using the
// cash book's resolved conversion rates.
type CurrencyConverter interface {
	// ConvertToAccountCurrency converts amount from the given currency.
	// Returns an error when no conversion rate is known for the currency.
	ConvertToAccountCurrency(amount float64, currency string) (float64, error)

	// AccountCurrency returns the account reporting currency
	AccountCurrency() string
}

// TicketSource looks up the order ticket tracked for a submitted order.
// A missing ticket on a buying-power check is a configuration fault.
type TicketSource interface {
	GetOrderTicket(orderID string) (*OrderTicket, bool)
}

// FlatFeeModel charges a fixed fee per order in a single currency. Used as
// the default collaborator in tests and in deployments without a venue fee
// schedule.
type FlatFeeModel struct {
	Fee Money
}

// GetOrderFee returns the configured flat fee regardless of order size
func (m FlatFeeModel) GetOrderFee(_ *Security, _ *Order) (Money, error) {
	return m.Fee, nil
}

// ZeroFeeModel charges nothing.
type ZeroFeeModel struct{}

// GetOrderFee returns a zero fee
func (ZeroFeeModel) GetOrderFee(security *Security, _ *Order) (Money, error) {
	return NewMoney(0, security.QuoteCurrency()), nil
}

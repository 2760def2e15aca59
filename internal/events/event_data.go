package events

// EventData is the interface all event payload types implement. It keeps
// payloads type-safe while letting the bus stay generic.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// FillProcessedData contains data for FillProcessed events
type FillProcessedData struct {
	Symbol   string  `json:"symbol"`
	OrderID  string  `json:"order_id"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
	Closing  bool    `json:"closing"`
}

// EventType returns the event type for FillProcessedData
func (d *FillProcessedData) EventType() EventType { return FillProcessed }

// CashChangedData contains data for CashChanged events
type CashChangedData struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
	Settled  bool    `json:"settled"`
}

// EventType returns the event type for CashChangedData
func (d *CashChangedData) EventType() EventType { return CashChanged }

// PortfolioChangedData contains data for PortfolioChanged events
type PortfolioChangedData struct {
	Reason string `json:"reason"`
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType { return PortfolioChanged }

// SettlementScannedData contains data for SettlementScanned events
type SettlementScannedData struct {
	SettledCount int     `json:"settled_count"`
	SettledValue float64 `json:"settled_value"`
	PendingCount int     `json:"pending_count"`
}

// EventType returns the event type for SettlementScannedData
func (d *SettlementScannedData) EventType() EventType { return SettlementScanned }

// TradingDayRolledData contains data for TradingDayRolled events
type TradingDayRolledData struct {
	Holdings int    `json:"holdings"`
	Day      string `json:"day"`
}

// EventType returns the event type for TradingDayRolledData
func (d *TradingDayRolledData) EventType() EventType { return TradingDayRolled }

// OrderRejectedData contains data for OrderRejected events
type OrderRejectedData struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
	Reason  string `json:"reason"`
}

// EventType returns the event type for OrderRejectedData
func (d *OrderRejectedData) EventType() EventType { return OrderRejected }

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error string `json:"error"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

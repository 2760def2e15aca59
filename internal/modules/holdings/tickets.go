package holdings

import "github.com/aprovatas/margind/internal/domain"

// RegisterOrderTicket tracks an order ticket against this holding. Tickets
// for closing orders reduce the quantity OpenQuantity reports, preventing a
// second close order from overselling what the first will already sell.
func (h *Holding) RegisterOrderTicket(ticket *domain.OrderTicket) {
	h.mu.Lock()
	h.openTickets[ticket.OrderID] = ticket
	h.mu.Unlock()
}

// RemoveOrderTicket stops tracking a ticket once the order layer reports it
// closed (filled or canceled)
func (h *Holding) RemoveOrderTicket(orderID string) {
	h.mu.Lock()
	delete(h.openTickets, orderID)
	h.mu.Unlock()
}

// GetOrderTicket returns a tracked ticket. Implements domain.TicketSource
// for a single holding.
func (h *Holding) GetOrderTicket(orderID string) (*domain.OrderTicket, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ticket, ok := h.openTickets[orderID]
	return ticket, ok
}

// OpenQuantity returns the current quantity adjusted by the unfilled
// remainder of every still-open closing order ticket. Fills mutate the
// position on a different thread than the one placing orders, so the whole
// read-modify-read runs under the instance lock.
func (h *Holding) OpenQuantity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	open := h.quantity
	for _, ticket := range h.openTickets {
		if !ticket.Status.IsOpen() {
			continue
		}
		unfilled := ticket.UnfilledQuantity()
		// Only closing tickets (opposite sign to the position) reserve quantity
		if h.quantity > 0 && unfilled < 0 || h.quantity < 0 && unfilled > 0 {
			open += unfilled
		}
	}
	return open
}

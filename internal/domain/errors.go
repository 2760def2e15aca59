package domain

import "errors"

// Fatal error classes. Soft outcomes (insufficient buying power, zero price,
// sub-lot quantities) are never errors; they come back as typed results with
// a reason string.
var (
	// ErrInvalidLeverage is returned when a leverage below 1x is requested
	ErrInvalidLeverage = errors.New("leverage must be greater than or equal to 1")

	// ErrInvalidMarginRequirement is returned when a margin requirement
	// fraction falls outside (0, 1]
	ErrInvalidMarginRequirement = errors.New("margin requirement must be in the range (0, 1]")

	// ErrMissingOrderTicket is returned when a buying-power check cannot
	// find the ticket for the order being validated
	ErrMissingOrderTicket = errors.New("no order ticket tracked for order")

	// ErrNoConversionPair is returned when an explicitly-set cash currency
	// has a conversion pair in the registry but it could not be wired up
	ErrNoConversionPair = errors.New("no tradeable conversion pair could be wired for currency")

	// ErrSolverDidNotConverge is returned when the target-quantity solver
	// repeats a quantity without converging; it signals a fee or lot-size
	// configuration defect, not bad input
	ErrSolverDidNotConverge = errors.New("target quantity solver did not converge")
)

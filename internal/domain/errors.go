package domain

import "github.com/cockroachdb/errors"

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrSlotClosed           = errors.New("slot closed")
	ErrHoldNotFound         = errors.New("hold not found")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrStorageFailure       = errors.New("storage failure")

	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrTokenRequired          = errors.New("token required")
	ErrIdempotencyConflict    = errors.New("token already used for a different hold")
	ErrHoldAlreadyConfirmed   = errors.New("hold already confirmed")
	ErrUnitUnavailable        = errors.New("unit not available")
	ErrUnitNotFound           = errors.New("unit not found")
	ErrPoolNotFound           = errors.New("pool not found")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrCapacityBelowCommitted = errors.New("capacity below held and sold units")
	ErrUnitTracked            = errors.New("operation not supported for unit-tracked pools")
	ErrInvalidProduct         = errors.New("invalid product")
	ErrInvalidSlot            = errors.New("invalid slot")
)

// IsBusiness reports whether err is a user-facing rule violation rather than
// an infrastructure problem.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrInsufficientCapacity, ErrSlotClosed, ErrHoldNotFound, ErrInvalidQuantity,
		ErrTokenRequired, ErrIdempotencyConflict, ErrHoldAlreadyConfirmed,
		ErrUnitUnavailable, ErrUnitNotFound, ErrPoolNotFound, ErrSlotNotFound,
		ErrProductNotFound, ErrCapacityBelowCommitted, ErrUnitTracked,
		ErrInvalidProduct, ErrInvalidSlot,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// kindError tags a cause with one of the sentinel kinds above.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) Is(target error) bool { return target == e.kind }

// WithKind classifies err as kind. The result matches kind under both the
// standard errors.Is and cockroachdb/errors.Is and still matches the cause.
func WithKind(err, kind error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(&kindError{kind: kind, cause: err}, kind)
}

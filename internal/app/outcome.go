package app

import (
	"errors"

	"aparthotel/internal/domain"
)

// outcome is a metrics label for an operation result.
func outcome(err error) string {
	var fe *domain.FetchError
	var pe *domain.ParseError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRange):
		return "invalid"
	case errors.Is(err, domain.ErrInactive), errors.Is(err, domain.ErrBookingState):
		return "rejected"
	case errors.Is(err, domain.ErrSyncInProgress), errors.Is(err, domain.ErrIntegrationChanged):
		return "skipped"
	case errors.As(err, &fe):
		return "fetch_error"
	case errors.As(err, &pe):
		return "parse_error"
	}
	return "error"
}

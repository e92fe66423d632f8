package domain

import (
	"errors"
	"fmt"
)

// Business outcomes. Callers match them with errors.Is; none of them is a
// system failure.
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("requested dates are not available")
	ErrOwnership             = errors.New("blocked range is owned by a channel integration")
	ErrDuplicateSeasonalRate = errors.New("seasonal rate already exists for this apartment type, year and month")
	ErrInvalidRange          = errors.New("end date must be after start date")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInactive              = errors.New("inactive")
	ErrBookingState          = errors.New("booking status does not allow this operation")
	ErrSyncInProgress        = errors.New("sync already running for this integration")
	ErrIntegrationChanged    = errors.New("integration was edited or removed during sync")
)

// FetchError means the remote calendar could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch calendar: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch calendar: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the remote document is not a calendar at all.
// Individual malformed events are skipped instead.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse calendar: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

package domain

import (
	"fmt"
	"regexp"
	"time"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ApartmentType is a sellable unit category. It is never deleted, only
// deactivated, so bookings and rates that reference it stay valid.
type ApartmentType struct {
	Slug      string
	Name      string
	BasePrice int64 // nightly, minor currency units
	Capacity  int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a ApartmentType) Validate() error {
	switch {
	case !slugRe.MatchString(a.Slug):
		return fmt.Errorf("%w: slug %q must be lowercase words separated by dashes", ErrInvalidInput, a.Slug)
	case a.BasePrice <= 0:
		return fmt.Errorf("%w: base price must be positive", ErrInvalidInput)
	case a.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidInput)
	}
	return nil
}

// SeasonalRate overrides the nightly price for one apartment type in one
// calendar month. At most one active row exists per (type, year, month).
type SeasonalRate struct {
	ID            int64
	ApartmentType string
	Year          int
	Month         time.Month
	Price         int64
	Active        bool
}

func (r SeasonalRate) Validate() error {
	switch {
	case r.ApartmentType == "":
		return fmt.Errorf("%w: apartment type is required", ErrInvalidInput)
	case r.Month < time.January || r.Month > time.December:
		return fmt.Errorf("%w: month must be 1..12", ErrInvalidInput)
	case r.Year < 2000 || r.Year > 9999:
		return fmt.Errorf("%w: year %d out of range", ErrInvalidInput, r.Year)
	case r.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	return nil
}

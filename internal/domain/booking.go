package domain

import "time"

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Occupies reports whether a booking in this status holds its dates.
// Pending ("pay later") bookings hold the calendar exactly like confirmed
// ones: dates are reserved on request, not on payment.
func (s BookingStatus) Occupies() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Guest struct {
	Name  string
	Email string
	Phone string
}

// Booking is a direct reservation. Range.End is the checkout day.
type Booking struct {
	ID            int64
	Reference     string
	ApartmentType string
	Range         DateRange
	Guests        int
	Guest         Guest
	Status        BookingStatus
	TotalPrice    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BookingQuery selects bookings of one apartment type whose range overlaps Within.
type BookingQuery struct {
	ApartmentType string
	Within        DateRange
	OccupyingOnly bool
}

// BookingRequest is what the checkout flow or staff console submits.
type BookingRequest struct {
	ApartmentType string
	Range         DateRange
	Guests        int
	Guest         Guest
	PayLater      bool // creates the booking as pending
}

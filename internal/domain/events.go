package domain

import "time"

type EventType string

const (
	EventBookingConfirmed   EventType = "booking.confirmed"
	EventBookingPending     EventType = "booking.pending"
	EventBookingCancelled   EventType = "booking.cancelled"
	EventBookingRescheduled EventType = "booking.rescheduled"
	EventChannelConflict    EventType = "channel.conflict"
)

// Event is handed to the notification subsystem after a write commits.
type Event struct {
	Type          EventType
	ApartmentType string
	BookingID     int64
	Reference     string
	Range         DateRange
	IntegrationID int64
	ExternalID    string
	At            time.Time
}

// Key groups events of one apartment type on the same partition.
func (e Event) Key() string { return e.ApartmentType }

package domain

import (
	"context"
	"time"
)

type Repository interface {
	// Apartment types
	GetApartmentType(ctx context.Context, slug string) (ApartmentType, error)
	ListApartmentTypes(ctx context.Context) ([]ApartmentType, error)
	CreateApartmentType(ctx context.Context, a ApartmentType) error
	UpdateApartmentType(ctx context.Context, a ApartmentType) error

	// Seasonal rates
	GetSeasonalRate(ctx context.Context, id int64) (SeasonalRate, error)
	FindActiveSeasonalRate(ctx context.Context, apartmentType string, year int, month time.Month) (SeasonalRate, error)
	ListSeasonalRates(ctx context.Context, apartmentType string, year int) ([]SeasonalRate, error)
	InsertSeasonalRate(ctx context.Context, r *SeasonalRate) error // ErrDuplicateSeasonalRate
	UpdateSeasonalRate(ctx context.Context, r SeasonalRate) error
	UpsertSeasonalRate(ctx context.Context, r *SeasonalRate) error
	DeleteSeasonalRate(ctx context.Context, id int64) error

	// Bookings
	GetBooking(ctx context.Context, id int64) (Booking, error)
	ListBookings(ctx context.Context, q BookingQuery) ([]Booking, error)
	InsertBooking(ctx context.Context, b *Booking) error
	UpdateBookingRange(ctx context.Context, id int64, r DateRange) error
	UpdateBookingStatus(ctx context.Context, id int64, s BookingStatus) error

	// Blocked ranges
	GetBlock(ctx context.Context, id int64) (BlockedRange, error)
	ListBlocks(ctx context.Context, apartmentType string, within *DateRange) ([]BlockedRange, error)
	ListOwnedBlocks(ctx context.Context, integrationID int64) ([]BlockedRange, error)
	InsertBlock(ctx context.Context, b *BlockedRange) error
	UpdateBlockRange(ctx context.Context, id int64, r DateRange) error
	DeleteBlock(ctx context.Context, id int64) error

	// Channel integrations
	GetIntegration(ctx context.Context, id int64) (ChannelIntegration, error)
	ListIntegrations(ctx context.Context, activeOnly bool) ([]ChannelIntegration, error)
	CreateIntegration(ctx context.Context, c *ChannelIntegration) error
	UpdateIntegration(ctx context.Context, c ChannelIntegration) error // staff fields only
	DeleteIntegration(ctx context.Context, id int64) error            // also drops owned blocks
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	MarkSyncFailed(ctx context.Context, id int64, errText string) error
}

// Store serializes read-then-write units per apartment type. Everything fn
// does through r is one unit: no other Atomically call for the same
// apartment type interleaves with it, and it commits or fails as a whole.
type Store interface {
	Repository
	Atomically(ctx context.Context, apartmentType string, fn func(ctx context.Context, r Repository) error) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type CalendarSource interface {
	// FetchCalendar returns *FetchError or *ParseError on failure.
	FetchCalendar(ctx context.Context, url string) (CalendarFeed, error)
}

// Locker grants a short exclusive lease. TryLock returns ErrSyncInProgress
// when the key is already held.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

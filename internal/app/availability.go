package app

import (
	"context"

	"aparthotel/internal/domain"
)

// AvailabilityResolver answers whether a range can be sold. Answers are
// never cached: each call reads the stores as they are now.
type AvailabilityResolver struct {
	repo domain.Repository
}

func NewAvailabilityResolver(r domain.Repository) *AvailabilityResolver {
	return &AvailabilityResolver{repo: r}
}

// IsAvailable is false when any occupying booking other than excludeBookingID,
// or any blocked range of any source, overlaps r. Pass 0 to exclude nothing.
func (a *AvailabilityResolver) IsAvailable(ctx context.Context, apt string, r domain.DateRange, excludeBookingID int64) (bool, error) {
	return isAvailable(ctx, a.repo, apt, r, excludeBookingID)
}

// isAvailable is shared with the write paths, which call it through the
// repository of an Atomically unit.
func isAvailable(ctx context.Context, repo domain.Repository, apt string, r domain.DateRange, excludeBookingID int64) (bool, error) {
	bookings, err := repo.ListBookings(ctx, domain.BookingQuery{ApartmentType: apt, Within: r, OccupyingOnly: true})
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.ID == excludeBookingID {
			continue
		}
		if b.Status.Occupies() && b.Range.Overlaps(r) {
			return false, nil
		}
	}
	blocks, err := repo.ListBlocks(ctx, apt, &r)
	if err != nil {
		return false, err
	}
	for _, b := range blocks {
		if b.Range.Overlaps(r) {
			return false, nil
		}
	}
	return true, nil
}

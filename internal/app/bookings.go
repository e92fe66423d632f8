package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/domain"
)

// BookingService quotes stays and writes direct bookings. Every write that
// depends on availability re-checks it inside Store.Atomically, so the check
// and the write form one unit per apartment type.
type BookingService struct {
	store domain.Store
	rates *RateService
	avail *AvailabilityResolver
	pub   domain.EventPublisher
	opts  options
}

func NewBookingService(s domain.Store, rates *RateService, pub domain.EventPublisher, opts ...Option) *BookingService {
	return &BookingService{
		store: s,
		rates: rates,
		avail: NewAvailabilityResolver(s),
		pub:   pub,
		opts:  buildOptions(opts),
	}
}

func (s *BookingService) today() time.Time { return domain.Day(s.opts.now()) }

func (s *BookingService) notInPast(r domain.DateRange) error {
	if r.Start.Before(s.today()) {
		return fmt.Errorf("%w: check-in %s is in the past", domain.ErrInvalidInput, r.Start.Format(domain.DateLayout))
	}
	return nil
}

// Quote composes availability and per-night prices. Inactive apartment
// types quote as unavailable.
func (s *BookingService) Quote(ctx context.Context, apt string, r domain.DateRange) (domain.Quote, error) {
	if err := r.Validate(); err != nil {
		return domain.Quote{}, err
	}
	a, err := s.store.GetApartmentType(ctx, apt)
	if err != nil {
		return domain.Quote{}, err
	}
	available := false
	if a.Active {
		if available, err = s.avail.IsAvailable(ctx, apt, r, 0); err != nil {
			return domain.Quote{}, err
		}
	}
	nights, total, err := s.rates.StayPrice(ctx, a, r)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{ApartmentType: apt, Range: r, Available: available, Nights: nights, Total: total}, nil
}

// ConfirmBooking creates a confirmed booking, or a pending one when the
// guest pays later. Both hold the dates. Returns ErrConflict when the range
// is taken at commit time.
func (s *BookingService) ConfirmBooking(ctx context.Context, req domain.BookingRequest) (domain.Booking, error) {
	if err := req.Range.Validate(); err != nil {
		return domain.Booking{}, err
	}
	if err := s.notInPast(req.Range); err != nil {
		return domain.Booking{}, err
	}
	if req.Guests <= 0 {
		return domain.Booking{}, fmt.Errorf("%w: guest count must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Guest.Name) == "" {
		return domain.Booking{}, fmt.Errorf("%w: guest name is required", domain.ErrInvalidInput)
	}

	status := domain.StatusConfirmed
	if req.PayLater {
		status = domain.StatusPending
	}
	var b domain.Booking
	err := s.store.Atomically(ctx, req.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		a, err := repo.GetApartmentType(ctx, req.ApartmentType)
		if err != nil {
			return err
		}
		if !a.Active {
			return fmt.Errorf("apartment type %q: %w", a.Slug, domain.ErrInactive)
		}
		if req.Guests > a.Capacity {
			return fmt.Errorf("%w: %d guests exceed capacity %d", domain.ErrInvalidInput, req.Guests, a.Capacity)
		}
		ok, err := isAvailable(ctx, repo, a.Slug, req.Range, 0)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConflict
		}
		total, err := stayTotalFrom(ctx, repo, a, req.Range)
		if err != nil {
			return err
		}
		b = domain.Booking{
			Reference:     s.opts.newRef(),
			ApartmentType: a.Slug,
			Range:         req.Range,
			Guests:        req.Guests,
			Guest:         req.Guest,
			Status:        status,
			TotalPrice:    total,
		}
		return repo.InsertBooking(ctx, &b)
	})
	observability.ObserveBooking("create", outcome(err))
	if err != nil {
		return domain.Booking{}, err
	}

	ev := domain.EventBookingConfirmed
	if status == domain.StatusPending {
		ev = domain.EventBookingPending
	}
	s.publish(ctx, bookingEvent(ev, b, s.opts.now()))
	return b, nil
}

// Reschedule moves a booking to start on newStart, keeping its number of
// nights. The booking's own current range does not count against it.
// Nothing is written when the new range is unavailable.
func (s *BookingService) Reschedule(ctx context.Context, id int64, newStart time.Time) (domain.Booking, error) {
	cur, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := s.notInPast(cur.Range.Shift(newStart)); err != nil {
		return domain.Booking{}, err
	}
	var out domain.Booking
	err = s.store.Atomically(ctx, cur.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		b, err := repo.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !b.Status.Occupies() {
			return fmt.Errorf("booking %d is %s: %w", id, b.Status, domain.ErrBookingState)
		}
		next := b.Range.Shift(newStart)
		if next.Equal(b.Range) {
			out = b
			return nil
		}
		ok, err := isAvailable(ctx, repo, b.ApartmentType, next, b.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConflict
		}
		if err := repo.UpdateBookingRange(ctx, b.ID, next); err != nil {
			return err
		}
		b.Range = next
		out = b
		return nil
	})
	observability.ObserveBooking("reschedule", outcome(err))
	if err != nil {
		return domain.Booking{}, err
	}
	s.publish(ctx, bookingEvent(domain.EventBookingRescheduled, out, s.opts.now()))
	return out, nil
}

// CancelBooking is terminal and releases the booking's dates.
func (s *BookingService) CancelBooking(ctx context.Context, id int64) (domain.Booking, error) {
	return s.transition(ctx, id, domain.StatusCancelled, domain.EventBookingCancelled,
		func(st domain.BookingStatus) bool { return st.Occupies() })
}

// ConfirmPending turns a pay-later booking into a confirmed one. The dates
// were already held, so no availability check is needed.
func (s *BookingService) ConfirmPending(ctx context.Context, id int64) (domain.Booking, error) {
	return s.transition(ctx, id, domain.StatusConfirmed, domain.EventBookingConfirmed,
		func(st domain.BookingStatus) bool { return st == domain.StatusPending })
}

func (s *BookingService) transition(ctx context.Context, id int64, to domain.BookingStatus, ev domain.EventType, allowed func(domain.BookingStatus) bool) (domain.Booking, error) {
	cur, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	var out domain.Booking
	err = s.store.Atomically(ctx, cur.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		b, err := repo.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(b.Status) {
			return fmt.Errorf("booking %d is %s: %w", id, b.Status, domain.ErrBookingState)
		}
		if err := repo.UpdateBookingStatus(ctx, id, to); err != nil {
			return err
		}
		b.Status = to
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	s.publish(ctx, bookingEvent(ev, out, s.opts.now()))
	return out, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, apt string, within domain.DateRange) ([]domain.Booking, error) {
	if err := within.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetApartmentType(ctx, apt); err != nil {
		return nil, err
	}
	return s.store.ListBookings(ctx, domain.BookingQuery{ApartmentType: apt, Within: within})
}

func (s *BookingService) publish(ctx context.Context, e domain.Event) {
	publish(ctx, s.pub, e)
}

// publish never fails the caller: the write has already committed.
func publish(ctx context.Context, pub domain.EventPublisher, e domain.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Int64("booking_id", e.BookingID).Msg("publish event failed")
	}
}

func bookingEvent(t domain.EventType, b domain.Booking, at time.Time) domain.Event {
	return domain.Event{
		Type:          t,
		ApartmentType: b.ApartmentType,
		BookingID:     b.ID,
		Reference:     b.Reference,
		Range:         b.Range,
		At:            at.UTC(),
	}
}

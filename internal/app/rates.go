package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aparthotel/internal/domain"
)

// RateService resolves nightly prices and administers seasonal rates.
// Seasonal lookups go through the cache; every rate write evicts the
// affected month.
type RateService struct {
	store    domain.Store
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewRateService(s domain.Store, c domain.Cache, ttl time.Duration) *RateService {
	return &RateService{store: s, cache: c, cacheTTL: ttl}
}

type seasonalEntry struct {
	Found bool  `json:"found"`
	Price int64 `json:"price"`
}

func seasonalKey(apt string, year int, month time.Month) string {
	return fmt.Sprintf("seasonal:%s:%04d-%02d", apt, year, int(month))
}

// Price returns the nightly rate of apt on day. It never fails for an
// existing apartment type since every type has a base price.
func (s *RateService) Price(ctx context.Context, apt string, day time.Time) (int64, error) {
	a, err := s.store.GetApartmentType(ctx, apt)
	if err != nil {
		return 0, err
	}
	e, err := s.seasonal(ctx, apt, day.Year(), day.Month())
	if err != nil {
		return 0, err
	}
	if e.Found {
		return e.Price, nil
	}
	return a.BasePrice, nil
}

// StayPrice prices every night of r on its own, so a stay crossing a month
// boundary mixes both months' rates.
func (s *RateService) StayPrice(ctx context.Context, a domain.ApartmentType, r domain.DateRange) ([]domain.NightPrice, int64, error) {
	return stayPrice(a, r, func(year int, month time.Month) (seasonalEntry, error) {
		return s.seasonal(ctx, a.Slug, year, month)
	})
}

// stayTotalFrom prices r straight from repo. Booking writes call it inside
// their apartment unit so a stored total never comes from a cache entry that
// predates a rate change.
func stayTotalFrom(ctx context.Context, repo domain.Repository, a domain.ApartmentType, r domain.DateRange) (int64, error) {
	_, total, err := stayPrice(a, r, func(year int, month time.Month) (seasonalEntry, error) {
		return findSeasonal(ctx, repo, a.Slug, year, month)
	})
	return total, err
}

func stayPrice(a domain.ApartmentType, r domain.DateRange, lookup func(int, time.Month) (seasonalEntry, error)) ([]domain.NightPrice, int64, error) {
	months := make(map[string]seasonalEntry, 2)
	nights := make([]domain.NightPrice, 0, r.Nights())
	var total int64
	for _, d := range r.Nightly() {
		key := seasonalKey(a.Slug, d.Year(), d.Month())
		e, ok := months[key]
		if !ok {
			var err error
			if e, err = lookup(d.Year(), d.Month()); err != nil {
				return nil, 0, err
			}
			months[key] = e
		}
		price := a.BasePrice
		if e.Found {
			price = e.Price
		}
		nights = append(nights, domain.NightPrice{Date: d, Price: price})
		total += price
	}
	return nights, total, nil
}

func findSeasonal(ctx context.Context, repo domain.Repository, apt string, year int, month time.Month) (seasonalEntry, error) {
	r, err := repo.FindActiveSeasonalRate(ctx, apt, year, month)
	switch {
	case err == nil:
		return seasonalEntry{Found: true, Price: r.Price}, nil
	case errors.Is(err, domain.ErrNotFound):
		return seasonalEntry{}, nil
	}
	return seasonalEntry{}, err
}

func (s *RateService) seasonal(ctx context.Context, apt string, year int, month time.Month) (seasonalEntry, error) {
	key := seasonalKey(apt, year, month)
	var e seasonalEntry
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &e); ok {
			return e, nil
		}
	}
	e, err := findSeasonal(ctx, s.store, apt, year, month)
	if err != nil {
		return seasonalEntry{}, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, e, int(s.cacheTTL.Seconds()))
	}
	return e, nil
}

// reevictAfter covers a reader that missed before a rate write and fills
// the cache after the first eviction.
const reevictAfter = 2 * time.Second

func (s *RateService) evict(ctx context.Context, apt string, year int, month time.Month) {
	if s.cache == nil {
		return
	}
	key := seasonalKey(apt, year, month)
	_ = s.cache.Del(ctx, key)
	time.AfterFunc(reevictAfter, func() {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.cache.Del(dctx, key)
	})
}

// ---- administration ----

func (s *RateService) ListSeasonalRates(ctx context.Context, apt string, year int) ([]domain.SeasonalRate, error) {
	if _, err := s.store.GetApartmentType(ctx, apt); err != nil {
		return nil, err
	}
	return s.store.ListSeasonalRates(ctx, apt, year)
}

// CreateSeasonalRate refuses to overwrite: a second active row for the same
// (type, year, month) fails with ErrDuplicateSeasonalRate.
func (s *RateService) CreateSeasonalRate(ctx context.Context, r domain.SeasonalRate) (domain.SeasonalRate, error) {
	r.Active = true
	if err := r.Validate(); err != nil {
		return domain.SeasonalRate{}, err
	}
	if _, err := s.store.GetApartmentType(ctx, r.ApartmentType); err != nil {
		return domain.SeasonalRate{}, err
	}
	if err := s.store.InsertSeasonalRate(ctx, &r); err != nil {
		return domain.SeasonalRate{}, err
	}
	s.evict(ctx, r.ApartmentType, r.Year, r.Month)
	return r, nil
}

func (s *RateService) UpdateSeasonalRate(ctx context.Context, id int64, price int64, active bool) (domain.SeasonalRate, error) {
	cur, err := s.store.GetSeasonalRate(ctx, id)
	if err != nil {
		return domain.SeasonalRate{}, err
	}
	cur.Price, cur.Active = price, active
	if err := cur.Validate(); err != nil {
		return domain.SeasonalRate{}, err
	}
	if err := s.store.UpdateSeasonalRate(ctx, cur); err != nil {
		return domain.SeasonalRate{}, err
	}
	s.evict(ctx, cur.ApartmentType, cur.Year, cur.Month)
	return cur, nil
}

func (s *RateService) DeleteSeasonalRate(ctx context.Context, id int64) error {
	cur, err := s.store.GetSeasonalRate(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSeasonalRate(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, cur.ApartmentType, cur.Year, cur.Month)
	return nil
}

// CopyFromPreviousYear copies every active rate of toYear-1 into toYear.
// Rows are reconciled by (type, year, month), so reruns overwrite prices
// instead of tripping the duplicate check. The batch applies as one unit.
func (s *RateService) CopyFromPreviousYear(ctx context.Context, apt string, toYear int) ([]domain.SeasonalRate, error) {
	src, err := s.ListSeasonalRates(ctx, apt, toYear-1)
	if err != nil {
		return nil, err
	}
	var out []domain.SeasonalRate
	err = s.store.Atomically(ctx, apt, func(ctx context.Context, repo domain.Repository) error {
		out = out[:0]
		for _, r := range src {
			if !r.Active {
				continue
			}
			next := domain.SeasonalRate{ApartmentType: apt, Year: toYear, Month: r.Month, Price: r.Price, Active: true}
			if err := next.Validate(); err != nil {
				return err
			}
			if err := repo.UpsertSeasonalRate(ctx, &next); err != nil {
				return fmt.Errorf("copy %04d-%02d: %w", toYear, int(r.Month), err)
			}
			out = append(out, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range out {
		s.evict(ctx, apt, r.Year, r.Month)
	}
	return out, nil
}

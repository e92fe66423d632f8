// Package memory is an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aparthotel/internal/domain"
)

// Store keeps every table in maps guarded by one RWMutex. Atomically adds a
// per-apartment-type mutex on top and rolls back its writes on error.
type Store struct {
	mu           sync.RWMutex
	apartments   map[string]domain.ApartmentType
	rates        map[int64]domain.SeasonalRate
	bookings     map[int64]domain.Booking
	blocks       map[int64]domain.BlockedRange
	integrations map[int64]domain.ChannelIntegration
	seq          int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

func New() *Store {
	return &Store{
		apartments:   make(map[string]domain.ApartmentType),
		rates:        make(map[int64]domain.SeasonalRate),
		bookings:     make(map[int64]domain.Booking),
		blocks:       make(map[int64]domain.BlockedRange),
		integrations: make(map[int64]domain.ChannelIntegration),
		locks:        make(map[string]*sync.Mutex),
		now:          time.Now,
	}
}

var _ domain.Store = (*Store)(nil)

type journalKey struct{}

type journal struct{ undo []func() }

func (s *Store) Atomically(ctx context.Context, apartmentType string, fn func(ctx context.Context, r domain.Repository) error) error {
	l := s.lockFor(apartmentType)
	l.Lock()
	defer l.Unlock()

	if _, err := s.GetApartmentType(ctx, apartmentType); err != nil {
		return err
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j), s); err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// remember registers an undo step; it must be called with s.mu held.
func (s *Store) remember(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.undo = append(j.undo, undo)
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// ---- apartment types ----

func (s *Store) GetApartmentType(ctx context.Context, slug string) (domain.ApartmentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apartments[slug]
	if !ok {
		return domain.ApartmentType{}, fmt.Errorf("apartment type %q: %w", slug, domain.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListApartmentTypes(ctx context.Context) ([]domain.ApartmentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ApartmentType, 0, len(s.apartments))
	for _, a := range s.apartments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) CreateApartmentType(ctx context.Context, a domain.ApartmentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apartments[a.Slug]; ok {
		return fmt.Errorf("%w: apartment type %q already exists", domain.ErrInvalidInput, a.Slug)
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.apartments[a.Slug] = a
	return nil
}

func (s *Store) UpdateApartmentType(ctx context.Context, a domain.ApartmentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.apartments[a.Slug]
	if !ok {
		return fmt.Errorf("apartment type %q: %w", a.Slug, domain.ErrNotFound)
	}
	a.CreatedAt = prev.CreatedAt
	a.UpdatedAt = s.now().UTC()
	s.apartments[a.Slug] = a
	s.remember(ctx, func() { s.apartments[a.Slug] = prev })
	return nil
}

// ---- seasonal rates ----

func (s *Store) GetSeasonalRate(ctx context.Context, id int64) (domain.SeasonalRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[id]
	if !ok {
		return domain.SeasonalRate{}, fmt.Errorf("seasonal rate %d: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *Store) FindActiveSeasonalRate(ctx context.Context, apartmentType string, year int, month time.Month) (domain.SeasonalRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.activeRate(apartmentType, year, month, 0); ok {
		return r, nil
	}
	return domain.SeasonalRate{}, domain.ErrNotFound
}

func (s *Store) activeRate(apt string, year int, month time.Month, exceptID int64) (domain.SeasonalRate, bool) {
	for _, r := range s.rates {
		if r.Active && r.ID != exceptID && r.ApartmentType == apt && r.Year == year && r.Month == month {
			return r, true
		}
	}
	return domain.SeasonalRate{}, false
}

func (s *Store) ListSeasonalRates(ctx context.Context, apartmentType string, year int) ([]domain.SeasonalRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SeasonalRate
	for _, r := range s.rates {
		if r.ApartmentType == apartmentType && (year == 0 || r.Year == year) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertSeasonalRate(ctx context.Context, r *domain.SeasonalRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apartments[r.ApartmentType]; !ok {
		return fmt.Errorf("apartment type %q: %w", r.ApartmentType, domain.ErrNotFound)
	}
	if r.Active {
		if _, dup := s.activeRate(r.ApartmentType, r.Year, r.Month, 0); dup {
			return domain.ErrDuplicateSeasonalRate
		}
	}
	r.ID = s.nextID()
	s.rates[r.ID] = *r
	id := r.ID
	s.remember(ctx, func() { delete(s.rates, id) })
	return nil
}

// UpdateSeasonalRate changes price and active flag; the tuple is immutable.
func (s *Store) UpdateSeasonalRate(ctx context.Context, r domain.SeasonalRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rates[r.ID]
	if !ok {
		return fmt.Errorf("seasonal rate %d: %w", r.ID, domain.ErrNotFound)
	}
	if r.Active {
		if _, dup := s.activeRate(prev.ApartmentType, prev.Year, prev.Month, r.ID); dup {
			return domain.ErrDuplicateSeasonalRate
		}
	}
	next := prev
	next.Price, next.Active = r.Price, r.Active
	s.rates[r.ID] = next
	s.remember(ctx, func() { s.rates[r.ID] = prev })
	return nil
}

func (s *Store) UpsertSeasonalRate(ctx context.Context, r *domain.SeasonalRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.activeRate(r.ApartmentType, r.Year, r.Month, 0); ok {
		prev := existing
		existing.Price = r.Price
		s.rates[existing.ID] = existing
		r.ID, r.Active = existing.ID, true
		s.remember(ctx, func() { s.rates[prev.ID] = prev })
		return nil
	}
	r.ID, r.Active = s.nextID(), true
	s.rates[r.ID] = *r
	id := r.ID
	s.remember(ctx, func() { delete(s.rates, id) })
	return nil
}

func (s *Store) DeleteSeasonalRate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rates[id]
	if !ok {
		return fmt.Errorf("seasonal rate %d: %w", id, domain.ErrNotFound)
	}
	delete(s.rates, id)
	s.remember(ctx, func() { s.rates[id] = prev })
	return nil
}

// ---- bookings ----

func (s *Store) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, q domain.BookingQuery) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.ApartmentType != q.ApartmentType || !b.Range.Overlaps(q.Within) {
			continue
		}
		if q.OccupyingOnly && !b.Status.Occupies() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Range.Start.Equal(out[j].Range.Start) {
			return out[i].Range.Start.Before(out[j].Range.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertBooking(ctx context.Context, b *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	b.ID = s.nextID()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = *b
	id := b.ID
	s.remember(ctx, func() { delete(s.bookings, id) })
	return nil
}

func (s *Store) UpdateBookingRange(ctx context.Context, id int64, r domain.DateRange) error {
	return s.updateBooking(ctx, id, func(b *domain.Booking) { b.Range = r })
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id int64, st domain.BookingStatus) error {
	return s.updateBooking(ctx, id, func(b *domain.Booking) { b.Status = st })
}

func (s *Store) updateBooking(ctx context.Context, id int64, mutate func(*domain.Booking)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
	}
	next := prev
	mutate(&next)
	next.UpdatedAt = s.now().UTC()
	s.bookings[id] = next
	s.remember(ctx, func() { s.bookings[id] = prev })
	return nil
}

// ---- blocked ranges ----

func (s *Store) GetBlock(ctx context.Context, id int64) (domain.BlockedRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return domain.BlockedRange{}, fmt.Errorf("blocked range %d: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBlocks(ctx context.Context, apartmentType string, within *domain.DateRange) ([]domain.BlockedRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BlockedRange
	for _, b := range s.blocks {
		if b.ApartmentType != apartmentType {
			continue
		}
		if within != nil && !b.Range.Overlaps(*within) {
			continue
		}
		out = append(out, b)
	}
	sortBlocks(out)
	return out, nil
}

func (s *Store) ListOwnedBlocks(ctx context.Context, integrationID int64) ([]domain.BlockedRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BlockedRange
	for _, b := range s.blocks {
		if b.OwnedBy(integrationID) {
			out = append(out, b)
		}
	}
	sortBlocks(out)
	return out, nil
}

func sortBlocks(bs []domain.BlockedRange) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].Range.Start.Equal(bs[j].Range.Start) {
			return bs[i].Range.Start.Before(bs[j].Range.Start)
		}
		return bs[i].ID < bs[j].ID
	})
}

func (s *Store) InsertBlock(ctx context.Context, b *domain.BlockedRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.IntegrationID != nil {
		if _, ok := s.integrations[*b.IntegrationID]; !ok {
			return fmt.Errorf("integration %d: %w", *b.IntegrationID, domain.ErrNotFound)
		}
	}
	if b.IntegrationID != nil && b.ExternalID != nil {
		for _, other := range s.blocks {
			if other.OwnedBy(*b.IntegrationID) && other.ExternalID != nil && *other.ExternalID == *b.ExternalID {
				return fmt.Errorf("external id %q already imported: %w", *b.ExternalID, domain.ErrConflict)
			}
		}
	}
	b.ID = s.nextID()
	b.CreatedAt = s.now().UTC()
	s.blocks[b.ID] = *b
	id := b.ID
	s.remember(ctx, func() { delete(s.blocks, id) })
	return nil
}

func (s *Store) UpdateBlockRange(ctx context.Context, id int64, r domain.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.blocks[id]
	if !ok {
		return fmt.Errorf("blocked range %d: %w", id, domain.ErrNotFound)
	}
	next := prev
	next.Range = r
	s.blocks[id] = next
	s.remember(ctx, func() { s.blocks[id] = prev })
	return nil
}

func (s *Store) DeleteBlock(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.blocks[id]
	if !ok {
		return fmt.Errorf("blocked range %d: %w", id, domain.ErrNotFound)
	}
	delete(s.blocks, id)
	s.remember(ctx, func() { s.blocks[id] = prev })
	return nil
}

// ---- channel integrations ----

func (s *Store) GetIntegration(ctx context.Context, id int64) (domain.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.integrations[id]
	if !ok {
		return domain.ChannelIntegration{}, fmt.Errorf("integration %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListIntegrations(ctx context.Context, activeOnly bool) ([]domain.ChannelIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChannelIntegration, 0, len(s.integrations))
	for _, c := range s.integrations {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateIntegration(ctx context.Context, c *domain.ChannelIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apartments[c.ApartmentType]; !ok {
		return fmt.Errorf("apartment type %q: %w", c.ApartmentType, domain.ErrNotFound)
	}
	now := s.now().UTC()
	c.ID = s.nextID()
	c.CreatedAt, c.UpdatedAt = now, now
	c.LastSyncedAt, c.LastSyncError = nil, nil
	s.integrations[c.ID] = *c
	return nil
}

func (s *Store) UpdateIntegration(ctx context.Context, c domain.ChannelIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.integrations[c.ID]
	if !ok {
		return fmt.Errorf("integration %d: %w", c.ID, domain.ErrNotFound)
	}
	next := prev
	next.Channel, next.ApartmentType, next.URL, next.Active = c.Channel, c.ApartmentType, c.URL, c.Active
	next.UpdatedAt = s.now().UTC()
	s.integrations[c.ID] = next
	return nil
}

func (s *Store) DeleteIntegration(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.integrations[id]; !ok {
		return fmt.Errorf("integration %d: %w", id, domain.ErrNotFound)
	}
	delete(s.integrations, id)
	for bid, b := range s.blocks {
		if b.OwnedBy(id) {
			delete(s.blocks, bid)
		}
	}
	return nil
}

func (s *Store) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	return s.updateIntegration(id, func(c *domain.ChannelIntegration) {
		t := at.UTC()
		c.LastSyncedAt = &t
		c.LastSyncError = nil
	})
}

func (s *Store) MarkSyncFailed(ctx context.Context, id int64, errText string) error {
	return s.updateIntegration(id, func(c *domain.ChannelIntegration) { c.LastSyncError = &errText })
}

func (s *Store) updateIntegration(id int64, mutate func(*domain.ChannelIntegration)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.integrations[id]
	if !ok {
		return fmt.Errorf("integration %d: %w", id, domain.ErrNotFound)
	}
	mutate(&c)
	s.integrations[id] = c
	return nil
}

package app_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"aparthotel/internal/app"
	"aparthotel/internal/domain"
	"aparthotel/internal/storage/memory"
)

// ---- fakes ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	hits  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(v, dst)
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	c.store[key] = b
	return err
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// fakeSource serves a feed or an error per calendar url.
type fakeSource struct {
	mu      sync.Mutex
	feeds   map[string]domain.CalendarFeed
	errs    map[string]error
	calls   int
	onFetch func()
}

func (s *fakeSource) set(url string, events ...domain.CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feeds == nil {
		s.feeds = map[string]domain.CalendarFeed{}
	}
	s.feeds[url] = domain.CalendarFeed{Events: events}
}

func (s *fakeSource) fail(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = map[string]error{}
	}
	s.errs[url] = err
}

// during runs fn once, inside the next fetch.
func (s *fakeSource) during(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFetch = fn
}

func (s *fakeSource) FetchCalendar(ctx context.Context, url string) (domain.CalendarFeed, error) {
	s.mu.Lock()
	hook := s.onFetch
	s.onFetch = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[url]; err != nil {
		return domain.CalendarFeed{}, err
	}
	return s.feeds[url], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// ---- fixture ----

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rng(a, b string) domain.DateRange { return domain.DateRange{Start: day(a), End: day(b)} }

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store    *memory.Store
	cache    *fakeCache
	source   *fakeSource
	locker   *memory.Locker
	pub      *fakePublisher
	rates    *app.RateService
	bookings *app.BookingService
	blocks   *app.BlockService
	engine   *app.SyncEngine
	ints     *app.IntegrationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := app.WithClock(func() time.Time { return now })
	f := &fixture{
		store:  memory.New(),
		cache:  &fakeCache{},
		source: &fakeSource{},
		locker: memory.NewLocker(),
		pub:    &fakePublisher{},
	}
	f.rates = app.NewRateService(f.store, f.cache, time.Hour)
	f.bookings = app.NewBookingService(f.store, f.rates, f.pub, clock)
	f.blocks = app.NewBlockService(f.store)
	f.engine = app.NewSyncEngine(f.store, f.source, f.locker, f.pub, time.Minute, clock)
	f.ints = app.NewIntegrationService(f.store, f.engine)

	for _, a := range []domain.ApartmentType{
		{Slug: "studio", Name: "Studio", BasePrice: 10000, Capacity: 2},
		{Slug: "loft", Name: "Loft", BasePrice: 20000, Capacity: 4},
	} {
		if _, err := app.NewApartmentService(f.store).Create(context.Background(), a); err != nil {
			t.Fatalf("seed %s: %v", a.Slug, err)
		}
	}
	return f
}

func (f *fixture) book(t *testing.T, apt string, r domain.DateRange, payLater bool) domain.Booking {
	t.Helper()
	b, err := f.bookings.ConfirmBooking(context.Background(), domain.BookingRequest{
		ApartmentType: apt, Range: r, Guests: 2, Guest: domain.Guest{Name: "Ana"}, PayLater: payLater,
	})
	if err != nil {
		t.Fatalf("book %s %s: %v", apt, r, err)
	}
	return b
}

func (f *fixture) integration(t *testing.T, channel, apt, url string) domain.ChannelIntegration {
	t.Helper()
	in, err := f.ints.Create(context.Background(), domain.ChannelIntegration{Channel: channel, ApartmentType: apt, URL: url, Active: true})
	if err != nil {
		t.Fatalf("integration: %v", err)
	}
	return in
}

func event(id, a, b string) domain.CalendarEvent {
	return domain.CalendarEvent{ExternalID: id, Range: rng(a, b)}
}

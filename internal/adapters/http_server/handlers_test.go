package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpserver "aparthotel/internal/adapters/http_server"
	"aparthotel/internal/app"
	"aparthotel/internal/domain"
	"aparthotel/internal/storage/memory"
)

type sourceFunc func(ctx context.Context, url string) (domain.CalendarFeed, error)

func (f sourceFunc) FetchCalendar(ctx context.Context, url string) (domain.CalendarFeed, error) {
	return f(ctx, url)
}

var today = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func newAPI(t *testing.T, src domain.CalendarSource) *httptest.Server {
	t.Helper()
	clock := app.WithClock(func() time.Time { return today })
	store := memory.New()
	rates := app.NewRateService(store, nil, 0)
	engine := app.NewSyncEngine(store, src, memory.NewLocker(), nil, time.Minute, clock)

	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Apartments:   app.NewApartmentService(store),
		Availability: app.NewAvailabilityResolver(store),
		Bookings:     app.NewBookingService(store, rates, nil, clock),
		Rates:        rates,
		Blocks:       app.NewBlockService(store),
		Integrations: app.NewIntegrationService(store, engine),
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path string, body any) (int, map[string]any, http.Header) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out, resp.Header
}

func mustStatus(t *testing.T, want, got int, body map[string]any) {
	t.Helper()
	if got != want {
		t.Fatalf("status: want %d, got %d (%v)", want, got, body)
	}
}

func seedStudio(t *testing.T, ts *httptest.Server) {
	t.Helper()
	code, body, _ := call(t, ts, "POST", "/v1/apartments", map[string]any{"slug": "studio", "name": "Studio", "base_price": 10000, "capacity": 2})
	mustStatus(t, http.StatusCreated, code, body)
}

func booking(checkIn, checkOut string) map[string]any {
	return map[string]any{
		"apartment_type": "studio", "check_in": checkIn, "check_out": checkOut,
		"guests": 2, "guest": map[string]any{"name": "Ana"},
	}
}

func TestBookingFlow(t *testing.T) {
	ts := newAPI(t, nil)
	seedStudio(t, ts)

	code, first, _ := call(t, ts, "POST", "/v1/bookings", booking("2026-07-10", "2026-07-13"))
	mustStatus(t, http.StatusCreated, code, first)
	if first["status"] != "confirmed" || first["total_price"].(float64) != 30000 {
		t.Fatalf("unexpected booking: %v", first)
	}

	code, body, hdr := call(t, ts, "POST", "/v1/bookings", booking("2026-07-12", "2026-07-14"))
	mustStatus(t, http.StatusConflict, code, body)
	if ct := hdr.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type: %q", ct)
	}

	// checkout day is free for the next check-in
	code, body, _ = call(t, ts, "POST", "/v1/bookings", booking("2026-07-13", "2026-07-15"))
	mustStatus(t, http.StatusCreated, code, body)

	code, body, _ = call(t, ts, "GET", "/v1/apartments/studio/availability?check_in=2026-07-11&check_out=2026-07-12", nil)
	mustStatus(t, http.StatusOK, code, body)
	if body["available"] != false {
		t.Fatalf("expected unavailable: %v", body)
	}

	id := int64(first["id"].(float64))
	path := "/v1/bookings/" + itoa(id)
	code, body, _ = call(t, ts, "POST", path+"/reschedule", map[string]any{"check_in": "2026-07-09"})
	mustStatus(t, http.StatusOK, code, body) // overlaps only itself
	if body["check_out"] != "2026-07-12" {
		t.Fatalf("duration not preserved: %v", body)
	}
	code, body, _ = call(t, ts, "POST", path+"/reschedule", map[string]any{"check_in": "2026-07-12"})
	mustStatus(t, http.StatusConflict, code, body) // would run into the 13th to 15th stay

	code, body, _ = call(t, ts, "POST", path+"/cancel", nil)
	mustStatus(t, http.StatusOK, code, body)
	code, body, _ = call(t, ts, "POST", path+"/cancel", nil)
	mustStatus(t, http.StatusConflict, code, body)

	code, body, _ = call(t, ts, "GET", "/v1/bookings/999", nil)
	mustStatus(t, http.StatusNotFound, code, body)
}

func TestQuoteMixesMonthsAndRejectsBadDates(t *testing.T) {
	ts := newAPI(t, nil)
	seedStudio(t, ts)

	code, body, _ := call(t, ts, "POST", "/v1/apartments/studio/rates", map[string]any{"year": 2026, "month": 7, "price": 15000})
	mustStatus(t, http.StatusCreated, code, body)
	code, body, _ = call(t, ts, "POST", "/v1/apartments/studio/rates", map[string]any{"year": 2026, "month": 7, "price": 16000})
	mustStatus(t, http.StatusConflict, code, body)

	code, body, _ = call(t, ts, "GET", "/v1/apartments/studio/quote?check_in=2026-06-29&check_out=2026-07-03", nil)
	mustStatus(t, http.StatusOK, code, body)
	if body["total"].(float64) != 2*10000+2*15000 || body["available"] != true {
		t.Fatalf("unexpected quote: %v", body)
	}

	code, body, _ = call(t, ts, "GET", "/v1/apartments/studio/quote?check_in=2026-07-03&check_out=2026-07-03", nil)
	mustStatus(t, http.StatusBadRequest, code, body)
	code, body, _ = call(t, ts, "GET", "/v1/apartments/studio/quote?check_in=July&check_out=2026-07-03", nil)
	mustStatus(t, http.StatusBadRequest, code, body)
	code, body, _ = call(t, ts, "GET", "/v1/apartments/nope/quote?check_in=2026-07-01&check_out=2026-07-03", nil)
	mustStatus(t, http.StatusNotFound, code, body)
}

func TestChannelBlocksAreReadOnlyForStaff(t *testing.T) {
	feed := domain.CalendarFeed{Events: []domain.CalendarEvent{
		{ExternalID: "uid-1", Range: domain.DateRange{Start: day("2026-08-01"), End: day("2026-08-04")}},
	}}
	ts := newAPI(t, sourceFunc(func(context.Context, string) (domain.CalendarFeed, error) { return feed, nil }))
	seedStudio(t, ts)

	code, in, _ := call(t, ts, "POST", "/v1/integrations", map[string]any{"channel": "airbnb", "apartment_type": "studio", "url": "https://example.com/cal.ics"})
	mustStatus(t, http.StatusCreated, code, in)
	ipath := "/v1/integrations/" + itoa(int64(in["id"].(float64)))

	code, res, _ := call(t, ts, "POST", ipath+"/sync", nil)
	mustStatus(t, http.StatusOK, code, res)
	if res["added"].(float64) != 1 {
		t.Fatalf("sync result: %v", res)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/v1/apartments/studio/blocks", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list blocks: %v", err)
	}
	var blocks []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&blocks)
	resp.Body.Close()
	if len(blocks) != 1 || blocks[0]["source"] != "airbnb" {
		t.Fatalf("blocks: %v", blocks)
	}

	code, body, _ := call(t, ts, "DELETE", "/v1/blocks/"+itoa(int64(blocks[0]["id"].(float64))), nil)
	mustStatus(t, http.StatusForbidden, code, body)

	code, mb, _ := call(t, ts, "POST", "/v1/apartments/studio/blocks", map[string]any{"start": "2026-08-02", "end": "2026-08-03", "reason": "repairs"})
	mustStatus(t, http.StatusCreated, code, mb)
	code, body, _ = call(t, ts, "DELETE", "/v1/blocks/"+itoa(int64(mb["id"].(float64))), nil)
	mustStatus(t, http.StatusNoContent, code, body)
}

func TestSyncFailuresMapToGatewayStatuses(t *testing.T) {
	var fail error = &domain.FetchError{URL: "https://example.com/cal.ics", StatusCode: 500, Err: io.ErrUnexpectedEOF}
	ts := newAPI(t, sourceFunc(func(context.Context, string) (domain.CalendarFeed, error) { return domain.CalendarFeed{}, fail }))
	seedStudio(t, ts)

	code, in, _ := call(t, ts, "POST", "/v1/integrations", map[string]any{"channel": "vrbo", "apartment_type": "studio", "url": "https://example.com/cal.ics"})
	mustStatus(t, http.StatusCreated, code, in)
	ipath := "/v1/integrations/" + itoa(int64(in["id"].(float64)))

	code, body, _ := call(t, ts, "POST", ipath+"/sync", nil)
	mustStatus(t, http.StatusBadGateway, code, body)

	code, body, _ = call(t, ts, "GET", ipath, nil)
	mustStatus(t, http.StatusOK, code, body)
	if body["last_sync_error"] == nil {
		t.Fatalf("sync error not recorded: %v", body)
	}

	fail = &domain.ParseError{Err: io.ErrUnexpectedEOF}
	code, body, _ = call(t, ts, "POST", ipath+"/sync", nil)
	mustStatus(t, http.StatusUnprocessableEntity, code, body)

	code, body, _ = call(t, ts, "POST", "/v1/integrations", map[string]any{"channel": "manual", "apartment_type": "studio", "url": "https://example.com/x.ics"})
	mustStatus(t, http.StatusBadRequest, code, body)
}

func TestGetHonorsETag(t *testing.T) {
	ts := newAPI(t, nil)
	seedStudio(t, ts)

	code, body, hdr := call(t, ts, "GET", "/v1/apartments/studio", nil)
	mustStatus(t, http.StatusOK, code, body)
	etag := hdr.Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	req, _ := http.NewRequest("GET", ts.URL+"/v1/apartments/studio", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304, got %d", resp.StatusCode)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRequestShapeRejected(t *testing.T) {
	ts := newAPI(t, nil)
	seedStudio(t, ts)

	bad := booking("2026-07-10", "13/07/2026")
	bad["guest"] = map[string]any{"email": "not-an-email"}
	code, body, _ := call(t, ts, "POST", "/v1/bookings", bad)
	mustStatus(t, http.StatusBadRequest, code, body)
	detail, _ := body["detail"].(string)
	for _, field := range []string{"check_out", "guest.name", "guest.email"} {
		if !strings.Contains(detail, field) {
			t.Fatalf("detail %q does not name %s", detail, field)
		}
	}

	code, body, _ = call(t, ts, "POST", "/v1/apartments/studio/rates", map[string]any{"year": 2026, "month": 13, "price": 100})
	mustStatus(t, http.StatusBadRequest, code, body)

	code, body, _ = call(t, ts, "POST", "/v1/integrations", map[string]any{"channel": "airbnb", "apartment_type": "studio", "url": "cal.ics"})
	mustStatus(t, http.StatusBadRequest, code, body)
}

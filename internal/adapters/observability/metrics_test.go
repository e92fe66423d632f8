package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aparthotel/internal/adapters/observability"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record samples so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveSync("airbnb", "ok", 300*time.Millisecond)
	observability.ObserveSync("airbnb", "skipped", 0)
	observability.ObserveBooking("create", "conflict")
	observability.ObservePublish("booking.confirmed", nil)

	out := scrape(t, observability.MetricsHandler(reg))
	for _, want := range []string{
		"aparthotel_http_requests_total",
		`aparthotel_channel_sync_runs_total{channel="airbnb",outcome="skipped"}`,
		"aparthotel_channel_sync_duration_seconds",
		`aparthotel_booking_writes_total{op="create",outcome="conflict"}`,
		`aparthotel_events_published_total{result="none",type="booking.confirmed"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

func TestLabelErr(t *testing.T) {
	if got := observability.LabelErr(nil); got != "none" {
		t.Fatalf("nil label: %q", got)
	}
	if got := observability.LabelErr(errors.New("x")); got != "*errors.errorString" {
		t.Fatalf("label: %q", got)
	}
}

//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	server "aparthotel/internal/adapters/http_server"
	"aparthotel/internal/adapters/ical"
	redisad "aparthotel/internal/adapters/redis"
	"aparthotel/internal/app"
	mysqlrepo "aparthotel/internal/storage/mysql"
)

const feed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//e2e//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:airbnb-1\r\nDTSTART;VALUE=DATE:20260720\r\nDTEND;VALUE=DATE:20260724\r\nSUMMARY:Reserved\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=aparthotel"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/aparthotel?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := mysqlrepo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func post(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	b, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestHTTP_EndToEnd_SyncQuoteAndBook(t *testing.T) {
	db := startMySQL(t)
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)

	calendar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(feed))
	}))
	defer calendar.Close()

	clock := app.WithClock(func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) })
	store := mysqlrepo.NewStore(db)
	rates := app.NewRateService(store, cache, time.Hour)
	engine := app.NewSyncEngine(store, ical.New(5*time.Second, 50), redisad.NewLocker(cache.Client()), nil, time.Minute, clock)

	srv := server.New(15 * time.Second)
	srv.MountHandlers(&server.Handlers{
		Apartments:   app.NewApartmentService(store),
		Availability: app.NewAvailabilityResolver(store),
		Bookings:     app.NewBookingService(store, rates, nil, clock),
		Rates:        rates,
		Blocks:       app.NewBlockService(store),
		Integrations: app.NewIntegrationService(store, engine),
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	if code, body := post(t, ts.URL+"/v1/apartments", map[string]any{"slug": "loft", "name": "Loft", "base_price": 20000, "capacity": 4}); code != 201 {
		t.Fatalf("create apartment: %d %v", code, body)
	}
	if code, body := post(t, ts.URL+"/v1/apartments/loft/rates", map[string]any{"year": 2026, "month": 8, "price": 30000}); code != 201 {
		t.Fatalf("create rate: %d %v", code, body)
	}
	code, in := post(t, ts.URL+"/v1/integrations", map[string]any{"channel": "airbnb", "apartment_type": "loft", "url": calendar.URL + "/loft.ics"})
	if code != 201 {
		t.Fatalf("create integration: %d %v", code, in)
	}
	syncURL := fmt.Sprintf("%s/v1/integrations/%d/sync", ts.URL, int64(in["id"].(float64)))
	for i := 0; i < 2; i++ {
		code, res := post(t, syncURL, nil)
		if code != 200 {
			t.Fatalf("sync #%d: %d %v", i+1, code, res)
		}
		if want := float64(1 - i); res["added"].(float64) != want {
			t.Fatalf("sync #%d added: %v", i+1, res)
		}
	}

	// the channel block closes 20-24 July
	code, body := post(t, ts.URL+"/v1/bookings", map[string]any{
		"apartment_type": "loft", "check_in": "2026-07-22", "check_out": "2026-07-25", "guests": 2, "guest": map[string]any{"name": "Ana"},
	})
	if code != http.StatusConflict {
		t.Fatalf("booking over channel block: %d %v", code, body)
	}

	res, err := http.Get(ts.URL + "/v1/apartments/loft/quote?check_in=2026-07-30&check_out=2026-08-02")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	var q struct {
		Available bool  `json:"available"`
		Total     int64 `json:"total"`
	}
	_ = json.NewDecoder(res.Body).Decode(&q)
	res.Body.Close()
	if !q.Available || q.Total != 2*20000+30000 {
		t.Fatalf("quote: %+v", q)
	}

	// many guests race for the same dates; exactly one wins
	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := post(t, ts.URL+"/v1/bookings", map[string]any{
				"apartment_type": "loft", "check_in": "2026-08-10", "check_out": "2026-08-12", "guests": 1,
				"guest": map[string]any{"name": fmt.Sprintf("guest-%d", i)},
			})
			mu.Lock()
			codes[c]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if codes[201] != 1 || codes[409] != n-1 {
		t.Fatalf("race outcome: %v", codes)
	}

	// a stale feed url must not wipe what was imported
	calendar.Close()
	code, body = post(t, syncURL, nil)
	if code != http.StatusBadGateway || !strings.Contains(fmt.Sprint(body["title"]), "Fetch") {
		t.Fatalf("sync against dead feed: %d %v", code, body)
	}
	var blocks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM blocked_ranges WHERE apartment_type = 'loft'`).Scan(&blocks); err != nil || blocks != 1 {
		t.Fatalf("blocks after failed sync: %d %v", blocks, err)
	}
}

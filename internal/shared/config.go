package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv       string
	HTTPAddr     string
	MetricsAddr  string
	Store        string // mysql | memory
	MySQLDSN     string
	Migrate      bool
	RedisAddr    string
	RedisDB      int
	RedisPass    string
	CacheTTL     time.Duration
	KafkaBrokers []string
	KafkaTopic   string
	FetchTimeout time.Duration
	FetchRPS     int
	SyncWorkers  int
	SyncInterval time.Duration
	SyncLockTTL  time.Duration
}

// Load reads the environment, after merging a .env file when one exists.
// Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer; using default")
		}
		return def
	}
	dur := func(k string, def time.Duration) time.Duration {
		if v := os.Getenv(k); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				return d
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a duration; using default")
		}
		return def
	}
	c := Config{
		AppEnv:       env("APP_ENV", "prod"),
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		MetricsAddr:  env("METRICS_ADDR", ":9100"),
		Store:        strings.ToLower(env("STORE", "mysql")),
		MySQLDSN:     env("MYSQL_DSN", "root:root@tcp(localhost:3306)/aparthotel?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		Migrate:      env("MIGRATE", "true") == "true",
		RedisAddr:    env("REDIS_ADDR", ""),
		RedisPass:    env("REDIS_PASSWORD", ""),
		RedisDB:      atoi("REDIS_DB", 0),
		CacheTTL:     time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		KafkaBrokers: list(env("KAFKA_BROKERS", "")),
		KafkaTopic:   env("KAFKA_TOPIC", "aparthotel.events"),
		FetchTimeout: time.Duration(atoi("FETCH_TIMEOUT_SECONDS", 20)) * time.Second,
		FetchRPS:     atoi("FETCH_RPS", 5),
		SyncWorkers:  atoi("SYNC_WORKERS", 4),
		SyncInterval: dur("SYNC_INTERVAL", 15*time.Minute),
		SyncLockTTL:  dur("SYNC_LOCK_TTL", 2*time.Minute),
	}
	if c.Store != "mysql" && c.Store != "memory" {
		log.Warn().Str("store", c.Store).Msg("unknown STORE; using mysql")
		c.Store = "mysql"
	}
	if c.SyncLockTTL <= c.FetchTimeout {
		// the lease must outlive a full fetch
		c.SyncLockTTL = 2 * c.FetchTimeout
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func list(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	Store       string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
	SweepInterval  time.Duration
	RefPrefix      string
	CommitLimit    int

	PromoBase     string
	PromoKey      string
	PromoRPS      int
	CouponTimeout time.Duration

	KafkaBrokers     []string
	KafkaTopicPrefix string

	LockRateRPS   float64
	LockRateBurst int
}

func Load() Config {
	// A missing .env is the normal case outside local dev.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg(".env not loaded")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	secs := func(k string, def int) time.Duration {
		return time.Duration(atoi(k, def)) * time.Second
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		LogLevel:    env("LOG_LEVEL", "info"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		Store:       env("STORE", "mysql"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/casa?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),

		RequestTimeout: secs("REQUEST_TIMEOUT_SECONDS", 15),
		CacheTTL:       secs("CACHE_TTL_SECONDS", 900),
		IdempotencyTTL: secs("IDEMPOTENCY_TTL_SECONDS", 86400),
		LockTTL:        secs("LOCK_TTL_SECONDS", 600),
		SweepInterval:  secs("LOCK_SWEEP_INTERVAL_SECONDS", 60),
		RefPrefix:      env("BOOKING_REF_PREFIX", "SCH"),
		CommitLimit:    atoi("COMMIT_CONCURRENCY", 32),

		PromoBase:     env("PROMO_BASE_URL", ""),
		PromoKey:      env("PROMO_API_KEY", ""),
		PromoRPS:      atoi("PROMO_RPS", 5),
		CouponTimeout: secs("COUPON_TIMEOUT_SECONDS", 3),

		KafkaBrokers:     list(env("KAFKA_BROKERS", "")),
		KafkaTopicPrefix: env("KAFKA_TOPIC_PREFIX", ""),

		LockRateRPS:   atof("LOCK_RATE_RPS", 2),
		LockRateBurst: atoi("LOCK_RATE_BURST", 5),
	}
	if c.PromoBase != "" && c.PromoKey == "" {
		log.Warn().Msg("PROMO_API_KEY is empty")
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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	OSRMEndpoint    string
	GoogleMapsKey   string
	DefaultSpeedMps float64

	Matching MatchingConfig
	Pricing  PricingConfig

	LogLevel      string
	RunMigrations bool
}

// MatchingConfig holds the pipeline tunables. Defaults follow the product
// rules for DUO carpool matching.
type MatchingConfig struct {
	RadiusMeters      float64
	MinWindowOverlap  time.Duration
	MaxDetourFraction float64 // of the driver's direct trip time
	MaxDetourAbsolute time.Duration
	EnrichConcurrency int
	RouteCallTimeout  time.Duration
	RetryBase         time.Duration
	PipelineDeadline  time.Duration
	EnrichCacheTTL    time.Duration
}

// PricingConfig determines the escrow hold amount for a matched pair.
type PricingConfig struct {
	BaseFareCents int64
	CentsPerKm    int64
	Currency      string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "reservations_geo",
		KafkaTopic:      "reservation-events",
		DefaultSpeedMps: 10,
		Matching: MatchingConfig{
			RadiusMeters:      2000,
			MinWindowOverlap:  10 * time.Minute,
			MaxDetourFraction: 0.5,
			MaxDetourAbsolute: 15 * time.Minute,
			EnrichConcurrency: 10,
			RouteCallTimeout:  5 * time.Second,
			RetryBase:         500 * time.Millisecond,
			PipelineDeadline:  30 * time.Second,
			EnrichCacheTTL:    10 * time.Minute,
		},
		Pricing: PricingConfig{
			BaseFareCents: 150,
			CentsPerKm:    60,
			Currency:      "usd",
		},
		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))
	cfg.GoogleMapsKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	setFloatFromEnv(&cfg.DefaultSpeedMps, "ROUTING_DEFAULT_SPEED_MPS", &errs)

	setFloatFromEnv(&cfg.Matching.RadiusMeters, "MATCH_RADIUS_METERS", &errs)
	setDurationFromEnv(&cfg.Matching.MinWindowOverlap, "MATCH_MIN_OVERLAP", &errs)
	setFloatFromEnv(&cfg.Matching.MaxDetourFraction, "MATCH_MAX_DETOUR_FRACTION", &errs)
	setDurationFromEnv(&cfg.Matching.MaxDetourAbsolute, "MATCH_MAX_DETOUR", &errs)
	setIntFromEnv(&cfg.Matching.EnrichConcurrency, "MATCH_ENRICH_CONCURRENCY", &errs)
	setDurationFromEnv(&cfg.Matching.RouteCallTimeout, "MATCH_ROUTE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.Matching.RetryBase, "MATCH_RETRY_BASE", &errs)
	setDurationFromEnv(&cfg.Matching.PipelineDeadline, "MATCH_PIPELINE_DEADLINE", &errs)
	setDurationFromEnv(&cfg.Matching.EnrichCacheTTL, "MATCH_ENRICH_CACHE_TTL", &errs)

	setInt64FromEnv(&cfg.Pricing.BaseFareCents, "PRICING_BASE_FARE_CENTS", &errs)
	setInt64FromEnv(&cfg.Pricing.CentsPerKm, "PRICING_CENTS_PER_KM", &errs)
	setStringFromEnv(&cfg.Pricing.Currency, "PRICING_CURRENCY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.Matching.RadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_METERS must be > 0"))
	}
	if cfg.Matching.EnrichConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_ENRICH_CONCURRENCY must be > 0"))
	}
	if cfg.Matching.MaxDetourFraction <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_MAX_DETOUR_FRACTION must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

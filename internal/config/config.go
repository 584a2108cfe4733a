package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process. Values
// are loaded from environment variables with sane defaults so the binary can
// run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	DriversGeoKey string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	JWTSecret string
	TokenTTL  time.Duration

	DefaultRadiusMeters float64
	UrgentRadiusMeters  float64
	DefaultSpeedMps     float64
	CandidateLimit      int
	BcryptCost          int

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:            ":8080",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		DriversGeoKey:       "drivers_geo",
		KafkaTopic:          "responder-locations",
		TokenTTL:            24 * time.Hour,
		DefaultRadiusMeters: 10_000,
		UrgentRadiusMeters:  50_000,
		DefaultSpeedMps:     10,
		CandidateLimit:      10,
		BcryptCost:          10,
		LogLevel:            "info",
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
	setStringFromEnv(&cfg.DriversGeoKey, "REDIS_DRIVERS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be set"))
	}
	setDurationFromEnv(&cfg.TokenTTL, "TOKEN_TTL", &errs)

	setFloatFromEnv(&cfg.DefaultRadiusMeters, "MATCH_DEFAULT_RADIUS_METERS", &errs)
	setFloatFromEnv(&cfg.UrgentRadiusMeters, "MATCH_URGENT_RADIUS_METERS", &errs)
	setFloatFromEnv(&cfg.DefaultSpeedMps, "ETA_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.CandidateLimit, "MATCH_CANDIDATE_LIMIT", &errs)
	setIntFromEnv(&cfg.BcryptCost, "BCRYPT_COST", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.DefaultRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_DEFAULT_RADIUS_METERS must be > 0"))
	}
	if cfg.UrgentRadiusMeters < cfg.DefaultRadiusMeters {
		errs = append(errs, fmt.Errorf("MATCH_URGENT_RADIUS_METERS must be >= the default radius"))
	}
	if cfg.CandidateLimit <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_CANDIDATE_LIMIT must be > 0"))
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

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds every environment-derived setting an edge-server process
// needs at boot (spec §6 "CLI / environment").
type Config struct {
	// Debug gates behaviors that must never run in production: auto
	// generating a JWT secret, relaxed cert self-check logging, etc.
	Debug bool

	// WorkDir is the root of the edge's persisted state (spec §6
	// "Persisted layouts": certs/, credential.json, orders.redb,
	// archive.sqlite, .audit.lock all live under here).
	WorkDir string

	// BusListenAddr is the mTLS TCP address internal terminal/KDS
	// clients connect to (spec §4.7 "Connection").
	BusListenAddr string

	// HTTPListenAddr serves the activation/cert-issue/health endpoints
	// (spec §6 "Cloud HTTP").
	HTTPListenAddr string

	// CloudWSURL is the cloud's duplex sync endpoint (spec §4.9, §6
	// "GET /api/edge/ws").
	CloudWSURL string

	// AuthServerURL is the cloud endpoint for activation and root CA
	// download (spec §6).
	AuthServerURL string

	JWT JWTConfig

	Archive ArchiveConfig
}

// JWTConfig governs local JWT issuance for terminal/KDS sessions (spec
// §6).
type JWTConfig struct {
	Secret            string
	ExpirationMinutes int
	Issuer            string
	Audience          string
}

// ArchiveConfig holds the archive worker settings read from the
// environment (spec §4.5, §5). Only Concurrency is passed to the worker;
// the retry count, backoff and rescan fields are loaded but not used, and
// the worker runs on its own constants for those.
type ArchiveConfig struct {
	Concurrency    int
	MaxRetryCount  int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	RescanInterval time.Duration
}

// Load reads Config from the environment, applying the defaults spec §6
// names. It does not read a .env file itself — callers load one with
// godotenv.Load() in main, matching the teacher's cmd/polybot/main.go
// pattern, before calling Load.
func Load() (*Config, error) {
	debug := getEnvBool("DEBUG", false)

	cfg := &Config{
		Debug:          debug,
		WorkDir:        getEnv("WORK_DIR", "./data"),
		BusListenAddr:  getEnv("BUS_LISTEN_ADDR", "0.0.0.0:8081"),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", "0.0.0.0:8080"),
		CloudWSURL:     os.Getenv("CLOUD_WS_URL"),
		AuthServerURL:  os.Getenv("AUTH_SERVER_URL"),
		JWT: JWTConfig{
			Secret:            os.Getenv("JWT_SECRET"),
			ExpirationMinutes: getEnvInt("JWT_EXPIRATION_MINUTES", 1440),
			Issuer:            getEnv("JWT_ISSUER", "edge-server"),
			Audience:          getEnv("JWT_AUDIENCE", "edge-clients"),
		},
		Archive: ArchiveConfig{
			Concurrency:    getEnvInt("ARCHIVE_CONCURRENCY", 10),
			MaxRetryCount:  getEnvInt("ARCHIVE_MAX_RETRY_COUNT", 3),
			BackoffBase:    getEnvDuration("ARCHIVE_BACKOFF_BASE", 5*time.Second),
			BackoffCap:     getEnvDuration("ARCHIVE_BACKOFF_CAP", 60*time.Second),
			RescanInterval: getEnvDuration("ARCHIVE_RESCAN_INTERVAL", 60*time.Second),
		},
	}

	if cfg.JWT.Secret == "" {
		if !debug {
			return nil, fmt.Errorf("config: JWT_SECRET is required outside debug builds")
		}
		generated, err := randomHex(32)
		if err != nil {
			return nil, fmt.Errorf("config: generate debug JWT secret: %w", err)
		}
		cfg.JWT.Secret = generated
		log.Warn().Msg("config: no JWT_SECRET set, auto-generated a debug-only secret (do not use in production)")
	} else if len(cfg.JWT.Secret) < 32 && !debug {
		return nil, fmt.Errorf("config: JWT_SECRET must be at least 32 characters in production")
	}

	return cfg, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

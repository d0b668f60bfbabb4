// Package config loads process-wide configuration from the environment.
//
// Configuration is read once at start by Load and then passed by value into
// the server. Nothing else in the application calls os.Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MinSecretLength is the shortest JWT secret the token service accepts.
const MinSecretLength = 16

// Config holds every setting the server needs.
type Config struct {
	Env      string
	LogLevel string
	Port     int
	DBPath   string

	// Token signing
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// Federated login
	GoogleClientID           string
	GoogleClientSecret       string
	GoogleCallbackURL        string
	AllowUnverifiedFederated bool

	CORSAllowedOrigin string

	// Detector
	DetectorEnabled  bool
	DetectorImage    string
	DetectorCommand  []string
	DetectorPoolSize int
	DetectorTimeout  time.Duration
}

// ErrMissingSecret is returned by Load when JWT_SECRET is unset.
var ErrMissingSecret = errors.New("config: JWT_SECRET is required")

// Load reads the configuration from environment variables.
//
// A missing or short JWT_SECRET is an error: the server must not start
// without a signing secret. Malformed numbers, booleans and durations are
// reported rather than silently replaced by defaults.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		DBPath:             getEnv("DB_PATH", "data/foodlens.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          getEnv("JWT_ISSUER", "foodlens"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		CORSAllowedOrigin:  getEnv("CORS_ALLOWED_ORIGIN", "*"),
		DetectorImage:      getEnv("DETECTOR_IMAGE", "foodlens/detector:latest"),
		DetectorCommand:    strings.Fields(getEnv("DETECTOR_COMMAND", "python /app/infer.py")),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, ErrMissingSecret)
	} else if len(cfg.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("config: JWT_SECRET must be at least %d characters", MinSecretLength))
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		errs = append(errs, err)
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", 2*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.AllowUnverifiedFederated, err = getEnvBool("ALLOW_UNVERIFIED_FEDERATED", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.DetectorEnabled, err = getEnvBool("DETECTOR_ENABLED", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.DetectorPoolSize, err = getEnvInt("DETECTOR_POOL_SIZE", 2); err != nil {
		errs = append(errs, err)
	}
	if cfg.DetectorTimeout, err = getEnvDuration("DETECTOR_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}

	cfg.GoogleCallbackURL = getEnv("GOOGLE_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port))

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// GoogleEnabled reports whether verified Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, v)
	}
	return d, nil
}

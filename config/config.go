package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"tripsplit-backend/money"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

type Config struct {
	Port        string
	AppName     string
	LogLevel    string
	CORSOrigins []string

	StoreBackend      string
	DatabaseURL       string
	RedisURL          string
	FirebaseCredPath  string
	FirebaseProjectID string

	AuthMode  string
	JWTSecret string

	SendGridAPIKey string
	SendGridFrom   string

	SettlementCurrency money.Currency
	ExchangeRates      map[money.Pair]decimal.Decimal
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppName:           getEnv("APP_NAME", "TripSplit"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		FirebaseCredPath:  getEnv("FIREBASE_CREDENTIALS", ""),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
		AuthMode:          strings.ToLower(getEnv("AUTH_MODE", AuthJWT)),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFrom:      getEnv("SENDGRID_FROM_EMAIL", "noreply@tripsplit.app"),
	}

	cur, err := money.ParseCurrency(getEnv("SETTLEMENT_CURRENCY", "TWD"))
	if err != nil {
		return nil, fmt.Errorf("SETTLEMENT_CURRENCY: %w", err)
	}
	cfg.SettlementCurrency = cur

	rates, err := money.ParseRates(getEnv("EXCHANGE_RATES", "USD/TWD=32"))
	if err != nil {
		return nil, fmt.Errorf("EXCHANGE_RATES: %w", err)
	}
	cfg.ExchangeRates = rates

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.AuthMode {
	case AuthJWT:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in jwt auth mode"))
		}
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required in firebase auth mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}

	return errors.Join(errs...)
}

// UsesFirebase reports whether any component needs a Firebase app.
func (c *Config) UsesFirebase() bool {
	return c.StoreBackend == BackendFirestore || c.AuthMode == AuthFirebase
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

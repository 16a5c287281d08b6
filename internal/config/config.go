package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StoreBackendPostgres  = "postgres"
	StoreBackendPostgREST = "postgrest"
)

type Config struct {
	// Server
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`

	// Storage
	StoreBackend           string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL            string `env:"DATABASE_URL"`
	MigrationsDir          string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	DBMaxConns             int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns             int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Redis (locks + status updates). Optional.
	RedisURL          string        `env:"REDIS_URL"`
	GenerationLockTTL time.Duration `env:"GENERATION_LOCK_TTL" envDefault:"3m"`

	// JWT
	JWTSecret string `env:"JWT_SECRET"`

	// Gemini AI
	GeminiAPIKey         string `env:"GEMINI_API_KEY"`
	GeminiModel          string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiConcurrentReqs int    `env:"GEMINI_CONCURRENT_REQUESTS" envDefault:"5"`

	// Public surface
	PublicIngestKey    string `env:"PUBLIC_INGEST_KEY"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"20"`

	// Frontend
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return nil, err
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing required variable at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	switch c.StoreBackend {
	case StoreBackendPostgres:
		require("DATABASE_URL", c.DatabaseURL)
	case StoreBackendPostgREST:
		require("SUPABASE_URL", c.SupabaseURL)
		require("SUPABASE_SERVICE_ROLE_KEY", c.SupabaseServiceRoleKey)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want %s or %s)", c.StoreBackend, StoreBackendPostgres, StoreBackendPostgREST)
	}
	require("GEMINI_API_KEY", c.GeminiAPIKey)
	require("JWT_SECRET", c.JWTSecret)

	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

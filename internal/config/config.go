package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RunMigrations          bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	CostCacheTTLSeconds    int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	AuthRefreshSeconds     int
	LogLevel               string
	MetricsEnabled         bool
	DefaultCostingMethod   string
	DefaultOverheadPercent decimal.Decimal
	DefaultPackagingCost   decimal.Decimal
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"ALLOWED_ORIGIN":           "http://127.0.0.1:3000",
	"DATABASE_URL":             "",
	"RUN_MIGRATIONS":           true,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"COST_CACHE_TTL_SECONDS":   300,
	"AUTH_SECRET":              "",
	"ACCESS_TOKEN_TTL_MINUTES": 480,
	"AUTH_REFRESH_SECONDS":     60,
	"LOG_LEVEL":                "info",
	"METRICS_ENABLED":          true,
	"DEFAULT_COSTING_METHOD":   "fifo",
	"DEFAULT_OVERHEAD_PERCENT": "0",
	"DEFAULT_PACKAGING_COST":   "0",
}

// Load reads, lowest precedence first: defaults, the file named by
// CONFIG_FILE, a .env file (or ENV_FILE), then the process environment.
func Load() (Config, error) {
	envFile := strings.TrimSpace(lookupEnv("ENV_FILE", ".env"))
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	ttl := v.GetInt("COST_CACHE_TTL_SECONDS")
	if ttl < 1 {
		ttl = 300
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	authRefresh := v.GetInt("AUTH_REFRESH_SECONDS")
	if authRefresh < 1 {
		authRefresh = 60
	}
	method := strings.ToLower(strings.TrimSpace(v.GetString("DEFAULT_COSTING_METHOD")))
	if method != "fifo" && method != "wac" {
		method = "fifo"
	}

	cfg := Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		RunMigrations:          v.GetBool("RUN_MIGRATIONS"),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		CostCacheTTLSeconds:    ttl,
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		AuthRefreshSeconds:     authRefresh,
		LogLevel:               v.GetString("LOG_LEVEL"),
		MetricsEnabled:         v.GetBool("METRICS_ENABLED"),
		DefaultCostingMethod:   method,
		DefaultOverheadPercent: nonNegativeDecimal(v.GetString("DEFAULT_OVERHEAD_PERCENT")),
		DefaultPackagingCost:   nonNegativeDecimal(v.GetString("DEFAULT_PACKAGING_COST")),
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func nonNegativeDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func lookupEnv(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

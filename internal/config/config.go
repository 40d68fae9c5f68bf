package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. Values are read by
// viper from a config file and environment variables.
type Config struct {
	Port string `mapstructure:"PORT"`
	DSN  string `mapstructure:"DSN"`

	GameServiceURL string `mapstructure:"GAME_SERVICE_URL"`
	UserServiceURL string `mapstructure:"USER_SERVICE_URL"`

	// Tunable matchmaking constants (spec.md §6).
	TickIntervalMS         int     `mapstructure:"TICK_RATE_MS"`
	BaseToleranceElo       int     `mapstructure:"BASE_TOLERANCE"`
	ExpansionIntervalMS    int     `mapstructure:"EXPANSION_INTERVAL_MS"`
	ExpansionStep          float64 `mapstructure:"EXPANSION_STEP"`
	MatchAcceptTimeoutMS   int     `mapstructure:"MATCH_ACCEPT_TIMEOUT_MS"`
	PenaltyDurationSeconds int     `mapstructure:"PENALTY_DURATION_SECONDS"`
	DefaultElo             int     `mapstructure:"DEFAULT_ELO"`

	GameClientTimeoutMS  int `mapstructure:"GAME_CLIENT_TIMEOUT_MS"`
	UsersClientTimeoutMS int `mapstructure:"USERS_CLIENT_TIMEOUT_MS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	AllowedOrigins string  `mapstructure:"CORS_ORIGINS"`
	RateRPS        float64 `mapstructure:"RATE_RPS"`
	RateBurst      int     `mapstructure:"RATE_BURST"`

	DBMaxOpenConns    int `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxIdleTime int `mapstructure:"DB_CONN_MAX_IDLE_TIME_MIN"`
	DBConnMaxLifetime int `mapstructure:"DB_CONN_MAX_LIFETIME_HOUR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// LoadConfig reads configuration from a config file and/or environment
// variables, falling back to the defaults recommended by spec.md §4.2/§4.3.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("GAME_SERVICE_URL", "http://game:3000")
	v.SetDefault("USER_SERVICE_URL", "http://localhost:3001")

	v.SetDefault("TICK_RATE_MS", 1000)
	v.SetDefault("BASE_TOLERANCE", 50)
	v.SetDefault("EXPANSION_INTERVAL_MS", 10000)
	v.SetDefault("EXPANSION_STEP", 1.0)
	v.SetDefault("MATCH_ACCEPT_TIMEOUT_MS", 15000)
	v.SetDefault("PENALTY_DURATION_SECONDS", 300)
	v.SetDefault("DEFAULT_ELO", 1000)

	v.SetDefault("GAME_CLIENT_TIMEOUT_MS", 3000)
	v.SetDefault("USERS_CLIENT_TIMEOUT_MS", 3000)

	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_RPS", 10)
	v.SetDefault("RATE_BURST", 20)
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME_MIN", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME_HOUR", 2)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/matchmaking/")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// A handful of settings operators most commonly override via a plain
	// environment variable in container deployments; re-read them directly
	// in case the deployment environment does not surface them through
	// viper's AutomaticEnv binding.
	if dsn := os.Getenv("DSN"); dsn != "" {
		cfg.DSN = dsn
	}
	if gameURL := os.Getenv("GAME_SERVICE_URL"); gameURL != "" {
		cfg.GameServiceURL = gameURL
	}
	if userURL := os.Getenv("USER_SERVICE_URL"); userURL != "" {
		cfg.UserServiceURL = userURL
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	return &cfg, nil
}

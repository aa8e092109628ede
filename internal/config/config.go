package config

import (
	"encoding/hex"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"ENV"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32  `mapstructure:"DB_MIN_CONNS"`
	MasterKey      string `mapstructure:"MASTER_KEY"`
	CmacGraceHours int    `mapstructure:"CMAC_GRACE_HOURS"`
	MigrationsDir  string `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CMAC_GRACE_HOURS", 24)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MASTER_KEY")
	v.BindEnv("CMAC_GRACE_HOURS")
	v.BindEnv("MIGRATIONS_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.MasterKey == "" {
		log.Println("WARNING: no MASTER_KEY configured, deriving keys from an all-zero master key.")
		log.Println("WARNING: every ciphertext written this way is recoverable by anyone.")
		log.Println("WARNING: set MASTER_KEY (or ENV=production, which requires it) before storing real data.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MasterKeyBytes decodes MASTER_KEY. An empty key yields 32 zero bytes,
// accepted only in development.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.MasterKey == "" {
		return make([]byte, 32), nil
	}
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("MASTER_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MASTER_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Production requires
// a real master key; the pseudonymization grace window must not be negative.
func (c *Config) Validate() error {
	if c.IsProduction() && c.MasterKey == "" {
		return fmt.Errorf("MASTER_KEY is required in production")
	}
	if _, err := c.MasterKeyBytes(); err != nil {
		return err
	}
	if c.CmacGraceHours < 0 {
		return fmt.Errorf("CMAC_GRACE_HOURS must not be negative, got %d", c.CmacGraceHours)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

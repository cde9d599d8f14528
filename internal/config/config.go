// Package config loads runtime tunables from environment and optional config
// file. Detection thresholds live here rather than as literals so deployments
// can adjust them without a rebuild.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every runtime tunable for the backend.
type Config struct {
	Port string `mapstructure:"port"`

	// Anomaly detection
	AnomalyThreshold     float64 `mapstructure:"anomaly_threshold"`      // fractional increase over average that flags a reading
	AnomalyHighThreshold float64 `mapstructure:"anomaly_high_threshold"` // fractional increase that upgrades severity to high
	AnomalyWindowMonths  int     `mapstructure:"anomaly_window_months"`  // trailing history window
	AnomalyMinHistory    int     `mapstructure:"anomaly_min_history"`    // minimum historical points required

	// Duplicate detection
	DedupSimilarity     float64 `mapstructure:"dedup_similarity"`       // name-overlap threshold above which names match
	DedupDateWindowDays int     `mapstructure:"dedup_date_window_days"` // +/- days around the transaction date

	// Tips
	HighSpendThreshold float64 `mapstructure:"high_spend_threshold"` // total monthly utility cost that triggers the high-spend tip

	// Providers
	PlaidBaseURL      string `mapstructure:"plaid_base_url"`
	PlaidClientID     string `mapstructure:"plaid_client_id"`
	PlaidSecret       string `mapstructure:"plaid_secret"`
	UtilityAPIBaseURL string `mapstructure:"utilityapi_base_url"`
	UtilityAPIToken   string `mapstructure:"utilityapi_token"`

	// Storage
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Load reads configuration from HOMEPULSE_* environment variables and an
// optional homepulse.yaml in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", "8111")
	v.SetDefault("anomaly_threshold", 0.20)
	v.SetDefault("anomaly_high_threshold", 0.50)
	v.SetDefault("anomaly_window_months", 3)
	v.SetDefault("anomaly_min_history", 2)
	v.SetDefault("dedup_similarity", 0.7)
	v.SetDefault("dedup_date_window_days", 2)
	v.SetDefault("high_spend_threshold", 500.0)
	v.SetDefault("plaid_base_url", "https://sandbox.plaid.com")
	v.SetDefault("utilityapi_base_url", "https://utilityapi.com/api/v2")
	v.SetDefault("sqlite_path", "homepulse.db")

	v.SetEnvPrefix("HOMEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("homepulse")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns a Config populated with the built-in defaults, for tests.
func Default() *Config {
	return &Config{
		Port:                 "8111",
		AnomalyThreshold:     0.20,
		AnomalyHighThreshold: 0.50,
		AnomalyWindowMonths:  3,
		AnomalyMinHistory:    2,
		DedupSimilarity:      0.7,
		DedupDateWindowDays:  2,
		HighSpendThreshold:   500.0,
		PlaidBaseURL:         "https://sandbox.plaid.com",
		UtilityAPIBaseURL:    "https://utilityapi.com/api/v2",
		SQLitePath:           "homepulse.db",
	}
}

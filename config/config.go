package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is resolved once at startup and passed into constructors. Guarded
// transactions never read it mid-flight: a pipeline's behavior depends only on
// its inputs and the rows it locked.
type Config struct {
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"`
	DatabaseURL string `mapstructure:"database_url"`

	Monitor MonitorConfig `mapstructure:"monitor"`

	// Payouts maps raw placement keys to credit amounts. Keys accept the
	// historical aliases ("first_place", "1", "winner", ...); they are
	// resolved once into a typed table at startup (services.ResolvePayouts).
	Payouts map[string]int64 `mapstructure:"payouts"`

	// XPPerPlacement mirrors Payouts for the XP balance.
	XPPayouts map[string]int64 `mapstructure:"xp_payouts"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`

	// Report sink; empty bucket disables uploads.
	ReportBucket    string `mapstructure:"report_bucket"`
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables win, with nested keys joined by underscores
// (MONITOR_INTERVAL, MONITOR_REPORT_BUCKET).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("listen_addr", ":5300")
	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("payouts", map[string]int64{
		"first_place":   500,
		"second":        250,
		"third":         100,
		"participation": 25,
	})
	v.SetDefault("xp_payouts", map[string]int64{
		"first_place":   300,
		"second":        200,
		"third":         150,
		"participation": 100,
	})

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file -> %w", err)
			}
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unmarshal config -> %w", err)
	}
	if conf.DatabaseURL == "" {
		conf.DatabaseURL = v.GetString("database_url")
	}
	return &conf, nil
}

// Package config loads server configuration from an optional file plus
// STOCK_* environment overrides.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr        string   `mapstructure:"addr"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	// Stock-status boundaries: quantities up to low_max are LOW_STOCK,
	// above normal_max OVER_STOCK.
	Stock struct {
		LowMax    int64 `mapstructure:"low_max"`
		NormalMax int64 `mapstructure:"normal_max"`
	} `mapstructure:"stock"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// Load reads the config file at path (optional; defaults apply when
// empty) and applies STOCK_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("db.path", "stock.db")
	v.SetDefault("stock.low_max", 5)
	v.SetDefault("stock.normal_max", 49)
	v.SetDefault("metrics.enabled", true)

	v.SetEnvPrefix("STOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

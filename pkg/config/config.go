package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application-wide configuration
type Config struct {
	DB      DBConfig     `mapstructure:"db"`
	Server  ServerConfig `mapstructure:"server"`
	Columns FilterConfig `mapstructure:"columns"`
	Tables  FilterConfig `mapstructure:"tables"`
}

type DBConfig struct {
	// Dialect names the SQL engine: mysql, postgres, sqlserver or sqlite.
	Dialect    string `mapstructure:"dialect"`
	ConnString string `mapstructure:"connString"`
	PoolSize   int    `mapstructure:"poolSize"`
	Name       string `mapstructure:"name"`
	// Bootstrap lists DDL script paths executed once at startup, used for
	// embedded and test databases.
	Bootstrap []string `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	ListenAddr  string `mapstructure:"listenAddr"`
	MetricsAddr string `mapstructure:"metricsAddr"`
	BaseURL     string `mapstructure:"baseURL"`
}

// FilterConfig is an include/exclude name list. An empty include list
// admits everything not excluded.
type FilterConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

func Default() *Config {
	return &Config{
		DB: DBConfig{
			Dialect:  "sqlite",
			PoolSize: 10,
			Name:     "main",
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: ":9100",
		},
	}
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("restq")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("RESTQ")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.DB.ConnString == "" {
		cfg.DB.ConnString = os.Getenv("RESTQ_DB_CONNSTRING")
	}
	return cfg, nil
}

// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package config loads datastore configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the config file name searched for (without extension).
const DefaultConfigFileName = "datastore"

// Config holds all datastore configuration.
// Priority: env vars > config file > defaults
type Config struct {
	// DataDir is computed from DATASTORE_DATA_DIR; it is never read from the file.
	DataDir string `mapstructure:"-" yaml:"-"`

	Database Database `mapstructure:"database" yaml:"database"`
	Logging  Logging  `mapstructure:"logging" yaml:"logging"`
	Tracing  Tracing  `mapstructure:"tracing" yaml:"tracing"`
}

// Database configures the connection handler and its native pool.
type Database struct {
	// Driver selects the pool adapter: pgx, postgres, mysql or sqlite.
	Driver string `mapstructure:"driver" yaml:"driver"`

	// MinConnections is forwarded to the native pool as its idle floor.
	MinConnections int `mapstructure:"min_connections" yaml:"min_connections"`

	// MaxConnections sizes the capacity gate (DATASTORE_MAX_CONNECTIONS).
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections"`

	DSN DSN `mapstructure:"dsn" yaml:"dsn"`
}

// DSN is the data-source bundle used to open the native pool.
type DSN struct {
	// URL is a complete connection string. When set, the postgres drivers use
	// it as is and ignore the individual fields.
	URL string `mapstructure:"url" yaml:"-"`

	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// Database is the database name, or the file path for sqlite.
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"-"`
	PasswordFile string `mapstructure:"password_file" yaml:"password_file"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode"`
	// UseKeyring enables the system keyring as the last password source.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json | text
}

// Tracing selects the handler tracer.
type Tracing struct {
	Mode     string `mapstructure:"mode" yaml:"mode"` // none | memory | log
	MaxSpans int    `mapstructure:"max_spans" yaml:"max_spans"`
}

// envBindings maps config keys to the environment variables the datastore
// services have always used.
var envBindings = map[string]string{
	"database.driver":            "DATABASE_DRIVER",
	"database.min_connections":   "DATASTORE_MIN_CONNECTIONS",
	"database.max_connections":   "DATASTORE_MAX_CONNECTIONS",
	"database.dsn.url":           "DATABASE_URL",
	"database.dsn.host":          "DATABASE_HOST",
	"database.dsn.port":          "DATABASE_PORT",
	"database.dsn.database":      "DATABASE_NAME",
	"database.dsn.user":          "DATABASE_USER",
	"database.dsn.password":      "DATABASE_PASSWORD",
	"database.dsn.password_file": "DATABASE_PASSWORD_FILE",
	"database.dsn.sslmode":       "DATABASE_SSLMODE",
	"database.dsn.use_keyring":   "DATABASE_USE_KEYRING",
	"logging.level":              "DATASTORE_LOG_LEVEL",
	"logging.format":             "DATASTORE_LOG_FORMAT",
	"tracing.mode":               "DATASTORE_TRACING",
	"tracing.max_spans":          "DATASTORE_TRACING_MAX_SPANS",
}

// Load reads configuration. If cfgFile is empty the standard locations are
// searched for datastore.yaml; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(GetDataDir())
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/datastore/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = GetDataDir()

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.max_connections", 5)
	v.SetDefault("database.dsn.url", "")
	v.SetDefault("database.dsn.host", "localhost")
	v.SetDefault("database.dsn.port", 5432)
	v.SetDefault("database.dsn.database", "openslides")
	v.SetDefault("database.dsn.user", "openslides")
	v.SetDefault("database.dsn.password", "")
	v.SetDefault("database.dsn.password_file", "/run/secrets/postgres_password")
	v.SetDefault("database.dsn.sslmode", "disable")
	v.SetDefault("database.dsn.use_keyring", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("tracing.mode", "none")
	v.SetDefault("tracing.max_spans", 10000)
}

// Validate checks the connection counts and driver name.
func (d Database) Validate() error {
	if strings.TrimSpace(d.Driver) == "" {
		return fmt.Errorf("database.driver must be set")
	}
	if d.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive, got %d", d.MaxConnections)
	}
	if d.MinConnections < 0 {
		return fmt.Errorf("database.min_connections must not be negative, got %d", d.MinConnections)
	}
	if d.MinConnections > d.MaxConnections {
		return fmt.Errorf("database.min_connections (%d) exceeds database.max_connections (%d)",
			d.MinConnections, d.MaxConnections)
	}
	return nil
}

/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/utils"
)

const (
	// DefaultPath is read when Load is called with an empty path.
	DefaultPath = "configs/application.yaml"
	envPrefix   = "DATAJPA"
	envFile     = ".env"
)

// Config holds application configuration.
type Config struct {
	Logging  LoggingConfig   `mapstructure:"logging"`
	Database database.Config `mapstructure:"database"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// Validate ensures required fields are present.
func (c Config) Validate() error {
	conn := c.Database.ConnectionConfig
	switch conn.Type {
	case "sqlite", "sqlite3":
		if conn.DBName == "" {
			return errors.New("database.connection.dbname is required")
		}
	case "mysql", "postgres", "postgresql":
		if conn.Host == "" || conn.Port == 0 {
			return errors.New("database.connection.host and port are required")
		}
		if conn.Username == "" || conn.DBName == "" {
			return errors.New("database.connection credentials are required")
		}
	default:
		return fmt.Errorf("unsupported database.connection.type: %q", conn.Type)
	}
	if conn.MaxOpenConns > 0 && conn.MaxIdleConns > conn.MaxOpenConns {
		return errors.New("database.connection.max_idle_conns exceeds max_open_conns")
	}
	switch conn.QueryLogStyle {
	case "", database.QueryLogStyleBunDebug, database.QueryLogStyleColor:
	default:
		return fmt.Errorf("unsupported database.connection.query_log_style: %q", conn.QueryLogStyle)
	}
	return nil
}

// DatabaseConfig returns a copy of the database section.
func (c Config) DatabaseConfig() *database.Config {
	cfg := c.Database
	return &cfg
}

// ApplyLogging pushes the logging section into the utils logger registry.
func (c Config) ApplyLogging() {
	utils.ConfigureConsoleLogFormat(c.Logging.Format)
	utils.ConfigureLogLevel(c.Logging.Level)
}

// Load reads the YAML file at path (DefaultPath when empty), layers DATAJPA_*
// environment variables and a local .env file over it, and validates the result.
// A missing file at DefaultPath is tolerated; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	d := database.DefaultConnectionConfig()
	v.SetDefault("database.connection.type", d.Type)
	v.SetDefault("database.connection.host", d.Host)
	v.SetDefault("database.connection.port", d.Port)
	v.SetDefault("database.connection.username", d.Username)
	v.SetDefault("database.connection.password", d.Password)
	v.SetDefault("database.connection.dbname", d.DBName)
	v.SetDefault("database.connection.sslmode", d.SSLMode)
	v.SetDefault("database.connection.max_idle_conns", d.MaxIdleConns)
	v.SetDefault("database.connection.max_open_conns", d.MaxOpenConns)
	v.SetDefault("database.connection.conn_max_lifetime", d.ConnMaxLifetime)
	v.SetDefault("database.connection.conn_max_idle_time", d.ConnMaxIdleTime)
	v.SetDefault("database.connection.connect_timeout", d.ConnectTimeout)
	v.SetDefault("database.connection.read_timeout", d.ReadTimeout)
	v.SetDefault("database.connection.write_timeout", d.WriteTimeout)
	v.SetDefault("database.connection.enable_reconnect", d.EnableReconnect)
	v.SetDefault("database.connection.reconnect_interval", d.ReconnectInterval)
	v.SetDefault("database.connection.max_reconnect_tries", d.MaxReconnectTries)
	v.SetDefault("database.connection.health_check_interval", d.HealthCheckInterval)
	v.SetDefault("database.connection.enable_query_log", d.EnableQueryLog)
	v.SetDefault("database.connection.query_log_style", d.QueryLogStyle)
	v.SetDefault("database.connection.slow_query_time", d.SlowQueryTime)
	v.SetDefault("database.connection.enable_metrics", d.EnableMetrics)

	v.SetDefault("database.migrate.enable_migrate_on_startup", true)
	v.SetDefault("database.migrate.enable_foreign_key", true)
	v.SetDefault("database.migrate.foreign_key_file", "")

	v.SetDefault("database.init.auto_init_on_migration", false)
	v.SetDefault("database.init.filepath", "configs/sql")
	v.SetDefault("database.init.environment", "prod")
}

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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, running migrations, seeding data, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	RunMigrations(ctx context.Context, cfg *Config) error
	InitData(ctx context.Context, cfg *Config) error
	GetStats() *DBStats
	MetricsHook() *QueryMetricsHook
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// Query log styles understood by ConnectionConfig.QueryLogStyle.
const (
	QueryLogStyleBunDebug = "bundebug"
	QueryLogStyleColor    = "color"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `mapstructure:"type"` // postgres, mysql, sqlite
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	DBName              string        `mapstructure:"dbname"` // sqlite: file name without .db, or ":memory:"
	SSLMode             string        `mapstructure:"sslmode"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxOpenConns        int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	EnableReconnect     bool          `mapstructure:"enable_reconnect"`
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectTries   int           `mapstructure:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	EnableQueryLog      bool          `mapstructure:"enable_query_log"`
	QueryLogStyle       string        `mapstructure:"query_log_style"`
	SlowQueryTime       time.Duration `mapstructure:"slow_query_time"`
	EnableMetrics       bool          `mapstructure:"enable_metrics"`
}

// IsInMemory reports whether the connection targets an in-memory sqlite database.
func (c *ConnectionConfig) IsInMemory() bool {
	return (c.Type == "sqlite" || c.Type == "sqlite3") && c.DBName == ":memory:"
}

// DataMigrateConfig controls schema migration behavior on startup.
type DataMigrateConfig struct {
	EnableMigrateOnStartup bool   `mapstructure:"enable_migrate_on_startup"`
	EnableForeignKey       bool   `mapstructure:"enable_foreign_key"`
	ForeignKeyFile         string `mapstructure:"foreign_key_file"`
}

// DataInitConfig controls data seeding behavior and environment selection.
type DataInitConfig struct {
	AutoInitOnMigration bool   `mapstructure:"auto_init_on_migration"`
	Filepath            string `mapstructure:"filepath"`
	Environment         string `mapstructure:"environment"`
}

// Config aggregates connection, migration, and data initialization settings.
type Config struct {
	ConnectionConfig  ConnectionConfig  `mapstructure:"connection"`
	DataMigrateConfig DataMigrateConfig `mapstructure:"migrate"`
	DataInitConfig    DataInitConfig    `mapstructure:"init"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                "sqlite",
		DBName:              "datajpa",
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		QueryLogStyle:       QueryLogStyleBunDebug,
		SlowQueryTime:       time.Second * 2,
	}
}

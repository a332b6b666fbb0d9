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
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
)

// BaseDatabaseFactory builds the database manager for a Config and keeps the
// migration settings for InitializeDatabase.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	config  *Config
	logger  Logger
}

func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{logger: GetLogger()}
}

// CreateFromConfig validates the database type, applies DB_* overrides and
// creates an unconnected manager.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if _, err := driverFor(cfg.ConnectionConfig.Type); err != nil {
		return nil, err
	}

	overrideFromEnv(&cfg.ConnectionConfig)
	f.config = cfg
	f.manager = NewDatabaseManager(&cfg.ConnectionConfig)
	f.manager.SetLogger(f.logger)
	return f.manager, nil
}

// envOverrides maps connection settings to the DB_* variables that replace
// them, so credentials can stay out of the YAML file.
var envOverrides = map[string]string{
	"host":              "DB_HOST",
	"port":              "DB_PORT",
	"username":          "DB_USERNAME",
	"password":          "DB_PASSWORD",
	"dbname":            "DB_NAME",
	"sslmode":           "DB_SSLMODE",
	"max_idle_conns":    "DB_MAX_IDLE_CONNS",
	"max_open_conns":    "DB_MAX_OPEN_CONNS",
	"conn_max_lifetime": "DB_CONN_MAX_LIFETIME",
	"enable_reconnect":  "DB_ENABLE_RECONNECT",
	"enable_query_log":  "DB_ENABLE_QUERY_LOG",
}

func overrideFromEnv(cfg *ConnectionConfig) {
	v := viper.New()
	for key, env := range envOverrides {
		_ = v.BindEnv(key, env)
	}
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("username") {
		cfg.Username = v.GetString("username")
	}
	if v.IsSet("password") {
		cfg.Password = v.GetString("password")
	}
	if v.IsSet("dbname") {
		cfg.DBName = v.GetString("dbname")
	}
	if v.IsSet("sslmode") {
		cfg.SSLMode = v.GetString("sslmode")
	}
	if v.IsSet("max_idle_conns") {
		cfg.MaxIdleConns = v.GetInt("max_idle_conns")
	}
	if v.IsSet("max_open_conns") {
		cfg.MaxOpenConns = v.GetInt("max_open_conns")
	}
	if v.IsSet("conn_max_lifetime") {
		// seconds
		cfg.ConnMaxLifetime = time.Duration(v.GetInt("conn_max_lifetime")) * time.Second
	}
	if v.IsSet("enable_reconnect") {
		cfg.EnableReconnect = v.GetBool("enable_reconnect")
	}
	if v.IsSet("enable_query_log") {
		cfg.EnableQueryLog = v.GetBool("enable_query_log")
	}
}

// InitializeDatabase connects and, when runMigrations is set, migrates.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, runMigrations bool) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if !runMigrations {
		return nil
	}
	if err := f.manager.RunMigrations(ctx, f.config); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	f.logger.Info("Database migrated", "type", f.config.ConnectionConfig.Type)
	return nil
}

func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager { return f.manager }

func (f *BaseDatabaseFactory) GetConfig() *Config { return f.config }

// GetDB returns nil until CreateFromConfig and InitializeDatabase have run.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{LastError: "database manager not created", LastCheckTime: time.Now()}
	}
	return f.manager.HealthCheck(ctx)
}

func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}

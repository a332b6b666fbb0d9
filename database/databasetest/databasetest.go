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

// Package databasetest opens throwaway in-memory databases with the schema
// already migrated.
package databasetest

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/database"
	_ "github.com/tomoncle/datajpa/entity"
	"github.com/uptrace/bun"
)

// Option adjusts the configuration used by Open.
type Option func(cfg *database.Config)

// WithForeignKeys toggles foreign key constraints, on by default.
func WithForeignKeys(enabled bool) Option {
	return func(cfg *database.Config) {
		cfg.DataMigrateConfig.EnableForeignKey = enabled
	}
}

// WithQueryLog enables the query log hook in the given style.
func WithQueryLog(style string) Option {
	return func(cfg *database.Config) {
		cfg.ConnectionConfig.EnableQueryLog = true
		cfg.ConnectionConfig.QueryLogStyle = style
	}
}

// Config returns the configuration of an in-memory sqlite database.
func Config(opts ...Option) *database.Config {
	conn := database.DefaultConnectionConfig()
	conn.DBName = ":memory:"
	conn.EnableReconnect = false
	conn.HealthCheckInterval = 0
	conn.SlowQueryTime = 0
	cfg := &database.Config{
		ConnectionConfig: *conn,
		DataMigrateConfig: database.DataMigrateConfig{
			EnableMigrateOnStartup: true,
			EnableForeignKey:       true,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Open connects to a fresh in-memory database, runs the migrations and
// closes it when the test ends.
func Open(tb testing.TB, opts ...Option) *bun.DB {
	tb.Helper()
	cfg := Config(opts...)
	manager := database.NewDatabaseManager(&cfg.ConnectionConfig)
	ctx := context.Background()
	require.NoError(tb, manager.Connect(ctx))
	tb.Cleanup(func() { _ = manager.Disconnect() })
	require.NoError(tb, manager.RunMigrations(ctx, cfg))
	return manager.GetDB()
}

// OpenWithMetrics is Open plus a query metrics hook registered on a private
// registry, so counters start at zero for every test.
func OpenWithMetrics(tb testing.TB, opts ...Option) (*bun.DB, *database.QueryMetricsHook) {
	tb.Helper()
	db := Open(tb, opts...)
	hook, err := database.NewQueryMetricsHook(prometheus.NewRegistry())
	require.NoError(tb, err)
	db.AddQueryHook(hook)
	return db, hook
}

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
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	defaultConnectTimeout = 30 * time.Second
	healthPingTimeout     = 5 * time.Second
)

type defaultDatabaseManager struct {
	config  *ConnectionConfig
	logger  Logger
	metrics *QueryMetricsHook

	mu        sync.RWMutex
	db        *bun.DB
	sqlDB     *sql.DB
	lastError error
	health    *HealthStatus

	// health loop state; stop is closed by Disconnect.
	loopMu         sync.Mutex
	stop           chan struct{}
	done           chan struct{}
	reconnectTries int
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by bun. A nil
// config falls back to DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	return &defaultDatabaseManager{
		config: config,
		logger: GetLogger(),
		health: &HealthStatus{},
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db != nil {
		return nil
	}

	db, sqlDB, err := dm.open(ctx)
	if err != nil {
		dm.lastError = err
		return err
	}
	dm.db, dm.sqlDB, dm.lastError = db, sqlDB, nil

	if dm.config.HealthCheckInterval > 0 {
		dm.startHealthLoop()
	}
	dm.logger.Info("Database connected", "type", dm.config.Type, "host", dm.config.Host, "dbname", dm.config.DBName)
	return nil
}

// open builds a ready-to-use connection: pool limits, query hooks, sqlite
// foreign key enforcement and a ping. Nothing is kept on failure.
func (dm *defaultDatabaseManager) open(ctx context.Context) (_ *bun.DB, _ *sql.DB, err error) {
	drv, err := driverFor(dm.config.Type)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, db, err := drv.open(dm.config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	applyPool(sqlDB, dm.config)
	if err = dm.installQueryHooks(db); err != nil {
		return nil, nil, err
	}
	if db.Dialect().Name() == dialect.SQLite {
		// sqlite enforces foreign keys per connection and starts with them off.
		if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return nil, nil, fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		return nil, nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return db, sqlDB, nil
}

// applyPool sets the pool limits. An in-memory sqlite database lives as long
// as its single connection, so it is pinned.
func applyPool(sqlDB *sql.DB, cfg *ConnectionConfig) {
	if cfg.IsInMemory() {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func (dm *defaultDatabaseManager) installQueryHooks(db *bun.DB) error {
	if dm.config.EnableQueryLog {
		if dm.config.QueryLogStyle == QueryLogStyleColor {
			db.AddQueryHook(NewQueryHook("BUNDEBUG", true, nil))
		} else {
			db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
		}
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
	if !dm.config.EnableMetrics {
		return nil
	}
	if dm.metrics == nil {
		hook, err := NewQueryMetricsHook(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		dm.metrics = hook
	}
	db.AddQueryHook(dm.metrics)
	return nil
}

func (dm *defaultDatabaseManager) Disconnect() error {
	dm.stopHealthLoop()

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.logger.Info("Reconnecting to the database")
	if err := dm.Disconnect(); err != nil {
		dm.logger.Warn("Closing the previous connection failed", "error", err)
	}
	return dm.Connect(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// MetricsHook returns the installed metrics hook, nil unless EnableMetrics is set.
func (dm *defaultDatabaseManager) MetricsHook() *QueryMetricsHook {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.metrics
}

// HealthCheck pings the database and records the result with the pool usage.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	status := &HealthStatus{LastCheckTime: time.Now()}
	if dm.db == nil {
		status.LastError = "database not connected"
		dm.health = status
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	err := dm.db.PingContext(pingCtx)
	status.ResponseTime = time.Since(status.LastCheckTime)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	dm.lastError = err

	stats := dm.sqlDB.Stats()
	status.ActiveConns, status.IdleConns, status.MaxOpenConns = stats.InUse, stats.Idle, stats.MaxOpenConnections
	dm.health = status
	return status
}

func (dm *defaultDatabaseManager) startHealthLoop() {
	dm.loopMu.Lock()
	defer dm.loopMu.Unlock()
	if dm.stop != nil {
		return
	}
	dm.stop, dm.done = make(chan struct{}), make(chan struct{})
	go dm.healthLoop(dm.config.HealthCheckInterval, dm.stop, dm.done)
}

func (dm *defaultDatabaseManager) stopHealthLoop() {
	dm.loopMu.Lock()
	stop, done := dm.stop, dm.done
	dm.stop, dm.done = nil, nil
	dm.loopMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (dm *defaultDatabaseManager) healthLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*healthPingTimeout)
		status := dm.HealthCheck(ctx)
		cancel()
		if status.Healthy {
			dm.reconnectTries = 0
			continue
		}
		if dm.config.EnableReconnect {
			// Reconnect replaces this loop; the new one owns the next checks.
			go dm.reconnectAfterFailure()
			return
		}
	}
}

func (dm *defaultDatabaseManager) reconnectAfterFailure() {
	for dm.reconnectTries < dm.config.MaxReconnectTries {
		dm.reconnectTries++
		time.Sleep(dm.config.ReconnectInterval)

		ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectTimeout)
		err := dm.Reconnect(ctx)
		cancel()
		if err == nil {
			dm.logger.Info("Reconnected", "try", dm.reconnectTries)
			return
		}
		dm.logger.Error("Reconnect failed", "error", err, "try", dm.reconnectTries)
	}
	dm.logger.Error("Giving up on reconnecting", "tries", dm.reconnectTries)
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	return newDBStats(sqlDB.Stats())
}

func newDBStats(s sql.DBStats) *DBStats {
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) migrations(cfg *Config) (*MigrationManager, error) {
	db := dm.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return NewMigrationManager(db, dm.logger, cfg), nil
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context, cfg *Config) error {
	mm, err := dm.migrations(cfg)
	if err != nil {
		return err
	}
	return mm.RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) InitData(ctx context.Context, cfg *Config) error {
	mm, err := dm.migrations(cfg)
	if err != nil {
		return err
	}
	return mm.InitData(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

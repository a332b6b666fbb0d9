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
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager applies the versioned schema steps and seeds data.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	config *Config
}

// Migration is the schema_migrations row recorded for an applied step.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc runs inside the transaction of its step.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem is one versioned step. Down is optional.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// NewMigrationManager returns a manager for db. A nil cfg only creates tables.
func NewMigrationManager(db *bun.DB, logger Logger, cfg *Config) *MigrationManager {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, config: cfg}
}

// RunMigrations applies every step that schema_migrations does not list yet,
// in version order. Each step and its record share one transaction.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}
	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := mm.appliedVersions(ctx)
	if err != nil {
		return err
	}
	pending := 0
	for _, step := range mm.steps() {
		if applied[step.Version] {
			continue
		}
		if err := inTx(ctx, mm.db, func(ctx context.Context, db bun.IDB) error { return mm.apply(ctx, db, step) }); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", step.Version, err)
		}
		mm.logger.Info("Migration applied", "version", step.Version, "name", step.Name)
		pending++
	}
	mm.logger.Info("Database migrations completed", "applied", pending)
	return nil
}

func (mm *MigrationManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := mm.db.NewSelect().Model((*Migration)(nil)).Column("version").Scan(ctx, &versions); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// steps lists the migrations enabled by the configuration, sorted by version.
func (mm *MigrationManager) steps() []MigrationItem {
	steps := []MigrationItem{{
		Version:     "001",
		Name:        "create_base_tables",
		Description: "Create team and member tables",
		Up:          mm.createBaseTables,
		Down:        mm.dropBaseTables,
	}}
	if mm.config.DataMigrateConfig.EnableForeignKey {
		steps = append(steps, MigrationItem{
			Version:     "002",
			Name:        "add_foreign_keys",
			Description: "Add table foreign key constraints",
			Up:          mm.addForeignKeys,
		})
	}
	if mm.config.DataInitConfig.AutoInitOnMigration {
		steps = append(steps, MigrationItem{
			Version:     "003",
			Name:        "seed_initial_data",
			Description: "Seed initial data",
			Up:          mm.seedInitialData,
		})
	}
	slices.SortFunc(steps, func(a, b MigrationItem) int { return strings.Compare(a.Version, b.Version) })
	return steps
}

func (mm *MigrationManager) apply(ctx context.Context, db bun.IDB, step MigrationItem) error {
	if err := step.Up(ctx, db); err != nil {
		return err
	}
	record := &Migration{Version: step.Version, Name: step.Name, AppliedAt: time.Now(), Description: step.Description}
	_, err := db.NewInsert().Model(record).Exec(ctx)
	return err
}

// inTx runs fn in a new transaction when db is the pool, and directly when
// db already is a transaction.
func inTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, db bun.IDB) error) error {
	pool, ok := db.(*bun.DB)
	if !ok {
		return fn(ctx, db)
	}
	return pool.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error { return fn(ctx, tx) })
}

func (mm *MigrationManager) foreignKeyManager() *ForeignKeyManager {
	return NewConfigurableForeignKeyManager(mm.logger, mm.config.DataMigrateConfig.ForeignKeyFile).ForeignKeyManager
}

// createBaseTables creates every registered model in priority order. Dialects
// without ALTER TABLE ... ADD CONSTRAINT get their foreign keys inline.
func (mm *MigrationManager) createBaseTables(ctx context.Context, db bun.IDB) error {
	var fkm *ForeignKeyManager
	if mm.config.DataMigrateConfig.EnableForeignKey && !SupportsAlter(db) {
		fkm = mm.foreignKeyManager()
	}
	for _, model := range RegisteredModelInstances() {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if fkm != nil {
			table, err := resolveTableName(model)
			if err != nil {
				return err
			}
			for _, fk := range fkm.GetConstraintsByTable(table) {
				q = q.ForeignKey(fk.Clause())
			}
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, err)
		}
	}
	return nil
}

func (mm *MigrationManager) dropBaseTables(ctx context.Context, db bun.IDB) error {
	models := RegisteredModelInstances()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", models[i], err)
		}
	}
	return nil
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, db bun.IDB) error {
	fkm := mm.foreignKeyManager()
	if errs := fkm.ValidateConstraints(); len(errs) > 0 {
		return fmt.Errorf("invalid foreign key configuration: %w", errors.Join(errs...))
	}
	return fkm.AddAllForeignKeys(ctx, db)
}

// InitData runs the SQL seed files outside of the migration bookkeeping.
func (mm *MigrationManager) InitData(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return mm.seedInitialData(ctx, mm.db)
}

func (mm *MigrationManager) seedInitialData(ctx context.Context, db bun.IDB) error {
	env := mm.config.DataInitConfig.Environment
	if env == "" {
		env = "prod"
	}
	sqlManager := NewSQLInitManager(db, env, mm.logger)
	if mm.config.DataInitConfig.Filepath != "" {
		sqlManager.SetSQLRootPath(mm.config.DataInitConfig.Filepath)
	}
	if err := sqlManager.ExecuteInitialization(ctx); err != nil {
		return fmt.Errorf("SQL file initialization failed: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// RollbackMigration runs the Down step of version and deletes its record.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	idx := slices.IndexFunc(mm.steps(), func(m MigrationItem) bool { return m.Version == version })
	if idx < 0 {
		return fmt.Errorf("unknown migration version: %s", version)
	}
	step := mm.steps()[idx]
	if step.Down == nil {
		return fmt.Errorf("migration %s has no rollback step", version)
	}
	return inTx(ctx, mm.db, func(ctx context.Context, db bun.IDB) error {
		if err := step.Down(ctx, db); err != nil {
			return err
		}
		_, err := db.NewDelete().Model((*Migration)(nil)).Where("version = ?", version).Exec(ctx)
		return err
	})
}

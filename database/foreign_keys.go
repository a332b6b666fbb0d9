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
	"os"
	"path/filepath"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint describes a foreign key relationship between tables.
// The yaml tags are the format of the foreign key file. OnDelete and OnUpdate
// take CASCADE, RESTRICT, SET NULL or NO ACTION.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete"`
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// Clause returns the "(col) REFERENCES table (col) ..." part shared by
// ALTER TABLE and inline CREATE TABLE definitions.
func (fk *ForeignKeyConstraint) Clause() string {
	clause := fmt.Sprintf("(%s) REFERENCES %s (%s)", fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		clause += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		clause += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return clause
}

// GenerateSQL returns the ALTER TABLE statement to add the constraint.
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY %s", fk.Table, fk.GenerateConstraintName(), fk.Clause())
}

// ForeignKeyManager manages adding and validating foreign key constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager creates a manager with the built-in constraints.
func NewForeignKeyManager(logger Logger) *ForeignKeyManager {
	return &ForeignKeyManager{
		constraints: defaultForeignKeyConstraints(),
		logger:      logger,
	}
}

// member.team_id is the owning side of the member/team association.
func defaultForeignKeyConstraints() []ForeignKeyConstraint {
	return []ForeignKeyConstraint{
		{
			Table:           "member",
			Column:          "team_id",
			ReferenceTable:  "team",
			ReferenceColumn: "id",
			OnDelete:        "SET NULL",
		},
	}
}

// SupportsAlter reports whether constraints can be added after table creation.
// sqlite only accepts foreign keys inside CREATE TABLE.
func SupportsAlter(db bun.IDB) bool {
	return db.Dialect().Name() != dialect.SQLite
}

// AddAllForeignKeys adds every constraint through ALTER TABLE. Failures are
// logged and skipped so an already existing constraint does not abort startup.
func (fkm *ForeignKeyManager) AddAllForeignKeys(ctx context.Context, db bun.IDB) error {
	if !SupportsAlter(db) {
		if fkm.logger != nil {
			fkm.logger.Debug("Dialect applies foreign keys at table creation, skipping ALTER TABLE", "dialect", db.Dialect().Name().String())
		}
		return nil
	}
	for _, constraint := range fkm.constraints {
		if _, err := db.ExecContext(ctx, constraint.GenerateSQL()); err != nil {
			if fkm.logger != nil {
				fkm.logger.Debug("Failed to add foreign key constraint", "constraint", constraint.GenerateConstraintName(), "error", err.Error())
			}
			continue
		}
		if fkm.logger != nil {
			fkm.logger.Debug("Successfully added foreign key constraint", "constraint", constraint.GenerateConstraintName())
		}
	}
	return nil
}

// RemoveForeignKey drops a named foreign key from a table.
func (fkm *ForeignKeyManager) RemoveForeignKey(ctx context.Context, db bun.IDB, tableName, constraintName string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tableName, constraintName)
	if db.Dialect().Name() == dialect.MySQL {
		stmt = fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", tableName, constraintName)
	}
	_, err := db.ExecContext(ctx, stmt)
	return err
}

// GetConstraintsByTable returns the constraints defined for a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

var validReferentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// ValidateConstraints checks the configured constraints for common issues.
func (fkm *ForeignKeyManager) ValidateConstraints() []error {
	var errs []error
	for _, c := range fkm.constraints {
		if c.Table == "" {
			errs = append(errs, fmt.Errorf("table name cannot be empty"))
		}
		if c.Column == "" {
			errs = append(errs, fmt.Errorf("column name cannot be empty: %s", c.Table))
		}
		if c.ReferenceTable == "" {
			errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", c.Table, c.Column))
		}
		if c.ReferenceColumn == "" {
			errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", c.Table, c.Column, c.ReferenceTable))
		}
		for _, action := range []struct{ kind, value string }{{"delete", c.OnDelete}, {"update", c.OnUpdate}} {
			if action.value != "" && !isReferentialAction(action.value) {
				errs = append(errs, fmt.Errorf("invalid %s policy: %s, constraint: %s", action.kind, action.value, c.GenerateConstraintName()))
			}
		}
	}
	return errs
}

func isReferentialAction(s string) bool {
	for _, action := range validReferentialActions {
		if strings.EqualFold(s, action) {
			return true
		}
	}
	return false
}

// ForeignKeyConfig is the document stored in the foreign key file.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

// ConfigurableForeignKeyManager reads its constraints from a YAML file and
// falls back to the built-in member -> team constraint.
type ConfigurableForeignKeyManager struct {
	*ForeignKeyManager
	configPath string
}

func NewConfigurableForeignKeyManager(logger Logger, configPath string) *ConfigurableForeignKeyManager {
	constraints, err := readForeignKeyFile(configPath)
	if err != nil {
		if logger != nil {
			logger.Debug("Using built-in foreign keys", "config_path", configPath, "reason", err.Error())
		}
		constraints = defaultForeignKeyConstraints()
	}
	return &ConfigurableForeignKeyManager{
		ForeignKeyManager: &ForeignKeyManager{constraints: constraints, logger: logger},
		configPath:        configPath,
	}
}

func readForeignKeyFile(path string) ([]ForeignKeyConstraint, error) {
	if path == "" {
		return nil, fmt.Errorf("no foreign key file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var doc ForeignKeyConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	if doc.ForeignKeys == nil {
		doc.ForeignKeys = []ForeignKeyConstraint{}
	}
	return doc.ForeignKeys, nil
}

// ReloadConfig replaces the constraints with the current file content. The
// constraints are kept when the file cannot be read.
func (cfm *ConfigurableForeignKeyManager) ReloadConfig() error {
	constraints, err := readForeignKeyFile(cfm.configPath)
	if err != nil {
		return err
	}
	cfm.constraints = constraints
	return nil
}

// ExportToConfig writes the current constraints to outputPath.
func (cfm *ConfigurableForeignKeyManager) ExportToConfig(outputPath string) error {
	data, err := yaml.Marshal(&ForeignKeyConfig{ForeignKeys: cfm.constraints})
	if err != nil {
		return fmt.Errorf("failed to serialize foreign keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func (cfm *ConfigurableForeignKeyManager) GetConfigPath() string {
	return cfm.configPath
}

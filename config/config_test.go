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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/database"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
database:
  connection:
    type: sqlite
    dbname: ":memory:"
    slow_query_time: 250ms
    query_log_style: color
    enable_metrics: true
  migrate:
    enable_foreign_key: false
  init:
    environment: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	conn := cfg.Database.ConnectionConfig
	assert.Equal(t, "sqlite", conn.Type)
	assert.True(t, conn.IsInMemory())
	assert.Equal(t, 250*time.Millisecond, conn.SlowQueryTime)
	assert.Equal(t, database.QueryLogStyleColor, conn.QueryLogStyle)
	assert.True(t, conn.EnableMetrics)
	assert.False(t, cfg.Database.DataMigrateConfig.EnableForeignKey)
	assert.Equal(t, "test", cfg.Database.DataInitConfig.Environment)
	// untouched keys keep their defaults
	assert.Equal(t, 100, conn.MaxOpenConns)
	assert.Equal(t, "configs/sql", cfg.Database.DataInitConfig.Filepath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  connection:
    type: sqlite
    dbname: fromfile
`)
	t.Setenv("DATAJPA_DATABASE_CONNECTION_DBNAME", "fromenv")
	t.Setenv("DATAJPA_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Database.ConnectionConfig.DBName)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_DefaultPathMissingUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.ConnectionConfig.Type)
	assert.Equal(t, "datajpa", cfg.Database.ConnectionConfig.DBName)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "sqlite ok", mutate: func(c *Config) {}},
		{name: "unknown type", mutate: func(c *Config) { c.Database.ConnectionConfig.Type = "oracle" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) {
			c.Database.ConnectionConfig.Type = "postgres"
		}, wantErr: true},
		{name: "postgres complete", mutate: func(c *Config) {
			c.Database.ConnectionConfig.Type = "postgres"
			c.Database.ConnectionConfig.Host = "localhost"
			c.Database.ConnectionConfig.Port = 5432
			c.Database.ConnectionConfig.Username = "postgres"
		}},
		{name: "idle above open", mutate: func(c *Config) {
			c.Database.ConnectionConfig.MaxIdleConns = 10
			c.Database.ConnectionConfig.MaxOpenConns = 2
		}, wantErr: true},
		{name: "bad log style", mutate: func(c *Config) {
			c.Database.ConnectionConfig.QueryLogStyle = "rainbow"
		}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Database: database.Config{ConnectionConfig: *database.DefaultConnectionConfig()}}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfigIsCopy(t *testing.T) {
	cfg := Config{Database: database.Config{ConnectionConfig: *database.DefaultConnectionConfig()}}
	dbCfg := cfg.DatabaseConfig()
	dbCfg.ConnectionConfig.DBName = "changed"
	assert.Equal(t, "datajpa", cfg.Database.ConnectionConfig.DBName)
}

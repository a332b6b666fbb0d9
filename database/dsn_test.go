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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

func serverConfig(dbType string) *ConnectionConfig {
	return &ConnectionConfig{
		Type:           dbType,
		Host:           "db",
		Port:           5432,
		Username:       "user",
		Password:       "p@ss",
		DBName:         "app",
		ConnectTimeout: 30 * time.Second,
	}
}

func TestPostgresDSN(t *testing.T) {
	assert.Equal(t, "postgres://user:p%40ss@db:5432/app?connect_timeout=30&sslmode=disable", postgresDSN(serverConfig("postgres")))

	cfg := serverConfig("postgres")
	cfg.SSLMode = "require"
	assert.Contains(t, postgresDSN(cfg), "sslmode=require")
}

func TestMySQLDSN(t *testing.T) {
	cfg := serverConfig("mysql")
	cfg.Port = 3306

	dsn := mysqlDSN(cfg)
	assert.Contains(t, dsn, "user:p@ss@tcp(db:3306)/app?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "timeout=30s")
	assert.Contains(t, dsn, "clientFoundRows=true")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "app.db", sqliteDSN(&ConnectionConfig{Type: "sqlite", DBName: "app"}))
	assert.Equal(t, ":memory:", sqliteDSN(&ConnectionConfig{Type: "sqlite3", DBName: ":memory:"}))
}

func TestDriverFor(t *testing.T) {
	for dbType, want := range map[string]dialect.Name{
		"mysql":      dialect.MySQL,
		"postgres":   dialect.PG,
		"postgresql": dialect.PG,
		"sqlite":     dialect.SQLite,
		"sqlite3":    dialect.SQLite,
	} {
		drv, err := driverFor(dbType)
		require.NoError(t, err, dbType)
		assert.Equal(t, want, drv.dialect().Name(), dbType)
	}

	_, err := driverFor("oracle")
	assert.EqualError(t, err, "unsupported database type: oracle")
}

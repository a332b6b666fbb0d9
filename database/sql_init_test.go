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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSQL(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements(`
-- comment
INSERT INTO team (name)
  VALUES ('a');

INSERT INTO team (name) VALUES ('b');
SELECT 1`)
	assert.Equal(t, []string{
		"INSERT INTO team (name) VALUES ('a');",
		"INSERT INTO team (name) VALUES ('b');",
		"SELECT 1",
	}, stmts)
}

func TestParseFileOrder(t *testing.T) {
	assert.Equal(t, 1, parseFileOrder("001_teams.sql"))
	assert.Equal(t, 42, parseFileOrder("42_members.sql"))
	assert.Equal(t, 999, parseFileOrder("members.sql"))
}

func TestGetSQLFiles_Order(t *testing.T) {
	root := t.TempDir()
	writeSQL(t, root, "common/002_b.sql", "SELECT 1;")
	writeSQL(t, root, "common/001_a.sql", "SELECT 1;")
	writeSQL(t, root, "common/readme.txt", "ignored")
	writeSQL(t, root, "environments/dev/001_dev.sql", "SELECT 1;")
	writeSQL(t, root, "environments/prod/001_prod.sql", "SELECT 1;")

	m := NewSQLInitManager(nil, "dev", &recordingLogger{})
	m.SetSQLRootPath(root)
	files, err := m.GetSQLFiles()
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"001_a.sql", "002_b.sql", "001_dev.sql"}, names)
}

func TestGetSQLFiles_MissingRoot(t *testing.T) {
	m := NewSQLInitManager(nil, "dev", &recordingLogger{})
	m.SetSQLRootPath(filepath.Join(t.TempDir(), "nothing"))
	files, err := m.GetSQLFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExecuteInitialization(t *testing.T) {
	db := openSQLite(t)
	ctx := t.Context()
	_, err := db.ExecContext(ctx, "CREATE TABLE seed (name TEXT NOT NULL, env TEXT)")
	require.NoError(t, err)

	root := t.TempDir()
	writeSQL(t, root, "common/001_seed.sql", "INSERT INTO seed (name) VALUES ('common');")
	writeSQL(t, root, "environments/test/001_seed.sql", "INSERT INTO seed (name, env) VALUES ('{{.SEED_NAME}}', '{{.ENVIRONMENT}}');")
	t.Setenv("SEED_NAME", "templated")

	m := NewSQLInitManager(db, "test", &recordingLogger{})
	m.SetSQLRootPath(root)
	require.NoError(t, m.ExecuteInitialization(ctx))

	var names []string
	require.NoError(t, db.NewSelect().Table("seed").Column("name").Order("name").Scan(ctx, &names))
	assert.Equal(t, []string{"common", "templated"}, names)

	var env string
	require.NoError(t, db.NewSelect().Table("seed").Column("env").Where("name = ?", "templated").Scan(ctx, &env))
	assert.Equal(t, "test", env)
}

func TestExecuteInitialization_FailureRollsBackFile(t *testing.T) {
	db := openSQLite(t)
	ctx := t.Context()
	_, err := db.ExecContext(ctx, "CREATE TABLE seed (name TEXT NOT NULL)")
	require.NoError(t, err)

	root := t.TempDir()
	writeSQL(t, root, "common/001_bad.sql", "INSERT INTO seed (name) VALUES ('kept?');\nINSERT INTO seed (name) VALUES (NULL);")

	m := NewSQLInitManager(db, "prod", &recordingLogger{})
	m.SetSQLRootPath(root)
	require.Error(t, m.ExecuteInitialization(ctx))

	count, err := db.NewSelect().Table("seed").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

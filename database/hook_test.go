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
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryHook_WritesQueries(t *testing.T) {
	db := openSQLite(t)
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook("DATAJPA_TEST_QUERY_LOG", true, &buf))

	_, err := db.ExecContext(t.Context(), "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "SELECT 1")
	assert.Contains(t, buf.String(), "[BUN]")
}

func TestQueryHook_EnvOverride(t *testing.T) {
	db := openSQLite(t)
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook("DATAJPA_TEST_QUERY_LOG", true, &buf))

	t.Setenv("DATAJPA_TEST_QUERY_LOG", "0")
	_, err := db.ExecContext(t.Context(), "SELECT 1")
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	// failures only
	t.Setenv("DATAJPA_TEST_QUERY_LOG", "1")
	_, err = db.ExecContext(t.Context(), "SELECT 2")
	require.NoError(t, err)
	_, err = db.ExecContext(t.Context(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "SELECT 2")
	assert.Contains(t, buf.String(), "missing_table")
}

func TestQueryHook_Silent(t *testing.T) {
	db := openSQLite(t)
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook("DATAJPA_TEST_QUERY_LOG", true, &buf))

	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)
	_, err := db.ExecContext(t.Context(), "SELECT 1")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestSlowQueryHook(t *testing.T) {
	db := openSQLite(t)
	logger := &recordingLogger{}
	db.AddQueryHook(NewSlowQueryHook(0, logger))

	_, err := db.ExecContext(t.Context(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Database slow query detected"}, logger.messages(LogLevelWarn))
}

func TestQueryMetricsHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook, err := NewQueryMetricsHook(reg)
	require.NoError(t, err)

	db := openSQLite(t)
	db.AddQueryHook(hook)
	ctx := t.Context()
	_, err = db.ExecContext(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)")
	require.NoError(t, err)
	_, err = db.NewSelect().Table("t").Count(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(hook.Queries("insert")))
	assert.Equal(t, 2.0, testutil.ToFloat64(hook.Queries("SELECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.errors.WithLabelValues("SELECT")))
}

func TestNewQueryMetricsHook_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewQueryMetricsHook(reg)
	require.NoError(t, err)
	second, err := NewQueryMetricsHook(reg)
	require.NoError(t, err)

	first.Queries("SELECT").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Queries("SELECT")))
}

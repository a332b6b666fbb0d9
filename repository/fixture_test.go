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

package repository

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/database/databasetest"
	"github.com/tomoncle/datajpa/entity"
	"github.com/uptrace/bun"
)

// fixture is an in-memory database with query counters. The database has a
// single connection, so a session must be closed before db is used directly.
type fixture struct {
	t       *testing.T
	db      *bun.DB
	metrics *database.QueryMetricsHook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, hook := databasetest.OpenWithMetrics(t)
	return &fixture{t: t, db: db, metrics: hook}
}

func (f *fixture) begin() *Session {
	f.t.Helper()
	s, err := Begin(f.t.Context(), f.db)
	require.NoError(f.t, err)
	f.t.Cleanup(s.rollbackQuietly)
	return s
}

func (f *fixture) selects() int {
	return int(testutil.ToFloat64(f.metrics.Queries("SELECT")))
}

func (f *fixture) updates() int {
	return int(testutil.ToFloat64(f.metrics.Queries("UPDATE")))
}

func (f *fixture) team(name string) *entity.Team {
	f.t.Helper()
	team := entity.NewTeam(name)
	_, err := f.db.NewInsert().Model(team).Exec(f.t.Context())
	require.NoError(f.t, err)
	return team
}

func (f *fixture) member(username string, age int, team *entity.Team) *entity.Member {
	f.t.Helper()
	m := entity.NewMemberWithTeam(username, age, team)
	_, err := f.db.NewInsert().Model(m).Exec(f.t.Context())
	require.NoError(f.t, err)
	return m
}

// reload reads a member straight from the store, bypassing any session.
func (f *fixture) reload(id int64) *entity.Member {
	f.t.Helper()
	m := new(entity.Member)
	err := f.db.NewSelect().Model(m).Where("m.id = ?", id).Scan(context.Background())
	require.NoError(f.t, err)
	return m
}

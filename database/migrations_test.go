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

package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/database/databasetest"
	"github.com/tomoncle/datajpa/entity"
)

func TestRunMigrations_CreatesTablesOnce(t *testing.T) {
	db := databasetest.Open(t)
	ctx := t.Context()
	mm := database.NewMigrationManager(db, database.GetLogger(), databasetest.Config())

	require.NoError(t, mm.RunMigrations(ctx), "rerunning applied migrations is a no-op")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	var versions []string
	for _, m := range applied {
		versions = append(versions, m.Version)
	}
	assert.Equal(t, []string{"001", "002"}, versions)

	for _, table := range []string{"team", "member"} {
		_, err := db.NewSelect().Table(table).Count(ctx)
		assert.NoError(t, err, table)
	}
}

func TestForeignKey_DeleteTeamNullsMember(t *testing.T) {
	db := databasetest.Open(t)
	ctx := t.Context()

	team := entity.NewTeam("teamA")
	_, err := db.NewInsert().Model(team).Exec(ctx)
	require.NoError(t, err)
	member := entity.NewMemberWithTeam("member1", 10, team)
	_, err = db.NewInsert().Model(member).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewDelete().Model(team).WherePK().Exec(ctx)
	require.NoError(t, err)

	reloaded := new(entity.Member)
	require.NoError(t, db.NewSelect().Model(reloaded).Where("m.id = ?", member.ID).Scan(ctx))
	assert.Zero(t, reloaded.TeamID)
}

func TestForeignKey_UnknownTeamRejected(t *testing.T) {
	db := databasetest.Open(t)
	member := entity.NewMemberWithAge("member1", 10)
	member.TeamID = 404
	_, err := db.NewInsert().Model(member).Exec(t.Context())
	require.Error(t, err)
	is, kind := database.IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, database.ForeignKeyViolationErr, kind)
}

func TestForeignKey_Disabled(t *testing.T) {
	db := databasetest.Open(t, databasetest.WithForeignKeys(false))
	member := entity.NewMemberWithAge("member1", 10)
	member.TeamID = 404
	_, err := db.NewInsert().Model(member).Exec(t.Context())
	assert.NoError(t, err)
}

func TestRollbackMigration(t *testing.T) {
	db := databasetest.Open(t)
	ctx := t.Context()
	mm := database.NewMigrationManager(db, database.GetLogger(), databasetest.Config())

	require.NoError(t, mm.RollbackMigration(ctx, "001"))
	_, err := db.NewSelect().Table("member").Count(ctx)
	assert.Error(t, err)

	require.NoError(t, mm.RunMigrations(ctx))
	_, err = db.NewSelect().Table("member").Count(ctx)
	assert.NoError(t, err)

	assert.Error(t, mm.RollbackMigration(ctx, "002"), "002 has no down step")
	assert.Error(t, mm.RollbackMigration(ctx, "999"))
}

func TestSeedOnMigration(t *testing.T) {
	cfg := databasetest.Config()
	cfg.DataInitConfig.AutoInitOnMigration = true
	cfg.DataInitConfig.Filepath = "../configs/sql"
	cfg.DataInitConfig.Environment = "dev"

	db := databasetest.Open(t)
	ctx := t.Context()
	require.NoError(t, database.NewMigrationManager(db, database.GetLogger(), cfg).RunMigrations(ctx))

	teams, err := db.NewSelect().Model((*entity.Team)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, teams)

	var members []*entity.Member
	require.NoError(t, db.NewSelect().Model(&members).Relation("Team").OrderExpr("m.id").Scan(ctx))
	require.Len(t, members, 2)
	assert.Equal(t, "teamA", members[0].Team.Name)
	assert.Equal(t, "teamB", members[1].Team.Name)
}

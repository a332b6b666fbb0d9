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

package datajpa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa"
	"github.com/tomoncle/datajpa/database/databasetest"
	"github.com/tomoncle/datajpa/repository"
	"github.com/tomoncle/datajpa/types"
)

func newService(t *testing.T, opts ...repository.MemberRepositoryOption) *datajpa.MemberService {
	t.Helper()
	return datajpa.NewMemberServiceWithDB(databasetest.Open(t), opts...)
}

func TestMemberService_JoinAndGet(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()

	team, err := svc.CreateTeam(ctx, "teamA")
	require.NoError(t, err)
	joined, err := svc.Join(ctx, "member1", 10, team.ID)
	require.NoError(t, err)
	loner, err := svc.Join(ctx, "member2", 20, 0)
	require.NoError(t, err)

	got, err := svc.Get(ctx, joined.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Team)
	assert.Equal(t, "teamA", got.Team.Name)
	assert.NotSame(t, joined, got, "every call has its own session")

	got, err = svc.Get(ctx, loner.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Team)

	got, err = svc.Get(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemberService_JoinUnknownTeam(t *testing.T) {
	svc := newService(t)

	_, err := svc.Join(t.Context(), "member1", 10, 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	members, err := svc.ListWithTeams(t.Context())
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemberService_FailedCallReturnsNoResult(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()

	team, err := svc.CreateTeam(ctx, "")
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)
	assert.Nil(t, team)

	member, err := svc.Join(ctx, "", 10, 0)
	assert.ErrorIs(t, err, repository.ErrConstraintViolation)
	assert.Nil(t, member)

	page, err := svc.PageByAge(ctx, 10, types.PageRequestOf(0, 3))
	require.NoError(t, err)
	assert.Zero(t, page.TotalElements, "failed calls leave nothing behind")
}

func TestMemberService_PageAndSlice(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()
	for _, name := range []string{"member1", "member2", "member3", "member4", "member5"} {
		_, err := svc.Join(ctx, name, 10, 0)
		require.NoError(t, err)
	}

	pageable := types.PageRequestOf(0, 3, types.SortBy(types.DESC, "username"))
	page, err := svc.PageByAge(ctx, 10, pageable)
	require.NoError(t, err)
	assert.Len(t, page.Content, 3)
	assert.EqualValues(t, 5, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages())
	assert.Equal(t, "member5", page.Content[0].Username)

	slice, err := svc.SliceByAge(ctx, 10, pageable)
	require.NoError(t, err)
	assert.Len(t, slice.Content, 3)
	assert.True(t, slice.HasNext())
}

func TestMemberService_BulkAgePlus(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()
	ids := make([]int64, 0, 3)
	for i, age := range []int{10, 20, 30} {
		m, err := svc.Join(ctx, []string{"a", "b", "c"}[i], age, 0)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	affected, err := svc.BulkAgePlus(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, affected)

	for i, want := range []int{10, 21, 31} {
		got, err := svc.Get(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, got.Age)
	}
}

func TestMemberService_ReadOnlyByUsername(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()
	_, err := svc.Join(ctx, "member1", 10, 0)
	require.NoError(t, err)

	found, err := svc.ReadOnlyByUsername(ctx, "member1")
	require.NoError(t, err)
	assert.Equal(t, 10, found.Age)

	_, err = svc.ReadOnlyByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Join(ctx, "member1", 11, 0)
	require.NoError(t, err)
	_, err = svc.ReadOnlyByUsername(ctx, "member1")
	assert.ErrorIs(t, err, repository.ErrNonUniqueResult)
}

func TestMemberService_Rename(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()
	m, err := svc.Join(ctx, "member1", 10, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Rename(ctx, m.ID, "renamed"))
	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)

	assert.ErrorIs(t, svc.Rename(ctx, 404, "x"), repository.ErrNotFound)
	assert.ErrorIs(t, svc.Rename(ctx, m.ID, ""), repository.ErrConstraintViolation)
}

func TestMemberService_ListWithTeams(t *testing.T) {
	svc := newService(t)
	ctx := t.Context()
	team, err := svc.CreateTeam(ctx, "teamA")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "member1", 10, team.ID)
	require.NoError(t, err)
	_, err = svc.Join(ctx, "member2", 20, team.ID)
	require.NoError(t, err)

	members, err := svc.ListWithTeams(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Same(t, members[0].Team, members[1].Team)
}

func TestMemberService_WithoutDatabase(t *testing.T) {
	svc := datajpa.NewMemberService(repository.WithClearAutomatically(false))

	_, err := svc.ListWithTeams(t.Context())
	assert.ErrorContains(t, err, "database not initialized")
}

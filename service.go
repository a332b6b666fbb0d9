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

// Package datajpa is the entry point of the member/team data-access layer.
// MemberService runs every operation in its own repository.Session.
package datajpa

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/repository"
	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
)

// MemberService is a transactional facade over the member and team
// repositories. Results are detached once the call returns.
type MemberService struct {
	db      *bun.DB
	once    sync.Once
	members *repository.MemberRepository
	teams   *repository.TeamRepository
}

// NewMemberService returns a service bound to the global database, resolved
// on first use.
func NewMemberService(opts ...repository.MemberRepositoryOption) *MemberService {
	return NewMemberServiceWithDB(nil, opts...)
}

// NewMemberServiceWithDB returns a service bound to db.
func NewMemberServiceWithDB(db *bun.DB, opts ...repository.MemberRepositoryOption) *MemberService {
	return &MemberService{
		db:      db,
		members: repository.NewMemberRepository(opts...),
		teams:   repository.NewTeamRepository(),
	}
}

func (s *MemberService) bunDB() (*bun.DB, error) {
	s.once.Do(func() {
		if s.db == nil {
			s.db = database.GetDB()
		}
	})
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return s.db, nil
}

func (s *MemberService) run(ctx context.Context, fn func(ctx context.Context, session *repository.Session) error) error {
	db, err := s.bunDB()
	if err != nil {
		return err
	}
	return repository.RunInSession(ctx, db, fn)
}

// inSession runs fn in a new session and returns its result only when the
// session committed.
func inSession[R any](ctx context.Context, s *MemberService, fn func(ctx context.Context, session *repository.Session) (R, error)) (R, error) {
	var result R
	err := s.run(ctx, func(ctx context.Context, session *repository.Session) error {
		var err error
		result, err = fn(ctx, session)
		return err
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// CreateTeam persists a new team.
func (s *MemberService) CreateTeam(ctx context.Context, name string) (*entity.Team, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*entity.Team, error) {
		return s.teams.Save(ctx, session, entity.NewTeam(name))
	})
}

// Join persists a new member, in the team with teamID unless it is 0.
func (s *MemberService) Join(ctx context.Context, username string, age int, teamID int64) (*entity.Member, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*entity.Member, error) {
		var team *entity.Team
		if teamID != 0 {
			found, err := s.teams.FindByID(ctx, session, teamID)
			if err != nil {
				return nil, err
			}
			if found == nil {
				return nil, fmt.Errorf("team %d: %w", teamID, repository.ErrNotFound)
			}
			team = found
		}
		return s.members.Save(ctx, session, entity.NewMemberWithTeam(username, age, team))
	})
}

// Get returns the member with id and its team, or nil when there is none.
func (s *MemberService) Get(ctx context.Context, id int64) (*entity.Member, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*entity.Member, error) {
		found, err := s.members.FindByID(ctx, session, id)
		if err != nil || found == nil {
			return nil, err
		}
		if _, err := s.members.LoadTeam(ctx, session, found); err != nil {
			return nil, err
		}
		return found, nil
	})
}

// PageByAge returns one page of members with the given age.
func (s *MemberService) PageByAge(ctx context.Context, age int, pageable types.PageRequest) (*types.Page[entity.Member], error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*types.Page[entity.Member], error) {
		return s.members.FindByAge(ctx, session, age, pageable)
	})
}

// SliceByAge returns one slice of members with the given age.
func (s *MemberService) SliceByAge(ctx context.Context, age int, pageable types.PageRequest) (*types.Slice[entity.Member], error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*types.Slice[entity.Member], error) {
		return s.members.FindSliceByAge(ctx, session, age, pageable)
	})
}

// BulkAgePlus increments the age of every member aged at least age.
func (s *MemberService) BulkAgePlus(ctx context.Context, age int) (int, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (int, error) {
		return s.members.BulkAgePlus(ctx, session, age)
	})
}

// ListWithTeams returns every member with its team, in one query.
func (s *MemberService) ListWithTeams(ctx context.Context) ([]*entity.Member, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) ([]*entity.Member, error) {
		return s.members.FindMemberFetchJoin(ctx, session)
	})
}

// ReadOnlyByUsername returns the single member with username. Zero matches
// fail with repository.ErrNotFound and several with repository.ErrNonUniqueResult.
func (s *MemberService) ReadOnlyByUsername(ctx context.Context, username string) (*entity.Member, error) {
	return inSession(ctx, s, func(ctx context.Context, session *repository.Session) (*entity.Member, error) {
		return s.members.FindReadOnlyByUsername(ctx, session, username)
	})
}

// Rename changes the username of the member with id. The change is written
// by the commit of the session, not by an explicit update.
func (s *MemberService) Rename(ctx context.Context, id int64, username string) error {
	return s.run(ctx, func(ctx context.Context, session *repository.Session) error {
		member, err := s.members.FindByID(ctx, session, id)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %d: %w", id, repository.ErrNotFound)
		}
		member.Username = username
		return nil
	})
}

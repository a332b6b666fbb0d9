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
	"fmt"

	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/types"
)

// TeamRepository holds the team queries.
type TeamRepository struct {
	BaseRepository[entity.Team, *entity.Team]
}

func NewTeamRepository() *TeamRepository {
	return &TeamRepository{}
}

// FindByName returns the teams called name, ordered by id.
func (r *TeamRepository) FindByName(ctx context.Context, s *Session, name string) ([]*entity.Team, error) {
	return r.FindWhere(ctx, s, types.NewQueryFilter("t.name = ?", name))
}

// FindWithMembers loads the team with id and rebuilds its Members collection
// from member.team_id. A missing team yields (nil, nil).
func (r *TeamRepository) FindWithMembers(ctx context.Context, s *Session, id int64) (*entity.Team, error) {
	team, err := r.FindByID(ctx, s, id)
	if err != nil || team == nil {
		return nil, err
	}

	var rows []*entity.Member
	err = s.IDB().NewSelect().
		Model(&rows).
		Where("m.team_id = ?", id).
		OrderExpr("m.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find members of team %d: %w", id, err)
	}
	members, err := mergeMembers(s, rows, false)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Team == nil {
			m.Team = team
		}
	}
	team.Members = members
	return team, nil
}

// Delete removes the team. The store sets member.team_id to NULL; managed
// members of the team are unlinked to match.
func (r *TeamRepository) Delete(ctx context.Context, s *Session, team *entity.Team) error {
	if err := r.BaseRepository.Delete(ctx, s, team); err != nil {
		return err
	}
	return unlinkTeam(s, team.ID)
}

// DeleteByID removes the team with id.
func (r *TeamRepository) DeleteByID(ctx context.Context, s *Session, id int64) error {
	if err := r.BaseRepository.DeleteByID(ctx, s, id); err != nil {
		return err
	}
	return unlinkTeam(s, id)
}

func unlinkTeam(s *Session, teamID int64) error {
	for _, entry := range s.entries {
		m, ok := entry.instance.(*entity.Member)
		if !ok || m.TeamID != teamID {
			continue
		}
		m.Team = nil
		m.TeamID = 0
		if err := s.refresh(m); err != nil {
			return err
		}
	}
	return nil
}

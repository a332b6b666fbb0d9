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

package entity

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Member owns the team_id foreign key. Team is only populated when the query
// asked for it (fetch join, entity graph or an explicit load).
type Member struct {
	bun.BaseModel `bun:"table:member,alias:m" msgpack:"-"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Username string `bun:"username,type:varchar(255),notnull,nullzero" json:"username"`
	Age      int    `bun:"age,notnull" json:"age"`
	TeamID   int64  `bun:"team_id,nullzero" json:"team_id,omitempty"`
	Team     *Team  `bun:"rel:belongs-to,join:team_id=id" json:"team,omitempty" msgpack:"-"`
}

var _ bun.BeforeAppendModelHook = (*Member)(nil)

// NewMember creates a member aged 0 without a team.
func NewMember(username string) *Member {
	return &Member{Username: username}
}

func NewMemberWithAge(username string, age int) *Member {
	return &Member{Username: username, Age: age}
}

// NewMemberWithTeam creates a member and, when team is not nil, links both
// sides of the association.
func NewMemberWithTeam(username string, age int, team *Team) *Member {
	m := NewMemberWithAge(username, age)
	if team != nil {
		m.ChangeTeam(team)
	}
	return m
}

func (m *Member) PrimaryKey() int64 { return m.ID }

// ChangeTeam moves the member to team, keeping team.Members consistent on both
// the old and the new team. A nil team clears the association.
func (m *Member) ChangeTeam(team *Team) {
	if m.Team != nil && m.Team != team {
		m.Team.removeMember(m)
	}
	m.Team = team
	if team == nil {
		m.TeamID = 0
		return
	}
	m.TeamID = team.ID
	if !team.HasMember(m) {
		team.Members = append(team.Members, m)
	}
}

// BeforeAppendModel keeps team_id aligned with the loaded association. The team
// must have been saved before the member so its id is known.
func (m *Member) BeforeAppendModel(_ context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		m.SyncAssociations()
	}
	return nil
}

// SyncAssociations copies the id of a persisted Team into TeamID.
func (m *Member) SyncAssociations() {
	if m.Team != nil && m.Team.ID != 0 {
		m.TeamID = m.Team.ID
	}
}

// Validate reports an empty username and a Team that has no id yet.
func (m *Member) Validate() error {
	if m.Username == "" {
		return fmt.Errorf("member username: %w", ErrRequiredField)
	}
	if m.Team != nil && m.Team.ID == 0 {
		return fmt.Errorf("member %q team %q: %w", m.Username, m.Team.Name, ErrTransientAssociation)
	}
	return nil
}

func (m *Member) String() string {
	return fmt.Sprintf("Member(id=%d, username=%s, age=%d)", m.ID, m.Username, m.Age)
}

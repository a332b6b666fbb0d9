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
	"fmt"

	"github.com/uptrace/bun"
)

// Team is the inverse side of the member association. Members is a view
// rebuilt by query; only member.team_id is persisted.
type Team struct {
	bun.BaseModel `bun:"table:team,alias:t" msgpack:"-"`

	ID      int64     `bun:"id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,type:varchar(255),notnull,nullzero" json:"name"`
	Members []*Member `bun:"rel:has-many,join:id=team_id" json:"-" msgpack:"-"`
}

func NewTeam(name string) *Team {
	return &Team{Name: name, Members: make([]*Member, 0)}
}

func (t *Team) PrimaryKey() int64 { return t.ID }

// HasMember reports whether m is in the in-memory collection, by identity
// first and by id for persisted members.
func (t *Team) HasMember(m *Member) bool {
	for _, each := range t.Members {
		if each == m || (m.ID != 0 && each.ID == m.ID) {
			return true
		}
	}
	return false
}

func (t *Team) removeMember(m *Member) {
	kept := t.Members[:0]
	for _, each := range t.Members {
		if each != m {
			kept = append(kept, each)
		}
	}
	t.Members = kept
}

// Validate reports an empty name, which the schema stores as NULL.
func (t *Team) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("team name: %w", ErrRequiredField)
	}
	return nil
}

func (t *Team) String() string {
	return fmt.Sprintf("Team(id=%d, name=%s)", t.ID, t.Name)
}

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
	"strings"

	"github.com/tomoncle/datajpa/entity"
	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
)

// EntityGraph names the associations to load together with the root entity.
type EntityGraph struct {
	AttributePaths []string
}

// memberRelations maps entity graph attribute paths to bun relation names.
var memberRelations = map[string]string{
	"team": "Team",
}

// memberSortColumns maps sortable properties to qualified columns.
var memberSortColumns = map[string]string{
	"id":       "m.id",
	"username": "m.username",
	"age":      "m.age",
}

var teamGraph = EntityGraph{AttributePaths: []string{"team"}}

// MemberRepository holds the member queries. Like BaseRepository it is
// stateless apart from its options.
type MemberRepository struct {
	BaseRepository[entity.Member, *entity.Member]
	teams              *TeamRepository
	clearAutomatically bool
}

// MemberRepositoryOption configures a MemberRepository.
type MemberRepositoryOption func(*MemberRepository)

// WithClearAutomatically controls whether BulkAgePlus clears the session's
// identity map after the update. It defaults to true.
func WithClearAutomatically(clear bool) MemberRepositoryOption {
	return func(r *MemberRepository) {
		r.clearAutomatically = clear
	}
}

func NewMemberRepository(opts ...MemberRepositoryOption) *MemberRepository {
	r := &MemberRepository{teams: NewTeamRepository(), clearAutomatically: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindByAge returns one page of members with the given age. Content comes
// from a joined select; the total comes from a separate count without the
// join, skipped when the page content already determines it.
func (r *MemberRepository) FindByAge(ctx context.Context, s *Session, age int, pageable types.PageRequest) (*types.Page[entity.Member], error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	orders, err := memberOrderBy(pageable.GetSort())
	if err != nil {
		return nil, err
	}

	var rows []*entity.Member
	query := s.IDB().NewSelect().
		Model(&rows).
		Join("LEFT JOIN team AS t ON t.id = m.team_id").
		Where("m.age = ?", age)
	for _, order := range orders {
		query = query.OrderExpr(order)
	}
	err = query.
		Offset(pageable.GetOffset()).
		Limit(pageable.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find members by age %d: %w", age, err)
	}
	content, err := mergeMembers(s, rows, false)
	if err != nil {
		return nil, err
	}

	return types.NewPageWithCounter(content, pageable, func() (int64, error) {
		total, err := s.IDB().NewSelect().
			Model((*entity.Member)(nil)).
			Where("m.age = ?", age).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("count members by age %d: %w", age, err)
		}
		return int64(total), nil
	})
}

// FindSliceByAge fetches one row more than the page size to learn whether a
// next slice exists, and never counts.
func (r *MemberRepository) FindSliceByAge(ctx context.Context, s *Session, age int, pageable types.PageRequest) (*types.Slice[entity.Member], error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	orders, err := memberOrderBy(pageable.GetSort())
	if err != nil {
		return nil, err
	}

	size := pageable.GetPageSize()
	var rows []*entity.Member
	query := s.IDB().NewSelect().
		Model(&rows).
		Where("m.age = ?", age)
	for _, order := range orders {
		query = query.OrderExpr(order)
	}
	err = query.
		Offset(pageable.GetOffset()).
		Limit(size + 1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find member slice by age %d: %w", age, err)
	}

	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	content, err := mergeMembers(s, rows, false)
	if err != nil {
		return nil, err
	}
	return types.NewSlice(content, pageable, hasNext), nil
}

// BulkAgePlus adds one to the age of every member aged at least age, in a
// single statement that bypasses the identity map. Pending changes are flushed
// first. Unless the repository was built with WithClearAutomatically(false)
// the identity map is cleared afterwards so later reads see the new ages.
func (r *MemberRepository) BulkAgePlus(ctx context.Context, s *Session, age int) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	res, err := s.IDB().NewUpdate().
		Model((*entity.Member)(nil)).
		Set("age = age + 1").
		Where("age >= ?", age).
		Exec(ctx)
	if err != nil {
		return 0, translateError("bulk age plus", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk age plus: %w", err)
	}
	if r.clearAutomatically {
		s.Clear()
	}
	return int(affected), nil
}

// FindMemberFetchJoin loads every member and its team in one joined select.
func (r *MemberRepository) FindMemberFetchJoin(ctx context.Context, s *Session) ([]*entity.Member, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []*entity.Member
	err := s.IDB().NewSelect().
		Model(&rows).
		Relation("Team").
		OrderExpr("m.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find members with fetch join: %w", err)
	}
	return mergeMembers(s, rows, false)
}

// FindAll returns every member with its team loaded.
func (r *MemberRepository) FindAll(ctx context.Context, s *Session) ([]*entity.Member, error) {
	return r.FindAllWithGraph(ctx, s, teamGraph)
}

// FindMemberEntityGraph returns every member with the team graph applied.
func (r *MemberRepository) FindMemberEntityGraph(ctx context.Context, s *Session) ([]*entity.Member, error) {
	return r.FindAllWithGraph(ctx, s, teamGraph)
}

// FindAllWithGraph returns every member with the associations named by graph
// loaded in the same query.
func (r *MemberRepository) FindAllWithGraph(ctx context.Context, s *Session, graph EntityGraph) ([]*entity.Member, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []*entity.Member
	query := s.IDB().NewSelect().Model(&rows)
	query, err := applyGraph(query, graph)
	if err != nil {
		return nil, err
	}
	if err := query.OrderExpr("m.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("find members with graph %v: %w", graph.AttributePaths, err)
	}
	return mergeMembers(s, rows, false)
}

// FindReadOnlyByUsername returns the single member with username, managed as
// read-only so that changes to it are never flushed. An instance the session
// already manages is returned as is.
func (r *MemberRepository) FindReadOnlyByUsername(ctx context.Context, s *Session, username string) (*entity.Member, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []*entity.Member
	err := s.IDB().NewSelect().
		Model(&rows).
		Where("m.username = ?", username).
		OrderExpr("m.id ASC").
		Limit(2).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find read-only member %q: %w", username, err)
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("member %q: %w", username, ErrNotFound)
	case 1:
	default:
		return nil, fmt.Errorf("member %q: %w", username, ErrNonUniqueResult)
	}
	merged, err := mergeMembers(s, rows, true)
	if err != nil {
		return nil, err
	}
	return merged[0], nil
}

// FindByUsername returns every member with username, ordered by id.
func (r *MemberRepository) FindByUsername(ctx context.Context, s *Session, username string) ([]*entity.Member, error) {
	return r.FindWhere(ctx, s, types.NewQueryFilter("m.username = ?", username))
}

// FindMemberCustom runs a hand-written select over every member.
func (r *MemberRepository) FindMemberCustom(ctx context.Context, s *Session) ([]*entity.Member, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []*entity.Member
	err := s.IDB().NewRaw("SELECT m.id, m.username, m.age, m.team_id FROM member AS m ORDER BY m.id").Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("find members with custom query: %w", err)
	}
	return mergeMembers(s, rows, false)
}

// LoadTeam resolves the team of m, from the identity map when possible.
// It returns nil for a member without a team.
func (r *MemberRepository) LoadTeam(ctx context.Context, s *Session, m *entity.Member) (*entity.Team, error) {
	if m.Team != nil {
		return m.Team, nil
	}
	if m.TeamID == 0 {
		return nil, nil
	}
	team, err := r.teams.FindByID(ctx, s, m.TeamID)
	if err != nil {
		return nil, err
	}
	m.Team = team
	return team, nil
}

func applyGraph(query *bun.SelectQuery, graph EntityGraph) (*bun.SelectQuery, error) {
	for _, path := range graph.AttributePaths {
		relation, ok := memberRelations[strings.ToLower(strings.TrimSpace(path))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttributePath, path)
		}
		query = query.Relation(relation)
	}
	return query, nil
}

// memberOrderBy translates sort into ORDER BY expressions. An unsorted
// request orders by id so that pages do not overlap.
func memberOrderBy(sort types.Sort) ([]string, error) {
	if !sort.IsSorted() {
		return []string{"m.id ASC"}, nil
	}
	orders := make([]string, 0, len(sort.Orders()))
	for _, order := range sort.Orders() {
		column, ok := memberSortColumns[order.Property]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSortProperty, order.Property)
		}
		if !order.Direction.IsValid() {
			return nil, fmt.Errorf("%w: direction of %q", ErrInvalidSortProperty, order.Property)
		}
		orders = append(orders, column+" "+order.Direction.Name())
	}
	return orders, nil
}

// mergeMembers attaches rows and their joined teams to the identity map. A
// joined team row without id means the member has no team.
func mergeMembers(s *Session, rows []*entity.Member, readOnly bool) ([]*entity.Member, error) {
	out := make([]*entity.Member, 0, len(rows))
	for _, row := range rows {
		var team *entity.Team
		if row.Team != nil && row.Team.ID != 0 {
			managedTeam, err := attach[entity.Team](s, row.Team, readOnly)
			if err != nil {
				return nil, err
			}
			team = managedTeam
		}
		row.Team = nil

		managed, err := attach[entity.Member](s, row, readOnly)
		if err != nil {
			return nil, err
		}
		if team != nil && managed.Team == nil {
			managed.Team = team
		}
		out = append(out, managed)
	}
	return out, nil
}

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
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomoncle/datajpa/types"
	"github.com/uptrace/bun"
)

// BaseRepository provides identity-based CRUD for one entity type. It holds
// no connection: every call runs on the transaction of the given Session and
// merges results into its identity map.
type BaseRepository[T any, PT entityPtr[T]] struct{}

// NewRepository returns a stateless repository for T.
func NewRepository[T any, PT entityPtr[T]]() *BaseRepository[T, PT] {
	return &BaseRepository[T, PT]{}
}

// NewSelect starts a select on the session transaction with T as model.
func (r *BaseRepository[T, PT]) NewSelect(s *Session) *bun.SelectQuery {
	return s.IDB().NewSelect().Model(PT(nil))
}

// FindByID returns the managed instance for id, querying only when the
// identity map has none. A missing row yields (nil, nil).
func (r *BaseRepository[T, PT]) FindByID(ctx context.Context, s *Session, id int64) (PT, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if managed, ok := lookup[T, PT](s, id); ok {
		return managed, nil
	}
	row := PT(new(T))
	err := s.IDB().NewSelect().Model(row).Where("?TableAlias.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %T by id %d: %w", row, id, err)
	}
	return attach[T, PT](s, row, false)
}

// FindAll returns every row ordered by id.
func (r *BaseRepository[T, PT]) FindAll(ctx context.Context, s *Session) ([]PT, error) {
	return r.FindWhere(ctx, s, nil)
}

// FindWhere returns the rows matching filter, ordered by id. A nil filter
// matches everything.
func (r *BaseRepository[T, PT]) FindWhere(ctx context.Context, s *Session, filter *types.QueryFilter) ([]PT, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rows []PT
	query := s.IDB().NewSelect().Model(&rows)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.OrderExpr("?TableAlias.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("find %T: %w", PT(nil), err)
	}
	return attachAll[T, PT](s, rows, false)
}

// Count returns the number of rows of T.
func (r *BaseRepository[T, PT]) Count(ctx context.Context, s *Session) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return r.NewSelect(s).Count(ctx)
}

// ExistsByID reports whether a row with id exists.
func (r *BaseRepository[T, PT]) ExistsByID(ctx context.Context, s *Session, id int64) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	if _, ok := lookup[T, PT](s, id); ok {
		return true, nil
	}
	return r.NewSelect(s).Where("?TableAlias.id = ?", id).Exists(ctx)
}

// Save inserts a new entity or merges a detached one, and returns the
// managed instance. Saving an instance that is already managed is a no-op;
// its changes are written by the next flush. Merging an id with no row
// fails with ErrNotFound.
func (r *BaseRepository[T, PT]) Save(ctx context.Context, s *Session, e PT) (PT, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if e.PrimaryKey() == 0 {
		op := fmt.Sprintf("insert %T", e)
		if err := validate(op, e); err != nil {
			return nil, err
		}
		if _, err := s.IDB().NewInsert().Model(e).Exec(ctx); err != nil {
			return nil, translateError(op, err)
		}
		return attach[T, PT](s, e, false)
	}

	managed, ok := lookup[T, PT](s, e.PrimaryKey())
	if ok && managed == e {
		return e, nil
	}
	op := fmt.Sprintf("update %T(%d)", e, e.PrimaryKey())
	if err := validate(op, e); err != nil {
		return nil, err
	}
	res, err := s.IDB().NewUpdate().Model(e).WherePK().Exec(ctx)
	if err != nil {
		return nil, translateError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if !ok {
		return attach[T, PT](s, e, false)
	}
	*managed = *e
	if err := s.refresh(managed); err != nil {
		return nil, err
	}
	return managed, nil
}

// Delete removes e by primary key and stops tracking it.
func (r *BaseRepository[T, PT]) Delete(ctx context.Context, s *Session, e PT) error {
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.IDB().NewDelete().Model(e).WherePK().Exec(ctx); err != nil {
		return translateError(fmt.Sprintf("delete %T(%d)", e, e.PrimaryKey()), err)
	}
	s.Detach(e)
	return nil
}

// DeleteByID removes the row with id, managed or not.
func (r *BaseRepository[T, PT]) DeleteByID(ctx context.Context, s *Session, id int64) error {
	if err := s.check(); err != nil {
		return err
	}
	if managed, ok := lookup[T, PT](s, id); ok {
		return r.Delete(ctx, s, managed)
	}
	if _, err := s.IDB().NewDelete().Model(PT(nil)).Where("?TableAlias.id = ?", id).Exec(ctx); err != nil {
		return translateError(fmt.Sprintf("delete %T(%d)", PT(nil), id), err)
	}
	return nil
}

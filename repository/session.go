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
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/entity"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
)

type identity struct {
	typ reflect.Type
	id  int64
}

type managedEntry struct {
	instance entity.Entity
	snapshot []byte
	readOnly bool
}

// Session is a unit of work: one transaction plus an identity map of the
// entities it has loaded or saved. A Session belongs to a single goroutine.
type Session struct {
	id      uuid.UUID
	tx      bun.Tx
	entries map[identity]*managedEntry
	closed  bool
	logger  database.Logger
}

// Begin opens a transaction on db and returns an empty session around it.
func Begin(ctx context.Context, db *bun.DB) (*Session, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	s := &Session{
		id:      uuid.New(),
		tx:      tx,
		entries: make(map[identity]*managedEntry),
		logger:  database.GetLogger(),
	}
	s.logger.Debug("Session started", "session", s.id)
	return s, nil
}

// RunInSession runs fn in a new session and commits it when fn succeeds. An
// error or panic from fn rolls the transaction back.
func RunInSession(ctx context.Context, db *bun.DB, fn func(ctx context.Context, s *Session) error) error {
	s, err := Begin(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			s.rollbackQuietly()
			panic(p)
		}
	}()
	if err := fn(ctx, s); err != nil {
		s.rollbackQuietly()
		return err
	}
	return s.Commit(ctx)
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// IDB returns the transaction every repository query of this session runs on.
func (s *Session) IDB() bun.IDB { return s.tx }

func (s *Session) check() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Contains reports whether e is the managed instance for its identity.
func (s *Session) Contains(e entity.Entity) bool {
	entry, ok := s.entries[identityOf(e)]
	return ok && entry.instance == e
}

// IsReadOnly reports whether e is managed as read-only.
func (s *Session) IsReadOnly(e entity.Entity) bool {
	entry, ok := s.entries[identityOf(e)]
	return ok && entry.instance == e && entry.readOnly
}

// Managed returns the number of entities in the identity map.
func (s *Session) Managed() int { return len(s.entries) }

// Detach stops tracking e. Pending changes on it are not flushed.
func (s *Session) Detach(e entity.Entity) {
	key := identityOf(e)
	if entry, ok := s.entries[key]; ok && entry.instance == e {
		delete(s.entries, key)
	}
}

// Clear detaches every entity. Instances already handed out keep their state
// but later queries return fresh instances.
func (s *Session) Clear() {
	s.entries = make(map[identity]*managedEntry)
}

// Flush writes every changed, writable managed entity with one UPDATE each.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	keys := make([]identity, 0, len(s.entries))
	for key, entry := range s.entries {
		if !entry.readOnly {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].typ != keys[j].typ {
			return keys[i].typ.String() < keys[j].typ.String()
		}
		return keys[i].id < keys[j].id
	})

	flushed := 0
	for _, key := range keys {
		entry := s.entries[key]
		if syncer, ok := entry.instance.(entity.AssociationSyncer); ok {
			syncer.SyncAssociations()
		}
		current, err := msgpack.Marshal(entry.instance)
		if err != nil {
			return fmt.Errorf("snapshot %T: %w", entry.instance, err)
		}
		if bytes.Equal(current, entry.snapshot) {
			continue
		}
		op := fmt.Sprintf("flush %T(%d)", entry.instance, key.id)
		if err := validate(op, entry.instance); err != nil {
			return err
		}
		if _, err := s.tx.NewUpdate().Model(entry.instance).WherePK().Exec(ctx); err != nil {
			return translateError(op, err)
		}
		entry.snapshot = current
		flushed++
	}
	if flushed > 0 {
		s.logger.Debug("Session flushed", "session", s.id, "updated", flushed)
	}
	return nil
}

// Commit flushes pending changes and commits the transaction. A failed flush
// rolls the transaction back.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		s.rollbackQuietly()
		return err
	}
	s.closed = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	s.logger.Debug("Session committed", "session", s.id)
	return nil
}

// Rollback discards the transaction and the identity map.
func (s *Session) Rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	s.closed = true
	s.entries = make(map[identity]*managedEntry)
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback session: %w", err)
	}
	return nil
}

func (s *Session) rollbackQuietly() {
	if s.closed {
		return
	}
	if err := s.Rollback(); err != nil {
		s.logger.Error("Session rollback failed", "session", s.id, "error", err)
	}
}

func identityOf(e entity.Entity) identity {
	return identity{typ: reflect.TypeOf(e), id: e.PrimaryKey()}
}

// entityPtr is satisfied by pointers to bun models with an int64 identity.
type entityPtr[T any] interface {
	*T
	entity.Entity
}

func lookup[T any, PT entityPtr[T]](s *Session, id int64) (PT, bool) {
	entry, ok := s.entries[identity{typ: reflect.TypeOf(PT(nil)), id: id}]
	if !ok {
		return nil, false
	}
	return entry.instance.(PT), true
}

// attach merges e into the identity map. When an instance with the same
// identity is already managed it is returned unchanged and e is dropped.
func attach[T any, PT entityPtr[T]](s *Session, e PT, readOnly bool) (PT, error) {
	key := identityOf(e)
	if entry, ok := s.entries[key]; ok {
		return entry.instance.(PT), nil
	}
	snapshot, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("snapshot %T: %w", e, err)
	}
	s.entries[key] = &managedEntry{instance: e, snapshot: snapshot, readOnly: readOnly}
	return e, nil
}

func attachAll[T any, PT entityPtr[T]](s *Session, rows []PT, readOnly bool) ([]PT, error) {
	out := make([]PT, 0, len(rows))
	for _, row := range rows {
		managed, err := attach[T, PT](s, row, readOnly)
		if err != nil {
			return nil, err
		}
		out = append(out, managed)
	}
	return out, nil
}

// refresh replaces the snapshot of a managed entity with its current state.
func (s *Session) refresh(e entity.Entity) error {
	entry, ok := s.entries[identityOf(e)]
	if !ok {
		return nil
	}
	snapshot, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("snapshot %T: %w", e, err)
	}
	entry.snapshot = snapshot
	return nil
}

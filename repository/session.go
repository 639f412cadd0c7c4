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
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datajpa/database"
)

type entityKey struct {
	typ reflect.Type
	id  interface{}
}

type managedEntry struct {
	entity   reflect.Value
	table    *schema.Table
	snapshot map[string]interface{}
	readOnly bool
}

// referenceSyncer is implemented by entities that derive foreign key columns
// from associations, see model.Member.
type referenceSyncer interface {
	SyncReferences()
}

// Session is the persistence context of one unit of work. It is bound to a
// bun.IDB supplied by the caller, normally a bun.Tx, and never begins or
// commits a transaction itself.
//
// Within a session an identity is represented by a single pointer: loading
// the same row twice returns the instance loaded first. Changes made to
// managed entities are written by Flush, which also runs before every query
// issued through the session. Statements that bypass the session, bulk
// updates in particular, leave managed instances stale until Clear or
// Refresh.
//
// A Session is not safe for concurrent use.
type Session struct {
	db      bun.IDB
	entries map[entityKey]*managedEntry
	order   []entityKey
	logger  database.Logger
}

func NewSession(db bun.IDB) *Session {
	return &Session{
		db:      db,
		entries: make(map[entityKey]*managedEntry),
		logger:  database.GetLogger(),
	}
}

// DB returns the handle statements run on.
func (s *Session) DB() bun.IDB { return s.db }

// Size is the number of managed entities.
func (s *Session) Size() int { return len(s.entries) }

// SetLockTimeout bounds waits for row locks for the rest of the transaction.
func (s *Session) SetLockTimeout(ctx context.Context, d time.Duration) error {
	return errors.Wrap(database.ApplyLockTimeout(ctx, s.db, d), "set lock timeout")
}

func (s *Session) table(typ reflect.Type) *schema.Table {
	return s.db.Dialect().Tables().Get(typ)
}

// keyOf returns the identity of entity, ok is false while it has no key.
func (s *Session) keyOf(entity interface{}) (entityKey, *schema.Table, reflect.Value, bool, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return entityKey{}, nil, v, false, errors.Errorf("entity must be a non-nil struct pointer, got %T", entity)
	}
	typ := v.Type().Elem()
	table := s.table(typ)
	if len(table.PKs) != 1 {
		return entityKey{}, nil, v, false, errors.Errorf("%s: exactly one primary key column is supported", typ)
	}
	pk := table.PKs[0].Value(v.Elem())
	if pk.IsZero() {
		return entityKey{typ: typ}, table, v, false, nil
	}
	return entityKey{typ: typ, id: pk.Interface()}, table, v, true, nil
}

// Contains reports whether entity is the managed instance of its identity.
func (s *Session) Contains(entity interface{}) bool {
	key, _, v, ok, err := s.keyOf(entity)
	if err != nil || !ok {
		return false
	}
	e, found := s.entries[key]
	return found && e.entity.Pointer() == v.Pointer()
}

// IsReadOnly reports whether entity was loaded as read-only.
func (s *Session) IsReadOnly(entity interface{}) bool {
	key, _, _, ok, err := s.keyOf(entity)
	if err != nil || !ok {
		return false
	}
	e, found := s.entries[key]
	return found && e.readOnly
}

// IsDirty reports whether a managed entity has unflushed changes.
func (s *Session) IsDirty(entity interface{}) bool {
	if !s.Contains(entity) {
		return false
	}
	key, _, _, _, _ := s.keyOf(entity)
	return len(s.changedColumns(s.entries[key])) > 0
}

// manage registers v under key and returns the canonical instance. An
// instance already managed for key wins; associations it has not loaded are
// taken over from v.
func (s *Session) manage(key entityKey, table *schema.Table, v reflect.Value, readOnly bool) reflect.Value {
	if e, ok := s.entries[key]; ok {
		if e.entity.Pointer() != v.Pointer() {
			adoptRelations(table, e.entity.Elem(), v.Elem())
		}
		return e.entity
	}
	s.entries[key] = &managedEntry{
		entity:   v,
		table:    table,
		snapshot: takeSnapshot(table, v.Elem()),
		readOnly: readOnly,
	}
	s.order = append(s.order, key)
	return v
}

func (s *Session) attach(entity interface{}, readOnly bool) (interface{}, error) {
	key, table, v, ok, err := s.keyOf(entity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTransient
	}
	return s.manage(key, table, v, readOnly).Interface(), nil
}

// attachLoaded attaches a row scanned from a select. Associations an outer
// join left keyless are reset first; rows passed to Save keep theirs so a
// team saved later is picked up by Flush.
func (s *Session) attachLoaded(entity interface{}, readOnly bool) (interface{}, error) {
	if _, table, v, ok, err := s.keyOf(entity); err == nil && ok {
		dropEmptyRelations(table, v.Elem())
	}
	return s.attach(entity, readOnly)
}

func (s *Session) lookup(typ reflect.Type, id interface{}) (interface{}, bool) {
	e, ok := s.entries[entityKey{typ: typ, id: id}]
	if !ok {
		return nil, false
	}
	return e.entity.Interface(), true
}

func (s *Session) resnapshot(entity interface{}) {
	key, _, _, ok, err := s.keyOf(entity)
	if err != nil || !ok {
		return
	}
	if e, found := s.entries[key]; found {
		e.snapshot = takeSnapshot(e.table, e.entity.Elem())
	}
}

// Detach stops tracking entity. Later changes to it are not flushed.
func (s *Session) Detach(entity interface{}) {
	key, _, v, ok, err := s.keyOf(entity)
	if err != nil || !ok {
		return
	}
	if e, found := s.entries[key]; found && e.entity.Pointer() == v.Pointer() {
		delete(s.entries, key)
	}
}

// Clear detaches every entity. Unflushed changes are discarded.
func (s *Session) Clear() {
	s.entries = make(map[entityKey]*managedEntry)
	s.order = nil
}

// Flush writes the changed columns of every managed, writable entity.
func (s *Session) Flush(ctx context.Context) error {
	s.compact()
	flushed := 0
	for _, key := range s.order {
		e := s.entries[key]
		if e.readOnly {
			continue
		}
		if syncer, ok := e.entity.Interface().(referenceSyncer); ok {
			syncer.SyncReferences()
		}
		cols := s.changedColumns(e)
		if len(cols) == 0 {
			continue
		}
		_, err := s.db.NewUpdate().
			Model(e.entity.Interface()).
			Column(cols...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.Wrapf(database.TranslateError(err), "flush %s", e.table.Name)
		}
		e.snapshot = takeSnapshot(e.table, e.entity.Elem())
		flushed++
	}
	if flushed > 0 {
		s.logger.Debug("Session flushed", "entities", flushed)
	}
	return nil
}

// compact drops keys of detached entities from the flush order.
func (s *Session) compact() {
	live := make([]entityKey, 0, len(s.entries))
	seen := make(map[entityKey]bool, len(s.entries))
	for _, key := range s.order {
		if _, ok := s.entries[key]; ok && !seen[key] {
			seen[key] = true
			live = append(live, key)
		}
	}
	s.order = live
}

// Refresh reloads a managed entity from the database, discarding its
// unflushed changes.
func (s *Session) Refresh(ctx context.Context, entity interface{}) error {
	if !s.Contains(entity) {
		return ErrNotManaged
	}
	if err := s.db.NewSelect().Model(entity).WherePK().Scan(ctx); err != nil {
		return errors.Wrap(database.TranslateError(err), "refresh")
	}
	s.resnapshot(entity)
	return nil
}

func (s *Session) remove(entity interface{}) {
	s.Detach(entity)
}

func (s *Session) changedColumns(e *managedEntry) []string {
	var cols []string
	v := e.entity.Elem()
	for _, f := range e.table.DataFields {
		if !reflect.DeepEqual(e.snapshot[f.Name], plainValue(f.Value(v))) {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

func takeSnapshot(table *schema.Table, v reflect.Value) map[string]interface{} {
	snap := make(map[string]interface{}, len(table.DataFields))
	for _, f := range table.DataFields {
		snap[f.Name] = plainValue(f.Value(v))
	}
	return snap
}

// plainValue copies v so that later writes through pointers or slices do not
// alter the snapshot.
func plainValue(v reflect.Value) interface{} {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return plainValue(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(cp, v)
		return cp.Interface()
	}
	return v.Interface()
}

// dropEmptyRelations resets to-one associations that an outer join filled
// with a keyless struct.
func dropEmptyRelations(table *schema.Table, v reflect.Value) {
	for _, rel := range table.Relations {
		if rel.Type != schema.BelongsToRelation && rel.Type != schema.HasOneRelation {
			continue
		}
		field := rel.Field.Value(v)
		if field.Kind() != reflect.Ptr || field.IsNil() || len(rel.JoinTable.PKs) != 1 {
			continue
		}
		if rel.JoinTable.PKs[0].Value(field.Elem()).IsZero() {
			field.Set(reflect.Zero(field.Type()))
		}
	}
}

// adoptRelations copies associations loaded on fetched into managed where
// managed has not loaded them yet.
func adoptRelations(table *schema.Table, managed, fetched reflect.Value) {
	for _, rel := range table.Relations {
		dst := rel.Field.Value(managed)
		src := rel.Field.Value(fetched)
		if dst.IsZero() && !src.IsZero() && dst.CanSet() {
			dst.Set(src)
		}
	}
}

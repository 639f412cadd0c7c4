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
	"reflect"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/query"
	"github.com/tomoncle/datajpa/types"
)

// Repository is the query executor for entity type T. It runs every
// statement on the handle of its Session and routes loaded rows through the
// session's identity map.
//
// T must be a bun model with a single primary key column.
type Repository[T any] struct {
	session *Session
	table   *schema.Table
	resolve query.PropertyResolver
}

func NewRepository[T any](s *Session) *Repository[T] {
	table := s.table(reflect.TypeOf((*T)(nil)).Elem())
	return &Repository[T]{
		session: s,
		table:   table,
		resolve: query.SchemaResolver(table),
	}
}

func (r *Repository[T]) Session() *Session { return r.session }

func (r *Repository[T]) Table() *schema.Table { return r.table }

func (r *Repository[T]) Dialect() schema.Dialect { return r.db().Dialect() }

func (r *Repository[T]) db() bun.IDB { return r.session.db }

// NewSelect starts a select on the table of T. Rows scanned from it are not
// managed.
func (r *Repository[T]) NewSelect() *bun.SelectQuery { return r.db().NewSelect().Model((*T)(nil)) }

func (r *Repository[T]) pk() *schema.Field { return r.table.PKs[0] }

// keyValue converts id to the key type so that identity map lookups with an
// untyped constant hit.
func (r *Repository[T]) keyValue(id interface{}) interface{} {
	v := reflect.ValueOf(id)
	t := r.pk().IndirectType
	if v.IsValid() && v.Type() != t && v.Type().ConvertibleTo(t) {
		return v.Convert(t).Interface()
	}
	return id
}

func (r *Repository[T]) wherePK(q *bun.SelectQuery, id interface{}) *bun.SelectQuery {
	return q.Where("?TableAlias.? = ?", bun.Ident(r.pk().Name), id)
}

func (r *Repository[T]) manageRows(rows []*T, readOnly bool) ([]*T, error) {
	for i, row := range rows {
		managed, err := r.session.attachLoaded(row, readOnly)
		if err != nil {
			return nil, err
		}
		rows[i] = managed.(*T)
	}
	if rows == nil {
		rows = make([]*T, 0)
	}
	return rows, nil
}

// Save makes entity persistent. A transient entity is inserted and its
// generated key populated. A managed entity is left to Flush. A detached
// entity is merged: its state is copied into the managed instance of the
// same key when there is one, otherwise written with an update, or an
// insert when no row has its key.
func (r *Repository[T]) Save(ctx context.Context, entity *T) (*T, error) {
	key, table, v, persistent, err := r.session.keyOf(entity)
	if err != nil {
		return nil, err
	}
	if !persistent {
		if err := r.session.Flush(ctx); err != nil {
			return nil, err
		}
		if _, err := r.db().NewInsert().Model(entity).Exec(ctx); err != nil {
			return nil, errors.Wrapf(database.TranslateError(err), "insert %s", table.Name)
		}
		return r.attach(entity)
	}
	if e, ok := r.session.entries[key]; ok {
		if e.entity.Pointer() != v.Pointer() {
			copyData(table, e.entity.Elem(), v.Elem())
		}
		return e.entity.Interface().(*T), nil
	}
	if err := r.session.Flush(ctx); err != nil {
		return nil, err
	}
	// affected rows cannot tell a missing row from an unchanged one: mysql
	// reports changed rows only
	exists, err := r.db().NewSelect().Model(entity).WherePK().Exists(ctx)
	if err != nil {
		return nil, errors.Wrapf(database.TranslateError(err), "lookup %s", table.Name)
	}
	if exists {
		_, err = r.db().NewUpdate().Model(entity).WherePK().Exec(ctx)
	} else {
		_, err = r.db().NewInsert().Model(entity).Exec(ctx)
	}
	if err != nil {
		return nil, errors.Wrapf(database.TranslateError(err), "save %s", table.Name)
	}
	return r.attach(entity)
}

func (r *Repository[T]) attach(entity *T) (*T, error) {
	managed, err := r.session.attach(entity, false)
	if err != nil {
		return nil, err
	}
	return managed.(*T), nil
}

func (r *Repository[T]) SaveAll(ctx context.Context, entities []*T) ([]*T, error) {
	out := make([]*T, 0, len(entities))
	for _, entity := range entities {
		saved, err := r.Save(ctx, entity)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// Delete removes a managed entity. Entities the session does not track yield
// ErrNotManaged.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil || !r.session.Contains(entity) {
		return ErrNotManaged
	}
	if err := r.session.Flush(ctx); err != nil {
		return err
	}
	if _, err := r.db().NewDelete().Model(entity).WherePK().Exec(ctx); err != nil {
		return errors.Wrapf(database.TranslateError(err), "delete %s", r.table.Name)
	}
	r.session.remove(entity)
	return nil
}

// DeleteByID removes the row with key id. A missing row is not an error.
func (r *Repository[T]) DeleteByID(ctx context.Context, id interface{}) error {
	entity, err := r.FindByID(ctx, id)
	if err != nil || entity == nil {
		return err
	}
	return r.Delete(ctx, entity)
}

// FindByID returns the entity with key id, or nil when there is none. An
// entity already managed by the session is returned without a query.
func (r *Repository[T]) FindByID(ctx context.Context, id interface{}, opts ...Option) (*T, error) {
	o := newOptions(opts)
	if o.graph == nil && o.lock == types.LockNone {
		if managed, ok := r.session.lookup(r.table.Type, r.keyValue(id)); ok {
			return managed.(*T), nil
		}
	}
	rows, err := r.selectRows(ctx, func(q *bun.SelectQuery) (*bun.SelectQuery, error) {
		return r.wherePK(q, id), nil
	}, o)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *Repository[T]) ExistsByID(ctx context.Context, id interface{}) (bool, error) {
	if _, ok := r.session.lookup(r.table.Type, r.keyValue(id)); ok {
		return true, nil
	}
	if err := r.session.Flush(ctx); err != nil {
		return false, err
	}
	ok, err := r.wherePK(r.NewSelect(), id).Exists(ctx)
	return ok, errors.Wrapf(database.TranslateError(err), "exists %s", r.table.Name)
}

// FindAll returns every row. Rows are ordered by the sort option, then by key.
func (r *Repository[T]) FindAll(ctx context.Context, opts ...Option) ([]*T, error) {
	return r.selectRows(ctx, nil, newOptions(opts))
}

// FindWithGraph is FindAll loading the associations of g in the same call.
func (r *Repository[T]) FindWithGraph(ctx context.Context, g query.EntityGraph, opts ...Option) ([]*T, error) {
	return r.FindAll(ctx, append(opts, WithGraph(g))...)
}

func (r *Repository[T]) FindAllByIDs(ctx context.Context, ids ...interface{}) ([]*T, error) {
	if len(ids) == 0 {
		return make([]*T, 0), nil
	}
	return r.selectRows(ctx, func(q *bun.SelectQuery) (*bun.SelectQuery, error) {
		return q.Where("?TableAlias.? IN (?)", bun.Ident(r.pk().Name), bun.In(ids)), nil
	}, newOptions(nil))
}

func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	return r.CountWhere(ctx, nil)
}

// CountWhere counts the rows matching filter, every row when filter is nil.
func (r *Repository[T]) CountWhere(ctx context.Context, filter *types.QueryFilter) (int, error) {
	if err := r.session.Flush(ctx); err != nil {
		return 0, err
	}
	q := r.NewSelect()
	if filter != nil && filter.Schema != "" {
		q = q.Where(filter.Schema, filter.Args...)
	}
	n, err := q.Count(ctx)
	return n, errors.Wrapf(database.TranslateError(err), "count %s", r.table.Name)
}

// List returns the rows matching filter.
func (r *Repository[T]) List(ctx context.Context, filter *types.QueryFilter, opts ...Option) ([]*T, error) {
	return r.selectRows(ctx, func(q *bun.SelectQuery) (*bun.SelectQuery, error) {
		if filter != nil && filter.Schema != "" {
			q = q.Where(filter.Schema, filter.Args...)
		}
		return q, nil
	}, newOptions(opts))
}

// FindSlice returns one slice of the rows matching filter. It reads one row
// more than the page size to learn whether a next slice exists.
func (r *Repository[T]) FindSlice(ctx context.Context, filter *types.QueryFilter, req *types.PageRequest) (*types.Slice[T], error) {
	rows, err := r.List(ctx, filter, WithPage(req, true))
	if err != nil {
		return nil, err
	}
	return types.NewSlice(rows, req), nil
}

// FindPage returns one page of the rows matching filter and their total.
func (r *Repository[T]) FindPage(ctx context.Context, filter *types.QueryFilter, req *types.PageRequest) (*types.Page[T], error) {
	rows, err := r.List(ctx, filter, WithPage(req, false))
	if err != nil {
		return nil, err
	}
	total, err := r.CountWhere(ctx, filter)
	if err != nil {
		return nil, err
	}
	return types.NewPage(rows, req, total), nil
}

// ExecuteBulkUpdate runs a set based statement and returns the affected row
// count. Pending changes are flushed first. Managed entities are not
// updated: call Session.Clear or Session.Refresh to observe the result.
func (r *Repository[T]) ExecuteBulkUpdate(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	if err := r.session.Flush(ctx); err != nil {
		return 0, err
	}
	res, err := r.db().ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(database.TranslateError(err), "bulk update")
	}
	return res.RowsAffected()
}

// Upsert inserts entities, updating columns of rows that conflict on
// conflictColumns (the primary key when empty). Like ExecuteBulkUpdate it
// bypasses the session.
func (r *Repository[T]) Upsert(ctx context.Context, columns []string, conflictColumns []string, entities ...*T) error {
	if len(columns) == 0 {
		return errors.New("upsert: columns cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	if err := r.session.Flush(ctx); err != nil {
		return err
	}
	q := r.db().NewInsert().Model(&entities)
	switch {
	case r.Dialect().Features().Has(feature.InsertOnConflict):
		if len(conflictColumns) == 0 {
			conflictColumns = []string{r.pk().Name}
		}
		idents := make([]interface{}, 0, len(conflictColumns))
		for _, c := range conflictColumns {
			idents = append(idents, bun.Ident(c))
		}
		q = q.On("CONFLICT (?) DO UPDATE", bun.In(idents))
		for _, c := range columns {
			q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
		}
	case r.Dialect().Features().Has(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, c := range columns {
			q = q.Set("? = VALUES(?)", bun.Ident(c), bun.Ident(c))
		}
	default:
		return errors.Errorf("upsert: dialect %s supports neither ON CONFLICT nor ON DUPLICATE KEY", r.Dialect().Name())
	}
	_, err := q.Exec(ctx)
	return errors.Wrapf(database.TranslateError(err), "upsert %s", r.table.Name)
}

// LoadRelation loads the association name of a managed entity with its own
// statement. Calling it once per entity of a result is the N+1 pattern that
// WithGraph avoids.
func (r *Repository[T]) LoadRelation(ctx context.Context, entity *T, name string) error {
	if _, ok := r.table.Relations[name]; !ok {
		return errors.Errorf("%s has no relation %s", r.table.Type.Name(), name)
	}
	if !r.session.Contains(entity) {
		return ErrNotManaged
	}
	if err := r.session.Flush(ctx); err != nil {
		return err
	}
	err := r.db().NewSelect().Model(entity).WherePK().Relation(name).Scan(ctx)
	return errors.Wrapf(database.TranslateError(err), "load %s.%s", r.table.Type.Name(), name)
}

// FindDerived runs a parsed find query.
func (r *Repository[T]) FindDerived(ctx context.Context, d *query.Derived, args []interface{}, opts ...Option) ([]*T, error) {
	if d.Action != query.ActionFind {
		return nil, errors.Errorf("%s is not a find query", d.Method)
	}
	return r.selectRows(ctx, func(q *bun.SelectQuery) (*bun.SelectQuery, error) {
		return d.Apply(q, args...)
	}, newOptions(opts))
}

// FindOneDerived returns the single match of d, nil when nothing matches and
// ErrNonUniqueResult when several rows do.
func (r *Repository[T]) FindOneDerived(ctx context.Context, d *query.Derived, args []interface{}, opts ...Option) (*T, error) {
	if d.Limit == 0 || d.Limit > 2 {
		opts = append(opts, withLimit(2))
	}
	rows, err := r.FindDerived(ctx, d, args, opts...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, errors.Wrap(ErrNonUniqueResult, d.Method)
	}
}

func (r *Repository[T]) FindOptionalDerived(ctx context.Context, d *query.Derived, args []interface{}, opts ...Option) (types.Optional[T], error) {
	row, err := r.FindOneDerived(ctx, d, args, opts...)
	if err != nil {
		return types.Empty[T](), err
	}
	return types.OptionalOf(row), nil
}

// FindSliceDerived is FindSlice with the conditions of d.
func (r *Repository[T]) FindSliceDerived(ctx context.Context, d *query.Derived, args []interface{}, req *types.PageRequest) (*types.Slice[T], error) {
	rows, err := r.FindDerived(ctx, d, args, WithPage(req, true))
	if err != nil {
		return nil, err
	}
	return types.NewSlice(rows, req), nil
}

// FindPageDerived is FindPage with the conditions of d. Counting ignores the
// ordering of d.
func (r *Repository[T]) FindPageDerived(ctx context.Context, d *query.Derived, args []interface{}, req *types.PageRequest) (*types.Page[T], error) {
	rows, err := r.FindDerived(ctx, d, args, WithPage(req, false))
	if err != nil {
		return nil, err
	}
	total, err := r.countDerived(ctx, d, args)
	if err != nil {
		return nil, err
	}
	return types.NewPage(rows, req, total), nil
}

func (r *Repository[T]) CountDerived(ctx context.Context, d *query.Derived, args ...interface{}) (int, error) {
	if d.Action != query.ActionCount {
		return 0, errors.Errorf("%s is not a count query", d.Method)
	}
	return r.countDerived(ctx, d, args)
}

func (r *Repository[T]) countDerived(ctx context.Context, d *query.Derived, args []interface{}) (int, error) {
	if err := r.session.Flush(ctx); err != nil {
		return 0, err
	}
	q, err := d.Apply(r.NewSelect(), args...)
	if err != nil {
		return 0, err
	}
	n, err := q.Count(ctx)
	return n, errors.Wrapf(database.TranslateError(err), "%s", d.Method)
}

func (r *Repository[T]) ExistsDerived(ctx context.Context, d *query.Derived, args ...interface{}) (bool, error) {
	if d.Action != query.ActionExists {
		return false, errors.Errorf("%s is not an exists query", d.Method)
	}
	if err := r.session.Flush(ctx); err != nil {
		return false, err
	}
	q, err := d.Apply(r.NewSelect(), args...)
	if err != nil {
		return false, err
	}
	ok, err := q.Exists(ctx)
	return ok, errors.Wrapf(database.TranslateError(err), "%s", d.Method)
}

// FindNamed runs a select named query whose columns map onto T. Slice
// arguments are expanded for IN lists.
func (r *Repository[T]) FindNamed(ctx context.Context, nq query.NamedQuery, args ...interface{}) ([]*T, error) {
	var rows []*T
	if err := r.ScanNamed(ctx, nq, &rows, args...); err != nil {
		return nil, err
	}
	return r.manageRows(rows, false)
}

// ScanNamed runs a select named query into dest, a projection or scalar
// slice. Scanned values are not managed.
func (r *Repository[T]) ScanNamed(ctx context.Context, nq query.NamedQuery, dest interface{}, args ...interface{}) error {
	if nq.Kind != query.KindSelect {
		return errors.Errorf("named query %s is not a select", nq.Name)
	}
	if err := nq.CheckArgs(args); err != nil {
		return err
	}
	if err := r.session.Flush(ctx); err != nil {
		return err
	}
	err := r.db().NewRaw(nq.SQL(), bindArgs(args)...).Scan(ctx, dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return errors.Wrapf(database.TranslateError(err), "named query %s", nq.Name)
}

// ExecNamed runs a modifying named query. It bypasses the session the same
// way ExecuteBulkUpdate does.
func (r *Repository[T]) ExecNamed(ctx context.Context, nq query.NamedQuery, args ...interface{}) (int64, error) {
	if nq.Kind != query.KindModify {
		return 0, errors.Errorf("named query %s is not a modifying statement", nq.Name)
	}
	if err := nq.CheckArgs(args); err != nil {
		return 0, err
	}
	n, err := r.ExecuteBulkUpdate(ctx, nq.SQL(), bindArgs(args)...)
	return n, errors.Wrapf(err, "named query %s", nq.Name)
}

// selectRows flushes, builds a select on T, lets where add conditions, then
// applies opts and manages the result.
func (r *Repository[T]) selectRows(ctx context.Context, where func(*bun.SelectQuery) (*bun.SelectQuery, error), o *options) ([]*T, error) {
	if err := r.session.Flush(ctx); err != nil {
		return nil, err
	}
	var rows []*T
	q := r.db().NewSelect().Model(&rows)
	var err error
	if where != nil {
		if q, err = where(q); err != nil {
			return nil, err
		}
	}
	if q, err = r.applyOptions(q, o); err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(database.TranslateError(err), "select %s", r.table.Name)
	}
	return r.manageRows(rows, o.readOnly)
}

func (r *Repository[T]) applyOptions(q *bun.SelectQuery, o *options) (*bun.SelectQuery, error) {
	if o.graph != nil {
		q = o.graph.Apply(q)
	}
	sort := o.sort
	if o.page != nil && !sort.IsSorted() {
		sort = o.page.GetSort()
	}
	for _, order := range sort.Orders {
		prop, ok := r.resolve(order.Property)
		if !ok || prop.Relation != "" {
			return nil, errors.Errorf("%s has no sortable property %s", r.table.Type.Name(), order.Property)
		}
		q = q.OrderExpr("?TableAlias.? "+order.Direction.String(), bun.Ident(prop.Column))
	}
	q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(r.pk().Name))
	if o.page != nil {
		limit := o.page.GetSize()
		if o.lookAhead {
			limit++
		}
		q = q.Offset(o.page.GetOffset()).Limit(limit)
	} else {
		if o.offset > 0 {
			q = q.Offset(o.offset)
		}
		if o.limit > 0 {
			q = q.Limit(o.limit)
		}
	}
	if o.lock != types.LockNone && database.SupportsRowLocks(r.db()) {
		q = q.For(o.lock.Clause())
	}
	return q, nil
}

func copyData(table *schema.Table, dst, src reflect.Value) {
	for _, f := range table.DataFields {
		f.Value(dst).Set(f.Value(src))
	}
	for _, rel := range table.Relations {
		if v := rel.Field.Value(src); !v.IsZero() {
			rel.Field.Value(dst).Set(v)
		}
	}
}

// bindArgs expands slice arguments so that "IN (?)" receives a list.
func bindArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		v := reflect.ValueOf(a)
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
			out[i] = bun.In(a)
			continue
		}
		out[i] = a
	}
	return out
}

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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datajpa/types"
)

// CrudRepository defines the persistence operations shared by every entity.
type CrudRepository[T any] interface {
	Save(ctx context.Context, entity *T) (*T, error)

	SaveAll(ctx context.Context, entities []*T) ([]*T, error)

	Delete(ctx context.Context, entity *T) error

	DeleteByID(ctx context.Context, id interface{}) error

	FindByID(ctx context.Context, id interface{}, opts ...Option) (*T, error)

	ExistsByID(ctx context.Context, id interface{}) (bool, error)

	FindAll(ctx context.Context, opts ...Option) ([]*T, error)

	FindAllByIDs(ctx context.Context, ids ...interface{}) ([]*T, error)

	Count(ctx context.Context) (int, error)
}

// QueryRepository defines filtered reads and statements that bypass the
// session.
type QueryRepository[T any] interface {
	List(ctx context.Context, filter *types.QueryFilter, opts ...Option) ([]*T, error)
	CountWhere(ctx context.Context, filter *types.QueryFilter) (int, error)
	ExecuteBulkUpdate(ctx context.Context, statement string, args ...interface{}) (int64, error)
	Upsert(ctx context.Context, columns []string, conflictColumns []string, entities ...*T) error
}

// PageQueryRepository defines paged reads. A Slice costs one query, a Page
// adds a count query.
type PageQueryRepository[T any] interface {
	FindSlice(ctx context.Context, filter *types.QueryFilter, req *types.PageRequest) (*types.Slice[T], error)
	FindPage(ctx context.Context, filter *types.QueryFilter, req *types.PageRequest) (*types.Page[T], error)
}

// EntityRepository combines CRUD, filtered and paged reads and exposes the
// session and Bun query builders for advanced use cases.
type EntityRepository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	PageQueryRepository[T]
	Session() *Session
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
}

var _ EntityRepository[struct{}] = (*Repository[struct{}])(nil)

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
	"github.com/tomoncle/datajpa/query"
	"github.com/tomoncle/datajpa/types"
)

type options struct {
	graph     *query.EntityGraph
	readOnly  bool
	lock      types.LockMode
	sort      types.Sort
	page      *types.PageRequest
	lookAhead bool
	offset    int
	limit     int
}

// Option adjusts a select issued by Repository.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithGraph loads the associations of g together with the root rows.
func WithGraph(g query.EntityGraph) Option {
	return func(o *options) { o.graph = &g }
}

// ReadOnly marks loaded entities as read-only: Flush never writes them.
// Entities the session already manages keep their mode.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithLock takes row locks on the selected rows until the transaction ends.
// It is ignored on sqlite, which locks the whole database on write.
func WithLock(mode types.LockMode) Option {
	return func(o *options) { o.lock = mode }
}

// WithSort orders by entity properties, given by Go field name.
func WithSort(sort types.Sort) Option {
	return func(o *options) { o.sort = sort }
}

// WithPage restricts the result to one page of req. With lookAhead one extra
// row is read for Slice. A nil req is the first page of 10.
func WithPage(req *types.PageRequest, lookAhead bool) Option {
	if req == nil {
		req = types.NewDefaultPageRequest(0, 10)
	}
	return func(o *options) {
		o.page = req
		o.lookAhead = lookAhead
	}
}

// WithRange restricts the result to limit rows starting at offset.
func WithRange(offset, limit int) Option {
	return func(o *options) {
		o.offset = offset
		o.limit = limit
	}
}

func withLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

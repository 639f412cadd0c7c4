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

package types

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// Order is a single sort key. Property is the entity field name (Go name),
// not the column name.
type Order struct {
	Property  string
	Direction Direction
}

// Sort is an ordered list of sort keys.
type Sort struct {
	Orders []Order
}

// Unsorted returns an empty Sort.
func Unsorted() Sort { return Sort{} }

// SortBy sorts every property in the same direction.
func SortBy(direction Direction, properties ...string) Sort {
	orders := make([]Order, 0, len(properties))
	for _, p := range properties {
		orders = append(orders, Order{Property: p, Direction: direction})
	}
	return Sort{Orders: orders}
}

// And appends the orders of other after the receiver's.
func (s Sort) And(other Sort) Sort {
	orders := make([]Order, 0, len(s.Orders)+len(other.Orders))
	orders = append(orders, s.Orders...)
	orders = append(orders, other.Orders...)
	return Sort{Orders: orders}
}

func (s Sort) IsSorted() bool { return len(s.Orders) > 0 }

// PageRequest describes a zero-based page index, a page size and ordering.
type PageRequest struct {
	number int
	size   int
	sort   Sort
}

// NewPageRequest constructs a PageRequest. Negative numbers are clamped to 0
// and sizes below 1 fall back to 10.
func NewPageRequest(number int, size int, sort Sort) *PageRequest {
	if number < 0 {
		number = 0
	}
	if size < 1 {
		size = defaultPageSize
	}
	return &PageRequest{number: number, size: size, sort: sort}
}

// NewDefaultPageRequest constructs an unsorted PageRequest.
func NewDefaultPageRequest(number int, size int) *PageRequest {
	return NewPageRequest(number, size, Unsorted())
}

const defaultPageSize = 10

// GetNumber returns the page index. The getters never write to p; a nil or
// zero PageRequest reads as the first unsorted page of 10.
func (p *PageRequest) GetNumber() int {
	if p == nil || p.number < 0 {
		return 0
	}
	return p.number
}

func (p *PageRequest) GetSize() int {
	if p == nil || p.size < 1 {
		return defaultPageSize
	}
	return p.size
}

func (p *PageRequest) GetOffset() int {
	return p.GetNumber() * p.GetSize()
}

func (p *PageRequest) GetSort() Sort {
	if p == nil {
		return Unsorted()
	}
	return p.sort
}

// Next returns the request for the following page.
func (p *PageRequest) Next() *PageRequest {
	return NewPageRequest(p.GetNumber()+1, p.GetSize(), p.GetSort())
}

// Previous returns the request for the preceding page, or the first page.
func (p *PageRequest) Previous() *PageRequest {
	if p.GetNumber() == 0 {
		return p.First()
	}
	return NewPageRequest(p.GetNumber()-1, p.GetSize(), p.GetSort())
}

func (p *PageRequest) First() *PageRequest {
	return NewPageRequest(0, p.GetSize(), p.GetSort())
}

// Slice is a page of content that only knows whether a further page exists.
// It is produced by fetching size+1 rows, so no count query is needed.
type Slice[T any] struct {
	Content []*T
	Number  int
	Size    int
	Sort    Sort
	hasNext bool
}

// NewSlice builds a slice from the rows fetched with limit size+1. Any row
// beyond the requested size is dropped and turns into hasNext. A nil request
// is the first page of 10.
func NewSlice[T any](rows []*T, request *PageRequest) *Slice[T] {
	size := request.GetSize()
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	if rows == nil {
		rows = make([]*T, 0)
	}
	return &Slice[T]{
		Content: rows,
		Number:  request.GetNumber(),
		Size:    size,
		Sort:    request.GetSort(),
		hasNext: hasNext,
	}
}

func (s *Slice[T]) HasNext() bool { return s.hasNext }

func (s *Slice[T]) HasPrevious() bool { return s.Number > 0 }

func (s *Slice[T]) IsFirst() bool { return !s.HasPrevious() }

func (s *Slice[T]) IsLast() bool { return !s.HasNext() }

func (s *Slice[T]) HasContent() bool { return len(s.Content) > 0 }

func (s *Slice[T]) NumberOfElements() int { return len(s.Content) }

// NextPageable returns the request for the next slice, or nil on the last one.
func (s *Slice[T]) NextPageable() *PageRequest {
	if !s.hasNext {
		return nil
	}
	return NewPageRequest(s.Number+1, s.Size, s.Sort)
}

// Page is a slice that also carries the total element count, at the cost of
// an extra count query.
type Page[T any] struct {
	Slice[T]
	TotalElements int
}

// NewPage builds a page from exactly one page of rows and the total count.
func NewPage[T any](rows []*T, request *PageRequest, total int) *Page[T] {
	if rows == nil {
		rows = make([]*T, 0)
	}
	p := &Page[T]{
		Slice: Slice[T]{
			Content: rows,
			Number:  request.GetNumber(),
			Size:    request.GetSize(),
			Sort:    request.GetSort(),
		},
		TotalElements: total,
	}
	p.hasNext = p.Number+1 < p.TotalPages()
	return p
}

func (p *Page[T]) TotalPages() int {
	if p.Size == 0 {
		return 1
	}
	return (p.TotalElements + p.Size - 1) / p.Size
}

// MapSlice converts the content of a slice, keeping its metadata.
func MapSlice[T any, R any](s *Slice[T], fn func(*T) *R) *Slice[R] {
	content := make([]*R, 0, len(s.Content))
	for _, item := range s.Content {
		content = append(content, fn(item))
	}
	return &Slice[R]{Content: content, Number: s.Number, Size: s.Size, Sort: s.Sort, hasNext: s.hasNext}
}

// MapPage converts the content of a page, keeping its metadata.
func MapPage[T any, R any](p *Page[T], fn func(*T) *R) *Page[R] {
	return &Page[R]{Slice: *MapSlice(&p.Slice, fn), TotalElements: p.TotalElements}
}

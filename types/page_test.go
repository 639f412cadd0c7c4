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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ n int }

func rows(n int) []*row {
	out := make([]*row, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &row{n: i})
	}
	return out
}

func TestPageRequestDefaults(t *testing.T) {
	p := NewDefaultPageRequest(-3, 0)
	assert.Equal(t, 0, p.GetNumber())
	assert.Equal(t, 10, p.GetSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewPageRequest(2, 3, SortBy(Desc, "Username", "Age"))
	assert.Equal(t, 6, p.GetOffset())
	assert.Len(t, p.GetSort().Orders, 2)
	assert.Equal(t, 3, p.Next().GetNumber())
	assert.Equal(t, 1, p.Previous().GetNumber())
	assert.Equal(t, 0, p.First().GetNumber())
	assert.Equal(t, 0, p.First().Previous().GetNumber())
}

func TestNewSlice(t *testing.T) {
	first := NewSlice(rows(4), NewDefaultPageRequest(0, 3))
	require.Len(t, first.Content, 3)
	assert.True(t, first.HasNext())
	assert.True(t, first.IsFirst())
	assert.False(t, first.IsLast())
	assert.Equal(t, 0, first.Number)
	require.NotNil(t, first.NextPageable())
	assert.Equal(t, 1, first.NextPageable().GetNumber())

	second := NewSlice(rows(3), NewDefaultPageRequest(1, 3))
	assert.Equal(t, 3, second.NumberOfElements())
	assert.False(t, second.HasNext())
	assert.True(t, second.HasPrevious())
	assert.Nil(t, second.NextPageable())

	empty := NewSlice[row](nil, NewDefaultPageRequest(5, 3))
	assert.NotNil(t, empty.Content)
	assert.False(t, empty.HasContent())
}

func TestNewPage(t *testing.T) {
	p := NewPage(rows(3), NewDefaultPageRequest(0, 3), 7)
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())

	last := NewPage(rows(1), NewDefaultPageRequest(2, 3), 7)
	assert.False(t, last.HasNext())
	assert.True(t, last.IsLast())

	none := NewPage[row](nil, NewDefaultPageRequest(0, 3), 0)
	assert.Equal(t, 0, none.TotalPages())
	assert.False(t, none.HasNext())
}

func TestPageRequestGettersDoNotWrite(t *testing.T) {
	p := &PageRequest{number: -2, size: 0}
	assert.Equal(t, 0, p.GetNumber())
	assert.Equal(t, 10, p.GetSize())
	assert.Equal(t, -2, p.number)
	assert.Equal(t, 0, p.size)

	clamped := NewDefaultPageRequest(-2, 0)
	assert.Equal(t, 0, clamped.number)
	assert.Equal(t, 10, clamped.size)
}

func TestNilPageRequest(t *testing.T) {
	var p *PageRequest
	assert.Equal(t, 0, p.GetNumber())
	assert.Equal(t, 10, p.GetSize())
	assert.False(t, p.GetSort().IsSorted())
	assert.Equal(t, 1, p.Next().GetNumber())

	s := NewSlice(rows(11), nil)
	assert.Len(t, s.Content, 10)
	assert.True(t, s.HasNext())

	pg := NewPage(rows(10), nil, 25)
	assert.Equal(t, 10, pg.Size)
	assert.Equal(t, 3, pg.TotalPages())
	assert.True(t, pg.HasNext())
}

func TestMapPage(t *testing.T) {
	p := NewPage(rows(2), NewDefaultPageRequest(0, 2), 5)
	mapped := MapPage(p, func(r *row) *string {
		s := string(rune('a' + r.n))
		return &s
	})
	require.Len(t, mapped.Content, 2)
	assert.Equal(t, "b", *mapped.Content[1])
	assert.Equal(t, 5, mapped.TotalElements)
	assert.True(t, mapped.HasNext())
}

func TestOptional(t *testing.T) {
	v := 3
	o := OptionalOf(&v)
	got, ok := o.Get()
	require.True(t, ok)
	assert.Equal(t, 3, *got)

	e := Empty[int]()
	assert.True(t, e.IsEmpty())
	other := 9
	assert.Equal(t, 9, *e.OrElse(&other))
	called := false
	e.IfPresent(func(*int) { called = true })
	assert.False(t, called)
}

func TestEnums(t *testing.T) {
	assert.Equal(t, "UPDATE", LockPessimisticWrite.Clause())
	assert.Equal(t, "SHARE", LockPessimisticRead.Clause())
	assert.Equal(t, "", LockNone.Clause())
	assert.False(t, LockMode(9).IsValid())
	assert.Equal(t, IllegalValue, LockMode(9).Number())

	d, ok := ParseDirection(" desc ")
	require.True(t, ok)
	assert.Equal(t, Desc, d)
	_, ok = ParseDirection("sideways")
	assert.False(t, ok)
	assert.Equal(t, "DESC", Desc.String())
}

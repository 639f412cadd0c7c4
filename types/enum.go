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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Direction is the sort direction of an Order.
type Direction int

const (
	Asc Direction = iota
	Desc
)

var _ BaseEnum = Direction(0)

func (d Direction) IsValid() bool { return d == Asc || d == Desc }

func (d Direction) Number() int {
	if !d.IsValid() {
		return IllegalValue
	}
	return int(d)
}

func (d Direction) Name() string {
	switch d {
	case Asc:
		return "ASC"
	case Desc:
		return "DESC"
	default:
		return IllegalName
	}
}

func (d Direction) String() string { return d.Name() }

func (d Direction) Desc() string {
	switch d {
	case Asc:
		return "ascending"
	case Desc:
		return "descending"
	default:
		return IllegalDesc
	}
}

// ParseDirection accepts "asc"/"desc" in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return Asc, true
	case "DESC":
		return Desc, true
	default:
		return Asc, false
	}
}

// LockMode selects the row lock taken by a locking query.
type LockMode int

const (
	LockNone LockMode = iota
	// LockPessimisticRead takes a shared row lock (FOR SHARE).
	LockPessimisticRead
	// LockPessimisticWrite takes an exclusive row lock (FOR UPDATE).
	LockPessimisticWrite
)

var _ BaseEnum = LockMode(0)

func (m LockMode) IsValid() bool { return m >= LockNone && m <= LockPessimisticWrite }

func (m LockMode) Number() int {
	if !m.IsValid() {
		return IllegalValue
	}
	return int(m)
}

func (m LockMode) Name() string {
	switch m {
	case LockNone:
		return "NONE"
	case LockPessimisticRead:
		return "PESSIMISTIC_READ"
	case LockPessimisticWrite:
		return "PESSIMISTIC_WRITE"
	default:
		return IllegalName
	}
}

func (m LockMode) String() string { return m.Name() }

func (m LockMode) Desc() string {
	switch m {
	case LockNone:
		return "no row lock"
	case LockPessimisticRead:
		return "shared row lock held until the transaction ends"
	case LockPessimisticWrite:
		return "exclusive row lock held until the transaction ends"
	default:
		return IllegalDesc
	}
}

// Clause returns the locking clause body for SELECT ... FOR <clause>.
func (m LockMode) Clause() string {
	switch m {
	case LockPessimisticRead:
		return "SHARE"
	case LockPessimisticWrite:
		return "UPDATE"
	default:
		return ""
	}
}

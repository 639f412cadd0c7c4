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

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	LockTimeoutErr
	DeadlockErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no rows",
	NoIndexErr:                  "no such index",
	NoColumnErr:                 "no such column",
	ExistIndexErr:               "index exists",
	ExistColumnErr:              "column exists",
	NoTableErr:                  "no such table",
	ExistTableErr:               "table exists",
	DuplicateKeyErr:             "duplicate key",
	NotNullViolationErr:         "not-null violation",
	ForeignKeyViolationErr:      "foreign key violation",
	CheckConstraintViolationErr: "check constraint violation",
	DataTruncatedErr:            "data truncated",
	InvalidTypeCastErr:          "invalid type cast",
	LockTimeoutErr:              "lock timeout",
	DeadlockErr:                 "deadlock",
}

func (e SQLError) String() string {
	if s, ok := sqlErrorNames[e]; ok {
		return s
	}
	return sqlErrorNames[UnknownErr]
}

// IsConstraintViolation reports whether the engine rejected a write because
// of an integrity constraint.
func (e SQLError) IsConstraintViolation() bool {
	switch e {
	case DuplicateKeyErr, NotNullViolationErr, ForeignKeyViolationErr, CheckConstraintViolationErr:
		return true
	}
	return false
}

// IsLockContention reports whether a lock could not be acquired.
func (e SQLError) IsLockContention() bool {
	return e == LockTimeoutErr || e == DeadlockErr
}

var (
	// ErrConstraintViolation matches storage errors caused by uniqueness,
	// foreign key, not-null or check constraints.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrLockTimeout matches storage errors caused by a row lock that was not
	// granted in time, deadlock victims included.
	ErrLockTimeout = errors.New("lock timeout")
)

// StorageError is a driver error classified into an SQLError kind.
type StorageError struct {
	Kind SQLError
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrConstraintViolation:
		return e.Kind.IsConstraintViolation()
	case ErrLockTimeout:
		return e.Kind.IsLockContention()
	}
	return false
}

// TranslateError classifies a driver error. Errors that do not map to a known
// kind, sql.ErrNoRows and nil are returned unchanged.
func TranslateError(err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	if is, kind := IsSqlError(err); is && kind != UnknownErr {
		return &StorageError{Kind: kind, Err: err}
	}
	return err
}

func mapSQLState(code string) (SQLError, bool) {
	switch code {
	case "23505":
		return DuplicateKeyErr, true
	case "23502":
		return NotNullViolationErr, true
	case "23503":
		return ForeignKeyViolationErr, true
	case "23514":
		return CheckConstraintViolationErr, true
	case "22001":
		return DataTruncatedErr, true
	case "42804":
		return InvalidTypeCastErr, true
	case "42703":
		return NoColumnErr, true
	case "42704":
		return NoIndexErr, true
	case "42P01":
		return NoTableErr, true
	case "42P07":
		return ExistTableErr, true
	case "55P03":
		return LockTimeoutErr, true
	case "40P01":
		return DeadlockErr, true
	}
	return UnknownErr, false
}

func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265, 1406:
			return true, DataTruncatedErr
		case 1205, 3572:
			return true, LockTimeoutErr
		case 1213:
			return true, DeadlockErr
		default:
			return true, UnknownErr
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		kind, _ := mapSQLState(string(pqErr.Code))
		return true, kind
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind, _ := mapSQLState(pgErr.Code)
		return true, kind
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "sqlstate 55p03") ||
		strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked") ||
		strings.Contains(s, "lock wait timeout") {
		return true, LockTimeoutErr
	}
	if strings.Contains(s, "sqlstate 40p01") ||
		strings.Contains(s, "deadlock detected") {
		return true, DeadlockErr
	}
	if strings.Contains(s, "sqlstate 42703") ||
		strings.Contains(s, "undefined column") ||
		strings.Contains(s, "no such column") {
		return true, NoColumnErr
	}
	if strings.Contains(s, "sqlstate 42704") ||
		strings.Contains(s, "no such index") ||
		(strings.Contains(s, "does not exist") && strings.Contains(s, "index")) {
		return true, NoIndexErr
	}
	if strings.Contains(s, "sqlstate 42p01") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "no such table") {
		return true, NoTableErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "index") {
		return true, ExistIndexErr
	}
	if strings.Contains(s, "already exists") &&
		strings.Contains(s, "table") ||
		strings.Contains(s, "relation") &&
			strings.Contains(s, "already exists") {
		return true, ExistTableErr
	}
	if strings.Contains(s, "duplicate key value") ||
		strings.Contains(s, "unique constraint failed") ||
		strings.Contains(s, "sqlstate 23505") {
		return true, DuplicateKeyErr
	}
	if strings.Contains(s, "not-null constraint") ||
		strings.Contains(s, "sqlstate 23502") ||
		strings.Contains(s, "not null constraint failed") {
		return true, NotNullViolationErr
	}
	if strings.Contains(s, "foreign key violation") ||
		strings.Contains(s, "foreign key constraint failed") ||
		strings.Contains(s, "sqlstate 23503") {
		return true, ForeignKeyViolationErr
	}
	if strings.Contains(s, "check constraint") ||
		strings.Contains(s, "sqlstate 23514") {
		return true, CheckConstraintViolationErr
	}
	if strings.Contains(s, "string data right truncation") ||
		strings.Contains(s, "sqlstate 22001") ||
		strings.Contains(s, "data truncated") {
		return true, DataTruncatedErr
	}
	if strings.Contains(s, "datatype mismatch") ||
		strings.Contains(s, "sqlstate 42804") {
		return true, InvalidTypeCastErr
	}
	return false, UnknownErr
}

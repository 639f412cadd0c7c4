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
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// ApplyLockTimeout bounds how long statements on db wait for row locks.
// On postgres the setting is transaction scoped (SET LOCAL), so db should be a
// bun.Tx. MySQL only supports whole seconds and keeps the value for the rest
// of the connection. SQLite has no row locks and maps the bound onto its busy
// timeout. A zero duration is a no-op.
func ApplyLockTimeout(ctx context.Context, db bun.IDB, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var stmt string
	switch db.Dialect().Name() {
	case dialect.PG:
		stmt = fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	case dialect.MySQL:
		secs := int64(d / time.Second)
		if secs < 1 {
			secs = 1
		}
		stmt = fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)
	case dialect.SQLite:
		stmt = fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds())
	default:
		return fmt.Errorf("lock timeout not supported for dialect %s", db.Dialect().Name())
	}
	_, err := db.ExecContext(ctx, stmt)
	return TranslateError(err)
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE/SHARE is understood
// by the dialect of db.
func SupportsRowLocks(db bun.IDB) bool {
	switch db.Dialect().Name() {
	case dialect.PG, dialect.MySQL:
		return true
	}
	return false
}

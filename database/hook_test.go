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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) SetLevel(LogLevel)                      {}
func (l *recordingLogger) Debug(string, ...interface{})           {}
func (l *recordingLogger) Info(string, ...interface{})            {}
func (l *recordingLogger) Error(string, ...interface{})           {}
func (l *recordingLogger) Warn(msg string, fields ...interface{}) { l.warnings = append(l.warnings, msg) }

func TestQueryCounter(t *testing.T) {
	ctx := context.Background()
	db := connectMemory(t, "query_counter").GetDB()
	counter := NewQueryCounter()
	db.AddQueryHook(counter)

	_, err := db.ExecContext(ctx, "CREATE TABLE things (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	var n int
	require.NoError(t, db.NewSelect().TableExpr("things").ColumnExpr("count(*)").Scan(ctx, &n))
	require.NoError(t, db.NewSelect().TableExpr("things").ColumnExpr("count(*)").Scan(ctx, &n))

	assert.Equal(t, 3, counter.Count())
	assert.Equal(t, 2, counter.CountOf("SELECT"))
	assert.Len(t, counter.Queries(), 3)

	counter.Reset()
	assert.Zero(t, counter.Count())
	assert.Empty(t, counter.Queries())
}

func TestQueryHookPrintsFailures(t *testing.T) {
	ctx := context.Background()
	db := connectMemory(t, "query_hook").GetDB()
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook(&buf, "", false))

	_, _ = db.ExecContext(ctx, "SELECT 1")
	assert.Empty(t, buf.String(), "successful statements are not printed unless verbose")

	_, err := db.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "missing_table")

	EnableBunSqlSilent(true)
	defer EnableBunSqlSilent(false)
	buf.Reset()
	_, _ = db.ExecContext(ctx, "SELECT * FROM missing_table")
	assert.Empty(t, buf.String())
}

func TestSlowQueryHook(t *testing.T) {
	ctx := context.Background()
	db := connectMemory(t, "slow_query").GetDB()
	logger := &recordingLogger{}
	db.AddQueryHook(NewSlowQueryHook(time.Nanosecond, logger))

	_, err := db.ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "slow query")
}

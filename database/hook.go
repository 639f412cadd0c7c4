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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes QueryHook and SlowQueryHook, e.g. while migrating.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

var (
	operationColors = map[string]*color.Color{
		"SELECT": color.New(color.FgGreen),
		"INSERT": color.New(color.FgBlue),
		"UPDATE": color.New(color.FgYellow),
		"DELETE": color.New(color.FgMagenta),
	}
	otherColor   = color.New(color.FgRed)
	prefixColor  = color.New(color.FgCyan)
	errorColor   = color.New(color.BgRed, color.FgHiWhite)
	slowPrefixFg = color.New(color.FgYellow, color.BlinkSlow)
)

// QueryHook prints every statement with its duration, coloured by operation.
// Setting the env variable to "0" disables it, "2" also prints statements
// that finished without error.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

func NewQueryHook(w io.Writer, envName string, verbose bool) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{envName: envName, enabled: true, verbose: verbose, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

// mode resolves enabled and verbose, letting the env variable win.
func (h *QueryHook) mode() (enabled, verbose bool) {
	if h.envName != "" {
		if env, ok := os.LookupEnv(h.envName); ok {
			return env != "" && env != "0", env == "2"
		}
	}
	return h.enabled, h.verbose
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() {
		return
	}
	enabled, verbose := h.mode()
	if !enabled {
		return
	}
	quiet := event.Err == nil || errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone)
	if quiet && !verbose {
		return
	}

	now := time.Now()
	line := []interface{}{
		now.Format("2006-01-02 15:04:05.000"),
		prefixColor.Sprintf("%8s", "[BUN]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", operationColor(event.Operation()).Sprint(event.Query),
	}
	if event.Err != nil {
		line = append(line, "\t", errorColor.Sprintf(" %T: %s ", event.Err, event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, line...)
}

func operationColor(operation string) *color.Color {
	if c, ok := operationColors[operation]; ok {
		return c
	}
	return otherColor
}

// SlowQueryHook logs statements slower than the threshold as warnings.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	return &SlowQueryHook{slowTime: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() || event.Err != nil || h.logger == nil {
		return
	}

	duration := time.Since(event.StartTime)
	if duration > h.slowTime {
		h.logger.Warn(slowPrefixFg.Sprint("Database slow query detected"),
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}

// QueryCounter counts database round trips. Install it with AddQueryHook and
// read it around the code under observation.
type QueryCounter struct {
	mu      sync.Mutex
	total   int
	queries []string
}

var _ bun.QueryHook = (*QueryCounter)(nil)

func NewQueryCounter() *QueryCounter {
	return &QueryCounter{}
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.queries = append(c.queries, event.Query)
}

func (c *QueryCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CountOf returns how many recorded statements start with the operation
// keyword, e.g. "SELECT".
func (c *QueryCounter) CountOf(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, q := range c.queries {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q)), operation) {
			n++
		}
	}
	return n
}

func (c *QueryCounter) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queries))
	copy(out, c.queries)
	return out
}

func (c *QueryCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = 0
	c.queries = nil
}

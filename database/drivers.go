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
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

const memoryDBName = ":memory:"

// backend knows how to open one kind of database.
type backend struct {
	driverName func(cfg *ConnectionConfig) string
	dsn        func(cfg *ConnectionConfig) string
	dialect    func() schema.Dialect
	// embedded backends get a single long-lived connection: sqlite has one
	// writer, and pragmas and in-memory databases live on the connection.
	embedded  bool
	onConnect func(ctx context.Context, db *bun.DB) error
}

var (
	mysqlBackend = backend{
		driverName: func(*ConnectionConfig) string { return "mysql" },
		dsn:        MySQLDSN,
		dialect:    func() schema.Dialect { return mysqldialect.New() },
	}
	postgresBackend = backend{
		driverName: func(cfg *ConnectionConfig) string {
			if cfg.Driver == "" {
				return "postgres"
			}
			return cfg.Driver
		},
		dsn:     PostgresDSN,
		dialect: func() schema.Dialect { return pgdialect.New() },
	}
	sqliteBackend = backend{
		driverName: func(*ConnectionConfig) string { return sqliteshim.ShimName },
		dsn:        SQLiteDSN,
		dialect:    func() schema.Dialect { return sqlitedialect.New() },
		embedded:   true,
		onConnect: func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
			return err
		},
	}
)

var backends = map[string]backend{
	"mysql":      mysqlBackend,
	"postgres":   postgresBackend,
	"postgresql": postgresBackend,
	"sqlite":     sqliteBackend,
	"sqlite3":    sqliteBackend,
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	return slices.Sorted(maps.Keys(backends))
}

func IsSupportedType(typ string) bool {
	_, ok := backends[typ]
	return ok
}

func lookupBackend(typ string) (backend, error) {
	b, ok := backends[typ]
	if !ok {
		return backend{}, fmt.Errorf("unsupported database type: %s, supported types: %v", typ, SupportedTypes())
	}
	return b, nil
}

func (b backend) open(cfg *ConnectionConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open(b.driverName(cfg), b.dsn(cfg))
	if err != nil {
		return nil, err
	}
	if b.embedded {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return bun.NewDB(sqlDB, b.dialect()), nil
}

func installQueryHooks(db *bun.DB, cfg *ConnectionConfig, logger Logger) {
	if cfg.EnableQueryLog {
		if cfg.QueryLogFormat == QueryLogColor {
			db.AddQueryHook(NewQueryHook(nil, "BUNDEBUG", true))
		} else {
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cfg.SlowQueryTime, logger))
	}
}

// MySQLDSN builds the go-sql-driver DSN for cfg unless cfg.DSN is set.
func MySQLDSN(cfg *ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.Loc = time.Local
	mc.Timeout = cfg.ConnectTimeout
	mc.ReadTimeout = cfg.ReadTimeout
	mc.WriteTimeout = cfg.WriteTimeout
	mc.Params = map[string]string{"charset": charset}
	return mc.FormatDSN()
}

// PostgresDSN builds a postgres URL for cfg unless cfg.DSN is set. Both lib/pq
// and pgx accept it.
func PostgresDSN(cfg *ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("connect_timeout", fmt.Sprintf("%d", int(cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN returns cfg.DSN, a shared in-memory database when DBName is
// ":memory:", or the file <DBName>.db.
func SQLiteDSN(cfg *ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.DBName == memoryDBName || cfg.DBName == "" {
		return "file:datajpa?mode=memory&cache=shared"
	}
	return cfg.DBName + ".db"
}

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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

type defaultDatabaseManager struct {
	config *Config
	logger Logger

	mu        sync.RWMutex
	db        *bun.DB
	stopWatch context.CancelFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// If config is nil, DefaultConfig is used.
func NewDatabaseManager(config *Config) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConfig()
	}
	return &defaultDatabaseManager{
		config: config,
		logger: GetLogger(),
	}
}

func (dm *defaultDatabaseManager) conn() *ConnectionConfig {
	return &dm.config.ConnectionConfig
}

// Connect opens the pool and, when a health check interval is configured,
// starts watching it. Connecting twice is a no-op.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db != nil {
		return nil
	}
	if err := dm.dialLocked(ctx); err != nil {
		return err
	}
	if interval := dm.conn().HealthCheckInterval; interval > 0 && dm.stopWatch == nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		dm.stopWatch = cancel
		go dm.watch(watchCtx, interval)
	}

	cfg := dm.conn()
	dm.logger.Info("Database connected successfully", "type", cfg.Type, "host", cfg.Host, "dbname", cfg.DBName)
	return nil
}

func (dm *defaultDatabaseManager) dialLocked(ctx context.Context) error {
	cfg := dm.conn()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	b, err := lookupBackend(cfg.Type)
	if err != nil {
		return err
	}
	db, err := b.open(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	installQueryHooks(db, cfg, dm.logger)

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}
	if b.onConnect != nil {
		if err := b.onConnect(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to prepare connection: %w", err)
		}
	}

	dm.db = db
	return nil
}

func (dm *defaultDatabaseManager) closeLocked() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db = nil
	if err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
	} else {
		dm.logger.Info("Database connection closed")
	}
	return err
}

// Disconnect stops the health watcher and closes the pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopWatch != nil {
		dm.stopWatch()
		dm.stopWatch = nil
	}
	return dm.closeLocked()
}

// Reconnect replaces the pool. A running health watcher keeps running.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.redialLocked(ctx)
}

func (dm *defaultDatabaseManager) redialLocked(ctx context.Context) error {
	dm.logger.Info("Attempting to reconnect to the database")
	if err := dm.closeLocked(); err != nil {
		dm.logger.Warn("Error disconnecting existing connection", "error", err)
	}
	return dm.dialLocked(ctx)
}

func (dm *defaultDatabaseManager) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tries := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		healthy := dm.HealthCheck(checkCtx).Healthy
		cancel()
		if healthy {
			tries = 0
			continue
		}

		cfg := dm.conn()
		if !cfg.EnableReconnect {
			continue
		}
		if tries >= cfg.MaxReconnectTries {
			if tries == cfg.MaxReconnectTries {
				dm.logger.Error("Max reconnect attempts reached, stopping", "tries", tries)
				tries++
			}
			continue
		}
		tries++

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.ReconnectInterval):
		}
		if err := dm.recover(ctx); err != nil {
			dm.logger.Error("Reconnect failed", "error", err, "try", tries)
			continue
		}
		dm.logger.Info("Reconnect succeeded", "try", tries)
		tries = 0
	}
}

// recover redials unless Disconnect stopped the watcher in the meantime.
func (dm *defaultDatabaseManager) recover(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return dm.redialLocked(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	if db := dm.GetDB(); db != nil {
		return db.DB
	}
	return nil
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	db := dm.GetDB()
	if db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(ctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
		status.Connected = true
	}

	stats := db.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections

	return status
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	db := dm.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) migrations() (*MigrationManager, error) {
	db := dm.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return NewMigrationManager(db, dm.logger, dm.config), nil
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context) error {
	mm, err := dm.migrations()
	if err != nil {
		return err
	}
	return mm.RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) InitData(ctx context.Context) error {
	mm, err := dm.migrations()
	if err != nil {
		return err
	}
	return mm.InitData(ctx)
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

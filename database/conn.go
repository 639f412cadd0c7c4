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
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
)

// OpenManager connects a manager for cfg, runs the migrations when
// runMigrations is set and seeds data when the configuration asks for it.
// The manager is closed again when any step fails.
func OpenManager(ctx context.Context, cfg *Config, runMigrations bool) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if !IsSupportedType(cfg.ConnectionConfig.Type) {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.ConnectionConfig.Type, SupportedTypes())
	}

	logger := GetLogger()
	dm := NewDatabaseManager(cfg)
	dm.SetLogger(logger)
	if err := dm.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		if err := dm.RunMigrations(ctx); err != nil {
			_ = dm.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if err := dm.InitData(ctx); err != nil {
			_ = dm.Disconnect()
			return nil, fmt.Errorf("failed to initialize data: %w", err)
		}
	}
	logger.Info("Database initialization completed!", "type", cfg.ConnectionConfig.Type, "migrated", runMigrations)
	return dm, nil
}

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.GetDB()
	}
	return nil
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// InitDB initializes the global database, migrating it when the
// configuration enables migrations on startup.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	return InitDatabaseWithOptions(ctx, cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
}

// InitDatabaseWithOptions initializes the global database. A previously
// initialized database is closed once the new one is ready.
func InitDatabaseWithOptions(ctx context.Context, cfg *Config, runMigrations bool) (*bun.DB, error) {
	dm, err := OpenManager(ctx, cfg, runMigrations)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := globalManager
	globalManager = dm
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Disconnect()
	}
	return dm.GetDB(), nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	dm := globalManager
	globalManager = nil
	globalMu.Unlock()
	if dm != nil {
		return dm.Disconnect()
	}
	return nil
}

// GetHealthStatus returns the current health of the global database.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.HealthCheck(ctx)
	}
	return &HealthStatus{
		Healthy:       false,
		Connected:     false,
		LastError:     "Database not initialized",
		LastCheckTime: time.Now(),
	}
}

// GetDatabaseStats returns the pool statistics of the global database.
func GetDatabaseStats() *DBStats {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.GetStats()
	}
	return &DBStats{}
}

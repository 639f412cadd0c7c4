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
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// Migration is the record of an applied step, stored in the migrations table.
type Migration struct {
	bun.BaseModel `bun:"table:migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc runs inside the transaction that records its step.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationStep is one version of the schema. Steps without Down cannot be
// rolled back.
type MigrationStep struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationManager creates the tables of the registered models and seeds
// them from SQL files.
type MigrationManager struct {
	db          *bun.DB
	logger      Logger
	config      *Config
	environment string
}

// NewMigrationManager constructs a MigrationManager. A nil cfg means
// DefaultConfig. The seeding environment defaults to "development".
func NewMigrationManager(db *bun.DB, logger Logger, cfg *Config) *MigrationManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}
	env := cfg.DataInitConfig.Environment
	if env == "" {
		env = "development"
	}
	return &MigrationManager{db: db, logger: logger, config: cfg, environment: env}
}

func (mm *MigrationManager) SetEnvironment(env string) {
	mm.environment = env
}

// Steps lists the known steps in version order. Seeding is a step only
// when the configuration asks to seed on migration.
func (mm *MigrationManager) Steps() []MigrationStep {
	steps := []MigrationStep{{
		Version:     "001",
		Name:        "create_base_tables",
		Description: "Create tables of the registered models",
		Up:          mm.createTables,
		Down:        mm.dropTables,
	}}
	if mm.config.DataInitConfig.AutoInitOnMigration {
		steps = append(steps, MigrationStep{
			Version:     "002",
			Name:        "seed_initial_data",
			Description: "Seed initial data",
			Up:          mm.seed,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps
}

// RunMigrations applies every pending step, each in its own transaction.
// Set BUNDEBUG_MIGRATION to see the statements in the query log.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	pending, err := mm.Pending(ctx)
	if err != nil {
		return err
	}
	for _, step := range pending {
		if err := mm.apply(ctx, step); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", step.Version, err)
		}
		mm.logger.Info("Migration executed successfully", "version", step.Version, "name", step.Name)
	}
	mm.logger.Info("Database migrations completed!", "applied", len(pending))
	return nil
}

// Pending returns the steps that have no record yet.
func (mm *MigrationManager) Pending(ctx context.Context) ([]MigrationStep, error) {
	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := mm.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}
	var pending []MigrationStep
	for _, step := range mm.Steps() {
		if !done[step.Version] {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

func (mm *MigrationManager) apply(ctx context.Context, step MigrationStep) error {
	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := step.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&Migration{
				Version:     step.Version,
				Name:        step.Name,
				AppliedAt:   time.Now(),
				Description: step.Description,
			}).
			Exec(ctx)
		return err
	})
}

// Applied returns the migration records ordered by version.
func (mm *MigrationManager) Applied(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, err
}

// Rollback runs the Down step of an applied version and removes its record.
func (mm *MigrationManager) Rollback(ctx context.Context, version string) error {
	var step *MigrationStep
	for _, s := range mm.Steps() {
		if s.Version == version {
			step = &s
			break
		}
	}
	if step == nil {
		return fmt.Errorf("unknown migration version: %s", version)
	}
	if step.Down == nil {
		return fmt.Errorf("migration %s cannot be rolled back", version)
	}
	return mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*Migration)(nil)).
			Where("version = ?", version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("migration %s is not applied", version)
		}
		if err := step.Down(ctx, tx); err != nil {
			return err
		}
		mm.logger.Info("Migration rolled back", "version", version, "name", step.Name)
		return nil
	})
}

// ForeignKeys returns the constraints declared while creating tables: the
// foreign key file when configured, the registered constraints otherwise.
func (mm *MigrationManager) ForeignKeys() (*ForeignKeyManager, error) {
	fkm := NewForeignKeyManager(mm.logger)
	if path := mm.config.DataMigrateConfig.ForeignKeyFile; path != "" {
		fkm = ForeignKeysFromFile(mm.logger, path)
	}
	if errs := fkm.Validate(); len(errs) > 0 {
		for _, err := range errs {
			mm.logger.Warn("Foreign key constraint validation failed", "error", err.Error())
		}
		return nil, fmt.Errorf("foreign key constraint validation failed, %d errors in total", len(errs))
	}
	return fkm, nil
}

func (mm *MigrationManager) createTables(ctx context.Context, db bun.IDB) error {
	var fkm *ForeignKeyManager
	if mm.config.DataMigrateConfig.EnableForeignKey {
		var err error
		if fkm, err = mm.ForeignKeys(); err != nil {
			return err
		}
	}
	for _, model := range RegisteredModelInstances() {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if fkm != nil {
			q = fkm.Apply(q, db.Dialect().Tables().Get(modelType(model)).Name)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %s: %w", modelType(model).Name(), err)
		}
	}
	return nil
}

// dropTables drops in reverse registration order so referencing tables go first.
func (mm *MigrationManager) dropTables(ctx context.Context, db bun.IDB) error {
	models := RegisteredModelInstances()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", modelType(models[i]).Name(), err)
		}
	}
	return nil
}

// InitData runs the SQL seed files outside of the migration history.
func (mm *MigrationManager) InitData(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return mm.seed(ctx, mm.db)
}

func (mm *MigrationManager) seed(ctx context.Context, db bun.IDB) error {
	root := mm.config.DataInitConfig.Filepath
	if root == "" {
		root = "configs/sql"
	}
	if _, err := NewDirSeeder(db, root, mm.environment).WithLogger(mm.logger).Run(ctx); err != nil {
		return fmt.Errorf("SQL file initialization failed: %w", err)
	}
	return nil
}

func modelType(model interface{}) reflect.Type {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

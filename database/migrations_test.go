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

package database_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/model"
)

func migrated(t *testing.T, cfg *database.Config) (database.AbstractDatabaseManager, *database.MigrationManager) {
	t.Helper()
	ctx := context.Background()
	dm := database.NewDatabaseManager(cfg)
	require.NoError(t, dm.Connect(ctx))
	t.Cleanup(func() { _ = dm.Disconnect() })
	mm := database.NewMigrationManager(dm.GetDB(), nil, cfg)
	require.NoError(t, mm.RunMigrations(ctx))
	return dm, mm
}

func TestRunMigrationsCreatesTablesWithForeignKeys(t *testing.T) {
	ctx := context.Background()
	dm, mm := migrated(t, database.NewMemoryConfig("migrations_fk"))
	db := dm.GetDB()

	applied, err := mm.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)

	require.NoError(t, mm.RunMigrations(ctx), "migrations are idempotent")

	team := model.NewTeam("teamA")
	_, err = db.NewInsert().Model(team).Exec(ctx)
	require.NoError(t, err)
	member := model.NewMember("member1", 10, team)
	_, err = db.NewInsert().Model(member).Exec(ctx)
	require.NoError(t, err)

	dangling := int64(999)
	orphan := &model.Member{Username: "orphan", Age: 1, TeamID: &dangling}
	_, err = db.NewInsert().Model(orphan).Exec(ctx)
	assert.ErrorIs(t, database.TranslateError(err), database.ErrConstraintViolation)

	_, err = db.NewDelete().Model(team).WherePK().Exec(ctx)
	require.NoError(t, err)
	reloaded := new(model.Member)
	require.NoError(t, db.NewSelect().Model(reloaded).Where("m.id = ?", member.ID).Scan(ctx))
	assert.Nil(t, reloaded.TeamID, "deleting a team nullifies its members' team_id")
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	dm, mm := migrated(t, database.NewMemoryConfig("migrations_rollback"))

	pending, err := mm.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, mm.Rollback(ctx, "001"))
	applied, err := mm.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	pending, err = mm.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "create_base_tables", pending[0].Name)

	_, err = dm.GetDB().NewSelect().Model((*model.Team)(nil)).Count(ctx)
	assert.Error(t, err)

	assert.Error(t, mm.Rollback(ctx, "001"))
	assert.Error(t, mm.Rollback(ctx, "404"))
}

func TestSeedOnMigration(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "common"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "environments", "test"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "common", "001_teams.sql"), []byte(`
-- teams used by every environment
INSERT INTO teams (name) VALUES ('teamA');
INSERT INTO teams (name) VALUES ('teamB');
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "environments", "test", "001_members.sql"), []byte(`
INSERT INTO members (username, age, team_id)
  VALUES ('{{.ENVIRONMENT}}-member', 10, 1);
`), 0o644))

	cfg := database.NewMemoryConfig("migrations_seed")
	cfg.DataInitConfig.AutoInitOnMigration = true
	cfg.DataInitConfig.Filepath = root
	cfg.DataInitConfig.Environment = "test"
	dm, mm := migrated(t, cfg)

	applied, err := mm.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	teams, err := dm.GetDB().NewSelect().Model((*model.Team)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, teams)

	var username string
	require.NoError(t, dm.GetDB().NewSelect().Model((*model.Member)(nil)).Column("username").Scan(ctx, &username))
	assert.Equal(t, "test-member", username)
}

func TestForeignKeysFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
foreign_keys:
  - table: members
    column: team_id
    reference_table: teams
    reference_column: id
    on_delete: EXPLODE
`), 0o644))

	cfg := database.NewMemoryConfig("migrations_bad_fk")
	cfg.DataMigrateConfig.ForeignKeyFile = path
	dm := database.NewDatabaseManager(cfg)
	require.NoError(t, dm.Connect(context.Background()))
	defer func() { _ = dm.Disconnect() }()

	err := dm.RunMigrations(context.Background())
	assert.ErrorContains(t, err, "foreign key constraint validation failed")
}

func TestInitDB(t *testing.T) {
	ctx := context.Background()
	db, err := database.InitDB(ctx, database.NewMemoryConfig("global_init"))
	require.NoError(t, err)
	defer func() { _ = database.CloseDB() }()

	assert.Same(t, db, database.GetDB())
	assert.NotNil(t, database.GetDatabaseManager())
	assert.True(t, database.GetHealthStatus(ctx).Healthy)
	assert.Equal(t, 1, database.GetDatabaseStats().MaxOpenConns)

	n, err := db.NewSelect().Model((*model.Member)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, database.CloseDB())
	assert.Nil(t, database.GetDB())
	assert.False(t, database.GetHealthStatus(ctx).Healthy)
}

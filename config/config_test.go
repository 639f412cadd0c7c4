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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "datajpa.yaml", `
connection:
  type: postgres
  driver: pgx
  host: db.internal
  port: 5432
  username: app
  dbname: members
  lock_timeout: 3s
migrate:
  enable_foreign_key: false
init:
  environment: dev
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "pgx", cfg.ConnectionConfig.Driver)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 3*time.Second, cfg.ConnectionConfig.LockTimeout)
	assert.False(t, cfg.DataMigrateConfig.EnableForeignKey)
	assert.True(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "dev", cfg.DataInitConfig.Environment)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns, "defaults fill unset keys")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "datajpa.yaml", `
connection:
  type: mysql
  dbname: members
`)
	t.Setenv("DATAJPA_CONNECTION_DBNAME", "override")
	t.Setenv("DATAJPA_CONNECTION_MAX_OPEN_CONNS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.ConnectionConfig.Type)
	assert.Equal(t, "override", cfg.ConnectionConfig.DBName)
	assert.Equal(t, 7, cfg.ConnectionConfig.MaxOpenConns)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "DATAJPA_CONNECTION_DSN"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	writeFile(t, dir, ".env", key+"=file:dotenv?mode=memory&cache=shared\n")
	path := writeFile(t, dir, "datajpa.yaml", "connection:\n  type: sqlite\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file:dotenv?mode=memory&cache=shared", cfg.ConnectionConfig.DSN)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, "configs/sql", cfg.DataInitConfig.Filepath)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "datajpa.yaml", `
connection:
  type: oracle
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

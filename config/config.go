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

// Package config loads database.Config from a YAML file, a .env file and
// DATAJPA_ prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/utils"
)

const EnvPrefix = "DATAJPA"

// Load reads path (optional) and the environment into a validated
// database.Config. Environment variables win over the file, e.g.
// DATAJPA_CONNECTION_TYPE overrides connection.type. A .env file next to
// path, or in the working directory, only fills variables that are unset.
func Load(path string) (*database.Config, error) {
	loadDotEnv(path)

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg database.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if level := v.GetString("log.level"); level != "" {
		utils.SetAllLoggersLevel(utils.ParseLogLevel(level))
	}
	if format := v.GetString("log.format"); format != "" {
		utils.ConfigureLogFormat(format)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks the struct tags of cfg.
func Validate(cfg *database.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

func loadDotEnv(path string) {
	candidates := []string{".env"}
	if path != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(path), ".env")}, candidates...)
	}
	for _, file := range candidates {
		envMap, err := godotenv.Read(file)
		if err != nil {
			continue
		}
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
		return
	}
}

func setDefaults(v *viper.Viper) {
	def := database.DefaultConfig()
	conn := def.ConnectionConfig

	v.SetDefault("log.level", "")
	v.SetDefault("log.format", "")

	v.SetDefault("connection.type", "sqlite")
	v.SetDefault("connection.driver", "")
	v.SetDefault("connection.dsn", "")
	v.SetDefault("connection.host", "localhost")
	v.SetDefault("connection.port", 0)
	v.SetDefault("connection.username", "")
	v.SetDefault("connection.password", "")
	v.SetDefault("connection.dbname", "datajpa")
	v.SetDefault("connection.sslmode", "")
	v.SetDefault("connection.max_idle_conns", conn.MaxIdleConns)
	v.SetDefault("connection.max_open_conns", conn.MaxOpenConns)
	v.SetDefault("connection.conn_max_lifetime", conn.ConnMaxLifetime)
	v.SetDefault("connection.conn_max_idle_time", conn.ConnMaxIdleTime)
	v.SetDefault("connection.connect_timeout", conn.ConnectTimeout)
	v.SetDefault("connection.read_timeout", conn.ReadTimeout)
	v.SetDefault("connection.write_timeout", conn.WriteTimeout)
	v.SetDefault("connection.lock_timeout", conn.LockTimeout)
	v.SetDefault("connection.enable_reconnect", conn.EnableReconnect)
	v.SetDefault("connection.reconnect_interval", conn.ReconnectInterval)
	v.SetDefault("connection.max_reconnect_tries", conn.MaxReconnectTries)
	v.SetDefault("connection.health_check_interval", conn.HealthCheckInterval)
	v.SetDefault("connection.enable_query_log", conn.EnableQueryLog)
	v.SetDefault("connection.query_log_format", conn.QueryLogFormat)
	v.SetDefault("connection.slow_query_time", conn.SlowQueryTime)
	v.SetDefault("connection.charset", "")

	v.SetDefault("migrate.enable_migrate_on_startup", def.DataMigrateConfig.EnableMigrateOnStartup)
	v.SetDefault("migrate.enable_foreign_key", def.DataMigrateConfig.EnableForeignKey)
	v.SetDefault("migrate.foreign_key_file", def.DataMigrateConfig.ForeignKeyFile)

	v.SetDefault("init.auto_init_on_startup", def.DataInitConfig.AutoInitOnStartup)
	v.SetDefault("init.auto_init_on_migration", def.DataInitConfig.AutoInitOnMigration)
	v.SetDefault("init.filepath", def.DataInitConfig.Filepath)
	v.SetDefault("init.environment", def.DataInitConfig.Environment)
}

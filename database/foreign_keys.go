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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint describes a foreign key relationship between tables.
// The yaml tags match the layout of a foreign key file:
//
//	foreign_keys:
//	  - table: members
//	    column: team_id
//	    reference_table: teams
//	    reference_column: id
//	    on_delete: SET NULL
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"` // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
	Description     string `yaml:"description,omitempty"`
}

type foreignKeyFile struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

var (
	foreignKeyRegistryMu sync.RWMutex
	foreignKeyRegistry   []ForeignKeyConstraint
)

// RegisterForeignKey adds a code-defined constraint. Models register their
// constraints from init next to RegisterModel.
func RegisterForeignKey(fk ForeignKeyConstraint) {
	foreignKeyRegistryMu.Lock()
	defer foreignKeyRegistryMu.Unlock()
	foreignKeyRegistry = append(foreignKeyRegistry, fk)
}

// RegisteredForeignKeys returns a copy of the code-defined constraints.
func RegisteredForeignKeys() []ForeignKeyConstraint {
	foreignKeyRegistryMu.RLock()
	defer foreignKeyRegistryMu.RUnlock()
	return slices.Clone(foreignKeyRegistry)
}

// Name returns the explicit constraint name or fk_<table>_<column>.
func (fk ForeignKeyConstraint) Name() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// Clause renders the constraint body accepted by bun's CreateTableQuery.ForeignKey.
// Identifiers are passed as arguments so every dialect quotes them itself.
func (fk ForeignKeyConstraint) Clause() (string, []interface{}) {
	var b strings.Builder
	b.WriteString("(?) REFERENCES ? (?)")
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE ")
		b.WriteString(strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(strings.ToUpper(fk.OnUpdate))
	}
	return b.String(), []interface{}{bun.Ident(fk.Column), bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn)}
}

func validAction(action string) bool {
	return action == "" || slices.ContainsFunc(referentialActions, func(a string) bool {
		return strings.EqualFold(action, a)
	})
}

// Validate reports every missing identifier and unknown referential action.
func (fk ForeignKeyConstraint) Validate() []error {
	var errs []error
	if fk.Table == "" {
		errs = append(errs, fmt.Errorf("table name cannot be empty"))
	}
	if fk.Column == "" {
		errs = append(errs, fmt.Errorf("column name cannot be empty: %s", fk.Table))
	}
	if fk.ReferenceTable == "" {
		errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", fk.Table, fk.Column))
	}
	if fk.ReferenceColumn == "" {
		errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", fk.Table, fk.Column, fk.ReferenceTable))
	}
	if !validAction(fk.OnDelete) {
		errs = append(errs, fmt.Errorf("invalid delete policy: %s, constraint: %s", fk.OnDelete, fk.Name()))
	}
	if !validAction(fk.OnUpdate) {
		errs = append(errs, fmt.Errorf("invalid update policy: %s, constraint: %s", fk.OnUpdate, fk.Name()))
	}
	return errs
}

// LoadForeignKeys reads the constraints listed in a foreign key file.
func LoadForeignKeys(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var file foreignKeyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file %s: %w", path, err)
	}
	return file.ForeignKeys, nil
}

// WriteForeignKeys stores fks as a foreign key file, filling in constraint
// names and descriptions. Missing directories are created.
func WriteForeignKeys(path string, fks []ForeignKeyConstraint) error {
	file := foreignKeyFile{ForeignKeys: make([]ForeignKeyConstraint, 0, len(fks))}
	for _, fk := range fks {
		fk.ConstraintName = fk.Name()
		if fk.Description == "" {
			fk.Description = fmt.Sprintf("%s.%s -> %s.%s", fk.Table, fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
		}
		file.ForeignKeys = append(file.ForeignKeys, fk)
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to serialize foreign keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ForeignKeyManager holds the constraints declared while creating tables.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager manages the registered constraints.
func NewForeignKeyManager(logger Logger) *ForeignKeyManager {
	return &ForeignKeyManager{constraints: RegisteredForeignKeys(), logger: logger}
}

// ForeignKeysFromFile manages the constraints of a foreign key file, or the
// registered ones when the file cannot be loaded.
func ForeignKeysFromFile(logger Logger, path string) *ForeignKeyManager {
	fks, err := LoadForeignKeys(path)
	if err != nil {
		if logger != nil {
			logger.Debug("Using registered foreign keys", "error", err.Error(), "config_path", path)
		}
		return NewForeignKeyManager(logger)
	}
	return &ForeignKeyManager{constraints: fks, logger: logger}
}

func (fkm *ForeignKeyManager) Constraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ForTable returns the constraints owned by table.
func (fkm *ForeignKeyManager) ForTable(table string) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, fk := range fkm.constraints {
		if strings.EqualFold(fk.Table, table) {
			out = append(out, fk)
		}
	}
	return out
}

func (fkm *ForeignKeyManager) Validate() []error {
	var errs []error
	for _, fk := range fkm.constraints {
		errs = append(errs, fk.Validate()...)
	}
	return errs
}

// Apply declares the constraints owned by table on the create table query.
// SQLite cannot add constraints after the fact, so they are always inline.
func (fkm *ForeignKeyManager) Apply(q *bun.CreateTableQuery, table string) *bun.CreateTableQuery {
	for _, fk := range fkm.ForTable(table) {
		clause, args := fk.Clause()
		q = q.ForeignKey(clause, args...)
		if fkm.logger != nil {
			fkm.logger.Debug("Declared foreign key constraint", "constraint", fk.Name())
		}
	}
	return q
}

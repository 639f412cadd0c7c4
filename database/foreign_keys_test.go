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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ownerFK = ForeignKeyConstraint{
	Table:           "pets",
	Column:          "owner_id",
	ReferenceTable:  "owners",
	ReferenceColumn: "id",
	OnDelete:        "set null",
}

func TestForeignKeyClause(t *testing.T) {
	clause, args := ownerFK.Clause()
	assert.Equal(t, "(?) REFERENCES ? (?) ON DELETE SET NULL", clause)
	assert.Len(t, args, 3)
	assert.Equal(t, "fk_pets_owner_id", ownerFK.Name())

	fk := ownerFK
	fk.OnUpdate = "cascade"
	fk.ConstraintName = "pets_owner"
	clause, _ = fk.Clause()
	assert.Equal(t, "(?) REFERENCES ? (?) ON DELETE SET NULL ON UPDATE CASCADE", clause)
	assert.Equal(t, "pets_owner", fk.Name())
}

func TestValidateConstraints(t *testing.T) {
	fkm := &ForeignKeyManager{constraints: []ForeignKeyConstraint{
		ownerFK,
		{Table: "pets", Column: "vet_id", ReferenceTable: "vets", ReferenceColumn: "id", OnDelete: "explode"},
		{Table: "pets", ReferenceTable: "toys", OnUpdate: "later"},
	}}
	// invalid delete policy, missing column, missing reference column, invalid update policy
	assert.Len(t, fkm.Validate(), 4)
	assert.Empty(t, ownerFK.Validate())

	assert.Len(t, fkm.ForTable("PETS"), 3)
	assert.Empty(t, fkm.ForTable("owners"))
}

func TestForeignKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
foreign_keys:
  - table: pets
    column: owner_id
    reference_table: owners
    reference_column: id
    on_delete: CASCADE
`), 0o644))

	fkm := ForeignKeysFromFile(nil, path)
	require.Len(t, fkm.Constraints(), 1)
	assert.Equal(t, "CASCADE", fkm.Constraints()[0].OnDelete)
	assert.Empty(t, fkm.Validate())

	out := filepath.Join(dir, "export", "fk.yaml")
	require.NoError(t, WriteForeignKeys(out, fkm.Constraints()))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "constraint_name: fk_pets_owner_id")
	assert.Contains(t, string(data), "description: pets.owner_id -> owners.id")

	reloaded, err := LoadForeignKeys(out)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "fk_pets_owner_id", reloaded[0].ConstraintName)

	require.NoError(t, os.WriteFile(path, []byte("foreign_keys: []\n"), 0o644))
	assert.Empty(t, ForeignKeysFromFile(nil, path).Constraints())
}

func TestForeignKeysFromMissingFileFallsBackToRegistered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	fkm := ForeignKeysFromFile(nil, path)
	assert.Equal(t, RegisteredForeignKeys(), fkm.Constraints())

	_, err := LoadForeignKeys(path)
	assert.Error(t, err)
}

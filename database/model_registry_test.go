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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type registryParent struct {
	bun.BaseModel `bun:"table:parents"`
	ID            int64 `bun:"id,pk,autoincrement"`
}

type registryChild struct {
	bun.BaseModel `bun:"table:children"`
	ID            int64 `bun:"id,pk,autoincrement"`
	ParentID      int64 `bun:"parent_id"`
}

func TestModelRegistryOrdersByPriority(t *testing.T) {
	r := NewModelRegistry()
	r.Register(prioritizedModel{instance: (*registryChild)(nil), priority: 2})
	r.Register(prioritizedModel{instance: (*registryParent)(nil), priority: 1})
	r.Register(prioritizedModel{instance: (*registryChild)(nil), priority: 0})

	instances := r.Instances()
	assert.Len(t, instances, 2, "a type registers once")
	assert.IsType(t, (*registryParent)(nil), instances[0])
	assert.IsType(t, (*registryChild)(nil), instances[1])

	tables := r.Tables(sqlitedialect.New())
	require.Len(t, tables, 2)
	assert.Equal(t, "parents", tables[0].Name)
	assert.Equal(t, "children", tables[1].Name)
}

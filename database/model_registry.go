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
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun/schema"
)

// SQLModel is an entity whose table migrations create. Instance returns a
// typed nil struct pointer, Priority orders creation: referenced tables get
// a lower priority than the tables referencing them.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry is the set of entity models of the application.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[reflect.Type]SQLModel
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[reflect.Type]SQLModel)}
}

// Register adds model. A second model of the same Go type is ignored.
func (r *ModelRegistry) Register(model SQLModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := reflect.TypeOf(model.Instance())
	if _, ok := r.models[typ]; !ok {
		r.models[typ] = model
	}
}

// Models returns the models by ascending priority, ties by type name.
func (r *ModelRegistry) Models() []SQLModel {
	r.mu.RLock()
	out := make([]SQLModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() < out[j].Priority()
		}
		return reflect.TypeOf(out[i].Instance()).String() < reflect.TypeOf(out[j].Instance()).String()
	})
	return out
}

func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance()
	}
	return out
}

// Tables resolves the bun table of every model with dialect.
func (r *ModelRegistry) Tables(dialect schema.Dialect) []*schema.Table {
	instances := r.Instances()
	out := make([]*schema.Table, 0, len(instances))
	for _, inst := range instances {
		out = append(out, dialect.Tables().Get(reflect.TypeOf(inst).Elem()))
	}
	return out
}

type prioritizedModel struct {
	instance interface{}
	priority int
}

func (m prioritizedModel) Instance() interface{} { return m.instance }

func (m prioritizedModel) Priority() int { return m.priority }

var defaultRegistry = NewModelRegistry()

// RegisterModel adds instance, a typed nil struct pointer, to the default
// registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(prioritizedModel{instance: instance, priority: priority})
}

func DefaultRegistry() *ModelRegistry { return defaultRegistry }

// RegisteredModelInstances lists the default registry, parents first.
func RegisteredModelInstances() []interface{} {
	return defaultRegistry.Instances()
}

// RegisteredTables lists the tables of the default registry.
func RegisteredTables(dialect schema.Dialect) []*schema.Table {
	return defaultRegistry.Tables(dialect)
}

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

package query

import (
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Property is an entity attribute resolved to its column. Relation is set for
// attributes reached through a to-one association, e.g. TeamName.
type Property struct {
	Name     string
	Column   string
	Relation string
	Alias    string
}

// PropertyResolver maps a capitalised attribute name to a Property.
type PropertyResolver func(name string) (Property, bool)

// SchemaResolver resolves attributes by the Go field names of table, and one
// level deep through belongs-to and has-one relations.
func SchemaResolver(table *schema.Table) PropertyResolver {
	return func(name string) (Property, bool) {
		if f := fieldByGoName(table, name); f != nil {
			return Property{Name: name, Column: f.Name}, true
		}
		for relName, rel := range table.Relations {
			if rel.Type != schema.BelongsToRelation && rel.Type != schema.HasOneRelation {
				continue
			}
			rest, ok := strings.CutPrefix(name, relName)
			if !ok || rest == "" {
				continue
			}
			if f := fieldByGoName(rel.JoinTable, rest); f != nil {
				return Property{Name: name, Column: f.Name, Relation: relName, Alias: rel.Field.Name}, true
			}
		}
		return Property{}, false
	}
}

func fieldByGoName(table *schema.Table, name string) *schema.Field {
	for _, f := range table.Fields {
		if f.GoName == name {
			return f
		}
	}
	return nil
}

// expr renders the column reference and its arguments.
func (p Property) expr() (string, []interface{}) {
	if p.Relation == "" {
		return "?TableAlias.?", []interface{}{bun.Ident(p.Column)}
	}
	return "?.?", []interface{}{bun.Ident(p.Alias), bun.Ident(p.Column)}
}

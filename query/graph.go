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

// EntityGraph names the associations to load together with the root entity.
// Paths use Go field names and may be nested with dots, e.g. "Team.Members".
type EntityGraph struct {
	Name  string
	Paths []string
}

// Apply eagerly loads every path of g. To-one relations are joined into the
// same statement, to-many relations cost one extra statement each.
func (g EntityGraph) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	for _, p := range g.Paths {
		q = q.Relation(p)
	}
	return q
}

func (g EntityGraph) label() string {
	if g.Name != "" {
		return g.Name
	}
	return "graph(" + strings.Join(g.Paths, ",") + ")"
}

// Validate checks every path against the relations of table.
func (g EntityGraph) Validate(table *schema.Table) error {
	if len(g.Paths) == 0 {
		return configErr(g.label(), "entity graph without attribute paths")
	}
	for _, path := range g.Paths {
		current := table
		for _, segment := range strings.Split(path, ".") {
			rel, ok := current.Relations[segment]
			if !ok {
				return configErr(g.label(), "%s has no relation %s", current.Type.Name(), segment)
			}
			current = rel.JoinTable
		}
	}
	return nil
}

// Graphs holds the named entity graphs of one entity.
type Graphs struct {
	table *schema.Table
	named map[string]EntityGraph
}

// NewGraphs validates the named graphs against table.
func NewGraphs(table *schema.Table, graphs ...EntityGraph) (*Graphs, error) {
	g := &Graphs{table: table, named: make(map[string]EntityGraph, len(graphs))}
	for _, graph := range graphs {
		if graph.Name == "" {
			return nil, configErr(graph.label(), "named entity graph without name")
		}
		if err := graph.Validate(table); err != nil {
			return nil, err
		}
		g.named[graph.Name] = graph
	}
	return g, nil
}

// Named returns a registered graph.
func (g *Graphs) Named(name string) (EntityGraph, error) {
	graph, ok := g.named[name]
	if !ok {
		return EntityGraph{}, configErr(name, "no entity graph registered")
	}
	return graph, nil
}

// Inline builds and validates an ad-hoc graph from attribute paths.
func (g *Graphs) Inline(paths ...string) (EntityGraph, error) {
	graph := EntityGraph{Paths: paths}
	if err := graph.Validate(g.table); err != nil {
		return EntityGraph{}, err
	}
	return graph, nil
}

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

package repository

import (
	"context"
	"reflect"

	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datajpa/model"
	"github.com/tomoncle/datajpa/query"
)

// TeamMembersGraph loads the members of each team.
const TeamMembersGraph = "Team.members"

// TeamQueries holds the parsed queries of TeamRepository.
type TeamQueries struct {
	graphs *query.Graphs
	byName *query.Derived
}

func NewTeamQueries(dialect schema.Dialect) (*TeamQueries, error) {
	table := dialect.Tables().Get(reflect.TypeOf(model.Team{}))
	byName, err := query.Parse("findByName", query.SchemaResolver(table))
	if err != nil {
		return nil, err
	}
	graphs, err := query.NewGraphs(table, query.EntityGraph{Name: TeamMembersGraph, Paths: []string{"Members"}})
	if err != nil {
		return nil, err
	}
	return &TeamQueries{graphs: graphs, byName: byName}, nil
}

type TeamRepository struct {
	*Repository[model.Team]
	q *TeamQueries
}

var _ EntityRepository[model.Team] = (*TeamRepository)(nil)

func NewTeamRepository(s *Session, q *TeamQueries) *TeamRepository {
	return &TeamRepository{Repository: NewRepository[model.Team](s), q: q}
}

func (r *TeamRepository) FindByName(ctx context.Context, name string) ([]*model.Team, error) {
	return r.FindDerived(ctx, r.q.byName, []interface{}{name})
}

// FindAllWithMembers loads every team with its members. Members loaded this
// way are not managed by the session.
func (r *TeamRepository) FindAllWithMembers(ctx context.Context) ([]*model.Team, error) {
	g, err := r.q.graphs.Named(TeamMembersGraph)
	if err != nil {
		return nil, err
	}
	return r.FindWithGraph(ctx, g)
}

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

	"github.com/pkg/errors"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/model"
	"github.com/tomoncle/datajpa/query"
	"github.com/tomoncle/datajpa/types"
)

// Named queries of Member.
const (
	MemberFindByUsername query.QueryID = iota + 1
	MemberFindUser
	MemberFindUsernameList
	MemberFindMemberDto
	MemberFindByNames
	MemberBulkAgePlus
)

// MemberAllGraph loads the team of each member.
const MemberAllGraph = "Member.all"

var memberNamedQueries = []query.NamedQuery{
	{
		ID:        MemberFindByUsername,
		Name:      "Member.findByUsername",
		Kind:      query.KindSelect,
		Statement: "SELECT m.* FROM members AS m WHERE m.username = :username ORDER BY m.id",
	},
	{
		ID:        MemberFindUser,
		Name:      "Member.findUser",
		Kind:      query.KindSelect,
		Statement: "SELECT m.* FROM members AS m WHERE m.username = :username AND m.age = :age ORDER BY m.id",
	},
	{
		ID:        MemberFindUsernameList,
		Name:      "Member.findUsernameList",
		Kind:      query.KindSelect,
		Statement: "SELECT m.username FROM members AS m ORDER BY m.id",
	},
	{
		ID:   MemberFindMemberDto,
		Name: "Member.findMemberDto",
		Kind: query.KindSelect,
		Statement: "SELECT m.id, m.username, t.name AS team_name FROM members AS m " +
			"JOIN teams AS t ON t.id = m.team_id ORDER BY m.id",
	},
	{
		ID:        MemberFindByNames,
		Name:      "Member.findByNames",
		Kind:      query.KindSelect,
		Statement: "SELECT m.* FROM members AS m WHERE m.username IN (:names) ORDER BY m.id",
	},
	{
		ID:        MemberBulkAgePlus,
		Name:      "Member.bulkAgePlus",
		Kind:      query.KindModify,
		Statement: "UPDATE members SET age = age + 1 WHERE age = :age",
	},
}

// MemberQueries holds the parsed and validated queries of MemberRepository.
// Build it once at startup and share it between sessions.
type MemberQueries struct {
	named  *query.Registry
	graphs *query.Graphs
	custom query.EntityGraph

	byUsernameAndAgeGreaterThan *query.Derived
	hello                       *query.Derived
	top3Hello                   *query.Derived
	listByUsername              *query.Derived
	memberByUsername            *query.Derived
	optionalByUsername          *query.Derived
	byAge                       *query.Derived
	byAgeOrderByUsernameDesc    *query.Derived
	countByAge                  *query.Derived
	entityGraphByUsername       *query.Derived
	readOnlyByUsername          *query.Derived
	lockByUsername              *query.Derived
}

// NewMemberQueries parses every query against the schema of dialect. A
// returned error is a *query.ConfigurationError.
func NewMemberQueries(dialect schema.Dialect) (*MemberQueries, error) {
	table := dialect.Tables().Get(reflect.TypeOf(model.Member{}))
	resolve := query.SchemaResolver(table)

	var err error
	parse := func(method string) *query.Derived {
		if err != nil {
			return nil
		}
		var d *query.Derived
		d, err = query.Parse(method, resolve)
		return d
	}
	q := &MemberQueries{
		byUsernameAndAgeGreaterThan: parse("findByUsernameAndAgeGreaterThan"),
		hello:                       parse("findHelloBy"),
		top3Hello:                   parse("findTop3HelloBy"),
		listByUsername:              parse("findListByUsername"),
		memberByUsername:            parse("findMemberByUsername"),
		optionalByUsername:          parse("findOptionalByUsername"),
		byAge:                       parse("findByAge"),
		byAgeOrderByUsernameDesc:    parse("findByAgeOrderByUsernameDesc"),
		countByAge:                  parse("countByAge"),
		entityGraphByUsername:       parse("findEntityGraphByUsername"),
		readOnlyByUsername:          parse("findReadOnlyByUsername"),
		lockByUsername:              parse("findLockByUsername"),
	}
	if err != nil {
		return nil, err
	}

	if q.named, err = query.NewRegistry(query.SchemaCatalog(database.RegisteredTables(dialect)...), memberNamedQueries...); err != nil {
		return nil, err
	}
	q.graphs, err = query.NewGraphs(table, query.EntityGraph{Name: MemberAllGraph, Paths: []string{"Team"}})
	if err != nil {
		return nil, err
	}
	if q.custom, err = q.graphs.Inline("Team"); err != nil {
		return nil, err
	}
	return q, nil
}

// Named returns the registered named query id.
func (q *MemberQueries) Named(id query.QueryID) (query.NamedQuery, error) {
	return q.named.Get(id)
}

// MemberRepository is the Member facade over Repository.
type MemberRepository struct {
	*Repository[model.Member]
	q *MemberQueries
}

var _ EntityRepository[model.Member] = (*MemberRepository)(nil)

func NewMemberRepository(s *Session, q *MemberQueries) *MemberRepository {
	return &MemberRepository{Repository: NewRepository[model.Member](s), q: q}
}

func (r *MemberRepository) named(ctx context.Context, id query.QueryID, args ...interface{}) ([]*model.Member, error) {
	nq, err := r.q.named.Get(id)
	if err != nil {
		return nil, err
	}
	return r.FindNamed(ctx, nq, args...)
}

func (r *MemberRepository) graph(name string) (query.EntityGraph, error) {
	return r.q.graphs.Named(name)
}

// FindAll loads every member together with its team.
func (r *MemberRepository) FindAll(ctx context.Context, opts ...Option) ([]*model.Member, error) {
	g, err := r.graph(MemberAllGraph)
	if err != nil {
		return nil, err
	}
	return r.Repository.FindAll(ctx, append(opts, WithGraph(g))...)
}

func (r *MemberRepository) FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.byUsernameAndAgeGreaterThan, []interface{}{username, age})
}

// FindHelloBy has no condition and returns every member.
func (r *MemberRepository) FindHelloBy(ctx context.Context) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.hello, nil)
}

// FindTop3HelloBy returns the first three members by key.
func (r *MemberRepository) FindTop3HelloBy(ctx context.Context) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.top3Hello, nil)
}

func (r *MemberRepository) FindByUsername(ctx context.Context, username string) ([]*model.Member, error) {
	return r.named(ctx, MemberFindByUsername, username)
}

func (r *MemberRepository) FindUser(ctx context.Context, username string, age int) ([]*model.Member, error) {
	return r.named(ctx, MemberFindUser, username, age)
}

func (r *MemberRepository) FindUsernameList(ctx context.Context) ([]string, error) {
	nq, err := r.q.named.Get(MemberFindUsernameList)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	if err := r.ScanNamed(ctx, nq, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// FindMemberDto projects members that have a team.
func (r *MemberRepository) FindMemberDto(ctx context.Context) ([]*model.MemberDto, error) {
	nq, err := r.q.named.Get(MemberFindMemberDto)
	if err != nil {
		return nil, err
	}
	dtos := make([]*model.MemberDto, 0)
	if err := r.ScanNamed(ctx, nq, &dtos); err != nil {
		return nil, err
	}
	return dtos, nil
}

func (r *MemberRepository) FindByNames(ctx context.Context, names []string) ([]*model.Member, error) {
	if len(names) == 0 {
		return make([]*model.Member, 0), nil
	}
	return r.named(ctx, MemberFindByNames, names)
}

func (r *MemberRepository) FindListByUsername(ctx context.Context, username string) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.listByUsername, []interface{}{username})
}

// FindMemberByUsername returns nil when no member matches and
// ErrNonUniqueResult when several do.
func (r *MemberRepository) FindMemberByUsername(ctx context.Context, username string) (*model.Member, error) {
	return r.FindOneDerived(ctx, r.q.memberByUsername, []interface{}{username})
}

func (r *MemberRepository) FindOptionalByUsername(ctx context.Context, username string) (types.Optional[model.Member], error) {
	return r.FindOptionalDerived(ctx, r.q.optionalByUsername, []interface{}{username})
}

// FindSliceByAge reads size+1 rows and reports HasNext without counting.
func (r *MemberRepository) FindSliceByAge(ctx context.Context, age int, req *types.PageRequest) (*types.Slice[model.Member], error) {
	return r.FindSliceDerived(ctx, r.q.byAge, []interface{}{age}, req)
}

// FindPageByAge also counts the members of that age.
func (r *MemberRepository) FindPageByAge(ctx context.Context, age int, req *types.PageRequest) (*types.Page[model.Member], error) {
	return r.FindPageDerived(ctx, r.q.byAge, []interface{}{age}, req)
}

// FindByPage returns limit members of age starting at offset, by username
// descending.
func (r *MemberRepository) FindByPage(ctx context.Context, age, offset, limit int) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.byAgeOrderByUsernameDesc, []interface{}{age}, WithRange(offset, limit))
}

func (r *MemberRepository) TotalCount(ctx context.Context, age int) (int, error) {
	return r.CountDerived(ctx, r.q.countByAge, age)
}

// BulkAgePlus increments the age of every member aged age in one statement.
// Members already loaded keep their old age until Session.Clear.
func (r *MemberRepository) BulkAgePlus(ctx context.Context, age int) (int64, error) {
	nq, err := r.q.named.Get(MemberBulkAgePlus)
	if err != nil {
		return 0, err
	}
	return r.ExecNamed(ctx, nq, age)
}

// FindMembersByFetch loads members joined with their team in one statement.
func (r *MemberRepository) FindMembersByFetch(ctx context.Context) ([]*model.Member, error) {
	return r.Repository.FindAll(ctx, WithGraph(r.q.custom))
}

func (r *MemberRepository) FindAllWithTeamFetch(ctx context.Context) ([]*model.Member, error) {
	return r.FindMembersByFetch(ctx)
}

// FindAllCustom is FindAll with an inline graph.
func (r *MemberRepository) FindAllCustom(ctx context.Context) ([]*model.Member, error) {
	return r.FindWithGraph(ctx, r.q.custom)
}

func (r *MemberRepository) FindEntityGraphByUsername(ctx context.Context, username string) ([]*model.Member, error) {
	g, err := r.graph(MemberAllGraph)
	if err != nil {
		return nil, err
	}
	return r.FindDerived(ctx, r.q.entityGraphByUsername, []interface{}{username}, WithGraph(g))
}

// FindReadOnlyByUsername returns a member that Flush never writes. Changes
// made to it are lost.
func (r *MemberRepository) FindReadOnlyByUsername(ctx context.Context, username string) (*model.Member, error) {
	return r.FindOneDerived(ctx, r.q.readOnlyByUsername, []interface{}{username}, ReadOnly())
}

// FindLockByUsername locks the matching rows for update until the enclosing
// transaction ends. Waiting longer than the session lock timeout fails with
// an error matching database.ErrLockTimeout.
func (r *MemberRepository) FindLockByUsername(ctx context.Context, username string) ([]*model.Member, error) {
	return r.FindDerived(ctx, r.q.lockByUsername, []interface{}{username}, WithLock(types.LockPessimisticWrite))
}

// LoadTeam loads the team of a managed member with a separate statement.
func (r *MemberRepository) LoadTeam(ctx context.Context, m *model.Member) (*model.Team, error) {
	if m == nil {
		return nil, errors.New("load team: nil member")
	}
	if m.Team != nil || m.TeamID == nil {
		return m.Team, nil
	}
	if err := r.LoadRelation(ctx, m, "Team"); err != nil {
		return nil, err
	}
	return m.Team, nil
}

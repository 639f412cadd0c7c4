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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datajpa/model"
	"github.com/tomoncle/datajpa/types"
)

func TestSplitCamel(t *testing.T) {
	assert.Equal(t, []string{"find", "By", "Username", "And", "Age", "Greater", "Than"}, splitCamel("findByUsernameAndAgeGreaterThan"))
	assert.Equal(t, []string{"Find", "Top3", "Hello", "By"}, splitCamel("FindTop3HelloBy"))
	assert.Equal(t, []string{"Team", "ID"}, splitCamel("TeamID"))
	assert.Equal(t, []string{"HTTP", "Server"}, splitCamel("HTTPServer"))
	assert.Nil(t, splitCamel(""))
}

func TestParseConjunction(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))
	d, err := Parse("FindByUsernameAndAgeGreaterThan", resolve)
	require.NoError(t, err)

	assert.Equal(t, ActionFind, d.Action)
	require.Len(t, d.Conditions, 2)
	assert.Equal(t, "username", d.Conditions[0].Property.Column)
	assert.Equal(t, OpEquals, d.Conditions[0].Operator)
	assert.Equal(t, "age", d.Conditions[1].Property.Column)
	assert.Equal(t, OpGreaterThan, d.Conditions[1].Operator)
	assert.Equal(t, 2, d.Arity())
}

func TestParseSubject(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))

	d, err := Parse("FindHelloBy", resolve)
	require.NoError(t, err)
	assert.Empty(t, d.Conditions)
	assert.Zero(t, d.Limit)
	assert.Zero(t, d.Arity())

	d, err = Parse("FindTop3HelloBy", resolve)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Limit)

	d, err = Parse("FindFirstByAge", resolve)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Limit)

	d, err = Parse("FindDistinctTopicsByAge", resolve)
	require.NoError(t, err)
	assert.True(t, d.Distinct)
	assert.Zero(t, d.Limit, "free text starting with Top is not a limit")

	d, err = Parse("CountByAge", resolve)
	require.NoError(t, err)
	assert.Equal(t, ActionCount, d.Action)

	d, err = Parse("existsByUsername", resolve)
	require.NoError(t, err)
	assert.Equal(t, ActionExists, d.Action)
}

func TestParseOperators(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))
	cases := map[string]struct {
		op    Operator
		arity int
	}{
		"FindByAgeBetween":                {OpBetween, 2},
		"FindByTeamIDIsNull":              {OpIsNull, 0},
		"FindByTeamIDNotNull":             {OpIsNotNull, 0},
		"FindByAgeGreaterThanEqual":       {OpGreaterThanEqual, 1},
		"FindByAgeIsLessThan":             {OpLessThan, 1},
		"FindByUsernameNot":               {OpNotEquals, 1},
		"FindByUsernameIn":                {OpIn, 1},
		"FindByUsernameNotIn":             {OpNotIn, 1},
		"FindByUsernameStartingWith":      {OpStartingWith, 1},
		"FindByUsernameContaining":        {OpContaining, 1},
		"FindByUsernameNotLike":           {OpNotLike, 1},
		"FindByUsernameIs":                {OpEquals, 1},
		"FindByUsernameEndsWith":          {OpEndingWith, 1},
		"FindByUsernameEqualsIgnoreCase":  {OpEquals, 1},
		"FindByAgeAfterAndUsernameBefore": {OpAfter, 2},
	}
	for method, want := range cases {
		d, err := Parse(method, resolve)
		require.NoError(t, err, method)
		assert.Equal(t, want.op, d.Conditions[0].Operator, method)
		assert.Equal(t, want.arity, d.Arity(), method)
	}

	d, err := Parse("FindByUsernameEqualsIgnoreCase", resolve)
	require.NoError(t, err)
	assert.True(t, d.Conditions[0].IgnoreCase)
}

func TestParseNestedProperty(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))
	d, err := Parse("FindByTeamName", resolve)
	require.NoError(t, err)
	p := d.Conditions[0].Property
	assert.Equal(t, "Team", p.Relation)
	assert.Equal(t, "team", p.Alias)
	assert.Equal(t, "name", p.Column)

	d, err = Parse("FindByTeamID", resolve)
	require.NoError(t, err)
	assert.Equal(t, "team_id", d.Conditions[0].Property.Column)
	assert.Empty(t, d.Conditions[0].Property.Relation)
}

func TestParseOrderBy(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))
	d, err := Parse("FindByAgeOrderByUsernameDescIDAsc", resolve)
	require.NoError(t, err)
	require.Len(t, d.Orders, 2)
	assert.Equal(t, "username", d.Orders[0].Property.Column)
	assert.Equal(t, types.Desc, d.Orders[0].Direction)
	assert.Equal(t, "id", d.Orders[1].Property.Column)
	assert.Equal(t, types.Asc, d.Orders[1].Direction)

	d, err = Parse("FindByOrderByAge", resolve)
	require.NoError(t, err)
	assert.Empty(t, d.Conditions)
	assert.Equal(t, types.Asc, d.Orders[0].Direction)
}

func TestParseRejectsInvalidMethods(t *testing.T) {
	resolve := SchemaResolver(memberTable(newTestDB(t)))
	for _, method := range []string{
		"FindByUsernameOrAge",
		"FindByNickname",
		"RemoveByUsername",
		"FindUsername",
		"FindByUsernameAnd",
		"FindByAgeOrderBy",
		"FindByAgeOrderByDesc",
		"FindTop0By",
		"",
	} {
		_, err := Parse(method, resolve)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr, "method %q", method)
	}
}

func TestApplyRendersPredicate(t *testing.T) {
	db := newTestDB(t)
	resolve := SchemaResolver(memberTable(db))

	d, err := Parse("FindTop3ByUsernameAndAgeGreaterThanOrderByAgeDesc", resolve)
	require.NoError(t, err)
	q, err := d.Apply(db.NewSelect().Model((*model.Member)(nil)), "AAA", 15)
	require.NoError(t, err)
	sql := q.String()
	assert.Contains(t, sql, `"m"."username" = 'AAA'`)
	assert.Contains(t, sql, `"m"."age" > 15`)
	assert.Contains(t, sql, `ORDER BY "m"."age" DESC`)
	assert.Contains(t, sql, "LIMIT 3")

	_, err = d.Apply(db.NewSelect().Model((*model.Member)(nil)), "AAA")
	assert.ErrorContains(t, err, "expects 2 arguments")
}

func TestApplyRendersOperators(t *testing.T) {
	db := newTestDB(t)
	resolve := SchemaResolver(memberTable(db))
	render := func(method string, args ...interface{}) string {
		t.Helper()
		d, err := Parse(method, resolve)
		require.NoError(t, err)
		q, err := d.Apply(db.NewSelect().Model((*model.Member)(nil)), args...)
		require.NoError(t, err)
		return q.String()
	}

	assert.Contains(t, render("FindByUsernameStartingWith", "50%_"), `"m"."username" LIKE '50!%!_%' ESCAPE '!'`)
	assert.Contains(t, render("FindByUsernameContaining", "ab"), `LIKE '%ab%'`)
	assert.Contains(t, render("FindByUsernameIn", []string{"a", "b"}), `"m"."username" IN ('a', 'b')`)
	assert.Contains(t, render("FindByAgeBetween", 10, 20), `"m"."age" BETWEEN 10 AND 20`)
	assert.Contains(t, render("FindByTeamIDIsNull"), `"m"."team_id" IS NULL`)
	assert.Contains(t, render("FindByUsernameIgnoreCase", "AaA"), `LOWER("m"."username") = LOWER('AaA')`)

	joined := render("FindByTeamName", "teamA")
	assert.Contains(t, joined, `LEFT JOIN "teams" AS "team"`)
	assert.Contains(t, joined, `"team"."name" = 'teamA'`)

	d, err := Parse("FindByUsernameStartingWith", resolve)
	require.NoError(t, err)
	_, err = d.Apply(db.NewSelect().Model((*model.Member)(nil)), 42)
	assert.ErrorContains(t, err, "needs a string argument")
}

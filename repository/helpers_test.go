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

package repository_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/model"
	"github.com/tomoncle/datajpa/repository"
)

type fixture struct {
	ctx     context.Context
	db      *bun.DB
	session *repository.Session
	members *repository.MemberRepository
	teams   *repository.TeamRepository
	counter *database.QueryCounter
}

// newFixture migrates a private in-memory database and opens a session on a
// transaction that is rolled back when the test ends.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := database.NewMemoryConfig(strings.ReplaceAll(t.Name(), "/", "_"))
	dm := database.NewDatabaseManager(cfg)
	require.NoError(t, dm.Connect(ctx))
	t.Cleanup(func() { _ = dm.Disconnect() })
	require.NoError(t, dm.RunMigrations(ctx))

	db := dm.GetDB()
	counter := database.NewQueryCounter()
	db.AddQueryHook(counter)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	mq, err := repository.NewMemberQueries(db.Dialect())
	require.NoError(t, err)
	tq, err := repository.NewTeamQueries(db.Dialect())
	require.NoError(t, err)

	s := repository.NewSession(tx)
	return &fixture{
		ctx:     ctx,
		db:      db,
		session: s,
		members: repository.NewMemberRepository(s, mq),
		teams:   repository.NewTeamRepository(s, tq),
		counter: counter,
	}
}

func (f *fixture) saveTeam(t *testing.T, name string) *model.Team {
	t.Helper()
	team, err := f.teams.Save(f.ctx, model.NewTeam(name))
	require.NoError(t, err)
	return team
}

func (f *fixture) saveMember(t *testing.T, username string, age int, team *model.Team) *model.Member {
	t.Helper()
	m, err := f.members.Save(f.ctx, model.NewMember(username, age, team))
	require.NoError(t, err)
	return m
}

func usernames(members []*model.Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Username)
	}
	return out
}

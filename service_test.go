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

package datajpa_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datajpa"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/model"
)

func openService(t *testing.T, name string) *datajpa.Service {
	t.Helper()
	svc, err := datajpa.Open(context.Background(), database.NewMemoryConfig(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestWithinSessionCommitsAndFlushes(t *testing.T) {
	svc := openService(t, "service_commit")
	ctx := context.Background()

	var id int64
	require.NoError(t, svc.WithinSession(ctx, func(ctx context.Context, tx *datajpa.Tx) error {
		team, err := tx.Teams.Save(ctx, model.NewTeam("teamA"))
		if err != nil {
			return err
		}
		m, err := tx.Members.Save(ctx, model.NewMember("member1", 10, team))
		if err != nil {
			return err
		}
		m.Age = 11
		id = m.ID
		return nil
	}))

	require.NoError(t, svc.WithinSession(ctx, func(ctx context.Context, tx *datajpa.Tx) error {
		m, err := tx.Members.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, 11, m.Age, "changes are flushed at commit")
		team, err := tx.Members.LoadTeam(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, "teamA", team.Name)
		return nil
	}))
}

func TestWithinSessionRollsBackOnError(t *testing.T) {
	svc := openService(t, "service_rollback")
	ctx := context.Background()
	boom := errors.New("boom")

	err := svc.WithinSession(ctx, func(ctx context.Context, tx *datajpa.Tx) error {
		if _, err := tx.Members.Save(ctx, model.NewMember("member1", 10, nil)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, svc.WithinSession(ctx, func(ctx context.Context, tx *datajpa.Tx) error {
		n, err := tx.Members.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := datajpa.NewService(nil)
	assert.Error(t, err)
}

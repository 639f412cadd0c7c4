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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/datajpa/model"
	"github.com/tomoncle/datajpa/repository"
)

func TestSessionIdentityMap(t *testing.T) {
	f := newFixture(t)
	saved := f.saveMember(t, "member1", 10, nil)
	assert.True(t, f.session.Contains(saved))

	f.counter.Reset()
	found, err := f.members.FindByID(f.ctx, saved.ID)
	require.NoError(t, err)
	assert.Same(t, saved, found)
	assert.Zero(t, f.counter.CountOf("SELECT"), "managed entities are served from the session")

	byName, err := f.members.FindByUsername(f.ctx, "member1")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Same(t, saved, byName[0])
}

func TestSessionFlushWritesChangedColumns(t *testing.T) {
	f := newFixture(t)
	m := f.saveMember(t, "member1", 10, nil)

	f.counter.Reset()
	require.NoError(t, f.session.Flush(f.ctx))
	assert.Zero(t, f.counter.CountOf("UPDATE"))

	m.Age = 30
	assert.True(t, f.session.IsDirty(m))
	count, err := f.members.TotalCount(f.ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "pending changes are flushed before queries")
	assert.Equal(t, 1, f.counter.CountOf("UPDATE"))
	assert.False(t, f.session.IsDirty(m))

	f.session.Clear()
	reloaded, err := f.members.FindByID(f.ctx, m.ID)
	require.NoError(t, err)
	assert.NotSame(t, m, reloaded)
	assert.Equal(t, 30, reloaded.Age)
}

func TestSessionDetachAndRefresh(t *testing.T) {
	f := newFixture(t)
	m := f.saveMember(t, "member1", 10, nil)

	m.Age = 99
	require.NoError(t, f.session.Refresh(f.ctx, m))
	assert.Equal(t, 10, m.Age)

	f.session.Detach(m)
	assert.False(t, f.session.Contains(m))
	m.Age = 50
	require.NoError(t, f.session.Flush(f.ctx))

	reloaded, err := f.members.FindByID(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Age, "detached changes are not flushed")

	assert.ErrorIs(t, f.session.Refresh(f.ctx, m), repository.ErrNotManaged)
}

func TestSessionMergeDetached(t *testing.T) {
	f := newFixture(t)
	m := f.saveMember(t, "member1", 10, nil)

	detached := &model.Member{ID: m.ID, Username: "renamed", Age: 11}
	merged, err := f.members.Save(f.ctx, detached)
	require.NoError(t, err)
	assert.Same(t, m, merged)
	assert.Equal(t, "renamed", m.Username)

	require.NoError(t, f.session.Flush(f.ctx))
	f.session.Clear()
	reloaded, err := f.members.FindByID(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Username)
	assert.Equal(t, 11, reloaded.Age)
}

func TestSessionMergeDetachedUnchangedRow(t *testing.T) {
	f := newFixture(t)
	m := f.saveMember(t, "member1", 10, nil)
	f.session.Clear()
	f.counter.Reset()

	same := &model.Member{ID: m.ID, Username: "member1", Age: 10}
	_, err := f.members.Save(f.ctx, same)
	require.NoError(t, err)
	assert.Zero(t, f.counter.CountOf("INSERT"))

	count, err := f.members.Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessionMergeDetachedMissingRow(t *testing.T) {
	f := newFixture(t)

	detached := &model.Member{ID: 42, Username: "member1", Age: 10}
	saved, err := f.members.Save(f.ctx, detached)
	require.NoError(t, err)
	assert.Same(t, detached, saved)
	assert.Equal(t, 1, f.counter.CountOf("INSERT"))

	f.session.Clear()
	reloaded, err := f.members.FindByID(f.ctx, int64(42))
	require.NoError(t, err)
	assert.Equal(t, "member1", reloaded.Username)
}

func TestSessionReadOnlyEntitiesAreNotFlushed(t *testing.T) {
	f := newFixture(t)
	m := f.saveMember(t, "member1", 10, nil)
	f.session.Clear()

	ro, err := f.members.FindReadOnlyByUsername(f.ctx, "member1")
	require.NoError(t, err)
	require.NotNil(t, ro)
	assert.True(t, f.session.IsReadOnly(ro))

	ro.Username = "member2"
	require.NoError(t, f.session.Flush(f.ctx))
	f.session.Clear()

	reloaded, err := f.members.FindByID(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "member1", reloaded.Username)
}

func TestSessionSetLockTimeout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.SetLockTimeout(f.ctx, 250*time.Millisecond))
	require.NoError(t, f.session.SetLockTimeout(f.ctx, 0))
}

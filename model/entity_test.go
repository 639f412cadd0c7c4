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

package model

import (
	"testing"

	"github.com/tomoncle/datajpa/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeTeamKeepsBothSidesInSync(t *testing.T) {
	teamA := &Team{ID: 1, Name: "teamA"}
	teamB := &Team{ID: 2, Name: "teamB"}

	m := NewMember("member1", 10, teamA)
	require.NotNil(t, m.TeamID)
	assert.Equal(t, int64(1), *m.TeamID)
	assert.Equal(t, []*Member{m}, teamA.Members)

	m.ChangeTeam(teamB)
	assert.Equal(t, int64(2), *m.TeamID)
	assert.Empty(t, teamA.Members)
	assert.Equal(t, []*Member{m}, teamB.Members)

	m.ChangeTeam(teamB)
	assert.Len(t, teamB.Members, 1)

	m.ChangeTeam(nil)
	assert.Nil(t, m.TeamID)
	assert.Nil(t, m.Team)
	assert.Empty(t, teamB.Members)
}

func TestSyncReferencesForTransientTeam(t *testing.T) {
	team := NewTeam("later")
	m := NewMember("member1", 10, team)
	assert.Nil(t, m.TeamID)

	team.ID = 7
	m.SyncReferences()
	require.NotNil(t, m.TeamID)
	assert.Equal(t, int64(7), *m.TeamID)
}

func TestRegisteredModelsAreParentFirst(t *testing.T) {
	models := database.RegisteredModelInstances()
	require.Len(t, models, 2)
	assert.IsType(t, (*Team)(nil), models[0])
	assert.IsType(t, (*Member)(nil), models[1])
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "Member(id=0, username=a, age=1)", NewMember("a", 1, nil).String())
	assert.Equal(t, "Team(id=3, name=x)", (&Team{ID: 3, Name: "x"}).String())
}

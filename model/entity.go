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

// Package model holds the Member and Team entities and their registration
// with the database model registry.
package model

import (
	"context"
	"fmt"

	"github.com/tomoncle/datajpa/database"
	"github.com/uptrace/bun"
)

// Member belongs to at most one Team. TeamID is the owning side of the
// association; Team is only populated when it has been fetched.
type Member struct {
	bun.BaseModel `bun:"table:members,alias:m"`

	ID       int64  `bun:"id,pk,autoincrement" json:"id"`
	Username string `bun:"username,notnull" json:"username" validate:"required"`
	Age      int    `bun:"age,notnull" json:"age" validate:"gte=0"`
	TeamID   *int64 `bun:"team_id" json:"team_id,omitempty"`
	Team     *Team  `bun:"rel:belongs-to,join:team_id=id" json:"team,omitempty"`
}

// NewMember creates a transient member. team may be nil.
func NewMember(username string, age int, team *Team) *Member {
	m := &Member{Username: username, Age: age}
	if team != nil {
		m.ChangeTeam(team)
	}
	return m
}

// Identity returns the surrogate key, zero while transient.
func (m *Member) Identity() int64 { return m.ID }

// ChangeTeam moves the member to team and keeps team.Members in sync.
// A nil team clears the association.
func (m *Member) ChangeTeam(team *Team) {
	if m.Team != nil && m.Team != team {
		m.Team.removeMember(m)
	}
	m.Team = team
	if team == nil {
		m.TeamID = nil
		return
	}
	m.SyncReferences()
	team.addMember(m)
}

// SyncReferences copies the key of a team that was persisted after it was
// assigned into TeamID.
func (m *Member) SyncReferences() {
	if m.Team == nil || m.Team.ID == 0 {
		return
	}
	if m.TeamID == nil || *m.TeamID != m.Team.ID {
		id := m.Team.ID
		m.TeamID = &id
	}
}

var _ bun.BeforeAppendModelHook = (*Member)(nil)

func (m *Member) BeforeAppendModel(_ context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		m.SyncReferences()
	}
	return nil
}

func (m *Member) String() string {
	return fmt.Sprintf("Member(id=%d, username=%s, age=%d)", m.ID, m.Username, m.Age)
}

// Team is the inverse side of the member association: the foreign key lives
// on members.team_id.
type Team struct {
	bun.BaseModel `bun:"table:teams,alias:t"`

	ID      int64     `bun:"id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,notnull" json:"name" validate:"required"`
	Members []*Member `bun:"rel:has-many,join:id=team_id" json:"members,omitempty"`
}

func NewTeam(name string) *Team { return &Team{Name: name} }

func (t *Team) Identity() int64 { return t.ID }

func (t *Team) String() string {
	return fmt.Sprintf("Team(id=%d, name=%s)", t.ID, t.Name)
}

func (t *Team) addMember(m *Member) {
	for _, existing := range t.Members {
		if existing == m {
			return
		}
	}
	t.Members = append(t.Members, m)
}

func (t *Team) removeMember(m *Member) {
	for i, existing := range t.Members {
		if existing == m {
			t.Members = append(t.Members[:i], t.Members[i+1:]...)
			return
		}
	}
}

// MemberDto is the member projection joined with its team name.
type MemberDto struct {
	ID       int64  `bun:"id" json:"id"`
	Username string `bun:"username" json:"username"`
	TeamName string `bun:"team_name" json:"team_name"`
}

// TeamMemberForeignKey is the members.team_id reference. Deleting a team
// nullifies the reference of its members.
var TeamMemberForeignKey = database.ForeignKeyConstraint{
	Table:           "members",
	Column:          "team_id",
	ReferenceTable:  "teams",
	ReferenceColumn: "id",
	OnDelete:        "SET NULL",
	ConstraintName:  "fk_members_team_id",
}

func init() {
	database.RegisterModel((*Team)(nil), 1)
	database.RegisterModel((*Member)(nil), 2)
	database.RegisterForeignKey(TeamMemberForeignKey)
}

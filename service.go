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

package datajpa

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/repository"
)

// Tx is the unit of work handed to WithinSession. Its repositories share one
// session bound to the surrounding transaction.
type Tx struct {
	Session *repository.Session
	Members *repository.MemberRepository
	Teams   *repository.TeamRepository
}

// Service owns the validated query catalogues and opens sessions on demand.
type Service struct {
	db          *bun.DB
	members     *repository.MemberQueries
	teams       *repository.TeamQueries
	lockTimeout time.Duration
	logger      database.Logger
}

type ServiceOption func(*Service)

// WithLockTimeout bounds row lock waits in every session.
func WithLockTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.lockTimeout = d }
}

func WithLogger(logger database.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService parses and validates every repository query against the schema
// of db. Any failure is a *query.ConfigurationError and no Service is built.
func NewService(db *bun.DB, opts ...ServiceOption) (*Service, error) {
	if db == nil {
		return nil, errors.New("datajpa: nil database")
	}
	s := &Service{db: db, logger: database.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	if s.members, err = repository.NewMemberQueries(db.Dialect()); err != nil {
		return nil, errors.Wrap(err, "member repository")
	}
	if s.teams, err = repository.NewTeamQueries(db.Dialect()); err != nil {
		return nil, errors.Wrap(err, "team repository")
	}
	return s, nil
}

// Open initializes the global database from cfg, migrating it when the
// configuration asks for it, and builds a Service on top of it.
func Open(ctx context.Context, cfg *database.Config) (*Service, error) {
	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewService(db, WithLockTimeout(cfg.ConnectionConfig.LockTimeout))
	if err != nil {
		_ = database.CloseDB()
		return nil, err
	}
	return s, nil
}

// Close closes the global database opened by Open.
func (s *Service) Close() error {
	return database.CloseDB()
}

func (s *Service) DB() *bun.DB { return s.db }

// WithinSession runs fn in a transaction: begin, fn, flush, commit. The
// transaction rolls back when fn or the flush fails, and the error is
// returned.
func (s *Service) WithinSession(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
		session := repository.NewSession(btx)
		if err := session.SetLockTimeout(ctx, s.lockTimeout); err != nil {
			return err
		}
		tx := &Tx{
			Session: session,
			Members: repository.NewMemberRepository(session, s.members),
			Teams:   repository.NewTeamRepository(session, s.teams),
		}
		if err := fn(ctx, tx); err != nil {
			s.logger.Debug("Session rolled back", "error", err)
			return err
		}
		return session.Flush(ctx)
	})
}

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

package database

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// CommonSeedGroup holds the seed files that run in every environment.
const CommonSeedGroup = "common"

// SeedFile is one SQL script found by a Seeder.
type SeedFile struct {
	Path  string
	Name  string
	Group string
	Order int
}

// SeedResult reports how a seed file went.
type SeedResult struct {
	File         string
	Statements   int
	RowsAffected int64
	Duration     time.Duration
}

// Seeder runs the SQL scripts below common/ and environments/<env>/ of a
// file system. Common scripts run first, then each group by the numeric
// prefix of the file name (001_teams.sql). Every script runs in its own
// transaction and may reference {{.ENVIRONMENT}}, {{.TIMESTAMP}} and any
// process environment variable.
type Seeder struct {
	db     bun.IDB
	fsys   fs.FS
	env    string
	logger Logger
}

func NewSeeder(db bun.IDB, fsys fs.FS, env string) *Seeder {
	return &Seeder{db: db, fsys: fsys, env: env, logger: GetLogger()}
}

// NewDirSeeder reads the scripts from a directory on disk.
func NewDirSeeder(db bun.IDB, root, env string) *Seeder {
	return NewSeeder(db, os.DirFS(root), env)
}

func (s *Seeder) WithLogger(logger Logger) *Seeder {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Files lists the scripts in execution order. Missing group directories are
// skipped.
func (s *Seeder) Files() ([]SeedFile, error) {
	common, err := s.scan(CommonSeedGroup, CommonSeedGroup)
	if err != nil {
		return nil, err
	}
	env, err := s.scan(path.Join("environments", s.env), s.env)
	if err != nil {
		return nil, err
	}
	return append(common, env...), nil
}

func (s *Seeder) scan(dir, group string) ([]SeedFile, error) {
	if _, err := fs.Stat(s.fsys, dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var files []SeedFile
	err := fs.WalkDir(s.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SeedFile{Path: p, Name: d.Name(), Group: group, Order: seedOrder(d.Name())})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan seed directory %s", dir)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// seedOrder reads the NNN_ prefix; unnumbered files sort last.
func seedOrder(name string) int {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 999
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 999
	}
	return n
}

// Run executes every script and stops at the first failing one. Results of
// the scripts that completed are returned alongside the error.
func (s *Seeder) Run(ctx context.Context) ([]SeedResult, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.logger.Info("No seed files found", "environment", s.env)
		return nil, nil
	}

	results := make([]SeedResult, 0, len(files))
	for _, f := range files {
		res, err := s.runFile(ctx, f)
		if err != nil {
			s.logger.Error("Seed file failed", "file", f.Path, "error", err.Error())
			return results, errors.Wrapf(err, "seed %s", f.Path)
		}
		s.logger.Info("Seed file applied",
			"file", f.Path,
			"statements", res.Statements,
			"rows_affected", res.RowsAffected,
			"duration", res.Duration.String())
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) runFile(ctx context.Context, f SeedFile) (SeedResult, error) {
	start := time.Now()
	res := SeedResult{File: f.Path}

	raw, err := fs.ReadFile(s.fsys, f.Path)
	if err != nil {
		return res, err
	}
	script, err := s.render(f.Name, string(raw))
	if err != nil {
		return res, err
	}
	stmts := SplitStatements(script)
	res.Statements = len(stmts)

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return errors.Wrapf(TranslateError(err), "exec %q", stmt)
			}
			n, _ := r.RowsAffected()
			res.RowsAffected += n
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

func (s *Seeder) render(name, script string) (string, error) {
	if !strings.Contains(script, "{{") {
		return script, nil
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(script)
	if err != nil {
		return "", errors.Wrap(err, "parse seed template")
	}
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.env
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", errors.Wrap(err, "render seed template")
	}
	return buf.String(), nil
}

// SplitStatements breaks a script on semicolons outside quoted text and
// drops "--" line comments.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	emit := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" && stmt != ";" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == ';':
			cur.WriteRune(r)
			emit()
		default:
			cur.WriteRune(r)
		}
	}
	emit()
	return out
}

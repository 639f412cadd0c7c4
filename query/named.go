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
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/uptrace/bun/schema"
)

// QueryID identifies a named query. Each repository declares its own
// constants and registers their statements once.
type QueryID int

// Kind separates reads from bulk statements.
type Kind int

const (
	KindSelect Kind = iota
	KindModify
)

func (k Kind) String() string {
	if k == KindModify {
		return "modify"
	}
	return "select"
}

// NamedQuery is a statement written with :name parameters, e.g.
//
//	SELECT m.* FROM members AS m WHERE m.username = :username
//
// Compile rewrites it to positional placeholders and records Params in order
// of appearance. A parameter used twice is passed twice.
type NamedQuery struct {
	ID        QueryID
	Name      string
	Kind      Kind
	Statement string

	sql    string
	params []string
	tables []string
}

// SQL is the statement with positional placeholders.
func (q NamedQuery) SQL() string { return q.sql }

// Params lists the parameter names in positional order.
func (q NamedQuery) Params() []string { return q.params }

// Tables lists the tables the statement reads or writes.
func (q NamedQuery) Tables() []string { return q.tables }

func (q NamedQuery) Arity() int { return len(q.params) }

// CheckArgs verifies a call passes one argument per parameter.
func (q NamedQuery) CheckArgs(args []interface{}) error {
	if len(args) != len(q.params) {
		return fmt.Errorf("named query %s expects %d arguments (%s), got %d",
			q.Name, len(q.params), strings.Join(q.params, ", "), len(args))
	}
	return nil
}

var (
	tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|UPDATE|INTO)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	leadingKeyword  = regexp.MustCompile(`^\s*([A-Za-z]+)`)
	identPattern    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

var sqlKeywords = map[string]bool{}

func init() {
	for _, k := range strings.Fields(`SELECT FROM WHERE AND OR NOT IN IS NULL AS ON JOIN LEFT RIGHT
		INNER OUTER FULL CROSS ORDER BY GROUP HAVING LIMIT OFFSET ASC DESC DISTINCT UPDATE SET
		DELETE INSERT INTO VALUES LIKE ILIKE BETWEEN CASE WHEN THEN ELSE END TRUE FALSE WITH
		UNION ALL EXISTS ANY RETURNING USING NULLS FIRST LAST DEFAULT`) {
		sqlKeywords[k] = true
	}
}

// Catalog lists the columns of every table a named query may use.
type Catalog map[string]map[string]bool

// Add registers columns of table and returns c.
func (c Catalog) Add(table string, columns ...string) Catalog {
	table = strings.ToLower(table)
	if c[table] == nil {
		c[table] = make(map[string]bool, len(columns))
	}
	for _, col := range columns {
		c[table][strings.ToLower(col)] = true
	}
	return c
}

// SchemaCatalog builds a Catalog from bun tables.
func SchemaCatalog(tables ...*schema.Table) Catalog {
	c := Catalog{}
	for _, t := range tables {
		cols := make([]string, 0, len(t.Fields))
		for _, f := range t.Fields {
			cols = append(cols, f.Name)
		}
		c.Add(t.Name, cols...)
	}
	return c
}

func (c Catalog) hasColumn(table, column string) bool {
	return c[table][strings.ToLower(column)]
}

// compile extracts parameters and tables and checks the statement against
// its declared kind. A literal '?' is rejected anywhere, bun would bind it.
func (q *NamedQuery) compile() error {
	if q.Name == "" {
		return configErr(fmt.Sprint(q.ID), "named query without name")
	}
	if strings.TrimSpace(q.Statement) == "" {
		return configErr(q.Name, "empty statement")
	}

	var b strings.Builder
	var params []string
	runes := []rune(q.Statement)
	inString := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '?':
			return configErr(q.Name, "use :name parameters instead of '?'")
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case inString:
			b.WriteRune(r)
		case r == ':' && i+1 < len(runes) && runes[i+1] == ':':
			// postgres cast
			b.WriteString("::")
			i++
		case r == ':' && i+1 < len(runes) && isIdentStart(runes[i+1]):
			j := i + 1
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			params = append(params, string(runes[i+1:j]))
			b.WriteRune('?')
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	if inString {
		return configErr(q.Name, "unterminated string literal")
	}

	m := leadingKeyword.FindStringSubmatch(q.Statement)
	if m == nil {
		return configErr(q.Name, "statement has no leading keyword")
	}
	var kind Kind
	switch strings.ToUpper(m[1]) {
	case "SELECT", "WITH":
		kind = KindSelect
	case "UPDATE", "DELETE", "INSERT":
		kind = KindModify
	default:
		return configErr(q.Name, "unsupported statement %s", strings.ToUpper(m[1]))
	}
	if kind != q.Kind {
		return configErr(q.Name, "declared as %s but statement is %s", q.Kind, kind)
	}

	seen := map[string]bool{}
	var tables []string
	for _, ref := range tableRefPattern.FindAllStringSubmatch(q.Statement, -1) {
		t := strings.ToLower(ref[1])
		if !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return configErr(q.Name, "statement references no table")
	}

	q.sql = b.String()
	q.params = params
	q.tables = tables
	return nil
}

// checkColumns resolves alias.column references through the FROM, JOIN and
// UPDATE aliases and requires bare identifiers to be a column of one of the
// statement's tables. Keywords, parameters, casts, function names and
// output aliases (AS name) are skipped.
func (q NamedQuery) checkColumns(catalog Catalog) []string {
	text := blankLiterals(q.Statement)
	aliases := make(map[string]string)
	for _, ref := range tableRefPattern.FindAllStringSubmatchIndex(text, -1) {
		t := strings.ToLower(text[ref[2]:ref[3]])
		aliases[t] = t
		if a := aliasAfter(text[ref[3]:]); a != "" {
			aliases[a] = t
		}
	}

	var problems []string
	locs := identPattern.FindAllStringIndex(text, -1)
	for i, loc := range locs {
		start, end := loc[0], loc[1]
		word := text[start:end]
		lower := strings.ToLower(word)
		switch {
		case start > 0 && (text[start-1] == ':' || text[start-1] == '.'):
			continue
		case end < len(text) && text[end] == '.':
			table, ok := aliases[lower]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s: unknown alias %s", q.Name, word))
				continue
			}
			if catalog[table] == nil || i+1 >= len(locs) || locs[i+1][0] != end+1 {
				continue
			}
			col := text[locs[i+1][0]:locs[i+1][1]]
			if !catalog.hasColumn(table, col) {
				problems = append(problems, fmt.Sprintf("%s: unknown column %s.%s", q.Name, table, col))
			}
			continue
		case sqlKeywords[strings.ToUpper(word)], aliases[lower] != "":
			continue
		case strings.HasPrefix(strings.TrimLeft(text[end:], " \t\n"), "("):
			continue
		case i > 0 && strings.EqualFold(text[locs[i-1][0]:locs[i-1][1]], "AS"):
			continue
		}
		found := false
		for _, table := range aliases {
			if catalog.hasColumn(table, word) {
				found = true
				break
			}
		}
		if !found && !isOutputAlias(text, locs, lower) {
			problems = append(problems, fmt.Sprintf("%s: unknown column %s", q.Name, word))
		}
	}
	return problems
}

// aliasAfter reads "[AS] alias" following a table name.
func aliasAfter(rest string) string {
	words := identPattern.FindAllString(rest, 2)
	if len(words) == 0 || !strings.HasPrefix(strings.TrimLeft(rest, " \t\n"), words[0]) {
		return ""
	}
	alias := words[0]
	if strings.EqualFold(alias, "AS") {
		if len(words) < 2 {
			return ""
		}
		alias = words[1]
	}
	if sqlKeywords[strings.ToUpper(alias)] {
		return ""
	}
	return strings.ToLower(alias)
}

// isOutputAlias reports whether name is introduced by "AS name" anywhere in
// the statement, so ORDER BY may refer to it.
func isOutputAlias(text string, locs [][]int, name string) bool {
	for i := 1; i < len(locs); i++ {
		if strings.EqualFold(text[locs[i-1][0]:locs[i-1][1]], "AS") &&
			strings.EqualFold(text[locs[i][0]:locs[i][1]], name) {
			return true
		}
	}
	return false
}

// blankLiterals replaces the contents of quoted strings with spaces.
func blankLiterals(stmt string) string {
	b := []byte(stmt)
	in := false
	for i, c := range b {
		switch {
		case c == '\'':
			in = !in
		case in:
			b[i] = ' '
		}
	}
	return string(b)
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

// Registry is the catalogue of named queries of one repository.
type Registry struct {
	byID   map[QueryID]NamedQuery
	byName map[string]QueryID
}

// NewRegistry compiles queries and checks every referenced table and
// column against catalog. All problems are reported in one
// ConfigurationError.
func NewRegistry(catalog Catalog, queries ...NamedQuery) (*Registry, error) {
	r := &Registry{
		byID:   make(map[QueryID]NamedQuery, len(queries)),
		byName: make(map[string]QueryID, len(queries)),
	}
	var problems []string
	for _, q := range queries {
		if err := q.compile(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		for _, t := range q.tables {
			if catalog[t] == nil {
				problems = append(problems, fmt.Sprintf("%s: unknown table %s", q.Name, t))
			}
		}
		problems = append(problems, q.checkColumns(catalog)...)
		if _, dup := r.byID[q.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate id %d", q.Name, q.ID))
			continue
		}
		if _, dup := r.byName[q.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate name %s", q.Name))
			continue
		}
		r.byID[q.ID] = q
		r.byName[q.Name] = q.ID
	}
	if len(problems) > 0 {
		return nil, &ConfigurationError{Query: "named queries", Reason: strings.Join(problems, "; ")}
	}
	return r, nil
}

func (r *Registry) Get(id QueryID) (NamedQuery, error) {
	q, ok := r.byID[id]
	if !ok {
		return NamedQuery{}, configErr(fmt.Sprint(id), "no named query registered")
	}
	return q, nil
}

func (r *Registry) Lookup(name string) (NamedQuery, error) {
	id, ok := r.byName[name]
	if !ok {
		return NamedQuery{}, configErr(name, "no named query registered")
	}
	return r.byID[id], nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

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
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/uptrace/bun"

	"github.com/tomoncle/datajpa/types"
)

// Action is what a derived query does with the matching rows.
type Action int

const (
	ActionFind Action = iota
	ActionCount
	ActionExists
)

var actionPrefixes = map[string]Action{
	"find":   ActionFind,
	"read":   ActionFind,
	"get":    ActionFind,
	"query":  ActionFind,
	"search": ActionFind,
	"stream": ActionFind,
	"count":  ActionCount,
	"exists": ActionExists,
}

type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterThanEqual
	OpLessThan
	OpLessThanEqual
	OpBefore
	OpAfter
	OpLike
	OpNotLike
	OpStartingWith
	OpEndingWith
	OpContaining
	OpIn
	OpNotIn
	OpBetween
	OpIsNull
	OpIsNotNull
	OpTrue
	OpFalse
)

var operatorNames = [...]string{
	"Equals", "Not", "GreaterThan", "GreaterThanEqual", "LessThan", "LessThanEqual",
	"Before", "After", "Like", "NotLike", "StartingWith", "EndingWith", "Containing",
	"In", "NotIn", "Between", "IsNull", "IsNotNull", "True", "False",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return "Operator(" + strconv.Itoa(int(o)) + ")"
}

// Arity is the number of method arguments the operator consumes.
func (o Operator) Arity() int {
	switch o {
	case OpBetween:
		return 2
	case OpIsNull, OpIsNotNull, OpTrue, OpFalse:
		return 0
	}
	return 1
}

type keyword struct {
	words []string
	op    Operator
}

// keywords is ordered longest first so that suffix matching prefers
// GreaterThanEqual over Equal-less forms.
var keywords = func() []keyword {
	table := map[string]Operator{
		"Is Not Null": OpIsNotNull, "Not Null": OpIsNotNull,
		"Is Null": OpIsNull, "Null": OpIsNull,
		"Is Greater Than Equal": OpGreaterThanEqual, "Greater Than Equal": OpGreaterThanEqual,
		"Is Greater Than": OpGreaterThan, "Greater Than": OpGreaterThan,
		"Is Less Than Equal": OpLessThanEqual, "Less Than Equal": OpLessThanEqual,
		"Is Less Than": OpLessThan, "Less Than": OpLessThan,
		"Is Before": OpBefore, "Before": OpBefore,
		"Is After": OpAfter, "After": OpAfter,
		"Is Not Like": OpNotLike, "Not Like": OpNotLike,
		"Is Like": OpLike, "Like": OpLike,
		"Is Starting With": OpStartingWith, "Starting With": OpStartingWith, "Starts With": OpStartingWith,
		"Is Ending With": OpEndingWith, "Ending With": OpEndingWith, "Ends With": OpEndingWith,
		"Is Containing": OpContaining, "Containing": OpContaining, "Contains": OpContaining,
		"Is Not In": OpNotIn, "Not In": OpNotIn,
		"Is In": OpIn, "In": OpIn,
		"Is Between": OpBetween, "Between": OpBetween,
		"Is True": OpTrue, "True": OpTrue,
		"Is False": OpFalse, "False": OpFalse,
		"Is Not": OpNotEquals, "Not": OpNotEquals,
		"Is Equal": OpEquals, "Equals": OpEquals, "Is": OpEquals,
	}
	out := make([]keyword, 0, len(table))
	for k, op := range table {
		out = append(out, keyword{words: strings.Fields(k), op: op})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].words) != len(out[j].words) {
			return len(out[i].words) > len(out[j].words)
		}
		return strings.Join(out[i].words, "") < strings.Join(out[j].words, "")
	})
	return out
}()

// Condition is one predicate of a derived query.
type Condition struct {
	Property   Property
	Operator   Operator
	IgnoreCase bool
}

// SortOrder is an OrderBy clause of a derived query.
type SortOrder struct {
	Property  Property
	Direction types.Direction
}

// Derived is a parsed query method such as FindByUsernameAndAgeGreaterThan.
type Derived struct {
	Method     string
	Action     Action
	Distinct   bool
	Limit      int
	Conditions []Condition
	Orders     []SortOrder
}

// Arity is the number of arguments Apply expects.
func (d *Derived) Arity() int {
	n := 0
	for _, c := range d.Conditions {
		n += c.Operator.Arity()
	}
	return n
}

// Parse turns a method name into a Derived query. Properties are looked up
// through resolve. Conditions may only be joined with And.
func Parse(method string, resolve PropertyResolver) (*Derived, error) {
	words := splitCamel(method)
	if len(words) == 0 {
		return nil, configErr(method, "empty method name")
	}
	action, ok := actionPrefixes[strings.ToLower(words[0])]
	if !ok {
		return nil, configErr(method, "unsupported prefix %q", words[0])
	}
	byIdx := indexOf(words, "By", 1)
	if byIdx < 0 {
		return nil, configErr(method, "missing By")
	}

	d := &Derived{Method: method, Action: action}
	for _, w := range words[1:byIdx] {
		switch {
		case w == "Distinct":
			d.Distinct = true
		default:
			n, ok, err := parseLimit(w)
			if err != nil {
				return nil, configErr(method, "invalid limit %q", w)
			}
			if ok {
				d.Limit = n
			}
		}
	}

	rest := words[byIdx+1:]
	var orderWords []string
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] == "Order" && rest[i+1] == "By" {
			orderWords = rest[i+2:]
			if len(orderWords) == 0 {
				return nil, configErr(method, "OrderBy without property")
			}
			rest = rest[:i]
			break
		}
	}

	if indexOf(rest, "Or", 0) >= 0 {
		return nil, configErr(method, "Or is not supported, combine conditions with And")
	}
	if len(rest) > 0 {
		for _, part := range splitOn(rest, "And") {
			if len(part) == 0 {
				return nil, configErr(method, "empty condition around And")
			}
			cond, err := parseCondition(method, part, resolve)
			if err != nil {
				return nil, err
			}
			d.Conditions = append(d.Conditions, cond)
		}
	}

	orders, err := parseOrders(method, orderWords, resolve)
	if err != nil {
		return nil, err
	}
	d.Orders = orders
	return d, nil
}

// parseLimit reads Top, TopN, First and FirstN. Other subject words are free
// text and ignored.
func parseLimit(w string) (int, bool, error) {
	var digits string
	switch {
	case strings.HasPrefix(w, "Top"):
		digits = strings.TrimPrefix(w, "Top")
	case strings.HasPrefix(w, "First"):
		digits = strings.TrimPrefix(w, "First")
	default:
		return 0, false, nil
	}
	if digits == "" {
		return 1, true, nil
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return 0, false, nil
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("invalid limit %q", w)
	}
	return n, true, nil
}

func parseCondition(method string, words []string, resolve PropertyResolver) (Condition, error) {
	cond := Condition{Operator: OpEquals}
	if n := len(words); n > 2 && words[n-1] == "Case" && (words[n-2] == "Ignore" || words[n-2] == "Ignoring") {
		cond.IgnoreCase = true
		words = words[:n-2]
	}
	for _, kw := range keywords {
		if len(words) <= len(kw.words) || !hasSuffix(words, kw.words) {
			continue
		}
		name := strings.Join(words[:len(words)-len(kw.words)], "")
		if p, ok := resolve(name); ok {
			cond.Property = p
			cond.Operator = kw.op
			return cond, nil
		}
	}
	name := strings.Join(words, "")
	p, ok := resolve(name)
	if !ok {
		return cond, configErr(method, "no property %s", name)
	}
	cond.Property = p
	return cond, nil
}

func parseOrders(method string, words []string, resolve PropertyResolver) ([]SortOrder, error) {
	var orders []SortOrder
	var pending []string
	flush := func(dir types.Direction) error {
		if len(pending) == 0 {
			return configErr(method, "direction without property in OrderBy")
		}
		name := strings.Join(pending, "")
		p, ok := resolve(name)
		if !ok {
			return configErr(method, "no property %s to order by", name)
		}
		orders = append(orders, SortOrder{Property: p, Direction: dir})
		pending = pending[:0]
		return nil
	}
	for _, w := range words {
		if dir, ok := types.ParseDirection(w); ok {
			if err := flush(dir); err != nil {
				return nil, err
			}
			continue
		}
		pending = append(pending, w)
	}
	if len(pending) > 0 {
		if err := flush(types.Asc); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Apply adds the conditions, ordering, distinct and limit to q. args are
// consumed in condition order.
func (d *Derived) Apply(q *bun.SelectQuery, args ...interface{}) (*bun.SelectQuery, error) {
	if len(args) != d.Arity() {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", d.Method, d.Arity(), len(args))
	}
	joined := map[string]bool{}
	join := func(p Property) {
		if p.Relation != "" && !joined[p.Relation] {
			joined[p.Relation] = true
			q = q.Relation(p.Relation)
		}
	}

	i := 0
	for _, c := range d.Conditions {
		join(c.Property)
		n := c.Operator.Arity()
		where, whereArgs, err := c.render(args[i : i+n])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Method, err)
		}
		q = q.Where(where, whereArgs...)
		i += n
	}
	for _, o := range d.Orders {
		join(o.Property)
		col, colArgs := o.Property.expr()
		q = q.OrderExpr(col+" "+o.Direction.String(), colArgs...)
	}
	if d.Distinct {
		q = q.Distinct()
	}
	if d.Limit > 0 && d.Action == ActionFind {
		q = q.Limit(d.Limit)
	}
	return q, nil
}

const likeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (c Condition) render(args []interface{}) (string, []interface{}, error) {
	col, out := c.Property.expr()
	placeholder := "?"
	if c.IgnoreCase {
		col = "LOWER(" + col + ")"
		placeholder = "LOWER(?)"
	}
	switch c.Operator {
	case OpEquals:
		return col + " = " + placeholder, append(out, args[0]), nil
	case OpNotEquals:
		return col + " <> " + placeholder, append(out, args[0]), nil
	case OpGreaterThan, OpAfter:
		return col + " > ?", append(out, args[0]), nil
	case OpGreaterThanEqual:
		return col + " >= ?", append(out, args[0]), nil
	case OpLessThan, OpBefore:
		return col + " < ?", append(out, args[0]), nil
	case OpLessThanEqual:
		return col + " <= ?", append(out, args[0]), nil
	case OpLike:
		return col + " LIKE " + placeholder, append(out, args[0]), nil
	case OpNotLike:
		return col + " NOT LIKE " + placeholder, append(out, args[0]), nil
	case OpStartingWith, OpEndingWith, OpContaining:
		s, ok := args[0].(string)
		if !ok {
			return "", nil, fmt.Errorf("%s needs a string argument, got %T", c.Operator, args[0])
		}
		s = likeEscaper.Replace(s)
		switch c.Operator {
		case OpStartingWith:
			s += "%"
		case OpEndingWith:
			s = "%" + s
		default:
			s = "%" + s + "%"
		}
		return col + " LIKE " + placeholder + " ESCAPE '" + likeEscape + "'", append(out, s), nil
	case OpIn:
		return col + " IN (?)", append(out, bun.In(args[0])), nil
	case OpNotIn:
		return col + " NOT IN (?)", append(out, bun.In(args[0])), nil
	case OpBetween:
		return col + " BETWEEN ? AND ?", append(out, args[0], args[1]), nil
	case OpIsNull:
		return col + " IS NULL", out, nil
	case OpIsNotNull:
		return col + " IS NOT NULL", out, nil
	case OpTrue:
		return col + " = ?", append(out, true), nil
	case OpFalse:
		return col + " = ?", append(out, false), nil
	}
	return "", nil, fmt.Errorf("unsupported operator %s", c.Operator)
}

// splitCamel splits a Go identifier into its words. Digits stay with the word
// before them, so Top3Hello yields Top3 and Hello.
func splitCamel(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		cur, prev := runes[i], runes[i-1]
		if !unicode.IsUpper(cur) {
			continue
		}
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	return append(words, string(runes[start:]))
}

func indexOf(words []string, w string, from int) int {
	for i := from; i < len(words); i++ {
		if words[i] == w {
			return i
		}
	}
	return -1
}

func splitOn(words []string, sep string) [][]string {
	var parts [][]string
	start := 0
	for i, w := range words {
		if w == sep {
			parts = append(parts, words[start:i])
			start = i + 1
		}
	}
	return append(parts, words[start:])
}

func hasSuffix(words, suffix []string) bool {
	off := len(words) - len(suffix)
	for i, w := range suffix {
		if words[off+i] != w {
			return false
		}
	}
	return true
}

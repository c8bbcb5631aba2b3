// Package sqlgen compiles a parsed RQL term list against a reflected
// collection into one parameterized, dialect-correct SQL statement.
// Compilation is deterministic: the same collection and the same sorted
// term list always produce byte-identical SQL and parameter order.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
)

// CompileError classifies a query that cannot be translated. It surfaces
// to callers as a bad-request condition, never as an empty result.
type CompileError struct{ msg string }

func (e *CompileError) Error() string { return "sqlgen: " + e.msg }

func errf(format string, args ...any) error {
	return &CompileError{msg: fmt.Sprintf(format, args...)}
}

// plan is the resolved form of a term list: terms bucketed by clause, with
// relationship paths rewritten into explicit _exists traversals. Input
// terms are cloned before rewriting; the caller's AST is never mutated.
type plan struct {
	collection *schema.Collection

	where      []*rql.Term
	aggregates []*rql.Term
	includes   []string
	groupBy    []string
	sort       *rql.Term

	limit  int
	offset int
	page   int
}

// aggregateFuncs are the functions that collapse rows and therefore belong
// to the SELECT list rather than the WHERE clause.
var aggregateFuncs = map[string]bool{
	"sum": true, "min": true, "max": true, "count": true, "avg": true,
	"distinct": true, "as": true,
}

func buildPlan(c *schema.Collection, terms []*rql.Term) (*plan, error) {
	p := &plan{collection: c, limit: -1, offset: -1, page: -1}

	for _, t := range rql.Sort(terms) {
		if !t.Func() {
			return nil, errf("bare token %q is not a query expression", t.Token)
		}
		switch strings.ToLower(t.Token) {
		case "page":
			n, err := intArg(t, 0)
			if err != nil {
				return nil, err
			}
			p.page = n
		case "limit", "pagesize":
			n, err := intArg(t, 0)
			if err != nil {
				return nil, err
			}
			p.limit = n
		case "offset":
			n, err := intArg(t, 0)
			if err != nil {
				return nil, err
			}
			p.offset = n
		case "sort", "order":
			p.sort = t
		case "includes", "include":
			for _, ch := range t.Children {
				p.includes = append(p.includes, ch.Token)
			}
		case "group":
			for _, ch := range t.Children {
				p.groupBy = append(p.groupBy, ch.Token)
			}
		default:
			if aggregateFuncs[strings.ToLower(t.Token)] {
				p.aggregates = append(p.aggregates, t)
				continue
			}
			resolved, err := resolvePaths(c, t)
			if err != nil {
				return nil, err
			}
			if resolved != nil {
				p.where = append(p.where, resolved)
			}
		}
	}
	return p, nil
}

func intArg(t *rql.Term, i int) (int, error) {
	ch := t.Child(i)
	if ch == nil || !ch.Leaf() {
		return 0, errf("%s() requires a numeric argument", t.Token)
	}
	var n int
	if _, err := fmt.Sscanf(ch.Token, "%d", &n); err != nil || n < 0 {
		return 0, errf("%s(%s): not a non-negative integer", t.Token, ch.Token)
	}
	return n, nil
}

// resolvePaths rewrites dotted column references into relationship
// traversals: eq(author.name,X) becomes _exists(author,eq(name,X)), with
// one _exists level per path segment. The unknown-key leniency lives here
// too: a plain predicate on a token that is neither a property nor a
// relationship path is dropped, tolerating extraneous client parameters.
func resolvePaths(c *schema.Collection, t *rql.Term) (*rql.Term, error) {
	t = t.Clone()

	switch strings.ToLower(t.Token) {
	case "and", "or", "not":
		kept := t.Children[:0]
		for _, ch := range t.Children {
			r, err := resolvePaths(c, ch)
			if err != nil {
				return nil, err
			}
			if r != nil {
				kept = append(kept, r)
			}
		}
		t.Children = kept
		if len(t.Children) == 0 {
			return nil, nil
		}
		return t, nil
	case "_exists", "_notexists":
		return resolveExists(c, t)
	}

	operand := t.Child(0)
	if operand == nil || !operand.Leaf() {
		return t, nil
	}

	if strings.ContainsRune(operand.Token, '.') && operand.Quote == rql.QuoteNone {
		head, rest, _ := strings.Cut(operand.Token, ".")
		rel := c.RelationshipByName(head)
		if rel == nil {
			if c.FindProperty(operand.Token) == nil {
				return nil, nil // unknown dotted key, ignored like plain ones
			}
			return t, nil
		}
		inner := t
		inner.Children[0] = &rql.Term{Token: rest}
		wrapped, err := resolvePaths(rel.Related(), inner)
		if err != nil {
			return nil, err
		}
		if wrapped == nil {
			return nil, nil
		}
		return rql.NewFunc("_exists", rql.NewLeaf(rel.Name()), wrapped), nil
	}

	if c.FindProperty(operand.Token) == nil && operand.Quote == rql.QuoteNone {
		// Unknown plain key: silently ignored to tolerate extraneous
		// client parameters.
		return nil, nil
	}
	return t, nil
}

func resolveExists(c *schema.Collection, t *rql.Term) (*rql.Term, error) {
	if len(t.Children) < 1 || !t.Child(0).Leaf() {
		return nil, errf("%s() requires a relationship name", t.Token)
	}
	rel := c.RelationshipByName(t.Child(0).Token)
	if rel == nil {
		return nil, errf("unknown relationship %q on %s", t.Child(0).Token, c.Name())
	}
	kept := t.Children[:1]
	for _, ch := range t.Children[1:] {
		r, err := resolvePaths(rel.Related(), ch)
		if err != nil {
			return nil, err
		}
		if r != nil {
			kept = append(kept, r)
		}
	}
	t.Children = kept
	return t, nil
}

// Package rql parses RQL-style query strings into an expression tree.
//
// Each query-string pair becomes one Term, a node in a prefix-function-call
// grammar: and(eq(status,active),gt(age,21)). Pairs combine implicitly with
// AND at the top level. Terms are value types once built; compilation passes
// copy rather than rewrite them.
package rql

import (
	"sort"
	"strings"
)

// QuoteKind records how a leaf token was quoted by the query author.
// Double quotes force a column reference, single quotes force a string
// literal; bare tokens are classified later by the compiler.
type QuoteKind int

const (
	QuoteNone QuoteKind = iota
	QuoteSingle
	QuoteDouble
)

// Term is one node of the parsed filter/sort/page expression tree:
// either a leaf (Token + Quote) or a function node with ordered children.
type Term struct {
	Token    string
	Quote    QuoteKind
	Children []*Term

	// forceFunc marks a zero-argument call, e.g. count(), which would
	// otherwise be indistinguishable from a leaf.
	forceFunc bool
}

// NewLeaf returns an unquoted leaf term.
func NewLeaf(token string) *Term {
	return &Term{Token: token}
}

// NewFunc returns a function term with the given children.
func NewFunc(name string, children ...*Term) *Term {
	return &Term{Token: name, Children: children}
}

// Leaf reports whether the term is a leaf token.
func (t *Term) Leaf() bool { return !t.Func() }

func (t *Term) markFunc() *Term {
	t.forceFunc = true
	return t
}

// Func reports whether the term is a function call (has children or was
// parsed with parentheses).
func (t *Term) Func() bool { return len(t.Children) > 0 || t.forceFunc }

// Is reports whether the term is a function call with one of the given
// names, compared case-insensitively.
func (t *Term) Is(names ...string) bool {
	if !t.Func() {
		return false
	}
	for _, n := range names {
		if strings.EqualFold(t.Token, n) {
			return true
		}
	}
	return false
}

// Child returns the i-th child or nil when out of range.
func (t *Term) Child(i int) *Term {
	if i < 0 || i >= len(t.Children) {
		return nil
	}
	return t.Children[i]
}

// Clone returns a deep copy of the term.
func (t *Term) Clone() *Term {
	c := &Term{Token: t.Token, Quote: t.Quote, forceFunc: t.forceFunc}
	if len(t.Children) > 0 {
		c.Children = make([]*Term, len(t.Children))
		for i, ch := range t.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// String renders the term back into RQL text. The rendering is canonical:
// parsing the result yields an equal tree, which makes it usable both for
// deterministic term ordering and for next-page cursor terms.
func (t *Term) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Term) write(b *strings.Builder) {
	if !t.Func() {
		switch t.Quote {
		case QuoteSingle:
			b.WriteByte('\'')
			b.WriteString(strings.ReplaceAll(t.Token, "'", "\\'"))
			b.WriteByte('\'')
		case QuoteDouble:
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(t.Token, `"`, `\"`))
			b.WriteByte('"')
		default:
			b.WriteString(t.Token)
		}
		return
	}
	b.WriteString(strings.ToLower(t.Token))
	b.WriteByte('(')
	for i, ch := range t.Children {
		if i > 0 {
			b.WriteByte(',')
		}
		ch.write(b)
	}
	b.WriteByte(')')
}

// Sort orders terms by their canonical text so that identical queries,
// regardless of the order pairs arrived in, compile to identical SQL.
func Sort(terms []*Term) []*Term {
	out := make([]*Term, len(terms))
	copy(out, terms)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

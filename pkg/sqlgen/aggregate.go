package sqlgen

import (
	"strings"

	"github.com/restq/restq/pkg/rql"
)

// aggregateExpr renders one SELECT-list aggregate term: sum/min/max/avg,
// count, distinct, or an as() alias wrapper.
func (b *builder) aggregateExpr(sc scope, t *rql.Term) (string, error) {
	switch strings.ToLower(t.Token) {
	case "count":
		return b.countExpr(sc, t)
	case "sum", "min", "max", "avg":
		arg, err := b.aggregateArg(sc, t)
		if err != nil {
			return "", err
		}
		return strings.ToLower(t.Token) + "(" + arg + ")", nil
	case "distinct":
		if len(t.Children) != 1 || !t.Child(0).Leaf() {
			return "", errf("distinct() takes exactly one column")
		}
		var col strings.Builder
		if err := b.writeOperand(&col, sc, t.Child(0)); err != nil {
			return "", err
		}
		return "DISTINCT " + col.String(), nil
	case "as":
		if len(t.Children) != 2 || !t.Child(1).Leaf() {
			return "", errf("as() takes an expression and an alias")
		}
		var expr string
		inner := t.Child(0)
		if inner.Func() {
			var err error
			expr, err = b.aggregateExpr(sc, inner)
			if err != nil {
				return "", err
			}
		} else {
			var col strings.Builder
			if err := b.writeOperand(&col, sc, inner); err != nil {
				return "", err
			}
			expr = col.String()
		}
		return expr + " AS " + b.d.QuoteIdent(t.Child(1).Token), nil
	}
	return "", errf("unsupported aggregate %q", t.Token)
}

// countExpr canonicalizes count(table.*) and bare count() to count(*).
func (b *builder) countExpr(sc scope, t *rql.Term) (string, error) {
	if len(t.Children) == 0 {
		return "count(*)", nil
	}
	arg := t.Child(0)
	if arg.Leaf() {
		tok := arg.Token
		if tok == "*" || tok == sc.c.TableName()+".*" || tok == sc.c.Name()+".*" {
			return "count(*)", nil
		}
	}
	inner, err := b.aggregateArg(sc, t)
	if err != nil {
		return "", err
	}
	return "count(" + inner + ")", nil
}

// aggregateArg renders an aggregate's argument: a column or a nested
// distinct(column).
func (b *builder) aggregateArg(sc scope, t *rql.Term) (string, error) {
	if len(t.Children) != 1 {
		return "", errf("%s() takes exactly one argument", t.Token)
	}
	arg := t.Child(0)
	if arg.Is("distinct") {
		if len(arg.Children) != 1 || !arg.Child(0).Leaf() {
			return "", errf("distinct() takes exactly one column")
		}
		var col strings.Builder
		if err := b.writeOperand(&col, sc, arg.Child(0)); err != nil {
			return "", err
		}
		return "DISTINCT " + col.String(), nil
	}
	if !arg.Leaf() {
		return "", errf("%s() argument must be a column", t.Token)
	}
	var col strings.Builder
	if err := b.writeOperand(&col, sc, arg); err != nil {
		return "", err
	}
	return col.String(), nil
}

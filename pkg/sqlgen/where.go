package sqlgen

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/restq/restq/pkg/rql"
)

// leafKind is the compile-time classification of one leaf token.
type leafKind int

const (
	leafColumn leafKind = iota
	leafString
	leafNumber
	leafBool
	leafNull
)

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// classifyLeaf decides what a bare token is, by fixed precedence: author
// quoting wins, then null/boolean/numeric literal patterns, then known
// property names, then the grammar convention that a function's first
// argument is always the operand column.
func classifyLeaf(sc scope, t *rql.Term, firstArg bool) leafKind {
	switch t.Quote {
	case rql.QuoteDouble:
		return leafColumn
	case rql.QuoteSingle:
		return leafString
	}
	tok := t.Token
	if strings.EqualFold(tok, "null") {
		return leafNull
	}
	if strings.EqualFold(tok, "true") || strings.EqualFold(tok, "false") {
		return leafBool
	}
	if numberPattern.MatchString(tok) {
		return leafNumber
	}
	if sc.c.FindProperty(tok) != nil {
		return leafColumn
	}
	if firstArg {
		return leafColumn
	}
	return leafString
}

// leafValue unwraps a literal leaf into its typed Go value for the
// parameter list.
func leafValue(kind leafKind, t *rql.Term) any {
	switch kind {
	case leafBool:
		return strings.EqualFold(t.Token, "true")
	case leafNumber:
		if strings.ContainsRune(t.Token, '.') {
			f, _ := strconv.ParseFloat(t.Token, 64)
			return f
		}
		n, _ := strconv.ParseInt(t.Token, 10, 64)
		return n
	default:
		return t.Token
	}
}

// columnRef renders a leaf classified as a column. Known properties map
// through their backing column name; anything else (ad hoc aliases,
// double-quoted identifiers) is quoted verbatim.
func (b *builder) columnRef(sc scope, t *rql.Term) string {
	if p := sc.c.FindProperty(t.Token); p != nil {
		return sc.col(b.d, p)
	}
	return b.d.QuoteIdent(sc.alias) + "." + b.d.QuoteIdent(t.Token)
}

// writeOperand renders a function's first argument, which the grammar
// fixes as the operand column.
func (b *builder) writeOperand(w *strings.Builder, sc scope, t *rql.Term) error {
	if t == nil {
		return errf("missing operand")
	}
	if !t.Leaf() {
		return errf("operand must be a column name, got %s()", t.Token)
	}
	w.WriteString(b.columnRef(sc, t))
	return nil
}

// writeValue renders a non-first argument: column reference, literal NULL
// (never parameterized), or a placeholder with the typed value appended to
// the parameter list.
func (b *builder) writeValue(w *strings.Builder, sc scope, t *rql.Term) error {
	if !t.Leaf() {
		return errf("nested function %s() not allowed as a value", t.Token)
	}
	switch kind := classifyLeaf(sc, t, false); kind {
	case leafColumn:
		w.WriteString(b.columnRef(sc, t))
	case leafNull:
		w.WriteString("NULL")
	default:
		w.WriteString(b.placeholder(leafValue(kind, t)))
	}
	return nil
}

// writePredicate renders one boolean term of the WHERE clause. Unknown
// function tokens are a fatal compile error, never silently ignored.
func (b *builder) writePredicate(w *strings.Builder, sc scope, t *rql.Term, topLevel bool) error {
	if !t.Func() {
		return errf("bare token %q is not a predicate", t.Token)
	}

	switch strings.ToLower(t.Token) {
	case "and", "or":
		return b.writeBoolComposite(w, sc, t, topLevel)
	case "not":
		if len(t.Children) != 1 {
			return errf("not() takes exactly one predicate")
		}
		w.WriteString("NOT (")
		if err := b.writePredicate(w, sc, t.Child(0), true); err != nil {
			return err
		}
		w.WriteString(")")
		return nil
	case "eq":
		return b.writeComparison(w, sc, t, "=", "IS NULL")
	case "ne":
		return b.writeComparison(w, sc, t, "<>", "IS NOT NULL")
	case "lt":
		return b.writeComparison(w, sc, t, "<", "")
	case "le":
		return b.writeComparison(w, sc, t, "<=", "")
	case "gt":
		return b.writeComparison(w, sc, t, ">", "")
	case "ge":
		return b.writeComparison(w, sc, t, ">=", "")
	case "w":
		return b.writeLike(w, sc, t, "%", "%", false)
	case "wo":
		return b.writeLike(w, sc, t, "%", "%", true)
	case "sw":
		return b.writeLike(w, sc, t, "", "%", false)
	case "ew":
		return b.writeLike(w, sc, t, "%", "", false)
	case "like":
		return b.writeLikePattern(w, sc, t)
	case "n":
		return b.writeNullCheck(w, sc, t, "IS NULL")
	case "nn":
		return b.writeNullCheck(w, sc, t, "IS NOT NULL")
	case "emp":
		return b.writeEmpty(w, sc, t, false)
	case "nemp":
		return b.writeEmpty(w, sc, t, true)
	case "in":
		return b.writeIn(w, sc, t, false)
	case "out":
		return b.writeIn(w, sc, t, true)
	case "if":
		return b.writeIf(w, sc, t)
	case "_exists":
		return b.writeExists(w, sc, t, false)
	case "_notexists":
		return b.writeExists(w, sc, t, true)
	case "miles":
		return b.writeMiles(w, sc, t)
	}
	return errf("unsupported expression %q", t.Token)
}

func (b *builder) writeBoolComposite(w *strings.Builder, sc scope, t *rql.Term, topLevel bool) error {
	if len(t.Children) == 0 {
		return errf("%s() requires at least one predicate", t.Token)
	}
	op := " AND "
	if strings.EqualFold(t.Token, "or") {
		op = " OR "
	}
	if !topLevel || len(t.Children) > 1 {
		w.WriteString("(")
	}
	for i, ch := range t.Children {
		if i > 0 {
			w.WriteString(op)
		}
		if err := b.writePredicate(w, sc, ch, false); err != nil {
			return err
		}
	}
	if !topLevel || len(t.Children) > 1 {
		w.WriteString(")")
	}
	return nil
}

func (b *builder) writeComparison(w *strings.Builder, sc scope, t *rql.Term, op, nullForm string) error {
	if len(t.Children) != 2 {
		return errf("%s() takes a column and a value", t.Token)
	}
	if err := b.writeOperand(w, sc, t.Child(0)); err != nil {
		return err
	}
	val := t.Child(1)
	if nullForm != "" && val.Leaf() && classifyLeaf(sc, val, false) == leafNull {
		w.WriteString(" " + nullForm)
		return nil
	}
	w.WriteString(" " + op + " ")
	return b.writeValue(w, sc, val)
}

// writeLike renders the wildcard-synthesizing contains/starts/ends
// operators. Pattern wildcards are baked into the parameter, never the
// SQL text.
func (b *builder) writeLike(w *strings.Builder, sc scope, t *rql.Term, pre, post string, negate bool) error {
	if len(t.Children) != 2 || !t.Child(1).Leaf() {
		return errf("%s() takes a column and a literal", t.Token)
	}
	if err := b.writeOperand(w, sc, t.Child(0)); err != nil {
		return err
	}
	pattern := pre + t.Child(1).Token + post
	if negate {
		w.WriteString(" NOT")
	}
	w.WriteString(" " + b.d.CaseInsensitiveLike() + " ")
	w.WriteString(b.placeholder(pattern))
	w.WriteString(b.d.LikeEscapeClause(pattern))
	return nil
}

// writeLikePattern renders like() where the author supplies * wildcards.
func (b *builder) writeLikePattern(w *strings.Builder, sc scope, t *rql.Term) error {
	if len(t.Children) != 2 || !t.Child(1).Leaf() {
		return errf("like() takes a column and a pattern")
	}
	if err := b.writeOperand(w, sc, t.Child(0)); err != nil {
		return err
	}
	pattern := strings.ReplaceAll(t.Child(1).Token, "*", "%")
	w.WriteString(" " + b.d.CaseInsensitiveLike() + " ")
	w.WriteString(b.placeholder(pattern))
	w.WriteString(b.d.LikeEscapeClause(pattern))
	return nil
}

// writeNullCheck AND-concatenates IS NULL / IS NOT NULL over every listed
// column.
func (b *builder) writeNullCheck(w *strings.Builder, sc scope, t *rql.Term, form string) error {
	if len(t.Children) == 0 {
		return errf("%s() requires at least one column", t.Token)
	}
	if len(t.Children) > 1 {
		w.WriteString("(")
	}
	for i, ch := range t.Children {
		if i > 0 {
			w.WriteString(" AND ")
		}
		if err := b.writeOperand(w, sc, ch); err != nil {
			return err
		}
		w.WriteString(" " + form)
	}
	if len(t.Children) > 1 {
		w.WriteString(")")
	}
	return nil
}

// writeEmpty renders null-or-empty-string and its negation.
func (b *builder) writeEmpty(w *strings.Builder, sc scope, t *rql.Term, negate bool) error {
	if len(t.Children) != 1 {
		return errf("%s() takes exactly one column", t.Token)
	}
	var col strings.Builder
	if err := b.writeOperand(&col, sc, t.Child(0)); err != nil {
		return err
	}
	if negate {
		w.WriteString("(" + col.String() + " IS NOT NULL AND " + col.String() + " <> '')")
	} else {
		w.WriteString("(" + col.String() + " IS NULL OR " + col.String() + " = '')")
	}
	return nil
}

func (b *builder) writeIn(w *strings.Builder, sc scope, t *rql.Term, negate bool) error {
	if len(t.Children) < 2 {
		return errf("%s() takes a column and at least one value", t.Token)
	}
	if err := b.writeOperand(w, sc, t.Child(0)); err != nil {
		return err
	}
	if negate {
		w.WriteString(" NOT IN (")
	} else {
		w.WriteString(" IN (")
	}
	for i, ch := range t.Children[1:] {
		if i > 0 {
			w.WriteString(", ")
		}
		if err := b.writeValue(w, sc, ch); err != nil {
			return err
		}
	}
	w.WriteString(")")
	return nil
}

// writeIf renders if(cond,then,else) as CASE WHEN, or native IF() where
// the engine has one. Boolean and numeric branch literals are inlined for
// portability; strings are still parameterized.
func (b *builder) writeIf(w *strings.Builder, sc scope, t *rql.Term) error {
	if len(t.Children) != 3 {
		return errf("if() takes a condition and two branches")
	}
	writeBranch := func(ch *rql.Term) error {
		if !ch.Leaf() {
			return errf("if() branches must be scalar")
		}
		switch kind := classifyLeaf(sc, ch, false); kind {
		case leafColumn:
			w.WriteString(b.columnRef(sc, ch))
		case leafNull:
			w.WriteString("NULL")
		case leafBool, leafNumber:
			w.WriteString(ch.Token) // placeholder-free literal
		default:
			w.WriteString(b.placeholder(ch.Token))
		}
		return nil
	}

	if b.d.SupportsNativeIf() {
		w.WriteString("IF(")
		if err := b.writePredicate(w, sc, t.Child(0), true); err != nil {
			return err
		}
		w.WriteString(", ")
		if err := writeBranch(t.Child(1)); err != nil {
			return err
		}
		w.WriteString(", ")
		if err := writeBranch(t.Child(2)); err != nil {
			return err
		}
		w.WriteString(")")
		return nil
	}

	w.WriteString("CASE WHEN ")
	if err := b.writePredicate(w, sc, t.Child(0), true); err != nil {
		return err
	}
	w.WriteString(" THEN ")
	if err := writeBranch(t.Child(1)); err != nil {
		return err
	}
	w.WriteString(" ELSE ")
	if err := writeBranch(t.Child(2)); err != nil {
		return err
	}
	w.WriteString(" END")
	return nil
}

// writeMiles renders the great-circle distance predicate
// miles(latCol,lonCol,lat,lon) via the haversine formula in statute miles.
func (b *builder) writeMiles(w *strings.Builder, sc scope, t *rql.Term) error {
	if len(t.Children) != 4 {
		return errf("miles() takes two columns and two coordinates")
	}
	var latCol, lonCol strings.Builder
	if err := b.writeOperand(&latCol, sc, t.Child(0)); err != nil {
		return err
	}
	if err := b.writeOperand(&lonCol, sc, t.Child(1)); err != nil {
		return err
	}
	// Each occurrence gets its own placeholder so ordinal-parameter
	// dialects bind correctly.
	latVal := leafValue(leafNumber, t.Child(2))
	lonVal := leafValue(leafNumber, t.Child(3))
	lat1 := b.placeholder(latVal)
	lon1 := b.placeholder(lonVal)
	lat2 := b.placeholder(latVal)

	w.WriteString("(3959 * acos(cos(radians(" + lat1 + ")) * cos(radians(" + latCol.String() +
		")) * cos(radians(" + lonCol.String() + ") - radians(" + lon1 +
		")) + sin(radians(" + lat2 + ")) * sin(radians(" + latCol.String() + "))))")
	return nil
}

package rql

import (
	"fmt"
	"net/url"
	"strings"
)

// Reserved tokens are filtered out before compilation. They are either SQL
// keywords (kept out of parameter names to close an injection avenue) or
// framework directives that carry no query semantics.
var reserved = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "union": true, "truncate": true, "exec": true,
	"explain": true, "exclude": true, "expand": true, "collapse": true,
	"q": true,
}

// Reserved reports whether name is a reserved token.
func Reserved(name string) bool {
	return reserved[strings.ToLower(name)]
}

// Control tokens are the query-machinery keys parsePair gives special
// meaning to. They never name a writable property.
var control = map[string]bool{
	"sort": true, "order": true, "page": true, "pagenum": true,
	"pagesize": true, "limit": true, "offset": true,
	"include": true, "includes": true,
}

// Control reports whether name is a query-machinery token.
func Control(name string) bool {
	return control[strings.ToLower(name)]
}

// ParseQuery parses raw query-string key/value pairs into a sorted term
// list. Plain key=value pairs are sugar for eq(key,value); keys containing
// parentheses are parsed as full RQL expressions. Reserved keys are dropped.
func ParseQuery(values url.Values) ([]*Term, error) {
	var terms []*Term
	for key, vals := range values {
		if Reserved(key) {
			continue
		}
		for _, val := range vals {
			t, err := parsePair(key, val)
			if err != nil {
				return nil, err
			}
			if t != nil {
				terms = append(terms, t)
			}
		}
	}
	return Sort(terms), nil
}

func parsePair(key, val string) (*Term, error) {
	switch lk := strings.ToLower(key); lk {
	case "sort", "order":
		return parseSort(val)
	case "page", "pagenum":
		return NewFunc("page", NewLeaf(val)), nil
	case "pagesize", "limit":
		return NewFunc("limit", NewLeaf(val)), nil
	case "offset":
		return NewFunc("offset", NewLeaf(val)), nil
	case "include", "includes":
		t := NewFunc("includes")
		for _, col := range strings.Split(val, ",") {
			if col = strings.TrimSpace(col); col != "" {
				t.Children = append(t.Children, NewLeaf(col))
			}
		}
		return t, nil
	}

	if strings.ContainsRune(key, '(') {
		t, err := Parse(key)
		if err != nil {
			return nil, err
		}
		// eq(title)=Dune style: the pair value supplies the last argument.
		if val != "" && t.Func() {
			vt, err := Parse(val)
			if err != nil {
				return nil, err
			}
			t.Children = append(t.Children, vt)
		}
		return t, nil
	}

	if val == "" {
		return NewFunc("nn", NewLeaf(key)), nil
	}
	if strings.ContainsRune(val, '(') {
		// title=sw(Du): value is a function whose first argument is the key.
		vt, err := Parse(val)
		if err != nil {
			return nil, err
		}
		if vt.Func() {
			vt.Children = append([]*Term{NewLeaf(key)}, vt.Children...)
			return vt, nil
		}
	}
	return NewFunc("eq", NewLeaf(key), NewLeaf(val)), nil
}

// parseSort turns "sort=-title,+id" into sort(desc(title),asc(id)) style
// children the compiler understands.
func parseSort(val string) (*Term, error) {
	t := NewFunc("sort")
	for _, col := range strings.Split(val, ",") {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		switch {
		case strings.HasPrefix(col, "-"):
			t.Children = append(t.Children, NewFunc("desc", NewLeaf(col[1:])))
		case strings.HasPrefix(col, "+"):
			t.Children = append(t.Children, NewFunc("asc", NewLeaf(col[1:])))
		default:
			t.Children = append(t.Children, NewLeaf(col))
		}
	}
	if len(t.Children) == 0 {
		return nil, nil
	}
	return t, nil
}

// Parse parses a single RQL expression, e.g. and(eq(status,active),gt(age,21)).
func Parse(expr string) (*Term, error) {
	p := &parser{in: expr}
	t, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return nil, fmt.Errorf("rql: trailing input at offset %d in %q", p.pos, expr)
	}
	return t, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) parseTerm() (*Term, error) {
	p.skipSpace()
	tok, quote, err := p.token()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if quote == QuoteNone && p.peek() == '(' {
		p.pos++ // consume '('
		t := NewFunc(strings.ToLower(tok)).markFunc()
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			return t, nil
		}
		for {
			child, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			t.Children = append(t.Children, child)
			p.skipSpace()
			switch p.peek() {
			case ',':
				p.pos++
			case ')':
				p.pos++
				return t, nil
			default:
				return nil, fmt.Errorf("rql: expected ',' or ')' at offset %d in %q", p.pos, p.in)
			}
		}
	}
	return &Term{Token: tok, Quote: quote}, nil
}

func (p *parser) token() (string, QuoteKind, error) {
	if p.pos >= len(p.in) {
		return "", QuoteNone, fmt.Errorf("rql: unexpected end of input in %q", p.in)
	}
	switch c := p.in[p.pos]; c {
	case '\'', '"':
		return p.quoted(c)
	}
	start := p.pos
	for p.pos < len(p.in) {
		switch p.in[p.pos] {
		case '(', ')', ',':
			goto done
		}
		p.pos++
	}
done:
	tok := strings.TrimSpace(p.in[start:p.pos])
	if tok == "" {
		return "", QuoteNone, fmt.Errorf("rql: empty token at offset %d in %q", start, p.in)
	}
	return tok, QuoteNone, nil
}

func (p *parser) quoted(q byte) (string, QuoteKind, error) {
	kind := QuoteSingle
	if q == '"' {
		kind = QuoteDouble
	}
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.in) {
				p.pos++
				b.WriteByte(p.in[p.pos])
				p.pos++
				continue
			}
			return "", kind, fmt.Errorf("rql: dangling escape in %q", p.in)
		case q:
			p.pos++
			return b.String(), kind, nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", kind, fmt.Errorf("rql: unterminated quote in %q", p.in)
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

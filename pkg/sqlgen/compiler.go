package sqlgen

import (
	"strconv"
	"strings"

	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
)

// Compiled is the output of one compilation: the statement, its ordered
// parameters, and the companion found-rows statement when the query is
// paginated.
type Compiled struct {
	SQL    string
	Params []any

	// CountSQL computes the total row count across all pages. Empty when
	// the query is not paginated. For MySQL it relies on
	// SQL_CALC_FOUND_ROWS injected into SQL and must run on the same
	// connection immediately after it.
	CountSQL    string
	CountParams []any

	Limit     int // -1 when unpaginated
	Offset    int
	Page      int // 1-based, 0 when not requested
	Aggregate bool
}

// defaultSortColumnCap bounds the synthesized default sort when a table
// has no primary key; sorting a wide table on every column gets expensive.
const defaultSortColumnCap = 8

// Compile translates a term list against a collection into SQL for the
// collection's dialect. Terms are sorted internally, so callers get
// identical output for any arrival order of the same term set.
func Compile(c *schema.Collection, terms []*rql.Term) (*Compiled, error) {
	p, err := buildPlan(c, terms)
	if err != nil {
		return nil, err
	}

	d := c.Db().Dialect()
	b := &builder{d: d}
	sc := scope{c: c, alias: c.TableName()}

	selectList, selectedProps, err := b.selectList(sc, p)
	if err != nil {
		return nil, err
	}

	var base strings.Builder
	base.WriteString(selectList)
	base.WriteString(" FROM ")
	base.WriteString(d.QuoteIdent(c.TableName()))

	if len(p.where) > 0 {
		base.WriteString(" WHERE ")
		for i, t := range p.where {
			if i > 0 {
				base.WriteString(" AND ")
			}
			if err := b.writePredicate(&base, sc, t, true); err != nil {
				return nil, err
			}
		}
	}

	if len(p.groupBy) > 0 {
		base.WriteString(" GROUP BY ")
		for i, g := range p.groupBy {
			if i > 0 {
				base.WriteString(", ")
			}
			prop := c.FindProperty(g)
			if prop == nil {
				return nil, errf("unknown group by property %q on %s", g, c.Name())
			}
			base.WriteString(sc.col(b.d, prop))
		}
	}

	orderBy, err := b.orderBy(sc, p, selectedProps)
	if err != nil {
		return nil, err
	}

	limit, offset, page := resolvePagination(p)

	out := &Compiled{Limit: limit, Offset: offset, Page: page, Aggregate: len(p.aggregates) > 0}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	if limit >= 0 && d.SupportsCalcFoundRows() {
		sql.WriteString("SQL_CALC_FOUND_ROWS ")
	}
	sql.WriteString(base.String())
	sql.WriteString(orderBy)
	// Pagination is only defined under an explicit ordering.
	if limit >= 0 && orderBy != "" {
		sql.WriteString(d.Paginate(limit, offset))
	}

	out.SQL = sql.String()
	out.Params = b.params

	if limit >= 0 {
		if d.SupportsCalcFoundRows() {
			out.CountSQL = "SELECT FOUND_ROWS()"
		} else {
			out.CountSQL = "SELECT count(1) FROM (SELECT " + base.String() + ") AS q"
			out.CountParams = b.params
		}
	}
	return out, nil
}

func resolvePagination(p *plan) (limit, offset, page int) {
	limit = p.limit
	page = 0
	if p.page > 0 {
		page = p.page
		if limit < 0 {
			limit = 100
		}
		offset = (page - 1) * limit
	}
	if p.offset > 0 {
		offset = p.offset
	}
	return limit, offset, page
}

// scope is the collection an expression currently resolves against, with
// the alias its columns are prefixed by. Correlated sub-queries push new
// scopes with depth-derived aliases.
type scope struct {
	c     *schema.Collection
	alias string
	depth int
}

func (s scope) col(d *dialect.Dialect, p *schema.Property) string {
	return d.QuoteIdent(s.alias) + "." + d.QuoteIdent(p.ColumnName())
}

func (s scope) child(c *schema.Collection) scope {
	depth := s.depth + 1
	alias := c.TableName()
	if alias == s.alias || depth > 1 {
		// disambiguate self-joins and deep traversals
		alias = alias + "_" + strconv.Itoa(depth)
	}
	return scope{c: c, alias: alias, depth: depth}
}

// builder accumulates statement parameters while clauses are rendered.
type builder struct {
	d      *dialect.Dialect
	params []any
}

func (b *builder) placeholder(v any) string {
	b.params = append(b.params, v)
	return b.d.Placeholder(len(b.params))
}

// selectList renders everything between SELECT and FROM and reports which
// scalar properties ended up selected (for default-sort synthesis).
func (b *builder) selectList(sc scope, p *plan) (string, []*schema.Property, error) {
	d := b.d

	if len(p.aggregates) > 0 {
		// Aggregated queries list group columns first, then the aggregate
		// expressions. Primary-key columns are deliberately omitted: they
		// are meaningless once rows are collapsed.
		var cols []string
		var scalar []*schema.Property
		for _, g := range p.groupBy {
			prop := sc.c.FindProperty(g)
			if prop == nil {
				return "", nil, errf("unknown group by property %q on %s", g, sc.c.Name())
			}
			cols = append(cols, sc.col(d, prop))
			scalar = append(scalar, prop)
		}
		for _, agg := range p.aggregates {
			expr, err := b.aggregateExpr(sc, agg)
			if err != nil {
				return "", nil, err
			}
			cols = append(cols, expr)
		}
		return strings.Join(cols, ", "), scalar, nil
	}

	if len(p.includes) == 0 {
		return d.QuoteIdent(sc.alias) + ".*", sc.c.Properties(), nil
	}

	// Explicit column list: requested properties plus the resource-index
	// key columns, force-included so every row keeps an addressable
	// identity even when the caller did not ask for it.
	seen := map[*schema.Property]bool{}
	var props []*schema.Property
	for _, name := range p.includes {
		prop := sc.c.FindProperty(name)
		if prop == nil {
			continue // extraneous include, ignored like unknown filter keys
		}
		if !seen[prop] {
			seen[prop] = true
			props = append(props, prop)
		}
	}
	if ri := sc.c.ResourceIndex(); ri != nil {
		for _, prop := range ri.Properties() {
			if !seen[prop] {
				seen[prop] = true
				props = append(props, prop)
			}
		}
	}
	if len(props) == 0 {
		return d.QuoteIdent(sc.alias) + ".*", sc.c.Properties(), nil
	}
	cols := make([]string, len(props))
	for i, prop := range props {
		cols[i] = sc.col(d, prop)
	}
	return strings.Join(cols, ", "), props, nil
}

// orderBy renders the explicit sort, or synthesizes a deterministic
// default: the primary key when it is part of the selected column set,
// else the scalar selected columns (capped).
func (b *builder) orderBy(sc scope, p *plan, selected []*schema.Property) (string, error) {
	d := b.d

	if p.sort != nil && len(p.sort.Children) > 0 {
		var cols []string
		for _, ch := range p.sort.Children {
			desc := false
			tok := ch.Token
			if ch.Is("desc") || ch.Is("asc") {
				desc = ch.Is("desc")
				if ch.Child(0) == nil {
					return "", errf("sort: %s() requires a property", ch.Token)
				}
				tok = ch.Child(0).Token
			}
			prop := sc.c.FindProperty(tok)
			if prop == nil {
				return "", errf("unknown sort property %q on %s", tok, sc.c.Name())
			}
			col := sc.col(d, prop)
			if desc {
				col += " DESC"
			}
			cols = append(cols, col)
		}
		return " ORDER BY " + strings.Join(cols, ", "), nil
	}

	var cols []string
	if ri := sc.c.ResourceIndex(); ri != nil && containsAll(selected, ri.Properties()) {
		for _, prop := range ri.Properties() {
			cols = append(cols, sc.col(d, prop))
		}
	} else {
		for _, prop := range selected {
			cols = append(cols, sc.col(d, prop))
			if len(cols) == defaultSortColumnCap {
				break
			}
		}
	}
	if len(cols) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(cols, ", "), nil
}

func containsAll(haystack, needles []*schema.Property) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package mapper

import (
	"sort"
	"strings"

	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
)

// ColumnFilter is the write-path allow/deny list. Independent of the
// explicit lists, any name starting with an underscore, matching a
// reserved word, or matching a query-machinery token is denied.
type ColumnFilter struct {
	Include []string
	Exclude []string
}

// Allowed reports whether a JSON property name may be written.
func (f *ColumnFilter) Allowed(name string) bool {
	if strings.HasPrefix(name, "_") || rql.Reserved(name) || rql.Control(name) {
		return false
	}
	if f == nil {
		return true
	}
	for _, e := range f.Exclude {
		if strings.EqualFold(e, name) {
			return false
		}
	}
	if len(f.Include) > 0 {
		for _, i := range f.Include {
			if strings.EqualFold(i, name) {
				return true
			}
		}
		return false
	}
	return true
}

// ToJSON maps one raw result row into a JSON document keyed by property
// names. Known properties are cast and re-keyed; unmapped columns (ad hoc
// aggregate aliases and the like) are passed through verbatim, sorted by
// name for determinism; finally the resource-index properties are moved to
// the front so identity fields always lead the object.
func ToJSON(c *schema.Collection, row map[string]any) (*Document, error) {
	rest := make(map[string]any, len(row))
	for k, v := range row {
		rest[k] = v
	}

	doc := NewDocument()
	for _, p := range c.Properties() {
		v, ok := rest[p.ColumnName()]
		if !ok {
			continue
		}
		delete(rest, p.ColumnName())
		cast, err := outputCast(p.Type(), v)
		if err != nil {
			return nil, err
		}
		doc.Set(p.Name(), cast)
	}

	leftover := make([]string, 0, len(rest))
	for k := range rest {
		leftover = append(leftover, k)
	}
	sort.Strings(leftover)
	for _, k := range leftover {
		doc.Set(k, rest[k])
	}

	if ri := c.ResourceIndex(); ri != nil {
		props := ri.Properties()
		for i := len(props) - 1; i >= 0; i-- {
			if v, ok := doc.Get(props[i].Name()); ok {
				doc.InsertFront(props[i].Name(), v)
			}
		}
	}
	return doc, nil
}

// ToRow maps one inbound JSON document into a column-keyed row. Keys that
// are not properties are dropped; they cannot be written to unmapped
// columns. Values are cast to each property's declared semantic type, then
// the column filter is applied.
func ToRow(c *schema.Collection, doc map[string]any, filter *ColumnFilter) (map[string]any, error) {
	row := make(map[string]any, len(doc))
	for key, val := range doc {
		p := c.FindProperty(key)
		if p == nil {
			continue
		}
		if !filter.Allowed(p.Name()) {
			continue
		}
		cast, err := inputCast(p.Type(), val)
		if err != nil {
			return nil, err
		}
		row[p.ColumnName()] = cast
	}
	return row, nil
}

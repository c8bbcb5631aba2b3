package sqlgen

import (
	"strings"

	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
)

// writeExists renders a relationship traversal as a correlated EXISTS
// sub-query. The join predicate depends on where the foreign key lives:
// on this side for to-one traversals, on the related side for to-many,
// and across the link table's two hops for many-to-many.
func (b *builder) writeExists(w *strings.Builder, sc scope, t *rql.Term, negate bool) error {
	if len(t.Children) < 1 || !t.Child(0).Leaf() {
		return errf("%s() requires a relationship name", t.Token)
	}
	rel := sc.c.RelationshipByName(t.Child(0).Token)
	if rel == nil {
		return errf("unknown relationship %q on %s", t.Child(0).Token, sc.c.Name())
	}

	if negate {
		w.WriteString("NOT ")
	}

	if rel.Type() == schema.ManyToMany {
		return b.writeExistsManyToMany(w, sc, rel, t.Children[1:])
	}

	related := rel.Related()
	rsc := sc.child(related)

	w.WriteString("EXISTS (SELECT 1 FROM ")
	w.WriteString(b.fromClause(related, rsc.alias))
	w.WriteString(" WHERE ")

	fk := rel.FkIndex1()
	for i, p := range fk.Properties() {
		if i > 0 {
			w.WriteString(" AND ")
		}
		if fk.Collection() == sc.c {
			// FK on this side: our FK column equals the related PK column.
			w.WriteString(sc.col(b.d, p) + " = " + rsc.col(b.d, p.Pk()))
		} else {
			// FK on the related side: its FK column equals our PK column.
			w.WriteString(rsc.col(b.d, p) + " = " + sc.col(b.d, p.Pk()))
		}
	}

	if err := b.writeNestedPredicates(w, rsc, t.Children[1:]); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// writeExistsManyToMany renders the two-hop traversal through the link
// table: owner PK to link FK1, link FK2 to related PK.
func (b *builder) writeExistsManyToMany(w *strings.Builder, sc scope, rel *schema.Relationship, preds []*rql.Term) error {
	link := rel.FkIndex1().Collection()
	lsc := sc.child(link)
	rsc := lsc.child(rel.Related())

	w.WriteString("EXISTS (SELECT 1 FROM ")
	w.WriteString(b.fromClause(link, lsc.alias))
	w.WriteString(", ")
	w.WriteString(b.fromClause(rel.Related(), rsc.alias))
	w.WriteString(" WHERE ")

	for i, p := range rel.FkIndex1().Properties() {
		if i > 0 {
			w.WriteString(" AND ")
		}
		w.WriteString(lsc.col(b.d, p) + " = " + sc.col(b.d, p.Pk()))
	}
	for _, p := range rel.FkIndex2().Properties() {
		w.WriteString(" AND ")
		w.WriteString(lsc.col(b.d, p) + " = " + rsc.col(b.d, p.Pk()))
	}

	if err := b.writeNestedPredicates(w, rsc, preds); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

func (b *builder) writeNestedPredicates(w *strings.Builder, sc scope, preds []*rql.Term) error {
	for _, pred := range preds {
		w.WriteString(" AND ")
		if err := b.writePredicate(w, sc, pred, false); err != nil {
			return err
		}
	}
	return nil
}

// fromClause renders a table reference, aliased only when the alias had to
// diverge from the table name.
func (b *builder) fromClause(c *schema.Collection, alias string) string {
	if alias == c.TableName() {
		return b.d.QuoteIdent(c.TableName())
	}
	return b.d.QuoteIdent(c.TableName()) + " AS " + b.d.QuoteIdent(alias)
}

package schema

import "fmt"

// buildRelationships classifies every foreign-key index and synthesizes the
// named relationship edges both directions of each traversal. It runs after
// reflection, before beautification, so relationship names are derived from
// already-raw identifiers via the same beautify rules.
func (db *Db) buildRelationships() error {
	for _, c := range db.collections {
		for _, fk := range c.ForeignKeyIndexes() {
			for _, p := range fk.Properties() {
				if p.Pk() == nil {
					return fmt.Errorf("foreign key %s.%s has no resolved target column",
						c.TableName(), p.ColumnName())
				}
			}
		}
	}

	for _, c := range db.collections {
		if c.IsLinkTable() {
			fks := c.ForeignKeyIndexes()
			db.addManyToMany(fks[0], fks[1])
			db.addManyToMany(fks[1], fks[0])
			continue
		}
		for _, fk := range c.ForeignKeyIndexes() {
			related := fk.Properties()[0].Pk().Collection()
			if db.isOneToOne(c, fk, related) {
				db.addPair(related, c, fk, OneToOneParent)
			} else {
				db.addPair(related, c, fk, OneToMany)
			}
		}
	}
	return nil
}

// addManyToMany attaches one directed MANY_TO_MANY edge to the collection
// referenced by hop1, relating it to the collection referenced by hop2,
// both hops living on the link table.
func (db *Db) addManyToMany(hop1, hop2 *Index) {
	owner := hop1.Properties()[0].Pk().Collection()
	related := hop2.Properties()[0].Pk().Collection()
	r := &Relationship{
		typ:      ManyToMany,
		related:  related,
		fkIndex1: hop1,
		fkIndex2: hop2,
	}
	r.name = db.relationshipName(owner, r)
	owner.AddRelationship(r)
}

// addPair synthesizes the reciprocal pair over one plain foreign key:
// pkSideType on the referenced collection and its inverse on the
// referencing collection.
func (db *Db) addPair(pkSide, fkSide *Collection, fk *Index, pkSideType RelationshipType) {
	parent := &Relationship{typ: pkSideType, related: fkSide, fkIndex1: fk}
	parent.name = db.relationshipName(pkSide, parent)
	pkSide.AddRelationship(parent)

	child := &Relationship{typ: pkSideType.Inverse(), related: pkSide, fkIndex1: fk}
	child.name = db.relationshipName(fkSide, child)
	fkSide.AddRelationship(child)
}

// isOneToOne detects a one-to-one traversal: the FK's column set is exactly
// the child's own primary index, and the referenced columns are exactly the
// parent's primary key.
func (db *Db) isOneToOne(child *Collection, fk *Index, parent *Collection) bool {
	childPk := child.ResourceIndex()
	parentPk := parent.ResourceIndex()
	if childPk == nil || parentPk == nil || !childPk.Unique() || !parentPk.Unique() {
		return false
	}
	if !fk.SameColumns(childPk) {
		return false
	}
	if len(fk.Properties()) != len(parentPk.Properties()) {
		return false
	}
	for _, p := range fk.Properties() {
		if !parentPk.Contains(p.Pk()) {
			return false
		}
	}
	return true
}

// relationshipName derives the REST-facing name of a relationship edge.
// The base token comes from the first FK column with a trailing "id"
// stripped; the shape then depends on cardinality. When the base name is
// already taken on the owner (another relationship or a property), the
// beautified FK column token is appended as a deterministic tiebreak.
func (db *Db) relationshipName(owner *Collection, r *Relationship) string {
	fkToken := toCamel(stripIDSuffix(r.fkIndex1.Properties()[0].ColumnName()))

	var base string
	switch r.typ {
	case ManyToOne:
		base = fkToken
	case OneToMany:
		base = Beautify(r.related.Name(), true)
	case ManyToMany:
		base = Beautify(r.related.Name(), true)
	default: // one-to-one, either direction
		base = singularCamel(Beautify(r.related.Name(), false))
	}

	if owner.RelationshipByName(base) == nil && owner.FindProperty(base) == nil {
		return base
	}
	return base + upperFirst(fkToken)
}

package schema

// RelationshipType is the cardinality of a directed relationship edge.
type RelationshipType string

const (
	ManyToOne      RelationshipType = "MANY_TO_ONE"
	OneToMany      RelationshipType = "ONE_TO_MANY"
	OneToOneParent RelationshipType = "ONE_TO_ONE_PARENT"
	OneToOneChild  RelationshipType = "ONE_TO_ONE_CHILD"
	ManyToMany     RelationshipType = "MANY_TO_MANY"
)

// Inverse returns the cardinality seen from the other end of the edge.
func (t RelationshipType) Inverse() RelationshipType {
	switch t {
	case ManyToOne:
		return OneToMany
	case OneToMany:
		return ManyToOne
	case OneToOneParent:
		return OneToOneChild
	case OneToOneChild:
		return OneToOneParent
	default:
		return ManyToMany
	}
}

// Relationship is a directed, named edge between two collections,
// synthesized once at schema-build time and immutable thereafter.
// Relationships over a plain foreign key are always created in reciprocal
// pairs; many-to-many edges are created once per direction across the link
// table's two foreign keys.
type Relationship struct {
	name       string
	typ        RelationshipType
	collection *Collection // owning side
	related    *Collection
	fkIndex1   *Index
	fkIndex2   *Index // link-table second hop, many-to-many only
}

func (r *Relationship) Name() string            { return r.name }
func (r *Relationship) Type() RelationshipType  { return r.typ }
func (r *Relationship) Collection() *Collection { return r.collection }
func (r *Relationship) Related() *Collection    { return r.related }
func (r *Relationship) FkIndex1() *Index        { return r.fkIndex1 }
func (r *Relationship) FkIndex2() *Index        { return r.fkIndex2 }

// ManyToOne reports whether traversing this edge lands on at most one row.
func (r *Relationship) ToOne() bool {
	switch r.typ {
	case ManyToOne, OneToOneParent, OneToOneChild:
		return true
	}
	return false
}

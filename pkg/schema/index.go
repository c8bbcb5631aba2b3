package schema

// IndexType classifies an index by the catalog object it came from.
type IndexType string

const (
	IndexTypePrimary    IndexType = "PRIMARY"
	IndexTypeUnique     IndexType = "UNIQUE"
	IndexTypeForeignKey IndexType = "FOREIGN_KEY"
	IndexTypeOther      IndexType = "OTHER"
)

// Index is a named, typed, ordered list of properties within one
// collection.
type Index struct {
	collection *Collection
	name       string
	typ        IndexType
	unique     bool
	properties []*Property
}

// NewIndex builds an index over the given properties.
func NewIndex(name string, typ IndexType, unique bool, properties ...*Property) *Index {
	return &Index{name: name, typ: typ, unique: unique, properties: properties}
}

func (i *Index) Collection() *Collection { return i.collection }
func (i *Index) Name() string            { return i.name }
func (i *Index) Type() IndexType         { return i.typ }
func (i *Index) Unique() bool            { return i.unique }
func (i *Index) Properties() []*Property { return i.properties }

// AddProperty appends a column to the index.
func (i *Index) AddProperty(p *Property) { i.properties = append(i.properties, p) }

// Contains reports whether the index covers the property.
func (i *Index) Contains(p *Property) bool {
	for _, ip := range i.properties {
		if ip == p {
			return true
		}
	}
	return false
}

// SameColumns reports whether two indexes cover exactly the same property
// set, ignoring order.
func (i *Index) SameColumns(other *Index) bool {
	if other == nil || len(i.properties) != len(other.properties) {
		return false
	}
	for _, p := range i.properties {
		if !other.Contains(p) {
			return false
		}
	}
	return true
}

package schema

import "strings"

// Collection is the REST-facing projection of one backing table or view.
type Collection struct {
	db        *Db
	name      string // REST-facing, plural once beautified
	tableName string
	exclude   bool

	properties    []*Property
	indexes       []*Index
	relationships []*Relationship
}

// NewCollection creates a collection whose display name initially equals
// the backing table name; beautification later detects that equality as
// "not yet customized".
func NewCollection(tableName string) *Collection {
	return &Collection{name: tableName, tableName: tableName}
}

func (c *Collection) Db() *Db            { return c.db }
func (c *Collection) Name() string       { return c.name }
func (c *Collection) TableName() string  { return c.tableName }
func (c *Collection) Excluded() bool     { return c.exclude }
func (c *Collection) SetExcluded(v bool) { c.exclude = v }

// SetName customizes the REST-facing name. Once it differs from the
// backing table name, beautification leaves it alone.
func (c *Collection) SetName(name string) { c.name = name }

func (c *Collection) Properties() []*Property        { return c.properties }
func (c *Collection) Indexes() []*Index              { return c.indexes }
func (c *Collection) Relationships() []*Relationship { return c.relationships }

// AddProperty appends a property and binds it to this collection.
func (c *Collection) AddProperty(p *Property) *Property {
	p.collection = c
	c.properties = append(c.properties, p)
	return p
}

// AddIndex appends an index and binds it to this collection.
func (c *Collection) AddIndex(idx *Index) *Index {
	idx.collection = c
	c.indexes = append(c.indexes, idx)
	return idx
}

// AddRelationship appends a relationship owned by this collection.
func (c *Collection) AddRelationship(r *Relationship) *Relationship {
	r.collection = c
	c.relationships = append(c.relationships, r)
	return r
}

// FindProperty looks a property up by its JSON-facing name,
// case-insensitively.
func (c *Collection) FindProperty(jsonName string) *Property {
	for _, p := range c.properties {
		if strings.EqualFold(p.name, jsonName) {
			return p
		}
	}
	return nil
}

// PropertyByColumn looks a property up by its backing column name.
func (c *Collection) PropertyByColumn(columnName string) *Property {
	for _, p := range c.properties {
		if strings.EqualFold(p.columnName, columnName) {
			return p
		}
	}
	return nil
}

// IndexByName finds an index by name.
func (c *Collection) IndexByName(name string) *Index {
	for _, idx := range c.indexes {
		if strings.EqualFold(idx.name, name) {
			return idx
		}
	}
	return nil
}

// ResourceIndex returns the index used to address one record from outside:
// the primary index if present, else the first unique index.
func (c *Collection) ResourceIndex() *Index {
	for _, idx := range c.indexes {
		if idx.typ == IndexTypePrimary {
			return idx
		}
	}
	for _, idx := range c.indexes {
		if idx.unique {
			return idx
		}
	}
	return nil
}

// ForeignKeyIndexes returns this collection's FOREIGN_KEY indexes.
func (c *Collection) ForeignKeyIndexes() []*Index {
	var out []*Index
	for _, idx := range c.indexes {
		if idx.typ == IndexTypeForeignKey {
			out = append(out, idx)
		}
	}
	return out
}

// RelationshipByName finds a relationship by its REST-facing name.
func (c *Collection) RelationshipByName(name string) *Relationship {
	for _, r := range c.relationships {
		if strings.EqualFold(r.name, name) {
			return r
		}
	}
	return nil
}

// IsLinkTable reports whether this collection exists purely to realize a
// many-to-many relationship: exactly two foreign-key indexes referencing
// other tables, and no column outside the union of the two key column sets
// and the primary key.
func (c *Collection) IsLinkTable() bool {
	fks := c.ForeignKeyIndexes()
	if len(fks) != 2 {
		return false
	}
	keyed := map[*Property]bool{}
	for _, fk := range fks {
		for _, p := range fk.properties {
			keyed[p] = true
		}
	}
	if pk := c.ResourceIndex(); pk != nil {
		for _, p := range pk.properties {
			keyed[p] = true
		}
	}
	for _, p := range c.properties {
		if !keyed[p] {
			return false
		}
	}
	return true
}

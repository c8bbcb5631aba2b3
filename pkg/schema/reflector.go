package schema

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/restq/restq/pkg/dialect"
)

// reflector walks a live database's catalog metadata and populates the Db
// in two passes: pass 1 creates every collection with its properties and
// key indexes, pass 2 resolves imported (foreign) keys once all referenced
// properties exist.
type reflector struct {
	db     *Db
	conn   *sql.DB
	logger *zap.Logger
}

func (r *reflector) reflect(ctx context.Context) error {
	if r.db.dialect.Name() == dialect.SQLite {
		return r.reflectSQLite(ctx)
	}
	return r.reflectInfoSchema(ctx)
}

// importedKey is one row of a table's foreign-key metadata, in key-sequence
// order within each constraint.
type importedKey struct {
	constraint string
	column     string
	refTable   string
	refColumn  string
}

// attachImportedKeys runs pass 2 for one collection: set each FK column's
// pk back-reference and create a FOREIGN_KEY index per constraint.
func (r *reflector) attachImportedKeys(c *Collection, keys []importedKey) {
	indexes := map[string]*Index{}
	var order []string

	for _, k := range keys {
		p := c.PropertyByColumn(k.column)
		if p == nil {
			continue
		}
		ref := r.db.CollectionByTable(k.refTable)
		if ref == nil {
			// Referenced table filtered out by the whitelist; the FK edge
			// cannot be modeled and is dropped with a warning.
			r.logger.Warn("foreign key references unreflected table",
				zap.String("table", c.TableName()),
				zap.String("column", k.column),
				zap.String("references", k.refTable))
			continue
		}
		target := ref.PropertyByColumn(k.refColumn)
		if target == nil && k.refColumn == "" {
			// SQLite allows omitting the referenced column, meaning the
			// referenced table's primary key.
			if pk := ref.ResourceIndex(); pk != nil && len(pk.Properties()) == 1 {
				target = pk.Properties()[0]
			}
		}
		if target == nil {
			r.logger.Warn("foreign key references unknown column",
				zap.String("table", c.TableName()),
				zap.String("column", k.column),
				zap.String("references", k.refTable+"."+k.refColumn))
			continue
		}
		p.SetPk(target)

		idx, ok := indexes[k.constraint]
		if !ok {
			idx = NewIndex(k.constraint, IndexTypeForeignKey, false)
			indexes[k.constraint] = idx
			order = append(order, k.constraint)
		}
		idx.AddProperty(p)
	}

	for _, name := range order {
		c.AddIndex(indexes[name])
	}
}

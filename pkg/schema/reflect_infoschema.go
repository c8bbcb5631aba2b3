package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/restq/restq/pkg/dialect"
)

// currentSchemaExpr is the engine function yielding the connection's
// default schema, inlined so catalog queries stay parameter-free where
// possible.
func (r *reflector) currentSchemaExpr() string {
	switch r.db.dialect.Name() {
	case dialect.MySQL:
		return "database()"
	case dialect.SQLServer:
		return "schema_name()"
	default:
		return "current_schema()"
	}
}

func (r *reflector) ph(i int) string { return r.db.dialect.Placeholder(i) }

// reflectInfoSchema reflects MySQL, Postgres, and SQL Server through the
// standard information_schema views.
func (r *reflector) reflectInfoSchema(ctx context.Context) error {
	tables, err := r.queryTables(ctx)
	if err != nil {
		return fmt.Errorf("query tables: %w", err)
	}

	// Pass 1: collections, properties, and key indexes.
	for _, table := range tables {
		if !r.db.tableIncluded(table) {
			continue
		}
		c := r.db.AddCollection(NewCollection(table))
		if err := r.queryColumns(ctx, c); err != nil {
			return fmt.Errorf("query columns %s: %w", table, err)
		}
		if err := r.queryKeyIndexes(ctx, c); err != nil {
			return fmt.Errorf("query indexes %s: %w", table, err)
		}
	}

	// Pass 2: imported keys, now that every referenced property exists.
	for _, c := range r.db.Collections() {
		keys, err := r.queryImportedKeys(ctx, c.TableName())
		if err != nil {
			return fmt.Errorf("query foreign keys %s: %w", c.TableName(), err)
		}
		r.attachImportedKeys(c, keys)
	}
	return nil
}

func (r *reflector) queryTables(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = `+r.currentSchemaExpr()+`
			AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *reflector) queryColumns(ctx context.Context, c *Collection) error {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = `+r.currentSchemaExpr()+`
			AND table_name = `+r.ph(1)+`
		ORDER BY ordinal_position`, c.TableName())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return err
		}
		c.AddProperty(NewProperty(name, SemanticType(dataType), nullable == "YES"))
	}
	return rows.Err()
}

// queryKeyIndexes creates the PRIMARY and UNIQUE indexes from constraint
// metadata. Rows with a null constraint or column name are skipped; some
// engines emit them for expression and partial indexes.
func (r *reflector) queryKeyIndexes(ctx context.Context, c *Collection) error {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = `+r.currentSchemaExpr()+`
			AND tc.table_name = `+r.ph(1)+`
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		ORDER BY tc.constraint_name, kcu.ordinal_position`, c.TableName())
	if err != nil {
		return err
	}
	defer rows.Close()

	indexes := map[string]*Index{}
	var order []string
	for rows.Next() {
		var name, typ, column sql.NullString
		if err := rows.Scan(&name, &typ, &column); err != nil {
			return err
		}
		if !name.Valid || !column.Valid {
			continue
		}
		p := c.PropertyByColumn(column.String)
		if p == nil {
			continue
		}
		idx, ok := indexes[name.String]
		if !ok {
			idxType := IndexTypeUnique
			if typ.String == "PRIMARY KEY" {
				idxType = IndexTypePrimary
			}
			idx = NewIndex(name.String, idxType, true)
			indexes[name.String] = idx
			order = append(order, name.String)
		}
		idx.AddProperty(p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range order {
		c.AddIndex(indexes[name])
	}
	return nil
}

func (r *reflector) queryImportedKeys(ctx context.Context, table string) ([]importedKey, error) {
	var query string
	if r.db.dialect.Name() == dialect.MySQL {
		// MySQL carries the referenced side directly on key_column_usage.
		query = `
			SELECT kcu.constraint_name, kcu.column_name,
				kcu.referenced_table_name, kcu.referenced_column_name
			FROM information_schema.key_column_usage kcu
			WHERE kcu.table_schema = database()
				AND kcu.table_name = ?
				AND kcu.referenced_table_name IS NOT NULL
			ORDER BY kcu.constraint_name, kcu.ordinal_position`
	} else {
		query = `
			SELECT tc.constraint_name, kcu.column_name,
				ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
				ON ccu.constraint_name = tc.constraint_name
				AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
				AND tc.table_schema = ` + r.currentSchemaExpr() + `
				AND tc.table_name = ` + r.ph(1) + `
			ORDER BY tc.constraint_name, kcu.ordinal_position`
	}

	rows, err := r.conn.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []importedKey
	for rows.Next() {
		var k importedKey
		if err := rows.Scan(&k.constraint, &k.column, &k.refTable, &k.refColumn); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

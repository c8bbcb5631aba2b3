package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
)

// reflectSQLite reflects the embedded engine through sqlite_master and the
// table PRAGMAs; SQLite exposes no information_schema.
func (r *reflector) reflectSQLite(ctx context.Context) error {
	tables, err := r.querySQLiteTables(ctx)
	if err != nil {
		return fmt.Errorf("query tables: %w", err)
	}

	for _, table := range tables {
		if !r.db.tableIncluded(table) {
			continue
		}
		c := r.db.AddCollection(NewCollection(table))
		if err := r.querySQLiteColumns(ctx, c); err != nil {
			return fmt.Errorf("table_info %s: %w", table, err)
		}
		if err := r.querySQLiteUniqueIndexes(ctx, c); err != nil {
			return fmt.Errorf("index_list %s: %w", table, err)
		}
	}

	for _, c := range r.db.Collections() {
		keys, err := r.querySQLiteForeignKeys(ctx, c)
		if err != nil {
			return fmt.Errorf("foreign_key_list %s: %w", c.TableName(), err)
		}
		r.attachImportedKeys(c, keys)
	}
	return nil
}

func (r *reflector) querySQLiteTables(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

// querySQLiteColumns loads columns and assembles the primary index from
// table_info's pk ordinal.
func (r *reflector) querySQLiteColumns(ctx context.Context, c *Collection) error {
	rows, err := r.conn.QueryContext(ctx,
		"PRAGMA table_info("+r.db.dialect.QuoteIdent(c.TableName())+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	type pkCol struct {
		pos  int
		prop *Property
	}
	var pkCols []pkCol
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     sql.NullString
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		p := c.AddProperty(NewProperty(name, SemanticType(typ.String), notNull == 0))
		if pk > 0 {
			pkCols = append(pkCols, pkCol{pos: pk, prop: p})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(pkCols) > 0 {
		sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].pos < pkCols[j].pos })
		idx := NewIndex("pk_"+c.TableName(), IndexTypePrimary, true)
		for _, pc := range pkCols {
			idx.AddProperty(pc.prop)
		}
		c.AddIndex(idx)
	}
	return nil
}

func (r *reflector) querySQLiteUniqueIndexes(ctx context.Context, c *Collection) error {
	rows, err := r.conn.QueryContext(ctx,
		"PRAGMA index_list("+r.db.dialect.QuoteIdent(c.TableName())+")")
	if err != nil {
		return err
	}
	type idxRow struct {
		name   string
		unique bool
	}
	var list []idxRow
	for rows.Next() {
		var (
			seq     int
			name    sql.NullString
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return err
		}
		// origin "pk" duplicates the primary index already built from
		// table_info; partial indexes cannot back a resource index.
		if !name.Valid || origin == "pk" || unique == 0 || partial != 0 {
			continue
		}
		list = append(list, idxRow{name: name.String, unique: true})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ir := range list {
		cols, err := r.querySQLiteIndexColumns(ctx, ir.name)
		if err != nil {
			return err
		}
		idx := NewIndex(ir.name, IndexTypeUnique, true)
		complete := len(cols) > 0
		for _, col := range cols {
			if col == "" {
				// expression index member, dialect quirk: skip the index
				complete = false
				break
			}
			p := c.PropertyByColumn(col)
			if p == nil {
				complete = false
				break
			}
			idx.AddProperty(p)
		}
		if complete {
			c.AddIndex(idx)
		}
	}
	return nil
}

func (r *reflector) querySQLiteIndexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		"PRAGMA index_info("+r.db.dialect.QuoteIdent(index)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno int
			cid   int
			name  sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		cols = append(cols, name.String)
	}
	return cols, rows.Err()
}

func (r *reflector) querySQLiteForeignKeys(ctx context.Context, c *Collection) ([]importedKey, error) {
	rows, err := r.conn.QueryContext(ctx,
		"PRAGMA foreign_key_list("+r.db.dialect.QuoteIdent(c.TableName())+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []importedKey
	for rows.Next() {
		var (
			id, seq              int
			refTable, from       string
			to                   sql.NullString
			onUpdate, onDelete   string
			match                string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		keys = append(keys, importedKey{
			constraint: "fk_" + c.TableName() + "_" + strconv.Itoa(id),
			column:     from,
			refTable:   refTable,
			refColumn:  to.String, // empty means the referenced table's PK
		})
	}
	return keys, rows.Err()
}

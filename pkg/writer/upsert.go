package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

// stmtBuilder accumulates SQL text with a running placeholder ordinal, so
// one builder produces correctly numbered parameters for dialects with
// positional placeholders.
type stmtBuilder struct {
	d *dialect.Dialect
	b strings.Builder
	n int
}

func (s *stmtBuilder) write(text string) { s.b.WriteString(text) }

func (s *stmtBuilder) ph() {
	s.n++
	s.b.WriteString(s.d.Placeholder(s.n))
}

func (s *stmtBuilder) identList(cols []string) {
	for i, col := range cols {
		if i > 0 {
			s.b.WriteString(", ")
		}
		s.b.WriteString(s.d.QuoteIdent(col))
	}
}

func (s *stmtBuilder) phList(count int) {
	for i := 0; i < count; i++ {
		if i > 0 {
			s.b.WriteString(", ")
		}
		s.ph()
	}
}

// upsertKeyed writes one batch whose rows all carry a complete key, using
// the dialect's native upsert shape. One statement is prepared for the
// whole batch.
func (w *Writer) upsertKeyed(ctx context.Context, sess *session.Session, c *schema.Collection, b batch) ([]Key, error) {
	keyCols, valCols := splitKeyCols(c, b.cols)

	s := &stmtBuilder{d: w.d}
	var argCols [][]string
	switch w.d.UpsertStyle() {
	case dialect.UpsertOnDuplicateKey:
		s.write("INSERT INTO " + w.d.QuoteIdent(c.TableName()) + " (")
		s.identList(b.cols)
		s.write(") VALUES (")
		s.phList(len(b.cols))
		s.write(") ON DUPLICATE KEY UPDATE ")
		if len(valCols) == 0 {
			// Key-only row: a self-assignment makes the conflict a no-op.
			k := w.d.QuoteIdent(keyCols[0])
			s.write(k + " = " + k)
		} else {
			for i, col := range valCols {
				if i > 0 {
					s.write(", ")
				}
				q := w.d.QuoteIdent(col)
				s.write(q + " = VALUES(" + q + ")")
			}
		}
		argCols = [][]string{b.cols}

	case dialect.UpsertOnConflict:
		s.write("INSERT INTO " + w.d.QuoteIdent(c.TableName()) + " (")
		s.identList(b.cols)
		s.write(") VALUES (")
		s.phList(len(b.cols))
		s.write(") ON CONFLICT (")
		s.identList(keyCols)
		if len(valCols) == 0 {
			s.write(") DO NOTHING")
		} else {
			s.write(") DO UPDATE SET ")
			for i, col := range valCols {
				if i > 0 {
					s.write(", ")
				}
				q := w.d.QuoteIdent(col)
				s.write(q + " = EXCLUDED." + q)
			}
		}
		argCols = [][]string{b.cols}

	case dialect.UpsertUpdateThenInsert:
		table := w.d.QuoteIdent(c.TableName())
		if len(valCols) == 0 {
			s.write("IF NOT EXISTS (SELECT 1 FROM " + table + " WHERE ")
			w.writeKeyMatch(s, keyCols)
			s.write(") INSERT INTO " + table + " (")
			s.identList(b.cols)
			s.write(") VALUES (")
			s.phList(len(b.cols))
			s.write(")")
			argCols = [][]string{keyCols, b.cols}
		} else {
			s.write("UPDATE " + table + " SET ")
			for i, col := range valCols {
				if i > 0 {
					s.write(", ")
				}
				s.write(w.d.QuoteIdent(col) + " = ")
				s.ph()
			}
			s.write(" WHERE ")
			w.writeKeyMatch(s, keyCols)
			s.write("; IF @@ROWCOUNT = 0 INSERT INTO " + table + " (")
			s.identList(b.cols)
			s.write(") VALUES (")
			s.phList(len(b.cols))
			s.write(")")
			argCols = [][]string{valCols, keyCols, b.cols}
		}
	}

	tx, err := sess.Tx(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, s.b.String())
	if err != nil {
		return nil, fmt.Errorf("writer: prepare upsert: %w", err)
	}
	defer stmt.Close()

	keys := make([]Key, 0, len(b.records))
	for _, rec := range b.records {
		if _, err := stmt.ExecContext(ctx, args(rec.row, argCols...)...); err != nil {
			return nil, fmt.Errorf("writer: upsert %s: %w", c.Name(), err)
		}
		keys = append(keys, keyOf(c, rec.row))
	}
	return keys, nil
}

func (w *Writer) writeKeyMatch(s *stmtBuilder, keyCols []string) {
	for i, col := range keyCols {
		if i > 0 {
			s.write(" AND ")
		}
		s.write(w.d.QuoteIdent(col) + " = ")
		s.ph()
	}
}

// insertGenerating writes one batch whose rows lack a complete key: a
// plain INSERT followed by reading the generated key back. Composite keys
// cannot be generated, so a multi-column resource index here is fatal.
func (w *Writer) insertGenerating(ctx context.Context, sess *session.Session, c *schema.Collection, b batch) ([]Key, error) {
	ri := c.ResourceIndex()
	if len(ri.Properties()) != 1 {
		return nil, fmt.Errorf("writer: cannot generate a composite key for %q; supply %d key values",
			c.Name(), len(ri.Properties()))
	}
	keyProp := ri.Properties()[0]

	s := &stmtBuilder{d: w.d}
	s.write("INSERT INTO " + w.d.QuoteIdent(c.TableName()) + " (")
	s.identList(b.cols)
	if w.d.Name() == dialect.SQLServer {
		s.write(") OUTPUT INSERTED." + w.d.QuoteIdent(keyProp.ColumnName()) + " VALUES (")
	} else {
		s.write(") VALUES (")
	}
	s.phList(len(b.cols))
	s.write(")")
	if w.d.Name() == dialect.Postgres {
		s.write(" RETURNING " + w.d.QuoteIdent(keyProp.ColumnName()))
	}

	tx, err := sess.Tx(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, s.b.String())
	if err != nil {
		return nil, fmt.Errorf("writer: prepare insert: %w", err)
	}
	defer stmt.Close()

	returning := w.d.Name() == dialect.Postgres || w.d.Name() == dialect.SQLServer
	keys := make([]Key, 0, len(b.records))
	for _, rec := range b.records {
		rowArgs := args(rec.row, b.cols)
		var generated any
		if returning {
			var v any
			if err := stmt.QueryRowContext(ctx, rowArgs...).Scan(&v); err != nil {
				return nil, fmt.Errorf("writer: insert %s: %w", c.Name(), err)
			}
			generated = v
		} else {
			res, err := stmt.ExecContext(ctx, rowArgs...)
			if err != nil {
				return nil, fmt.Errorf("writer: insert %s: %w", c.Name(), err)
			}
			id, err := res.LastInsertId()
			if err != nil || id == 0 {
				return nil, fmt.Errorf("writer: insert %s: unable to resolve generated key: %w", c.Name(), err)
			}
			generated = id
		}
		keys = append(keys, Key{keyProp.Name(): generated})
	}
	return keys, nil
}

// updateKeyed writes one Patch batch: non-key columns are set, key columns
// locate the row.
func (w *Writer) updateKeyed(ctx context.Context, sess *session.Session, c *schema.Collection, b batch) ([]Key, error) {
	keyCols, valCols := splitKeyCols(c, b.cols)
	if len(valCols) == 0 {
		return nil, fmt.Errorf("writer: patch record for %q carries only key columns", c.Name())
	}

	s := &stmtBuilder{d: w.d}
	s.write("UPDATE " + w.d.QuoteIdent(c.TableName()) + " SET ")
	for i, col := range valCols {
		if i > 0 {
			s.write(", ")
		}
		s.write(w.d.QuoteIdent(col) + " = ")
		s.ph()
	}
	s.write(" WHERE ")
	w.writeKeyMatch(s, keyCols)

	tx, err := sess.Tx(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, s.b.String())
	if err != nil {
		return nil, fmt.Errorf("writer: prepare update: %w", err)
	}
	defer stmt.Close()

	keys := make([]Key, 0, len(b.records))
	for _, rec := range b.records {
		if _, err := stmt.ExecContext(ctx, args(rec.row, valCols, keyCols)...); err != nil {
			return nil, fmt.Errorf("writer: update %s: %w", c.Name(), err)
		}
		keys = append(keys, keyOf(c, rec.row))
	}
	return keys, nil
}

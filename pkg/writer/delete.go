package writer

import (
	"context"
	"fmt"
	"sort"

	"github.com/restq/restq/pkg/mapper"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

// deleteChunk bounds the rows folded into one DELETE statement so the
// parameter count stays under every driver's limit.
const deleteChunk = 500

// Delete removes the records identified by keyRows, each a JSON document
// of key property names to values. When every row shares the same single
// key column the rows collapse into one IN list; composite or mixed key
// shapes fall back to OR-joined equality groups.
func (w *Writer) Delete(ctx context.Context, sess *session.Session, c *schema.Collection, keyRows []map[string]any) error {
	if len(keyRows) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(keyRows))
	for i, doc := range keyRows {
		row, err := mapper.ToRow(c, doc, nil)
		if err != nil {
			return invalid("writer: delete key %d: %w", i, err)
		}
		if len(row) == 0 {
			return invalid("writer: delete key %d resolves to no columns", i)
		}
		rows = append(rows, row)
	}

	singleCol := singleKeyColumn(rows)
	for start := 0; start < len(rows); start += deleteChunk {
		end := start + deleteChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var err error
		if singleCol != "" {
			err = w.deleteIn(ctx, sess, c, singleCol, chunk)
		} else {
			err = w.deleteComposite(ctx, sess, c, chunk)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// singleKeyColumn returns the shared column name when every row is keyed
// by exactly that one column, else "".
func singleKeyColumn(rows []map[string]any) string {
	col := ""
	for _, row := range rows {
		if len(row) != 1 {
			return ""
		}
		for c := range row {
			if col == "" {
				col = c
			} else if c != col {
				return ""
			}
		}
	}
	return col
}

func (w *Writer) deleteIn(ctx context.Context, sess *session.Session, c *schema.Collection, col string, rows []map[string]any) error {
	s := &stmtBuilder{d: w.d}
	s.write("DELETE FROM " + w.d.QuoteIdent(c.TableName()) + " WHERE " + w.d.QuoteIdent(col) + " IN (")
	s.phList(len(rows))
	s.write(")")

	params := make([]any, 0, len(rows))
	for _, row := range rows {
		params = append(params, row[col])
	}
	if _, err := sess.Exec(ctx, s.b.String(), params...); err != nil {
		return fmt.Errorf("writer: delete %s: %w", c.Name(), err)
	}
	return nil
}

func (w *Writer) deleteComposite(ctx context.Context, sess *session.Session, c *schema.Collection, rows []map[string]any) error {
	s := &stmtBuilder{d: w.d}
	s.write("DELETE FROM " + w.d.QuoteIdent(c.TableName()) + " WHERE ")

	var params []any
	for i, row := range rows {
		if i > 0 {
			s.write(" OR ")
		}
		s.write("(")
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for j, col := range cols {
			if j > 0 {
				s.write(" AND ")
			}
			s.write(w.d.QuoteIdent(col) + " = ")
			s.ph()
			params = append(params, row[col])
		}
		s.write(")")
	}
	if _, err := sess.Exec(ctx, s.b.String(), params...); err != nil {
		return fmt.Errorf("writer: delete %s: %w", c.Name(), err)
	}
	return nil
}

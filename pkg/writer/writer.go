// Package writer implements the write path: batched upserts, partial
// updates, and deletes, all executed on the caller's session transaction.
package writer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/mapper"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

// Key is a resolved resource key for one written record, keyed by JSON
// property name.
type Key map[string]any

// ValidationError marks an inbound document the caller got wrong: a value
// that cannot be cast, a record with nothing writable, a patch without its
// key. It classifies as a bad request, not a statement failure.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// Writer issues write statements for one dialect. The column filter, when
// set, applies to every inbound document.
type Writer struct {
	d      *dialect.Dialect
	filter *mapper.ColumnFilter
	logger *zap.Logger
}

// New builds a Writer.
func New(d *dialect.Dialect, filter *mapper.ColumnFilter, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{d: d, filter: filter, logger: logger}
}

// record is one mapped row plus its batching signature.
type record struct {
	row    map[string]any
	cols   []string // sorted column names
	hasKey bool     // every resource-index column present and non-nil
}

func (r record) signature() string {
	return fmt.Sprintf("%v|%s", r.hasKey, strings.Join(r.cols, ","))
}

// batch is a maximal contiguous run of records sharing a signature. A
// single prepared statement serves every row in the batch.
type batch struct {
	records []record
	cols    []string
	hasKey  bool
}

// prepare maps documents to rows and splits them into contiguous batches.
// Batches split wherever the column set or the key-presence status changes,
// never reordering records.
func (w *Writer) prepare(c *schema.Collection, docs []map[string]any) ([]batch, error) {
	ri := c.ResourceIndex()
	if ri == nil {
		return nil, fmt.Errorf("writer: collection %q has no resource index", c.Name())
	}

	var batches []batch
	lastSig := ""
	for i, doc := range docs {
		row, err := mapper.ToRow(c, doc, w.filter)
		if err != nil {
			return nil, invalid("writer: record %d: %w", i, err)
		}
		if len(row) == 0 {
			return nil, invalid("writer: record %d has no writable columns", i)
		}

		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		hasKey := true
		for _, p := range ri.Properties() {
			if v, ok := row[p.ColumnName()]; !ok || v == nil {
				hasKey = false
				break
			}
		}

		rec := record{row: row, cols: cols, hasKey: hasKey}
		if sig := rec.signature(); len(batches) == 0 || sig != lastSig {
			batches = append(batches, batch{cols: cols, hasKey: hasKey})
			lastSig = sig
		}
		b := &batches[len(batches)-1]
		b.records = append(b.records, rec)
	}
	return batches, nil
}

// Upsert writes the documents and returns one resolved resource key per
// document, in input order. Records carrying a complete key are upserted
// with the dialect's native shape; records without one are inserted and
// their generated key read back. A row whose key cannot be resolved after
// insert is a hard failure.
func (w *Writer) Upsert(ctx context.Context, sess *session.Session, c *schema.Collection, docs []map[string]any) ([]Key, error) {
	batches, err := w.prepare(c, docs)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(docs))
	for _, b := range batches {
		var batchKeys []Key
		if b.hasKey {
			batchKeys, err = w.upsertKeyed(ctx, sess, c, b)
		} else {
			batchKeys, err = w.insertGenerating(ctx, sess, c, b)
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, batchKeys...)
	}
	w.logger.Debug("upsert complete",
		zap.String("collection", c.Name()),
		zap.Int("records", len(docs)),
		zap.Int("batches", len(batches)))
	return keys, nil
}

// Patch updates existing records only. Every document must carry a
// complete resource key; non-key columns are written, key columns locate
// the row.
func (w *Writer) Patch(ctx context.Context, sess *session.Session, c *schema.Collection, docs []map[string]any) ([]Key, error) {
	batches, err := w.prepare(c, docs)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(docs))
	for _, b := range batches {
		if !b.hasKey {
			return nil, invalid("writer: patch requires a complete resource key on every record")
		}
		batchKeys, err := w.updateKeyed(ctx, sess, c, b)
		if err != nil {
			return nil, err
		}
		keys = append(keys, batchKeys...)
	}
	return keys, nil
}

// keyOf extracts the resource key of a row known to carry one.
func keyOf(c *schema.Collection, row map[string]any) Key {
	key := make(Key)
	for _, p := range c.ResourceIndex().Properties() {
		key[p.Name()] = row[p.ColumnName()]
	}
	return key
}

// splitKeyCols partitions a batch's columns into key and non-key sets,
// preserving the batch order.
func splitKeyCols(c *schema.Collection, cols []string) (keyCols, valCols []string) {
	ri := c.ResourceIndex()
	isKey := make(map[string]bool, len(ri.Properties()))
	for _, p := range ri.Properties() {
		isKey[p.ColumnName()] = true
	}
	for _, col := range cols {
		if isKey[col] {
			keyCols = append(keyCols, col)
		} else {
			valCols = append(valCols, col)
		}
	}
	return keyCols, valCols
}

func args(row map[string]any, cols ...[]string) []any {
	var out []any
	for _, set := range cols {
		for _, col := range set {
			out = append(out, row[col])
		}
	}
	return out
}

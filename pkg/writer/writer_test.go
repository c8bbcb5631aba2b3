package writer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restq/restq/internal/testutil/sqltest"
	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/session"
)

const booksDDL = `CREATE TABLE books (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	pages INTEGER
)`

func TestPrepareBatchesBySignature(t *testing.T) {
	s, _ := sqltest.Reflect(t, booksDDL)
	books := s.CollectionByName("books")
	require.NotNil(t, books)

	w := New(dialect.MustGet("sqlite"), nil, nil)
	batches, err := w.prepare(books, []map[string]any{
		{"id": 1, "title": "Dune"},
		{"id": 2, "title": "Hyperion"},
		{"title": "Ubik"},
		{"id": 9, "title": "Solaris"},
	})
	require.NoError(t, err)

	// contiguous runs only: keyed, keyless, keyed again
	require.Len(t, batches, 3)
	assert.Len(t, batches[0].records, 2)
	assert.True(t, batches[0].hasKey)
	assert.Len(t, batches[1].records, 1)
	assert.False(t, batches[1].hasKey)
	assert.Len(t, batches[2].records, 1)
	assert.True(t, batches[2].hasKey)
}

func TestPrepareRejectsEmptyRecord(t *testing.T) {
	s, _ := sqltest.Reflect(t, booksDDL)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	_, err := w.prepare(books, []map[string]any{{"bogus": 1}})
	require.ErrorContains(t, err, "no writable columns")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestUpsertMixedKeys(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)

	keys, err := w.Upsert(ctx, sess, books, []map[string]any{
		{"id": 1, "title": "Dune"},
		{"title": "Hyperion"},
	})
	require.NoError(t, err)
	require.NoError(t, sess.End(err))

	require.Len(t, keys, 2)
	assert.EqualValues(t, 1, keys[0]["id"])
	assert.EqualValues(t, 2, keys[1]["id"], "generated key read back")

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM books").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestUpsertUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	sqltest.Exec(t, db, `INSERT INTO books (id, title) VALUES (1, 'Dune')`)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)

	_, err := w.Upsert(ctx, sess, books, []map[string]any{
		{"id": 1, "title": "Dune Messiah", "pages": 256},
	})
	require.NoError(t, err)
	require.NoError(t, sess.End(nil))

	var title string
	var pages int
	require.NoError(t, db.QueryRow("SELECT title, pages FROM books WHERE id = 1").Scan(&title, &pages))
	assert.Equal(t, "Dune Messiah", title)
	assert.Equal(t, 256, pages)

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM books").Scan(&n))
	assert.Equal(t, 1, n, "conflict resolved in place")
}

func TestPatch(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	sqltest.Exec(t, db,
		`INSERT INTO books (id, title) VALUES (1, 'Dune')`,
		`INSERT INTO books (id, title) VALUES (2, 'Hyperion')`)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)

	keys, err := w.Patch(ctx, sess, books, []map[string]any{
		{"id": 2, "title": "The Fall of Hyperion"},
	})
	require.NoError(t, err)
	require.NoError(t, sess.End(nil))

	require.Len(t, keys, 1)
	assert.EqualValues(t, 2, keys[0]["id"])

	var title string
	require.NoError(t, db.QueryRow("SELECT title FROM books WHERE id = 2").Scan(&title))
	assert.Equal(t, "The Fall of Hyperion", title)
	require.NoError(t, db.QueryRow("SELECT title FROM books WHERE id = 1").Scan(&title))
	assert.Equal(t, "Dune", title, "untouched row stays")
}

func TestPatchRequiresKey(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)
	defer sess.Rollback()

	_, err := w.Patch(ctx, sess, books, []map[string]any{{"title": "No Key"}})
	require.ErrorContains(t, err, "complete resource key")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestDeleteByKeyList(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	sqltest.Exec(t, db,
		`INSERT INTO books (id, title) VALUES (1, 'Dune')`,
		`INSERT INTO books (id, title) VALUES (2, 'Hyperion')`,
		`INSERT INTO books (id, title) VALUES (3, 'Ubik')`)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)

	err := w.Delete(ctx, sess, books, []map[string]any{{"id": 1}, {"id": 3}})
	require.NoError(t, err)
	require.NoError(t, sess.End(nil))

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM books").Scan(&n))
	assert.Equal(t, 1, n)

	var title string
	require.NoError(t, db.QueryRow("SELECT title FROM books").Scan(&title))
	assert.Equal(t, "Hyperion", title)
}

func TestDeleteComposite(t *testing.T) {
	ctx := context.Background()
	s, db := sqltest.Reflect(t, booksDDL)
	sqltest.Exec(t, db,
		`INSERT INTO books (id, title) VALUES (1, 'Dune')`,
		`INSERT INTO books (id, title) VALUES (2, 'Dune')`)
	books := s.CollectionByName("books")

	w := New(dialect.MustGet("sqlite"), nil, nil)
	sess := session.New(db, nil)

	// two-column rows force the OR-of-AND shape
	err := w.Delete(ctx, sess, books, []map[string]any{{"id": 1, "title": "Dune"}})
	require.NoError(t, err)
	require.NoError(t, sess.End(nil))

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM books WHERE id = 2").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSingleKeyColumn(t *testing.T) {
	assert.Equal(t, "id", singleKeyColumn([]map[string]any{{"id": 1}, {"id": 2}}))
	assert.Equal(t, "", singleKeyColumn([]map[string]any{{"id": 1}, {"id": 2, "x": 3}}))
	assert.Equal(t, "", singleKeyColumn([]map[string]any{{"id": 1}, {"other": 2}}))
}

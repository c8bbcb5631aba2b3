package rest_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restq/restq/internal/testutil/sqltest"
	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/engine"
	"github.com/restq/restq/pkg/rest"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/session"
)

func newTestServer(t *testing.T) (*rest.Server, *sql.DB) {
	t.Helper()
	ctx := context.Background()

	pools := session.NewPoolManager(nil)
	require.NoError(t, pools.Add(ctx, session.PoolConfig{
		Name:     "test",
		Dialect:  dialect.MustGet("sqlite"),
		URL:      "file:" + t.Name() + "?mode=memory&cache=shared",
		MaxOpen:  1,
		PingWait: 2 * time.Second,
	}))
	t.Cleanup(pools.Close)

	db, err := pools.Get("test")
	require.NoError(t, err)
	sqltest.Exec(t, db,
		`CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`,
		`INSERT INTO books (id, title) VALUES (1, 'Dune')`,
		`INSERT INTO books (id, title) VALUES (2, 'Hyperion')`)

	s := schema.NewDb("test", dialect.MustGet("sqlite"), nil)
	require.NoError(t, s.Startup(ctx, db))

	eng := engine.New(s, pools, nil, nil)
	return rest.NewServer(eng, nil, ""), db
}

func do(t *testing.T, srv *rest.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Name  string `json:"name"`
		Table string `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "books", out[0].Name)
}

func TestGetCollection(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/books", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var out struct {
		Rows  []map[string]any `json:"rows"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Rows, 2)
	assert.EqualValues(t, -1, out.Total)
	assert.Equal(t, "Dune", out.Rows[0]["title"])
}

func TestGetFilteredAndPaged(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/books?title=Hyperion", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Rows, 1)

	rec = do(t, srv, http.MethodGet, "/books?limit=1&sort=id", "")
	require.Equal(t, http.StatusOK, rec.Code)
	link := rec.Header().Get("Link")
	assert.Contains(t, link, `rel="next"`)
	assert.Contains(t, link, "offset=1")
}

func TestGetBadQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/books?sort=nosuch", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownCollection(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostUpsert(t *testing.T) {
	srv, db := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/books",
		`[{"id": 1, "title": "Dune Messiah"}, {"title": "Ubik"}]`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var keys []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keys))
	require.Len(t, keys, 2)
	assert.EqualValues(t, 3, keys[1]["id"], "generated key returned")

	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM books WHERE id = 1`).Scan(&title))
	assert.Equal(t, "Dune Messiah", title)
}

func TestPostSingleObject(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/books", `{"id": 9, "title": "Solaris"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestPostMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/books", `"just a string"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchCollection(t *testing.T) {
	srv, db := newTestServer(t)
	rec := do(t, srv, http.MethodPatch, "/books", `{"id": 2, "title": "Endymion"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM books WHERE id = 2`).Scan(&title))
	assert.Equal(t, "Endymion", title)
}

func TestDeleteCollection(t *testing.T) {
	srv, db := newTestServer(t)
	rec := do(t, srv, http.MethodDelete, "/books", `[{"id": 1}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM books`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetRecord(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/books/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.EqualValues(t, 1, out["id"])
	assert.Equal(t, "Dune", out["title"])

	rec = do(t, srv, http.MethodGet, "/books/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchRecord(t *testing.T) {
	srv, db := newTestServer(t)
	rec := do(t, srv, http.MethodPatch, "/books/2", `{"title": "Endymion"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Endymion", out["title"])

	var title string
	require.NoError(t, db.QueryRow(`SELECT title FROM books WHERE id = 2`).Scan(&title))
	assert.Equal(t, "Endymion", title)

	rec = do(t, srv, http.MethodPatch, "/books/99", `{"title": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRecord(t *testing.T) {
	srv, db := newTestServer(t)
	rec := do(t, srv, http.MethodDelete, "/books/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM books WHERE id = 1`).Scan(&n))
	assert.Equal(t, 0, n)

	rec = do(t, srv, http.MethodDelete, "/books/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostBadValueIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/books", `{"id": "not-a-number", "title": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/books")
	assert.Contains(t, paths, "/books/{id}", "advertised record path is served")
}

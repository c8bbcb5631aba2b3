package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restq/restq/pkg/schema"
)

func booksCollection() *schema.Collection {
	c := schema.NewCollection("books")
	id := c.AddProperty(schema.NewProperty("id", schema.TypeNumber, false))
	c.AddProperty(schema.NewProperty("title", schema.TypeString, false))
	c.AddProperty(schema.NewProperty("published_at", schema.TypeDate, true))
	c.AddProperty(schema.NewProperty("in_print", schema.TypeBoolean, true))
	c.AddProperty(schema.NewProperty("meta", schema.TypeJSON, true))
	c.AddProperty(schema.NewProperty("shelf_code", schema.TypeChar, true))
	c.AddIndex(schema.NewIndex("pk_books", schema.IndexTypePrimary, true, id))
	return c
}

func TestDocumentOrder(t *testing.T) {
	d := NewDocument()
	d.Set("b", 1)
	d.Set("a", 2)
	d.Set("b", 3) // replace keeps position
	assert.Equal(t, []string{"b", "a"}, d.Keys())

	d.InsertFront("a", 4)
	assert.Equal(t, []string{"a", "b"}, d.Keys())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"a":4,"b":3}`, string(out))
}

func TestToJSON(t *testing.T) {
	c := booksCollection()
	published := time.Date(1965, 8, 1, 12, 0, 0, 0, time.UTC)

	doc, err := ToJSON(c, map[string]any{
		"title":        []byte("Dune"),
		"id":           int64(7),
		"published_at": published,
		"in_print":     int64(1),
		"meta":         []byte(`{"isbn":"0441013597"}`),
		"shelf_code":   "SF    ",
		"total":        int64(42), // unmapped aggregate alias passes through
	})
	require.NoError(t, err)

	// identity first, then SELECT-order properties, then leftovers
	assert.Equal(t, []string{"id", "title", "published_at", "in_print", "meta", "shelf_code", "total"}, doc.Keys())

	v, _ := doc.Get("title")
	assert.Equal(t, "Dune", v)
	v, _ = doc.Get("shelf_code")
	assert.Equal(t, "SF", v)
	v, _ = doc.Get("published_at")
	assert.Equal(t, "1965-08-01T12:00:00Z", v)
	v, _ = doc.Get("in_print")
	assert.Equal(t, true, v)
	v, _ = doc.Get("meta")
	assert.Equal(t, map[string]any{"isbn": "0441013597"}, v)
}

func TestToJSONLeftoversSorted(t *testing.T) {
	c := booksCollection()
	doc, err := ToJSON(c, map[string]any{"zz": 1, "aa": 2, "mm": 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "mm", "zz"}, doc.Keys())
}

func TestToRowMapsAndDrops(t *testing.T) {
	c := booksCollection()
	row, err := ToRow(c, map[string]any{
		"id":       float64(7),
		"title":    "Dune",
		"in_print": "true",
		"bogus":    "dropped",
		"_hidden":  "dropped",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":       float64(7),
		"title":    "Dune",
		"in_print": true,
	}, row)
}

func TestToRowColumnFilter(t *testing.T) {
	c := booksCollection()
	filter := &ColumnFilter{Exclude: []string{"title"}}

	row, err := ToRow(c, map[string]any{"id": float64(1), "title": "x"}, filter)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1)}, row)

	include := &ColumnFilter{Include: []string{"id"}}
	row, err = ToRow(c, map[string]any{"id": float64(1), "title": "x"}, include)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": float64(1)}, row)
}

func TestColumnFilterReservedAlwaysDenied(t *testing.T) {
	var f *ColumnFilter
	assert.True(t, f.Allowed("title"))
	assert.False(t, f.Allowed("_anything"))
	assert.False(t, f.Allowed("sort"))
	assert.False(t, f.Allowed("limit"))
}

func TestInputCast(t *testing.T) {
	v, err := inputCast(schema.TypeNumber, "12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	v, err = inputCast(schema.TypeNumber, "12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	_, err = inputCast(schema.TypeNumber, "twelve")
	var ce *CastError
	require.ErrorAs(t, err, &ce)

	v, err = inputCast(schema.TypeDate, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), v)

	v, err = inputCast(schema.TypeJSON, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = inputCast(schema.TypeBinary, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, v)

	v, err = inputCast(schema.TypeString, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestOutputCast(t *testing.T) {
	v, err := outputCast(schema.TypeBinary, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "dead", v)

	v, err = outputCast(schema.TypeBoolean, int64(0))
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = outputCast(schema.TypeChar, "padded    ")
	require.NoError(t, err)
	assert.Equal(t, "padded", v)

	// variable-width strings keep their trailing spaces
	v, err = outputCast(schema.TypeString, "trailing  ")
	require.NoError(t, err)
	assert.Equal(t, "trailing  ", v)

	_, err = outputCast(schema.TypeJSON, []byte("not json"))
	var ce *CastError
	require.ErrorAs(t, err, &ce)
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCamel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"author_id", "authorId"},
		{"created_at", "createdAt"},
		{"SHOUT_CASE", "shoutCase"},
		{"TITLE", "title"},
		{"MixedCase", "mixedCase"},
		{"title", "title"},
		{"__weird__", "weird"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toCamel(tt.in), "toCamel(%q)", tt.in)
	}
}

func TestBeautify(t *testing.T) {
	assert.Equal(t, "books", Beautify("book", true))
	assert.Equal(t, "categories", Beautify("category", true))
	assert.Equal(t, "orderItems", Beautify("order_item", true))
	assert.Equal(t, "authorId", Beautify("author_id", false))
}

func TestStripIDSuffix(t *testing.T) {
	assert.Equal(t, "author", stripIDSuffix("author_id"))
	assert.Equal(t, "author", stripIDSuffix("authorId"))
	assert.Equal(t, "author", stripIDSuffix("authorID"))
	assert.Equal(t, "id", stripIDSuffix("id"))
	assert.Equal(t, "title", stripIDSuffix("title"))
}

func TestSingularCamel(t *testing.T) {
	assert.Equal(t, "book", singularCamel("Books"))
	assert.Equal(t, "category", singularCamel("categories"))
}

func TestBeautifyPassIsIdempotent(t *testing.T) {
	db := NewDb("test", nil, nil)
	c := db.AddCollection(NewCollection("book_club"))
	p := c.AddProperty(NewProperty("member_id", TypeNumber, false))

	db.beautify()
	assert.Equal(t, "bookClubs", c.Name())
	assert.Equal(t, "memberId", p.Name())

	// Names diverged from the raw identifiers, so a second pass must not
	// touch them again (e.g. re-pluralize).
	db.beautify()
	assert.Equal(t, "bookClubs", c.Name())
	assert.Equal(t, "memberId", p.Name())
}

package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restq/restq/internal/testutil/sqltest"
	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/schema"
)

var libraryDDL = []string{
	`CREATE TABLE authors (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE books (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		author_id INTEGER REFERENCES authors(id),
		published_at TIMESTAMP
	)`,
	`CREATE TABLE categories (
		id INTEGER PRIMARY KEY,
		name TEXT
	)`,
	`CREATE TABLE categories_books (
		category_id INTEGER NOT NULL REFERENCES categories(id),
		book_id INTEGER NOT NULL REFERENCES books(id),
		PRIMARY KEY (category_id, book_id)
	)`,
}

func TestReflectCollections(t *testing.T) {
	db, _ := sqltest.Reflect(t, libraryDDL...)

	books := db.CollectionByName("books")
	require.NotNil(t, books)
	assert.Equal(t, "books", books.TableName())

	title := books.FindProperty("title")
	require.NotNil(t, title)
	assert.Equal(t, schema.TypeString, title.Type())
	assert.False(t, title.Nullable())

	authorID := books.FindProperty("authorId")
	require.NotNil(t, authorID)
	assert.Equal(t, "author_id", authorID.ColumnName())
	assert.Equal(t, schema.TypeNumber, authorID.Type())
	require.NotNil(t, authorID.Pk(), "FK column resolves to the referenced PK")
	assert.Equal(t, "authors", authorID.Pk().Collection().TableName())

	publishedAt := books.FindProperty("publishedAt")
	require.NotNil(t, publishedAt)
	assert.Equal(t, schema.TypeDate, publishedAt.Type())

	ri := books.ResourceIndex()
	require.NotNil(t, ri)
	assert.Equal(t, schema.IndexTypePrimary, ri.Type())
	require.Len(t, ri.Properties(), 1)
	assert.Equal(t, "id", ri.Properties()[0].Name())
}

func TestSemanticTypeChar(t *testing.T) {
	assert.Equal(t, schema.TypeChar, schema.SemanticType("CHAR(3)"))
	assert.Equal(t, schema.TypeChar, schema.SemanticType("bpchar"))
	assert.Equal(t, schema.TypeChar, schema.SemanticType("clob"))
	assert.Equal(t, schema.TypeString, schema.SemanticType("VARCHAR(50)"))
	assert.Equal(t, schema.TypeString, schema.SemanticType("character varying(50)"))
}

func TestReflectRelationshipReciprocity(t *testing.T) {
	db, _ := sqltest.Reflect(t, libraryDDL...)

	books := db.CollectionByName("books")
	authors := db.CollectionByName("authors")
	require.NotNil(t, books)
	require.NotNil(t, authors)

	author := books.RelationshipByName("author")
	require.NotNil(t, author)
	assert.Equal(t, schema.ManyToOne, author.Type())
	assert.Same(t, authors, author.Related())
	assert.True(t, author.ToOne())

	back := authors.RelationshipByName("books")
	require.NotNil(t, back)
	assert.Equal(t, schema.OneToMany, back.Type())
	assert.Same(t, books, back.Related())
	assert.Equal(t, author.Type().Inverse(), back.Type())
}

func TestReflectLinkTableManyToMany(t *testing.T) {
	db, _ := sqltest.Reflect(t, libraryDDL...)

	link := db.CollectionByTable("categories_books")
	require.NotNil(t, link)
	assert.True(t, link.IsLinkTable())
	assert.Empty(t, link.Relationships(), "link tables carry no edges of their own")

	categories := db.CollectionByName("categories")
	books := db.CollectionByName("books")

	toBooks := categories.RelationshipByName("books")
	require.NotNil(t, toBooks)
	assert.Equal(t, schema.ManyToMany, toBooks.Type())
	assert.Same(t, books, toBooks.Related())

	toCategories := books.RelationshipByName("categories")
	require.NotNil(t, toCategories)
	assert.Equal(t, schema.ManyToMany, toCategories.Type())
	assert.Same(t, categories, toCategories.Related())
}

func TestStartupIsIdempotent(t *testing.T) {
	db, conn := sqltest.Reflect(t, libraryDDL...)
	before := len(db.Collections())

	require.NoError(t, db.Startup(context.Background(), conn))
	assert.Equal(t, before, len(db.Collections()))
	assert.True(t, db.Started())
}

func TestTableFilter(t *testing.T) {
	conn := sqltest.Open(t)
	sqltest.Exec(t, conn, libraryDDL...)

	db := schema.NewDb("test", dialect.MustGet("sqlite"), nil).
		WithTableFilter(nil, []string{"categories_books", "categories"})
	require.NoError(t, db.Startup(context.Background(), conn))

	assert.Nil(t, db.CollectionByTable("categories"))
	assert.Nil(t, db.CollectionByTable("categories_books"))
	assert.NotNil(t, db.CollectionByTable("books"))
}

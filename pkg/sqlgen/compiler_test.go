package sqlgen_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restq/restq/pkg/dialect"
	"github.com/restq/restq/pkg/rql"
	"github.com/restq/restq/pkg/schema"
	"github.com/restq/restq/pkg/sqlgen"
)

// librarySchema assembles the books/authors/categories model by hand so
// compiler behavior is tested without a live database.
func librarySchema(t *testing.T, d *dialect.Dialect) *schema.Db {
	t.Helper()
	db := schema.NewDb("test", d, nil)

	authors := db.AddCollection(schema.NewCollection("authors"))
	aID := authors.AddProperty(schema.NewProperty("id", schema.TypeNumber, false))
	authors.AddProperty(schema.NewProperty("name", schema.TypeString, false))
	authors.AddIndex(schema.NewIndex("pk_authors", schema.IndexTypePrimary, true, aID))

	books := db.AddCollection(schema.NewCollection("books"))
	bID := books.AddProperty(schema.NewProperty("id", schema.TypeNumber, false))
	books.AddProperty(schema.NewProperty("title", schema.TypeString, false))
	bAuthor := books.AddProperty(schema.NewProperty("author_id", schema.TypeNumber, true))
	books.AddProperty(schema.NewProperty("pages", schema.TypeNumber, true))
	books.AddProperty(schema.NewProperty("lat", schema.TypeNumber, true))
	books.AddProperty(schema.NewProperty("lon", schema.TypeNumber, true))
	books.AddIndex(schema.NewIndex("pk_books", schema.IndexTypePrimary, true, bID))
	bAuthor.SetPk(aID)
	books.AddIndex(schema.NewIndex("fk_books_author", schema.IndexTypeForeignKey, false, bAuthor))

	categories := db.AddCollection(schema.NewCollection("categories"))
	cID := categories.AddProperty(schema.NewProperty("id", schema.TypeNumber, false))
	categories.AddProperty(schema.NewProperty("name", schema.TypeString, true))
	categories.AddIndex(schema.NewIndex("pk_categories", schema.IndexTypePrimary, true, cID))

	link := db.AddCollection(schema.NewCollection("categories_books"))
	lCat := link.AddProperty(schema.NewProperty("category_id", schema.TypeNumber, false))
	lBook := link.AddProperty(schema.NewProperty("book_id", schema.TypeNumber, false))
	link.AddIndex(schema.NewIndex("pk_categories_books", schema.IndexTypePrimary, true, lCat, lBook))
	lCat.SetPk(cID)
	lBook.SetPk(bID)
	link.AddIndex(schema.NewIndex("fk_link_category", schema.IndexTypeForeignKey, false, lCat))
	link.AddIndex(schema.NewIndex("fk_link_book", schema.IndexTypeForeignKey, false, lBook))

	require.NoError(t, db.Build())
	return db
}

func compile(t *testing.T, d *dialect.Dialect, query string) *sqlgen.Compiled {
	t.Helper()
	db := librarySchema(t, d)
	books := db.CollectionByName("books")
	require.NotNil(t, books)

	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	terms, err := rql.ParseQuery(values)
	require.NoError(t, err)

	out, err := sqlgen.Compile(books, terms)
	require.NoError(t, err)
	return out
}

func TestCompileEquality(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "title=Dune")
	assert.Equal(t,
		`SELECT "books".* FROM "books" WHERE "books"."title" = $1 ORDER BY "books"."id"`,
		out.SQL)
	assert.Equal(t, []any{"Dune"}, out.Params)
	assert.Empty(t, out.CountSQL)

	my := compile(t, dialect.MustGet("mysql"), "title=Dune")
	assert.Equal(t,
		"SELECT `books`.* FROM `books` WHERE `books`.`title` = ? ORDER BY `books`.`id`",
		my.SQL)
}

func TestCompileStartsWith(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "title=sw(Du)")
	assert.Equal(t,
		`SELECT "books".* FROM "books" WHERE "books"."title" ILIKE $1 ORDER BY "books"."id"`,
		out.SQL)
	assert.Equal(t, []any{"Du%"}, out.Params)

	my := compile(t, dialect.MustGet("mysql"), "title=sw(Du)")
	assert.Contains(t, my.SQL, "`books`.`title` LIKE ?")
}

func TestCompileRelationshipTraversal(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "author.name=Herbert")
	assert.Equal(t,
		`SELECT "books".* FROM "books" WHERE EXISTS (SELECT 1 FROM "authors" `+
			`WHERE "books"."author_id" = "authors"."id" AND "authors"."name" = $1) `+
			`ORDER BY "books"."id"`,
		out.SQL)
	assert.Equal(t, []any{"Herbert"}, out.Params)
}

func TestCompileManyToManyTraversal(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "categories.name=SciFi")
	assert.Equal(t,
		`SELECT "books".* FROM "books" WHERE EXISTS (SELECT 1 FROM "categories_books", `+
			`"categories" AS "categories_2" WHERE "categories_books"."book_id" = "books"."id" `+
			`AND "categories_books"."category_id" = "categories_2"."id" `+
			`AND "categories_2"."name" = $1) ORDER BY "books"."id"`,
		out.SQL)
	assert.Equal(t, []any{"SciFi"}, out.Params)
}

func TestCompileIncludesForcePrimaryKey(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "includes=title")
	assert.Equal(t,
		`SELECT "books"."title", "books"."id" FROM "books" ORDER BY "books"."id"`,
		out.SQL)
}

func TestCompileInExpression(t *testing.T) {
	values := url.Values{"in(id,1,2,3)": {""}}
	terms, err := rql.ParseQuery(values)
	require.NoError(t, err)

	db := librarySchema(t, dialect.MustGet("postgres"))
	out, err := sqlgen.Compile(db.CollectionByName("books"), terms)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "books".* FROM "books" WHERE "books"."id" IN ($1, $2, $3) ORDER BY "books"."id"`,
		out.SQL)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, out.Params)
}

func TestCompilePagination(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "sort=title&limit=10&page=2")
	assert.Equal(t,
		`SELECT "books".* FROM "books" ORDER BY "books"."title" LIMIT 10 OFFSET 10`,
		out.SQL)
	assert.Equal(t, `SELECT count(1) FROM (SELECT "books".* FROM "books") AS q`, out.CountSQL)
	assert.Equal(t, 10, out.Limit)
	assert.Equal(t, 10, out.Offset)
	assert.Equal(t, 2, out.Page)

	my := compile(t, dialect.MustGet("mysql"), "sort=title&limit=10&page=2")
	assert.Contains(t, my.SQL, "SELECT SQL_CALC_FOUND_ROWS ")
	assert.Contains(t, my.SQL, " LIMIT 10, 10")
	assert.Equal(t, "SELECT FOUND_ROWS()", my.CountSQL)

	ms := compile(t, dialect.MustGet("mssql"), "sort=title&limit=10&page=2")
	assert.Contains(t, ms.SQL, " OFFSET 10 ROWS FETCH NEXT 10 ROWS ONLY")
}

func TestCompileLimitZero(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "limit=0")
	assert.Contains(t, out.SQL, " LIMIT 0")
	assert.NotEmpty(t, out.CountSQL, "found rows still computed under LIMIT 0")
}

func TestCompileAggregates(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "count()=&group(authorId)=")
	assert.Equal(t,
		`SELECT "books"."author_id", count(*) FROM "books" GROUP BY "books"."author_id" `+
			`ORDER BY "books"."author_id"`,
		out.SQL)
	assert.True(t, out.Aggregate)
}

func TestCompileAggregateAlias(t *testing.T) {
	values := url.Values{"as(sum(pages),total)": {""}}
	terms, err := rql.ParseQuery(values)
	require.NoError(t, err)

	db := librarySchema(t, dialect.MustGet("postgres"))
	out, err := sqlgen.Compile(db.CollectionByName("books"), terms)
	require.NoError(t, err)
	assert.Equal(t, `SELECT sum("books"."pages") AS "total" FROM "books"`, out.SQL)
}

func TestCompileDeterminism(t *testing.T) {
	db := librarySchema(t, dialect.MustGet("postgres"))
	books := db.CollectionByName("books")

	a, err := rql.Parse("eq(title,Dune)")
	require.NoError(t, err)
	b, err := rql.Parse("sw(title,Du)")
	require.NoError(t, err)

	first, err := sqlgen.Compile(books, []*rql.Term{a, b})
	require.NoError(t, err)
	second, err := sqlgen.Compile(books, []*rql.Term{b, a})
	require.NoError(t, err)

	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Params, second.Params)
}

func TestCompileUnknownKeyIgnored(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "nosuchcolumn=1")
	assert.Equal(t, `SELECT "books".* FROM "books" ORDER BY "books"."id"`, out.SQL)
	assert.Empty(t, out.Params)
}

func TestCompileUnknownFunctionFails(t *testing.T) {
	db := librarySchema(t, dialect.MustGet("postgres"))
	term, err := rql.Parse("frobnicate(title,1)")
	require.NoError(t, err)

	_, err = sqlgen.Compile(db.CollectionByName("books"), []*rql.Term{term})
	var ce *sqlgen.CompileError
	require.ErrorAs(t, err, &ce)
}

func TestCompileUnknownSortFails(t *testing.T) {
	db := librarySchema(t, dialect.MustGet("postgres"))
	values := url.Values{"sort": {"nosuch"}}
	terms, err := rql.ParseQuery(values)
	require.NoError(t, err)

	_, err = sqlgen.Compile(db.CollectionByName("books"), terms)
	require.Error(t, err)
}

func TestCompileMilesPlaceholders(t *testing.T) {
	db := librarySchema(t, dialect.MustGet("postgres"))
	term, err := rql.Parse("miles(lat,lon,35.1,-106.6)")
	require.NoError(t, err)

	out, err := sqlgen.Compile(db.CollectionByName("books"), []*rql.Term{term})
	require.NoError(t, err)
	// latitude binds twice; each occurrence gets its own ordinal
	assert.Equal(t, []any{35.1, -106.6, 35.1}, out.Params)
	assert.Contains(t, out.SQL, "3959 * acos")
}

func TestCompileNullChecks(t *testing.T) {
	out := compile(t, dialect.MustGet("postgres"), "eq(authorId,null)")
	assert.Contains(t, out.SQL, `"books"."author_id" IS NULL`)

	out = compile(t, dialect.MustGet("postgres"), "authorId=")
	assert.Contains(t, out.SQL, `"books"."author_id" IS NOT NULL`)
}

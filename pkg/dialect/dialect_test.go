package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAliases(t *testing.T) {
	tests := []struct {
		alias string
		want  Name
	}{
		{"mysql", MySQL},
		{"mariadb", MySQL},
		{"postgres", Postgres},
		{"postgresql", Postgres},
		{"pgx", Postgres},
		{"cockroachdb", Postgres},
		{"SQLServer", SQLServer},
		{"mssql", SQLServer},
		{"sqlite", SQLite},
		{"sqlite3", SQLite},
	}
	for _, tt := range tests {
		d, err := Get(tt.alias)
		require.NoError(t, err, tt.alias)
		assert.Equal(t, tt.want, d.Name(), tt.alias)
	}

	_, err := Get("oracle")
	var unknown ErrUnknown
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "oracle", unknown.Name)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`title`", MustGet("mysql").QuoteIdent("title"))
	assert.Equal(t, `"title"`, MustGet("postgres").QuoteIdent("title"))
	assert.Equal(t, `"ti""tle"`, MustGet("sqlite").QuoteIdent(`ti"tle`))
	assert.Equal(t, "`ti``tle`", MustGet("mysql").QuoteIdent("ti`tle"))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", MustGet("mysql").Placeholder(3))
	assert.Equal(t, "?", MustGet("sqlite").Placeholder(1))
	assert.Equal(t, "$3", MustGet("postgres").Placeholder(3))
	assert.Equal(t, "@p2", MustGet("mssql").Placeholder(2))
}

func TestPaginate(t *testing.T) {
	assert.Equal(t, " LIMIT 10", MustGet("postgres").Paginate(10, 0))
	assert.Equal(t, " LIMIT 10 OFFSET 20", MustGet("postgres").Paginate(10, 20))
	assert.Equal(t, " LIMIT 10", MustGet("mysql").Paginate(10, 0))
	assert.Equal(t, " LIMIT 20, 10", MustGet("mysql").Paginate(10, 20))
	assert.Equal(t, " OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY", MustGet("mssql").Paginate(10, 20))
}

func TestVariance(t *testing.T) {
	assert.Equal(t, "ILIKE", MustGet("postgres").CaseInsensitiveLike())
	assert.Equal(t, "LIKE", MustGet("mysql").CaseInsensitiveLike())

	assert.Equal(t, ` ESCAPE '\'`, MustGet("mssql").LikeEscapeClause(`Du\%`))
	assert.Equal(t, "", MustGet("mssql").LikeEscapeClause("Du%"))
	assert.Equal(t, "", MustGet("postgres").LikeEscapeClause(`Du\%`))

	assert.True(t, MustGet("mysql").SupportsNativeIf())
	assert.False(t, MustGet("postgres").SupportsNativeIf())
	assert.True(t, MustGet("mysql").SupportsCalcFoundRows())

	assert.Equal(t, UpsertOnDuplicateKey, MustGet("mysql").UpsertStyle())
	assert.Equal(t, UpsertOnConflict, MustGet("postgres").UpsertStyle())
	assert.Equal(t, UpsertOnConflict, MustGet("sqlite").UpsertStyle())
	assert.Equal(t, UpsertUpdateThenInsert, MustGet("mssql").UpsertStyle())

	assert.Equal(t, "pgx", MustGet("postgres").DriverName())
	assert.Equal(t, "sqlite", MustGet("sqlite3").DriverName())
}

// Package dialect centralizes per-engine SQL variance: identifier quoting,
// parameter placeholders, case-insensitive LIKE spelling, pagination syntax,
// upsert shape, and the found-rows counting strategy. Everything the rest of
// the codebase needs to know about an engine is keyed off a single Name.
package dialect

import (
	"fmt"
	"strings"
)

// Name identifies a supported SQL engine family.
type Name string

const (
	MySQL     Name = "mysql"
	Postgres  Name = "postgres"
	SQLServer Name = "sqlserver"
	SQLite    Name = "sqlite" // embedded single-file engine
)

// UpsertStyle selects the statement shape used by the write path.
type UpsertStyle int

const (
	// UpsertOnDuplicateKey is MySQL INSERT ... ON DUPLICATE KEY UPDATE.
	UpsertOnDuplicateKey UpsertStyle = iota
	// UpsertOnConflict is Postgres/SQLite INSERT ... ON CONFLICT (...) DO UPDATE.
	UpsertOnConflict
	// UpsertUpdateThenInsert is SQL Server UPDATE ...; IF @@ROWCOUNT = 0 INSERT.
	UpsertUpdateThenInsert
)

// ErrUnknown is returned by Get for an unrecognized dialect name.
type ErrUnknown struct{ Name string }

func (e ErrUnknown) Error() string { return fmt.Sprintf("dialect: unknown dialect %q", e.Name) }

// Dialect carries the rendering rules for one engine family. Instances are
// stateless and shared.
type Dialect struct {
	name Name
}

var dialects = map[Name]*Dialect{
	MySQL:     {name: MySQL},
	Postgres:  {name: Postgres},
	SQLServer: {name: SQLServer},
	SQLite:    {name: SQLite},
}

// Get resolves a dialect from its configured name. A few driver-style
// aliases are accepted.
func Get(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return dialects[MySQL], nil
	case "postgres", "postgresql", "pgx", "cockroachdb":
		return dialects[Postgres], nil
	case "sqlserver", "mssql":
		return dialects[SQLServer], nil
	case "sqlite", "sqlite3":
		return dialects[SQLite], nil
	}
	return nil, ErrUnknown{Name: name}
}

// MustGet is Get for statically known names.
func MustGet(name string) *Dialect {
	d, err := Get(name)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Dialect) Name() Name { return d.name }

// DriverName returns the database/sql driver to open for this dialect.
func (d *Dialect) DriverName() string {
	switch d.name {
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	case SQLServer:
		return "sqlserver"
	default:
		return "sqlite"
	}
}

// QuoteIdent quotes a single identifier. MySQL uses backticks, everything
// else the SQL-standard double quote.
func (d *Dialect) QuoteIdent(ident string) string {
	if d.name == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder renders the i-th (1-based) statement parameter.
func (d *Dialect) Placeholder(i int) string {
	switch d.name {
	case Postgres:
		return fmt.Sprintf("$%d", i)
	case SQLServer:
		return fmt.Sprintf("@p%d", i)
	default:
		return "?"
	}
}

// CaseInsensitiveLike returns the operator used for case-insensitive
// pattern matching. Postgres LIKE is case-sensitive so ILIKE is used;
// the other engines' default collations already compare case-insensitively
// or offer no ILIKE.
func (d *Dialect) CaseInsensitiveLike() string {
	if d.name == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

// LikeEscapeClause returns the ESCAPE annotation required when a LIKE
// pattern contains backslashes. Only SQL Server needs it spelled out.
func (d *Dialect) LikeEscapeClause(pattern string) string {
	if d.name == SQLServer && strings.Contains(pattern, `\`) {
		return ` ESCAPE '\'`
	}
	return ""
}

// SupportsNativeIf reports whether the engine has an IF(cond,a,b) function;
// otherwise CASE WHEN is emitted.
func (d *Dialect) SupportsNativeIf() bool { return d.name == MySQL }

// SupportsCalcFoundRows reports whether SQL_CALC_FOUND_ROWS / FOUND_ROWS()
// can replace a count-wrap round trip.
func (d *Dialect) SupportsCalcFoundRows() bool { return d.name == MySQL }

// Paginate renders the pagination clause. Callers must only emit it under
// an ORDER BY clause; unordered paginated SQL is undefined.
func (d *Dialect) Paginate(limit, offset int) string {
	switch d.name {
	case SQLServer:
		return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
	case MySQL:
		if offset > 0 {
			return fmt.Sprintf(" LIMIT %d, %d", offset, limit)
		}
		return fmt.Sprintf(" LIMIT %d", limit)
	default:
		if offset > 0 {
			return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
		}
		return fmt.Sprintf(" LIMIT %d", limit)
	}
}

// UpsertStyle returns the statement shape the write path should build.
func (d *Dialect) UpsertStyle() UpsertStyle {
	switch d.name {
	case MySQL:
		return UpsertOnDuplicateKey
	case SQLServer:
		return UpsertUpdateThenInsert
	default:
		// Postgres and SQLite share ON CONFLICT syntax. SQLite's MERGE-less
		// grammar adopted the Postgres clause verbatim.
		return UpsertOnConflict
	}
}

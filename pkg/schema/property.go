package schema

import "strings"

// Semantic type tags a Property can carry. They abstract over the engines'
// declared SQL types; the mapper keys its casts off these.
const (
	TypeString  = "string"
	TypeChar    = "char" // fixed-width char and clob, trailing spaces trimmed on read
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeBinary  = "binary"
	TypeJSON    = "json"
	TypeArray   = "array"
)

// Property is the REST-facing projection of one backing column.
type Property struct {
	collection *Collection
	name       string // JSON-facing
	columnName string
	typ        string // semantic tag
	nullable   bool

	// pk points at the property this column is a foreign key toward.
	// Attached during reflection pass 2.
	pk *Property
}

// NewProperty creates a property whose JSON name initially equals the
// column name.
func NewProperty(columnName, semanticType string, nullable bool) *Property {
	return &Property{
		name:       columnName,
		columnName: columnName,
		typ:        semanticType,
		nullable:   nullable,
	}
}

func (p *Property) Collection() *Collection { return p.collection }
func (p *Property) Name() string            { return p.name }
func (p *Property) ColumnName() string      { return p.columnName }
func (p *Property) Type() string            { return p.typ }
func (p *Property) Nullable() bool          { return p.nullable }
func (p *Property) Pk() *Property           { return p.pk }

// SetName customizes the JSON-facing name.
func (p *Property) SetName(name string) { p.name = name }

// SetPk records the referenced primary-key property this column points at.
func (p *Property) SetPk(pk *Property) { p.pk = pk }

// SetType overrides the semantic type tag.
func (p *Property) SetType(t string) { p.typ = t }

// SemanticType maps a driver-declared SQL type name to a canonical
// semantic tag. Unrecognized types fall back to string.
func SemanticType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "bigserial", "smallserial",
		"decimal", "numeric", "float", "float4", "float8", "double",
		"double precision", "real", "money", "number":
		return TypeNumber
	case "bool", "boolean", "bit":
		return TypeBoolean
	case "date", "time", "datetime", "datetime2", "smalldatetime",
		"timestamp", "timestamptz", "timestamp with time zone",
		"timestamp without time zone", "time with time zone",
		"time without time zone", "datetimeoffset":
		return TypeDate
	case "blob", "tinyblob", "mediumblob", "longblob", "bytea", "binary",
		"varbinary", "image":
		return TypeBinary
	case "char", "character", "nchar", "bpchar", "clob", "nclob", "ntext":
		return TypeChar
	case "json", "jsonb":
		return TypeJSON
	case "array":
		return TypeArray
	default:
		if strings.HasSuffix(t, "[]") {
			return TypeArray
		}
		return TypeString
	}
}

package schema

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// beautify converts raw catalog identifiers into REST/JSON-idiomatic names:
// snake_case and SHOUT_CASE become camelCase, and collection names are
// additionally pluralized. A name is only rewritten while its display form
// still equals the raw backing name; once customized (by configuration or
// by an earlier pass) it is left alone, which makes the pass idempotent.
func (db *Db) beautify() {
	for _, c := range db.collections {
		if c.name == c.tableName {
			c.name = Beautify(c.tableName, true)
		}
		for _, p := range c.properties {
			if p.name == p.columnName {
				p.name = Beautify(p.columnName, false)
			}
		}
	}
}

// Beautify transforms one raw identifier. When plural is set the result is
// pluralized, as collection names are.
func Beautify(raw string, plural bool) string {
	name := toCamel(raw)
	if plural {
		name = inflection.Plural(name)
	}
	return name
}

// toCamel lower-camels an identifier. Underscore-separated and all-caps
// identifiers are split on underscores; mixed-case input keeps its interior
// casing and only has its first rune lowered.
func toCamel(raw string) string {
	if raw == "" {
		return raw
	}
	if !strings.ContainsRune(raw, '_') {
		if raw == strings.ToUpper(raw) {
			// SHOUTCASE without underscores, e.g. ID or NAME
			return strings.ToLower(raw)
		}
		return lowerFirst(raw)
	}

	parts := strings.Split(strings.ToLower(raw), "_")
	var b strings.Builder
	first := true
	for _, part := range parts {
		if part == "" {
			continue
		}
		if first {
			b.WriteString(part)
			first = false
			continue
		}
		b.WriteString(upperFirst(part))
	}
	if b.Len() == 0 {
		return raw
	}
	return b.String()
}

func lowerFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func upperFirst(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// singularCamel is the lower-camel singular form of a collection display
// name, used for one-to-one relationship names.
func singularCamel(name string) string {
	return lowerFirst(inflection.Singular(name))
}

// stripIDSuffix removes a trailing case-insensitive "id" token plus any
// trailing underscore from a foreign-key column name: author_id and
// authorId both yield author.
func stripIDSuffix(column string) string {
	if len(column) > 2 && strings.EqualFold(column[len(column)-2:], "id") {
		column = column[:len(column)-2]
		column = strings.TrimRight(column, "_")
	}
	return column
}

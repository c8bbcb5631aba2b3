package engine

import (
	"database/sql"
	"net/url"
	"strconv"

	"github.com/restq/restq/pkg/mapper"
)

// Results is the outcome of one read: mapped documents, the total row
// count across all pages (-1 when unknown), and the query-string values
// that fetch the next page, nil on the last page. Cursor values use JSON
// property names, like every other query.
type Results struct {
	Rows  []*mapper.Document
	Total int64
	Next  url.Values
}

// scanRows drains a result set into generic column-keyed maps. Drivers
// hand back []byte for text under interface scanning; those become
// strings so the mapper sees one shape per dialect.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// nextCursor rebuilds the caller's query for the following page. The
// original values are preserved so filters, sorts and includes carry over;
// only the pagination keys are rewritten.
func nextCursor(query url.Values, limit, offset, page int) url.Values {
	next := url.Values{}
	for k, vs := range query {
		switch k {
		case "page", "pagenum", "pagesize", "limit", "offset":
			continue
		}
		next[k] = append([]string(nil), vs...)
	}
	if page > 0 {
		next.Set("page", strconv.Itoa(page+1))
		next.Set("limit", strconv.Itoa(limit))
	} else {
		next.Set("limit", strconv.Itoa(limit))
		next.Set("offset", strconv.Itoa(offset+limit))
	}
	return next
}

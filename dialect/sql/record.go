package sql

import "errors"

// Record is one fetched row keyed by column name.
type Record map[string]any

// FetchAll reads every row of rows as a Record and closes rows.
// Byte slices are returned as strings, the way text protocols report them.
func FetchAll(rows *Rows) (records []Record, err error) {
	defer func() { err = errors.Join(err, rows.Close()) }()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r := make(Record, len(columns))
		for i, c := range columns {
			r[c] = normalize(values[i])
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

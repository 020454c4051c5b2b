package wp

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRowQuerier adapts a database/sql handle to the RowQuerier interface.
// It is driver-agnostic; the host platform decides which driver backs it.
type SQLRowQuerier struct {
	db *sql.DB
}

// NewSQLRowQuerier wraps db.
func NewSQLRowQuerier(db *sql.DB) *SQLRowQuerier {
	return &SQLRowQuerier{db: db}
}

// QueryRows runs query with args, returning up to limit rows with every
// column rendered as a string. NULL columns come back empty.
func (q *SQLRowQuerier) QueryRows(ctx context.Context, query string, limit int, args ...any) ([][]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out [][]string
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}

		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

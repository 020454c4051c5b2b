package sigscan

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitemedic/sitemedic/pkg/wp"
)

// gcRowInterval bounds steady-state memory on large result sets.
const gcRowInterval = 500

// tableQuery is one curated high-risk query. Column 0 must be the row id;
// every remaining column is scanned as content.
type tableQuery struct {
	Table  string
	Query  string
	RowCap int
}

// dbQueries is the fixed, curated scan surface. The scanner never walks the
// whole database; each query targets fields known to be abused and is
// row-capped to bound cost.
func dbQueries(prefix string) []tableQuery {
	return []tableQuery{
		{
			Table: prefix + "posts",
			Query: fmt.Sprintf(
				`SELECT ID, post_title, post_content FROM %sposts `+
					`WHERE post_status IN ('publish', 'draft', 'private', 'future')`, prefix),
			RowCap: 500,
		},
		{
			Table: prefix + "options",
			Query: fmt.Sprintf(
				`SELECT option_id, option_name, option_value FROM %soptions `+
					`WHERE option_name IN ('siteurl', 'home', 'blogname', 'blogdescription', `+
					`'template', 'stylesheet', 'active_plugins', 'wp_user_roles') `+
					`OR option_name LIKE 'widget_%%' OR option_name LIKE 'theme_mods_%%' `+
					`OR option_name LIKE 'cron%%'`, prefix),
			RowCap: 200,
		},
		{
			Table: prefix + "postmeta",
			Query: fmt.Sprintf(
				`SELECT meta_id, meta_value FROM %spostmeta `+
					`WHERE meta_key IN ('_wp_attached_file', '_wp_page_template', `+
					`'custom_css', 'header_scripts', 'footer_scripts')`, prefix),
			RowCap: 300,
		},
		{
			Table: prefix + "users",
			Query: fmt.Sprintf(
				`SELECT ID, user_url, user_email FROM %susers`, prefix),
			RowCap: 200,
		},
		{
			Table: prefix + "comments",
			Query: fmt.Sprintf(
				`SELECT comment_ID, comment_content FROM %scomments `+
					`WHERE comment_approved = '1'`, prefix),
			RowCap: 300,
		},
	}
}

// DBScanner runs the curated query set through a row querier and matches
// every content column against the signature set.
type DBScanner struct {
	db     wp.RowQuerier
	set    *Set
	prefix string
	report ProgressFunc
	logger zerolog.Logger
}

// NewDBScanner wires a database scanner. An empty prefix selects the
// conventional "wp_".
func NewDBScanner(db wp.RowQuerier, set *Set, prefix string) *DBScanner {
	if prefix == "" {
		prefix = defaultTablePrefix
	}
	return &DBScanner{
		db:     db,
		set:    set,
		prefix: prefix,
		logger: log.With().Str("component", "sigscan-db").Logger(),
	}
}

// WithProgress registers a bounded-interval progress callback, invoked once
// per table query rather than per row.
func (s *DBScanner) WithProgress(fn ProgressFunc) *DBScanner {
	s.report = fn
	return s
}

// Scan executes every curated query and returns all threat matches. A query
// that fails (missing table, permission) is logged and skipped; the scan as a
// whole only fails on context cancellation.
func (s *DBScanner) Scan(ctx context.Context) ([]ThreatMatch, error) {
	queries := dbQueries(s.prefix)
	var matches []ThreatMatch
	rowsSinceReclaim := 0

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		if s.report != nil {
			s.report(i, len(queries), "Scanning "+q.Table)
		}

		rows, err := s.db.QueryRows(ctx, q.Query, q.RowCap)
		if err != nil {
			s.logger.Warn().Err(err).Str("table", q.Table).Msg("Table scan skipped")
			continue
		}

		for _, row := range rows {
			if len(row) < 2 {
				continue
			}
			source := fmt.Sprintf("%s:%s", q.Table, row[0])
			for _, cell := range row[1:] {
				if cell == "" || legitimateBase64Image(cell) {
					continue
				}
				matches = append(matches, s.set.ScanContent(cell, source)...)
			}

			rowsSinceReclaim++
			if rowsSinceReclaim >= gcRowInterval {
				runtime.GC()
				rowsSinceReclaim = 0
			}
		}
		s.logger.Debug().Str("table", q.Table).Int("rows", len(rows)).Msg("Table scanned")
	}

	if s.report != nil {
		s.report(len(queries), len(queries), "Database scan complete")
	}
	s.logger.Info().Int("matches", len(matches)).Msg("Database scan complete")
	return matches, nil
}

// TablePrefixValid rejects prefixes that could break out of the identifier
// position in the curated queries.
func TablePrefixValid(prefix string) bool {
	if prefix == "" {
		return true
	}
	for _, r := range prefix {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	first := rune(prefix[0])
	return first < '0' || first > '9'
}

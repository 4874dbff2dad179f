package sqlstore

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// AppendSearch inserts one search log row.
func (s *Store) AppendSearch(ctx context.Context, entry models.SearchLogEntry) error {
	d := s.dialect
	stmt := fmt.Sprintf(
		"INSERT INTO search_log (user_id, kind, subject, searched_at) VALUES (%s, %s, %s, %s)",
		d.mark(1), d.mark(2), d.mark(3), d.mark(4),
	)
	_, err := s.db.ExecContext(ctx, stmt,
		entry.UserID,
		string(entry.Subject.Kind),
		entry.Subject.Name,
		d.encodeTime(entry.SearchedAt),
	)
	if err != nil {
		return fmt.Errorf("append search: %w", d.wrapError(err))
	}
	return nil
}

// RecentSearches returns the company subjects searched by userID, one row
// per subject with its latest timestamp, newest first.
func (s *Store) RecentSearches(ctx context.Context, userID string, limit int) ([]models.RecentSearch, error) {
	d := s.dialect
	stmt := fmt.Sprintf(`SELECT subject, MAX(searched_at) AS last_searched
		FROM search_log
		WHERE user_id = %s AND kind = %s
		GROUP BY subject
		ORDER BY last_searched DESC, subject
		LIMIT %s`, d.mark(1), d.mark(2), d.mark(3))

	rows, err := s.db.QueryContext(ctx, stmt, userID, string(models.SubjectCompany), limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", d.wrapError(err))
	}
	defer rows.Close()

	var out []models.RecentSearch
	for rows.Next() {
		var (
			rs  models.RecentSearch
			raw any
		)
		if err := rows.Scan(&rs.Subject, &raw); err != nil {
			return nil, fmt.Errorf("recent searches: %w", d.wrapError(err))
		}
		if rs.LastSearched, err = d.decodeTime(raw); err != nil {
			return nil, fmt.Errorf("recent searches: %w", d.wrapError(err))
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent searches: %w", d.wrapError(err))
	}
	return out, nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// AppendSearch inserts one search log row.
func (c *Client) AppendSearch(ctx context.Context, entry models.SearchLogEntry) error {
	sql := `CREATE search_log CONTENT {
		user_id: $user_id,
		kind: $kind,
		subject: $subject,
		searched_at: <datetime>$searched_at
	}`
	vars := map[string]any{
		"user_id":     entry.UserID,
		"kind":        string(entry.Subject.Kind),
		"subject":     entry.Subject.Name,
		"searched_at": entry.SearchedAt.UTC().Format(time.RFC3339Nano),
	}
	if _, err := surrealdb.Query[any](ctx, c.db, sql, vars); err != nil {
		return fmt.Errorf("append search: %w", wrapQueryError(err))
	}
	return nil
}

type recentRow struct {
	Subject      string    `json:"subject"`
	LastSearched time.Time `json:"last_searched"`
}

// RecentSearches returns the company subjects searched by userID, one row
// per subject with its latest timestamp, newest first.
func (c *Client) RecentSearches(ctx context.Context, userID string, limit int) ([]models.RecentSearch, error) {
	sql := `
		SELECT subject, time::max(searched_at) AS last_searched
		FROM search_log
		WHERE user_id = $user_id AND kind = $kind
		GROUP BY subject
		ORDER BY last_searched DESC
		LIMIT $limit`
	vars := map[string]any{
		"user_id": userID,
		"kind":    string(models.SubjectCompany),
		"limit":   limit,
	}

	results, err := surrealdb.Query[[]recentRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.RecentSearch{}, nil
	}

	rows := (*results)[0].Result
	out := make([]models.RecentSearch, len(rows))
	for i, r := range rows {
		out[i] = models.RecentSearch{Subject: r.Subject, LastSearched: r.LastSearched.UTC()}
	}
	return out, nil
}

// Package audit records read-type tool invocations per identity and serves
// the deduplicated recent-search list.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/metrics"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// Store persists search log entries.
type Store interface {
	AppendSearch(ctx context.Context, entry models.SearchLogEntry) error
	RecentSearches(ctx context.Context, userID string, limit int) ([]models.RecentSearch, error)
}

// Logger is the audit trail front end.
type Logger struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a Logger. metrics may be nil.
func New(store Store, logger *slog.Logger, mc *metrics.Collector) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, logger: logger, metrics: mc}
}

// LogSearch appends an entry for identity. The write is attempted before
// returning but its failure is only logged: auditing never fails the read
// it describes.
func (l *Logger) LogSearch(ctx context.Context, identity models.Identity, subject models.Subject, at time.Time) {
	entry := models.SearchLogEntry{UserID: identity.UserID, Subject: subject, SearchedAt: at}
	if err := l.store.AppendSearch(ctx, entry); err != nil {
		l.logger.Error("audit log write failed",
			"user_id", identity.UserID,
			"kind", subject.Kind,
			"subject", subject.Name,
			"error", err,
		)
		if l.metrics != nil {
			l.metrics.RecordFailure(metrics.OpAuditWrite)
		}
	}
}

// RecentSearches returns identity's most recently searched subjects.
func (l *Logger) RecentSearches(ctx context.Context, identity models.Identity, limit int) ([]models.RecentSearch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("recent searches: %w: limit must be positive", errs.ErrValidation)
	}
	out, err := l.store.RecentSearches(ctx, identity.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	if out == nil {
		out = []models.RecentSearch{}
	}
	return out, nil
}

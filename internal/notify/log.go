// Package notify delivers crawl notifications to external channels.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

// LogNotifier implements seo.Notifier by logging. Used when no external
// channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// CriticalIssueFound implements seo.Notifier.
func (n *LogNotifier) CriticalIssueFound(_ context.Context, crawlID uuid.UUID, pageURL, issueType, description string) error {
	n.logger.Warn("critical issue found",
		zap.String("crawl_id", crawlID.String()),
		zap.String("url", pageURL),
		zap.String("issue_type", issueType),
		zap.String("description", description))
	return nil
}

// CrawlCompleted implements seo.Notifier.
func (n *LogNotifier) CrawlCompleted(_ context.Context, crawlID uuid.UUID, totals seo.CrawlTotals) error {
	n.logger.Info("crawl completed",
		zap.String("crawl_id", crawlID.String()),
		zap.Int("total_pages", totals.TotalPages),
		zap.Int("issues_found", totals.IssuesFound),
		zap.Int("error_count", totals.ErrorCount))
	return nil
}

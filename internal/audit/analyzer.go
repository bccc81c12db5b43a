// Package audit evaluates extracted page signals against SEO rules.
package audit

import (
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

// Rule inspects one page's signals and returns zero or more findings. Rules
// are pure: they read pre-computed signals and never touch the network.
type Rule interface {
	Name() string
	Evaluate(signals *seo.PageSignals, statusCode int, loadTimeMs int64) []seo.Issue
}

// Analyzer runs an ordered rule set over a page. When a rule reports the
// page as a 404 or server error, the remaining rules are skipped: content
// checks on an error page would only produce noise.
type Analyzer struct {
	rules  []Rule
	logger *zap.Logger
}

// New builds an Analyzer over the given rules.
func New(rules []Rule, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{rules: rules, logger: logger}
}

// Analyze evaluates every rule in order and returns the findings in rule
// order. The result order is deterministic for identical input.
func (a *Analyzer) Analyze(signals *seo.PageSignals, statusCode int, loadTimeMs int64) []seo.Issue {
	var issues []seo.Issue
	for _, rule := range a.rules {
		found := rule.Evaluate(signals, statusCode, loadTimeMs)
		issues = append(issues, found...)
		if containsErrorPage(found) {
			a.logger.Debug("skipping remaining rules for error page",
				zap.String("url", signals.URL),
				zap.Int("status", statusCode))
			break
		}
	}
	return issues
}

func containsErrorPage(issues []seo.Issue) bool {
	for _, issue := range issues {
		if issue.Type == TypeHTTP404 || issue.Type == TypeHTTPServerError {
			return true
		}
	}
	return false
}

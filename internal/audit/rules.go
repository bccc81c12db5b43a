package audit

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/seolens/siteaudit/internal/seo"
)

// Issue type identifiers, namespaced by category.
const (
	TypeHTTP404             = "technical_seo.http_404_not_found"
	TypeHTTPServerError     = "technical_seo.http_server_error"
	TypeMissingCanonical    = "technical_seo.missing_canonical"
	TypeCrossDomainCanon    = "technical_seo.cross_domain_canonical"
	TypeCanonicalMismatch   = "technical_seo.canonical_mismatch"
	TypeInternalLinkBroken  = "technical_seo.internal_link_broken"
	TypeRedirectChain       = "technical_seo.redirect_chain"
	TypeInternalRedirect    = "technical_seo.internal_redirect_chain"
	TypeNoindex             = "technical_seo.noindex_detected"
	TypeNofollow            = "technical_seo.nofollow_detected"
	TypeStructuredMissing   = "technical_seo.structured_data_missing"
	TypeStructuredInvalid   = "technical_seo.structured_data_invalid"
	TypeSlowPageLoad        = "technical_seo.slow_page_load"
	TypePoorLCP             = "technical_seo.poor_lcp"
	TypeNeedsImprovementLCP = "technical_seo.needs_improvement_lcp"
	TypePoorFCP             = "technical_seo.poor_fcp"
	TypePoorCLS             = "technical_seo.poor_cls"
	TypeNeedsImprovementCLS = "technical_seo.needs_improvement_cls"
	TypeMissingViewport     = "technical_seo.missing_viewport"
	TypeNotHTTPS            = "technical_seo.not_https"
	TypeMissingSecHeaders   = "technical_seo.missing_security_headers"
	TypeMissingTitle        = "content.missing_title"
	TypeShortTitle          = "content.short_title"
	TypeMissingDescription  = "content.missing_description"
	TypeMissingH1           = "content.missing_h1"
	TypeImagesMissingAlt    = "accessibility.images_missing_alt"
	TypeHeadingSkip         = "accessibility.heading_hierarchy_skip"
)

// Thresholds are the severity cutoffs used by the threshold-driven rules.
// Load time uses inclusive comparisons; the Core Web Vitals cutoffs are
// strict, so a CLS of exactly 0.1 is still good.
type Thresholds struct {
	SlowPageWarnMs        int64
	SlowPageCriticalMs    int64
	LCPNeedsImprovementMs int64
	LCPPoorMs             int64
	FCPWarnMs             int64
	CLSNeedsImprovement   float64
	CLSPoor               float64
	RedirectChainHops     int
	ShortTitleChars       int
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowPageWarnMs:        2000,
		SlowPageCriticalMs:    4000,
		LCPNeedsImprovementMs: 2500,
		LCPPoorMs:             4000,
		FCPWarnMs:             3000,
		CLSNeedsImprovement:   0.1,
		CLSPoor:               0.25,
		RedirectChainHops:     2,
		ShortTitleChars:       10,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.SlowPageWarnMs <= 0 {
		t.SlowPageWarnMs = d.SlowPageWarnMs
	}
	if t.SlowPageCriticalMs <= 0 {
		t.SlowPageCriticalMs = d.SlowPageCriticalMs
	}
	if t.LCPNeedsImprovementMs <= 0 {
		t.LCPNeedsImprovementMs = d.LCPNeedsImprovementMs
	}
	if t.LCPPoorMs <= 0 {
		t.LCPPoorMs = d.LCPPoorMs
	}
	if t.FCPWarnMs <= 0 {
		t.FCPWarnMs = d.FCPWarnMs
	}
	if t.CLSNeedsImprovement <= 0 {
		t.CLSNeedsImprovement = d.CLSNeedsImprovement
	}
	if t.CLSPoor <= 0 {
		t.CLSPoor = d.CLSPoor
	}
	if t.RedirectChainHops <= 0 {
		t.RedirectChainHops = d.RedirectChainHops
	}
	if t.ShortTitleChars <= 0 {
		t.ShortTitleChars = d.ShortTitleChars
	}
	return t
}

// DefaultRules returns the full rule set in evaluation order. The HTTP
// status rule comes first so error pages skip the content checks.
func DefaultRules(t Thresholds) []Rule {
	t = t.withDefaults()
	return []Rule{
		&HTTPStatusRule{},
		&BasicSEORule{ShortTitleChars: t.ShortTitleChars},
		&CanonicalRule{},
		&HeadingHierarchyRule{},
		&ImageAltRule{},
		&InternalLinkRule{},
		&RedirectChainRule{MinHops: t.RedirectChainHops},
		&PageSpeedRule{WarnMs: t.SlowPageWarnMs, CriticalMs: t.SlowPageCriticalMs},
		&ViewportRule{},
		&WebVitalsRule{Thresholds: t},
		&StructuredDataRule{},
		&IndexabilityRule{},
		&SecurityRule{},
	}
}

// HTTPStatusRule flags unreachable and broken pages. Any finding from this
// rule stops further evaluation for the page.
type HTTPStatusRule struct{}

// Name implements Rule.
func (r *HTTPStatusRule) Name() string { return "http_status" }

// Evaluate implements Rule.
func (r *HTTPStatusRule) Evaluate(signals *seo.PageSignals, statusCode int, _ int64) []seo.Issue {
	switch {
	case statusCode == 404:
		return []seo.Issue{{
			Type:        TypeHTTP404,
			Severity:    seo.SeverityCritical,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Page returned 404 Not Found: %s", signals.URL),
			FixTemplate: "Restore the page, or redirect the URL to a relevant live page and remove links pointing at it.",
		}}
	case statusCode >= 500:
		return []seo.Issue{{
			Type:        TypeHTTPServerError,
			Severity:    seo.SeverityCritical,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Page returned server error %d: %s", statusCode, signals.URL),
			FixTemplate: "Check the server logs for this URL; crawlers that repeatedly see 5xx responses will drop the page from the index.",
		}}
	}
	return nil
}

// BasicSEORule checks title, meta description and H1 presence.
type BasicSEORule struct {
	ShortTitleChars int
}

// Name implements Rule.
func (r *BasicSEORule) Name() string { return "basic_seo" }

// Evaluate implements Rule.
func (r *BasicSEORule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	var issues []seo.Issue
	switch {
	case signals.Title == "":
		issues = append(issues, seo.Issue{
			Type:        TypeMissingTitle,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryContent,
			Description: "Page has no <title> element.",
			FixTemplate: "Add a unique, descriptive <title> of roughly 50-60 characters.",
		})
	case utf8.RuneCountInString(signals.Title) < r.ShortTitleChars:
		issues = append(issues, seo.Issue{
			Type:        TypeShortTitle,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryContent,
			Description: fmt.Sprintf("Page title is only %d characters: %q", utf8.RuneCountInString(signals.Title), signals.Title),
			FixTemplate: "Expand the title to describe the page content; very short titles are often replaced in search results.",
		})
	}
	if signals.Description == "" {
		issues = append(issues, seo.Issue{
			Type:        TypeMissingDescription,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryContent,
			Description: "Page has no meta description.",
			FixTemplate: "Add a meta description of roughly 150-160 characters summarizing the page.",
		})
	}
	if signals.H1 == "" {
		issues = append(issues, seo.Issue{
			Type:        TypeMissingH1,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryContent,
			Description: "Page has no <h1> heading.",
			FixTemplate: "Add a single <h1> that states the main topic of the page.",
		})
	}
	return issues
}

// CanonicalRule validates the rel=canonical annotation.
type CanonicalRule struct{}

// Name implements Rule.
func (r *CanonicalRule) Name() string { return "canonical" }

// Evaluate implements Rule.
func (r *CanonicalRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	if signals.Canonical == "" {
		return []seo.Issue{{
			Type:        TypeMissingCanonical,
			Severity:    seo.SeverityInfo,
			Category:    seo.CategoryTechnicalSEO,
			Description: "Page declares no canonical URL.",
			FixTemplate: "Add <link rel=\"canonical\"> pointing at the preferred URL for this content.",
		}}
	}

	pageDomain := seo.Domain(signals.FinalURL)
	if pageDomain != "" && !seo.SameDomain(signals.Canonical, pageDomain) {
		return []seo.Issue{{
			Type:        TypeCrossDomainCanon,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Canonical URL points at a different domain: %s", signals.Canonical),
		}}
	}

	canonNorm, err := seo.NormalizeURL(signals.Canonical)
	if err != nil {
		return nil
	}
	pageNorm, err := seo.NormalizeURL(signals.FinalURL)
	if err != nil {
		return nil
	}
	if canonNorm != pageNorm {
		return []seo.Issue{{
			Type:        TypeCanonicalMismatch,
			Severity:    seo.SeverityInfo,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Canonical URL %s differs from the page URL %s.", signals.Canonical, signals.FinalURL),
		}}
	}
	return nil
}

// HeadingHierarchyRule flags skipped heading levels, such as an h3 directly
// after an h1.
type HeadingHierarchyRule struct{}

// Name implements Rule.
func (r *HeadingHierarchyRule) Name() string { return "heading_hierarchy" }

// Evaluate implements Rule.
func (r *HeadingHierarchyRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	var issues []seo.Issue
	for i := 1; i < len(signals.Headings); i++ {
		prev, cur := signals.Headings[i-1], signals.Headings[i]
		if cur.Level-prev.Level > 1 {
			issues = append(issues, seo.Issue{
				Type:        TypeHeadingSkip,
				Severity:    seo.SeverityWarning,
				Category:    seo.CategoryAccessibility,
				Description: fmt.Sprintf("Heading level jumps from h%d to h%d (%q).", prev.Level, cur.Level, cur.Text),
				FixTemplate: "Keep heading levels sequential; screen readers use them as a document outline.",
			})
		}
	}
	return issues
}

// ImageAltRule flags images without alternative text.
type ImageAltRule struct{}

// Name implements Rule.
func (r *ImageAltRule) Name() string { return "image_alt" }

// Evaluate implements Rule.
func (r *ImageAltRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	if len(signals.ImagesMissingAlt) == 0 {
		return nil
	}
	return []seo.Issue{{
		Type:        TypeImagesMissingAlt,
		Severity:    seo.SeverityWarning,
		Category:    seo.CategoryAccessibility,
		Description: fmt.Sprintf("%d image(s) have no alt text, e.g. %s", len(signals.ImagesMissingAlt), signals.ImagesMissingAlt[0]),
		FixTemplate: "Give every meaningful image an alt attribute; use alt=\"\" for purely decorative ones.",
	}}
}

// InternalLinkRule reports broken internal link targets found during link
// validation. It reads pre-computed results and performs no network calls.
type InternalLinkRule struct{}

// Name implements Rule.
func (r *InternalLinkRule) Name() string { return "internal_links" }

// Evaluate implements Rule.
func (r *InternalLinkRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	if len(signals.InvalidInternalLinks) == 0 {
		return nil
	}
	targets := make([]string, 0, len(signals.InvalidInternalLinks))
	for _, check := range signals.InvalidInternalLinks {
		targets = append(targets, check.URL)
	}
	return []seo.Issue{{
		Type:        TypeInternalLinkBroken,
		Severity:    seo.SeverityCritical,
		Category:    seo.CategoryTechnicalSEO,
		Description: fmt.Sprintf("%d broken internal link(s): %s", len(targets), strings.Join(targets, ", ")),
		FixTemplate: "Fix or remove the broken links; broken internal links waste crawl budget and strand users.",
	}}
}

// RedirectChainRule reports the page itself arriving through a redirect
// chain, and internal links whose targets chain through redirects.
type RedirectChainRule struct {
	MinHops int
}

// Name implements Rule.
func (r *RedirectChainRule) Name() string { return "redirect_chains" }

// Evaluate implements Rule.
func (r *RedirectChainRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	var issues []seo.Issue
	if signals.RedirectHops >= r.MinHops {
		issues = append(issues, seo.Issue{
			Type:        TypeRedirectChain,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Page was reached through %d redirects.", signals.RedirectHops),
			FixTemplate: "Point links and sitemap entries directly at the final URL.",
		})
	}
	if len(signals.RedirectChainLinks) > 0 {
		targets := make([]string, 0, len(signals.RedirectChainLinks))
		for _, check := range signals.RedirectChainLinks {
			targets = append(targets, fmt.Sprintf("%s (%d hops)", check.URL, check.RedirectHops))
		}
		issues = append(issues, seo.Issue{
			Type:        TypeInternalRedirect,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("%d internal link(s) chain through redirects: %s", len(targets), strings.Join(targets, ", ")),
			FixTemplate: "Update the links to target the final URL directly.",
		})
	}
	return issues
}

// PageSpeedRule grades server load time. Both cutoffs are inclusive.
type PageSpeedRule struct {
	WarnMs     int64
	CriticalMs int64
}

// Name implements Rule.
func (r *PageSpeedRule) Name() string { return "page_speed" }

// Evaluate implements Rule.
func (r *PageSpeedRule) Evaluate(_ *seo.PageSignals, _ int, loadTimeMs int64) []seo.Issue {
	switch {
	case loadTimeMs >= r.CriticalMs:
		return []seo.Issue{{
			Type:        TypeSlowPageLoad,
			Severity:    seo.SeverityCritical,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Page took %dms to load.", loadTimeMs),
			FixTemplate: "Profile the server response; anything above a few seconds loses both users and rankings.",
		}}
	case loadTimeMs >= r.WarnMs:
		return []seo.Issue{{
			Type:        TypeSlowPageLoad,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Page took %dms to load.", loadTimeMs),
		}}
	}
	return nil
}

// ViewportRule checks for a mobile viewport declaration.
type ViewportRule struct{}

// Name implements Rule.
func (r *ViewportRule) Name() string { return "viewport" }

// Evaluate implements Rule.
func (r *ViewportRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	if signals.Viewport != "" {
		return nil
	}
	return []seo.Issue{{
		Type:        TypeMissingViewport,
		Severity:    seo.SeverityWarning,
		Category:    seo.CategoryTechnicalSEO,
		Description: "Page has no viewport meta tag.",
		FixTemplate: "Add <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\"> for mobile rendering.",
	}}
}

// WebVitalsRule grades Core Web Vitals. Cutoffs are strict comparisons, so a
// metric exactly at a threshold is still in the better bucket. Unmeasured
// metrics produce no findings.
type WebVitalsRule struct {
	Thresholds Thresholds
}

// Name implements Rule.
func (r *WebVitalsRule) Name() string { return "web_vitals" }

// Evaluate implements Rule.
func (r *WebVitalsRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	var issues []seo.Issue
	t := r.Thresholds

	if lcp := signals.Vitals.LCPMs; lcp != nil {
		switch {
		case *lcp > t.LCPPoorMs:
			issues = append(issues, seo.Issue{
				Type:        TypePoorLCP,
				Severity:    seo.SeverityCritical,
				Category:    seo.CategoryTechnicalSEO,
				Description: fmt.Sprintf("Largest Contentful Paint is %dms.", *lcp),
				FixTemplate: "Optimize the largest above-the-fold element: compress images, preload critical resources, reduce server time.",
			})
		case *lcp > t.LCPNeedsImprovementMs:
			issues = append(issues, seo.Issue{
				Type:        TypeNeedsImprovementLCP,
				Severity:    seo.SeverityWarning,
				Category:    seo.CategoryTechnicalSEO,
				Description: fmt.Sprintf("Largest Contentful Paint is %dms.", *lcp),
			})
		}
	}

	if fcp := signals.Vitals.FCPMs; fcp != nil && *fcp > t.FCPWarnMs {
		issues = append(issues, seo.Issue{
			Type:        TypePoorFCP,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("First Contentful Paint is %dms.", *fcp),
		})
	}

	if cls := signals.Vitals.CLS; cls != nil {
		switch {
		case *cls > t.CLSPoor:
			issues = append(issues, seo.Issue{
				Type:        TypePoorCLS,
				Severity:    seo.SeverityCritical,
				Category:    seo.CategoryTechnicalSEO,
				Description: fmt.Sprintf("Cumulative Layout Shift is %.2f.", *cls),
				FixTemplate: "Reserve space for images, ads and embeds so content does not move while loading.",
			})
		case *cls > t.CLSNeedsImprovement:
			issues = append(issues, seo.Issue{
				Type:        TypeNeedsImprovementCLS,
				Severity:    seo.SeverityWarning,
				Category:    seo.CategoryTechnicalSEO,
				Description: fmt.Sprintf("Cumulative Layout Shift is %.2f.", *cls),
			})
		}
	}

	return issues
}

// StructuredDataRule checks JSON-LD blocks.
type StructuredDataRule struct{}

// Name implements Rule.
func (r *StructuredDataRule) Name() string { return "structured_data" }

// Evaluate implements Rule.
func (r *StructuredDataRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	if len(signals.StructuredData) == 0 {
		return []seo.Issue{{
			Type:        TypeStructuredMissing,
			Severity:    seo.SeverityInfo,
			Category:    seo.CategoryTechnicalSEO,
			Description: "Page carries no JSON-LD structured data.",
			FixTemplate: "Add schema.org JSON-LD matching the page type to qualify for rich results.",
		}}
	}
	if len(signals.StructuredDataErrors) > 0 {
		return []seo.Issue{{
			Type:        TypeStructuredInvalid,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Invalid JSON-LD: %s", strings.Join(signals.StructuredDataErrors, "; ")),
		}}
	}
	return nil
}

// IndexabilityRule surfaces noindex/nofollow directives from the robots meta
// tag and the X-Robots-Tag header. The directives themselves may be
// intentional, so they are reported rather than graded harshly.
type IndexabilityRule struct{}

// Name implements Rule.
func (r *IndexabilityRule) Name() string { return "indexability" }

// Evaluate implements Rule.
func (r *IndexabilityRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	noindex := signals.RobotsNoindex
	nofollow := signals.RobotsNofollow
	if header := signals.ResponseHeaders.Get("X-Robots-Tag"); header != "" {
		lower := strings.ToLower(header)
		noindex = noindex || strings.Contains(lower, "noindex")
		nofollow = nofollow || strings.Contains(lower, "nofollow")
	}

	var issues []seo.Issue
	if noindex {
		issues = append(issues, seo.Issue{
			Type:        TypeNoindex,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: "Page is marked noindex and will be excluded from search results.",
		})
	}
	if nofollow {
		issues = append(issues, seo.Issue{
			Type:        TypeNofollow,
			Severity:    seo.SeverityInfo,
			Category:    seo.CategoryTechnicalSEO,
			Description: "Page is marked nofollow; its outgoing links pass no signals.",
		})
	}
	return issues
}

// SecurityRule checks transport security basics.
type SecurityRule struct{}

// Name implements Rule.
func (r *SecurityRule) Name() string { return "security" }

var securityHeaders = []string{
	"Strict-Transport-Security",
	"X-Content-Type-Options",
	"Content-Security-Policy",
}

// Evaluate implements Rule.
func (r *SecurityRule) Evaluate(signals *seo.PageSignals, _ int, _ int64) []seo.Issue {
	var issues []seo.Issue
	if strings.HasPrefix(strings.ToLower(signals.FinalURL), "http://") {
		issues = append(issues, seo.Issue{
			Type:        TypeNotHTTPS,
			Severity:    seo.SeverityWarning,
			Category:    seo.CategoryTechnicalSEO,
			Description: "Page is served over plain HTTP.",
			FixTemplate: "Serve the site over HTTPS and redirect HTTP traffic permanently.",
		})
	}
	var missing []string
	for _, h := range securityHeaders {
		if signals.ResponseHeaders.Get(h) == "" {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, seo.Issue{
			Type:        TypeMissingSecHeaders,
			Severity:    seo.SeverityInfo,
			Category:    seo.CategoryTechnicalSEO,
			Description: fmt.Sprintf("Missing security headers: %s", strings.Join(missing, ", ")),
		})
	}
	return issues
}

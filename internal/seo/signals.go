package seo

import "net/http"

// Heading is one entry of a page's heading outline, in document order.
type Heading struct {
	Level int
	Text  string
}

// Link is a deduplicated outbound link found during parsing.
type Link struct {
	URL        string
	AnchorText string
}

// PageSignals is the structured record extracted from one fetched page. The
// parser fills the static fields; the orchestrator attaches response
// metadata, performance metrics, and link-validation results before the
// analyzer runs. InvalidInternalLinks and RedirectChainLinks MUST be
// populated before rule evaluation or the corresponding rules report
// nothing.
type PageSignals struct {
	URL      string
	FinalURL string

	Title       string
	Description string
	H1          string
	Headings    []Heading
	Viewport    string
	Canonical   string

	RobotsNoindex  bool
	RobotsNofollow bool

	StructuredData       []string
	StructuredDataErrors []string

	ContentHash string

	InternalLinks    []Link
	ExternalLinks    []Link
	ImagesMissingAlt []string

	ResponseHeaders http.Header
	RedirectHops    int

	Vitals WebVitals

	InvalidInternalLinks []LinkCheck
	RedirectChainLinks   []LinkCheck
}

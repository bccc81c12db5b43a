// Package parse extracts SEO signals from fetched HTML documents.
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/seolens/siteaudit/internal/seo"
)

// Parser turns raw HTML into PageSignals. It is forgiving: malformed markup
// degrades to empty signals rather than an error.
type Parser struct {
	hasher seo.Hasher
	logger *zap.Logger
}

// New builds a Parser.
func New(hasher seo.Hasher, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{hasher: hasher, logger: logger}
}

// Parse extracts signals from the body of pageURL. baseDomain is the crawl
// domain in stripped form and drives internal/external link classification.
func (p *Parser) Parse(pageURL string, body []byte, baseDomain string) (*seo.PageSignals, error) {
	signals := &seo.PageSignals{URL: pageURL, FinalURL: pageURL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return signals, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	signals.Title = cleanText(doc.Find("title").First().Text())
	p.extractMeta(doc, signals)
	p.extractHeadings(doc, signals)
	p.extractCanonical(doc, base, signals)
	p.extractStructuredData(doc, signals)
	p.extractLinks(doc, base, baseDomain, signals)
	p.extractImages(doc, base, signals)

	// Hash last: stripping script and style mutates the document.
	doc.Find("script, style, noscript").Remove()
	content := strings.Join(strings.Fields(doc.Text()), " ")
	hash, err := p.hasher.Hash([]byte(content))
	if err != nil {
		p.logger.Warn("content hash failed", zap.String("url", pageURL), zap.Error(err))
	} else {
		signals.ContentHash = hash
	}

	return signals, nil
}

func (p *Parser) extractMeta(doc *goquery.Document, signals *seo.PageSignals) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		switch {
		case strings.EqualFold(name, "description"):
			if signals.Description == "" {
				signals.Description = cleanText(content)
			}
		case strings.EqualFold(name, "viewport"):
			if signals.Viewport == "" {
				signals.Viewport = strings.TrimSpace(content)
			}
		case strings.EqualFold(name, "robots"):
			for _, directive := range strings.Split(content, ",") {
				switch strings.ToLower(strings.TrimSpace(directive)) {
				case "noindex":
					signals.RobotsNoindex = true
				case "nofollow":
					signals.RobotsNofollow = true
				}
			}
		}
	})
}

func (p *Parser) extractHeadings(doc *goquery.Document, signals *seo.PageSignals) {
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if err != nil {
			return
		}
		text := cleanText(s.Text())
		signals.Headings = append(signals.Headings, seo.Heading{Level: level, Text: text})
		if level == 1 && signals.H1 == "" {
			signals.H1 = text
		}
	})
}

func (p *Parser) extractCanonical(doc *goquery.Document, base *url.URL, signals *seo.PageSignals) {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok {
		return
	}
	signals.Canonical = resolveURL(base, strings.TrimSpace(href))
}

func (p *Parser) extractStructuredData(doc *goquery.Document, signals *seo.PageSignals) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		signals.StructuredData = append(signals.StructuredData, raw)
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			signals.StructuredDataErrors = append(signals.StructuredDataErrors,
				fmt.Sprintf("block %d: %v", i+1, err))
		}
	})
}

func (p *Parser) extractLinks(doc *goquery.Document, base *url.URL, baseDomain string, signals *seo.PageSignals) {
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolveURL(base, strings.TrimSpace(href))
		if resolved == "" {
			return
		}
		target, err := url.Parse(resolved)
		if err != nil {
			return
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}
		target.Fragment = ""
		resolved = target.String()
		if seen[resolved] {
			return
		}
		seen[resolved] = true

		link := seo.Link{URL: resolved, AnchorText: cleanText(s.Text())}
		if seo.SameDomain(resolved, baseDomain) {
			signals.InternalLinks = append(signals.InternalLinks, link)
		} else {
			signals.ExternalLinks = append(signals.ExternalLinks, link)
		}
	})
}

func (p *Parser) extractImages(doc *goquery.Document, base *url.URL, signals *seo.PageSignals) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			return
		}
		src, _ := s.Attr("src")
		resolved := resolveURL(base, strings.TrimSpace(src))
		if resolved == "" {
			return
		}
		signals.ImagesMissingAlt = append(signals.ImagesMissingAlt, resolved)
	})
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if !parsed.IsAbs() {
		return ""
	}
	return parsed.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

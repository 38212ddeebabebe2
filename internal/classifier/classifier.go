// Package classifier scores raw extracted links and upserts them into the
// link registry. Classification is deterministic: URL path patterns plus
// domain heuristics, no learned model.
package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/knowvault/linkcycle/internal/links"
)

// trustedDomains raise confidence by +0.2 (capped at 1.0).
var trustedDomains = map[string]struct{}{
	"github.com":            {},
	"stackoverflow.com":     {},
	"developer.mozilla.org": {},
	"go.dev":                {},
	"pkg.go.dev":            {},
	"docs.python.org":       {},
	"kubernetes.io":         {},
	"medium.com":            {},
	"dev.to":                {},
}

// relevanceKeywords each add +0.1 when present in the surrounding context.
var relevanceKeywords = []string{
	"tutorial", "guide", "documentation", "api", "reference", "example",
	"blog", "article", "news", "update", "release", "feature",
}

// pathRule maps a URL path fragment to a base classification.
type pathRule struct {
	fragment   string
	kind       links.ContentType
	confidence float64
}

// Ordered: first match wins, more specific fragments first.
var pathRules = []pathRule{
	{"/docs/", links.ContentTypeDocumentation, 0.9},
	{"/documentation", links.ContentTypeDocumentation, 0.9},
	{"/api/", links.ContentTypeAPI, 0.9},
	{"/reference", links.ContentTypeAPI, 0.8},
	{"/tutorial", links.ContentTypeTutorial, 0.8},
	{"/guide", links.ContentTypeTutorial, 0.7},
	{"/blog/", links.ContentTypeBlog, 0.8},
	{"/news/", links.ContentTypeNews, 0.8},
	{"/wiki/", links.ContentTypeWiki, 0.7},
	{"/forum", links.ContentTypeForum, 0.6},
}

var hostPrefixRules = []pathRule{
	{"docs.", links.ContentTypeDocumentation, 0.9},
	{"api.", links.ContentTypeAPI, 0.9},
	{"blog.", links.ContentTypeBlog, 0.8},
	{"news.", links.ContentTypeNews, 0.8},
	{"wiki.", links.ContentTypeWiki, 0.7},
	{"forum.", links.ContentTypeForum, 0.6},
}

const (
	baseUnknownConfidence   = 0.4
	malformedConfidence     = 0.1
	trustedDomainBoost      = 0.2
	keywordBoost            = 0.1
	maxConfidence           = 1.0
	contextSnippetMaxLength = 160
)

// Classify derives a candidate's content type and base confidence from its
// URL alone. Malformed URLs are not an error: they come back as unknown
// with confidence 0.1 and a diagnostic context string, so callers can skip
// them below any sane threshold.
func Classify(rawURL string) links.Candidate {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return links.Candidate{
			URL:         rawURL,
			ContentType: links.ContentTypeUnknown,
			Confidence:  malformedConfidence,
			Context:     fmt.Sprintf("malformed url: %q", rawURL),
		}
	}

	host := strings.ToLower(parsed.Hostname())
	path := strings.ToLower(parsed.Path)

	kind, confidence := baseClassification(host, path)

	if isTrustedDomain(host) {
		confidence = capConfidence(confidence + trustedDomainBoost)
	}

	return links.Candidate{
		URL:         rawURL,
		ContentType: kind,
		Confidence:  confidence,
	}
}

// BoostFromContext raises a candidate's confidence by +0.1 per distinct
// relevance keyword found in the surrounding text, capped at 1.0.
func BoostFromContext(c links.Candidate, context string) links.Candidate {
	if context == "" {
		return c
	}
	lower := strings.ToLower(context)
	for _, kw := range relevanceKeywords {
		if strings.Contains(lower, kw) {
			c.Confidence = capConfidence(c.Confidence + keywordBoost)
		}
	}
	c.Context = snippet(context)
	return c
}

func baseClassification(host, path string) (links.ContentType, float64) {
	if host == "github.com" || strings.HasSuffix(host, ".github.com") || host == "gist.github.com" {
		return links.ContentTypeGitHub, 0.9
	}
	if host == "stackoverflow.com" || strings.HasSuffix(host, ".stackoverflow.com") || host == "stackexchange.com" {
		return links.ContentTypeStackOverflow, 0.9
	}
	for _, rule := range pathRules {
		if strings.Contains(path, rule.fragment) {
			return rule.kind, rule.confidence
		}
	}
	for _, rule := range hostPrefixRules {
		if strings.HasPrefix(host, rule.fragment) {
			return rule.kind, rule.confidence
		}
	}
	return links.ContentTypeUnknown, baseUnknownConfidence
}

func isTrustedDomain(host string) bool {
	if _, ok := trustedDomains[host]; ok {
		return true
	}
	// Subdomains of a trusted domain inherit trust.
	for domain := range trustedDomains {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func capConfidence(c float64) float64 {
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

func snippet(context string) string {
	trimmed := strings.TrimSpace(context)
	if len(trimmed) <= contextSnippetMaxLength {
		return trimmed
	}
	return trimmed[:contextSnippetMaxLength]
}

package scraper

import (
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/knowvault/linkcycle/internal/links"
)

const (
	maxImages = 10
	maxLinks  = 20
	maxVideos = 10
)

// boilerplateSelector matches elements stripped before content
// conversion.
const boilerplateSelector = "nav, header, footer, aside, script, style, noscript, iframe, form"

var videoHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"dailymotion.com",
	"twitch.tv",
}

// extractTitle resolves the page title in preference order: social
// preview tags, document title, first heading.
func extractTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[name="twitter:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.Find("h1").First().Text()); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.Find("h2").First().Text()); v != "" {
		return v
	}
	return "Untitled"
}

// extractContent strips boilerplate and converts the main content region
// to normalized markdown. Falls back to the cleaned plain text when no
// HTML structure survives conversion.
func extractContent(doc *goquery.Document, pageURL string) string {
	clean := cleanedBody(doc)

	html, err := clean.Html()
	if err == nil && strings.TrimSpace(html) != "" {
		conv := md.NewConverter(pageURL, true, nil)
		if markdown, err := conv.ConvertString(html); err == nil {
			if trimmed := strings.TrimSpace(markdown); trimmed != "" {
				return trimmed
			}
		}
	}
	return normalizeWhitespace(clean.Text())
}

// cleanedBody returns the preferred content region with boilerplate and
// ad containers removed. The document is cloned so later extraction
// passes still see the full DOM.
func cleanedBody(doc *goquery.Document) *goquery.Selection {
	root := doc.Selection.Clone()
	root.Find(boilerplateSelector).Remove()
	root.Find(`[class*="ad-"], [class*="advert"], [id*="advert"]`).Remove()

	for _, sel := range []string{"main", "article", `[role="main"]`, "#content", ".content"} {
		if region := root.Find(sel).First(); region.Length() > 0 {
			return region
		}
	}
	if body := root.Find("body").First(); body.Length() > 0 {
		return body
	}
	return root
}

// extractMetadata collects standard, OpenGraph, Twitter and article tags.
func extractMetadata(doc *goquery.Document) links.PageMetadata {
	meta := links.PageMetadata{
		OpenGraph: map[string]string{},
		Twitter:   map[string]string{},
		Article:   map[string]string{},
	}

	meta.Description, _ = doc.Find(`meta[name="description"]`).Attr("content")
	meta.Author, _ = doc.Find(`meta[name="author"]`).Attr("content")
	meta.Language, _ = doc.Find("html").Attr("lang")
	meta.Canonical, _ = doc.Find(`link[rel="canonical"]`).Attr("href")

	if raw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, kw := range strings.Split(raw, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				meta.Keywords = append(meta.Keywords, kw)
			}
		}
	}

	doc.Find("meta[property], meta[name]").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		key, _ := s.Attr("property")
		if key == "" {
			key, _ = s.Attr("name")
		}
		switch {
		case strings.HasPrefix(key, "og:"):
			meta.OpenGraph[strings.TrimPrefix(key, "og:")] = content
		case strings.HasPrefix(key, "twitter:"):
			meta.Twitter[strings.TrimPrefix(key, "twitter:")] = content
		case strings.HasPrefix(key, "article:"):
			meta.Article[strings.TrimPrefix(key, "article:")] = content
		}
	})

	if meta.Description == "" {
		meta.Description = meta.OpenGraph["description"]
	}
	return meta
}

// extractImages returns absolute image URLs, excluding tracking pixels,
// deduplicated and capped.
func extractImages(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var images []string

	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if isTrackingPixel(s) {
			return true
		}
		abs := absoluteURL(base, src)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		images = append(images, abs)
		return len(images) < maxImages
	})
	return images
}

func isTrackingPixel(s *goquery.Selection) bool {
	w, _ := s.Attr("width")
	h, _ := s.Attr("height")
	if w == "1" || h == "1" || w == "0" || h == "0" {
		return true
	}
	src, _ := s.Attr("src")
	lower := strings.ToLower(src)
	return strings.Contains(lower, "pixel") || strings.Contains(lower, "tracker")
}

// extractLinks returns absolute http(s) links, deduplicated and capped.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		abs := absoluteURL(base, href)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		return len(out) < maxLinks
	})
	return out
}

// extractVideos collects video elements, platform embeds and links to
// known video hosts.
func extractVideos(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(raw string) bool {
		abs := absoluteURL(base, raw)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
		return len(out) < maxVideos
	}

	doc.Find("video[src], video source[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		return add(src)
	})
	if len(out) >= maxVideos {
		return out
	}

	doc.Find("iframe[src], a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, ok := s.Attr("src")
		if !ok {
			raw, _ = s.Attr("href")
		}
		if !isVideoHost(raw) {
			return true
		}
		return add(raw)
	})
	if len(out) >= maxVideos {
		return out
	}

	doc.Find("[data-video-url], [data-video-src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, ok := s.Attr("data-video-url")
		if !ok {
			raw, _ = s.Attr("data-video-src")
		}
		return add(raw)
	})
	return out
}

func isVideoHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	for _, vh := range videoHosts {
		if host == vh || strings.HasSuffix(host, "."+vh) {
			return true
		}
	}
	return false
}

// absoluteURL resolves raw against base and keeps only http(s) results.
func absoluteURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// countWords counts whitespace-separated tokens in cleaned text.
func countWords(text string) int {
	return len(strings.Fields(text))
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

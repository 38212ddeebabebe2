package links

import "time"

// Default scrape intervals by content type. News churns hourly, blogs
// daily, reference material weekly, tutorials and wikis monthly.
const (
	intervalNews          = time.Hour
	intervalBlog          = 24 * time.Hour
	intervalDocumentation = 7 * 24 * time.Hour
	intervalTutorial      = 30 * 24 * time.Hour
	intervalDefault       = 24 * time.Hour
)

// DefaultInterval returns the scrape interval assigned to a link on first
// discovery, keyed by content type.
func DefaultInterval(ct ContentType) time.Duration {
	switch ct {
	case ContentTypeNews:
		return intervalNews
	case ContentTypeBlog:
		return intervalBlog
	case ContentTypeDocumentation, ContentTypeAPI:
		return intervalDocumentation
	case ContentTypeTutorial, ContentTypeWiki:
		return intervalTutorial
	default:
		return intervalDefault
	}
}

// SettleDelay is the fixed wait after navigation that lets dynamic content
// render before extraction, keyed by content type.
func SettleDelay(ct ContentType) time.Duration {
	switch ct {
	case ContentTypeDocumentation, ContentTypeAPI:
		return 4 * time.Second
	case ContentTypeBlog:
		return 3 * time.Second
	default:
		return 2 * time.Second
	}
}

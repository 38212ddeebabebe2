package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/knowvault/linkcycle/internal/links"
)

func TestClassifyPathPatterns(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		url  string
		kind links.ContentType
		conf float64
	}{
		{"docs path", "https://example.com/docs/setup", links.ContentTypeDocumentation, 0.9},
		{"api path", "https://example.com/api/v2/users", links.ContentTypeAPI, 0.9},
		{"blog path", "https://example.com/blog/launch", links.ContentTypeBlog, 0.8},
		{"news path", "https://example.com/news/today", links.ContentTypeNews, 0.8},
		{"tutorial path", "https://example.com/tutorials/intro", links.ContentTypeTutorial, 0.8},
		{"wiki path", "https://example.com/wiki/Page", links.ContentTypeWiki, 0.7},
		{"forum path", "https://example.com/forum/thread/1", links.ContentTypeForum, 0.6},
		{"docs subdomain", "https://docs.example.com/setup", links.ContentTypeDocumentation, 0.9},
		{"blog subdomain", "https://blog.example.com/post", links.ContentTypeBlog, 0.8},
		{"plain page", "https://example.com/about", links.ContentTypeUnknown, 0.4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := Classify(tc.url)
			require.Equal(t, tc.kind, c.ContentType)
			require.InDelta(t, tc.conf, c.Confidence, 1e-9)
		})
	}
}

func TestClassifyDomainHeuristics(t *testing.T) {
	t.Parallel()

	gh := Classify("https://github.com/knowvault/linkcycle")
	require.Equal(t, links.ContentTypeGitHub, gh.ContentType)
	// Base 0.9 plus trusted-domain boost, capped at 1.0.
	require.InDelta(t, 1.0, gh.Confidence, 1e-9)

	so := Classify("https://stackoverflow.com/questions/1")
	require.Equal(t, links.ContentTypeStackOverflow, so.ContentType)
	require.InDelta(t, 1.0, so.Confidence, 1e-9)

	mdn := Classify("https://developer.mozilla.org/en-US/play")
	require.InDelta(t, 0.6, mdn.Confidence, 1e-9, "trusted domain boosts unknown base")
}

func TestClassifyMalformedURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"not a url at all", "://missing-scheme", "relative/path"} {
		c := Classify(raw)
		require.Equal(t, links.ContentTypeUnknown, c.ContentType)
		require.InDelta(t, 0.1, c.Confidence, 1e-9)
		require.Contains(t, c.Context, "malformed url")
	}
}

func TestBoostFromContextCountsDistinctKeywords(t *testing.T) {
	t.Parallel()

	c := links.Candidate{URL: "https://example.com/about", Confidence: 0.4}

	boosted := BoostFromContext(c, "A complete tutorial and reference guide")
	// tutorial + reference + guide: three distinct keywords.
	require.InDelta(t, 0.7, boosted.Confidence, 1e-9)

	// Repeats of the same keyword only count once.
	repeated := BoostFromContext(c, "tutorial tutorial tutorial")
	require.InDelta(t, 0.5, repeated.Confidence, 1e-9)

	// Boost is capped at 1.0.
	everything := BoostFromContext(
		links.Candidate{Confidence: 0.9},
		"tutorial guide documentation api reference example blog article news update release feature",
	)
	require.InDelta(t, 1.0, everything.Confidence, 1e-9)
}

func TestBoostFromContextSnippetsLongContext(t *testing.T) {
	t.Parallel()

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	boosted := BoostFromContext(links.Candidate{Confidence: 0.4}, string(long))
	require.Len(t, boosted.Context, 160)
}

package robots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyAndGarbage(t *testing.T) {
	inputs := []string{
		"",
		"\n\n\n",
		"# only a comment",
		"this is not robots.txt at all",
		"::::",
		"Disallow: /orphan",
		"\x00\x01\x02 binary-ish",
	}
	for _, in := range inputs {
		data := Parse(in)
		assert.NotNil(t, data.Agents, "input %q", in)
		assert.Empty(t, data.Agents, "input %q", in)
		assert.Empty(t, data.Sitemaps, "input %q", in)
	}
}

func TestParse_GroupsAndDirectives(t *testing.T) {
	text := `# Example
User-agent: *
Disallow: /private
Allow: /private/public
Crawl-delay: 2.5

User-agent: BadBot
Disallow: /

Sitemap: https://ex.com/sitemap.xml
`
	data := Parse(text)

	require.Contains(t, data.Agents, "*")
	star := data.Agents["*"]
	assert.Equal(t, []string{"/private"}, star.Disallow)
	assert.Equal(t, []string{"/private/public"}, star.Allow)
	require.NotNil(t, star.CrawlDelay)
	assert.InDelta(t, 2.5, *star.CrawlDelay, 1e-9)

	require.Contains(t, data.Agents, "badbot", "agent keys are lowercase")
	assert.Equal(t, []string{"/"}, data.Agents["badbot"].Disallow)
	assert.Nil(t, data.Agents["badbot"].CrawlDelay)

	assert.Equal(t, []string{"https://ex.com/sitemap.xml"}, data.Sitemaps)
}

func TestParse_ConsecutiveUserAgentsShareGroup(t *testing.T) {
	text := `User-agent: alpha
User-agent: beta
Disallow: /shared
Crawl-delay: 4

User-agent: gamma
Disallow: /gamma-only
`
	data := Parse(text)

	for _, agent := range []string{"alpha", "beta"} {
		rules := data.Agents[agent]
		assert.Equal(t, []string{"/shared"}, rules.Disallow, agent)
		require.NotNil(t, rules.CrawlDelay, agent)
		assert.Equal(t, 4.0, *rules.CrawlDelay, agent)
	}
	assert.Equal(t, []string{"/gamma-only"}, data.Agents["gamma"].Disallow)
	assert.Nil(t, data.Agents["gamma"].CrawlDelay)
}

func TestParse_CaseInsensitiveDirectivesAndWhitespace(t *testing.T) {
	text := "USER-AGENT:   MyBot  \r\nDISALLOW :  /tmp  \r\nallow:/tmp/ok\r\n"
	data := Parse(text)

	rules, ok := data.Agents["mybot"]
	require.True(t, ok)
	assert.Equal(t, []string{"/tmp"}, rules.Disallow)
	assert.Equal(t, []string{"/tmp/ok"}, rules.Allow)
}

func TestParse_InvalidCrawlDelayIgnored(t *testing.T) {
	for _, value := range []string{"abc", "-1", "NaN", "Inf", ""} {
		data := Parse("User-agent: *\nCrawl-delay: " + value + "\n")
		assert.Nil(t, data.Agents["*"].CrawlDelay, "Crawl-delay: %q", value)
	}
}

func TestParse_ZeroCrawlDelayKept(t *testing.T) {
	data := Parse("User-agent: *\nCrawl-delay: 0\n")
	require.NotNil(t, data.Agents["*"].CrawlDelay)
	assert.Equal(t, 0.0, *data.Agents["*"].CrawlDelay)
}

func TestParse_InlineCommentsStripped(t *testing.T) {
	data := Parse("User-agent: * # everyone\nDisallow: /a # not /b\n")
	assert.Equal(t, []string{"/a"}, data.Agents["*"].Disallow)
}

func TestParse_SitemapsAccumulateAcrossGroups(t *testing.T) {
	text := `Sitemap: https://ex.com/a.xml
User-agent: *
Sitemap: https://ex.com/b.xml
Disallow: /x
Sitemap: https://ex.com/a.xml
`
	data := Parse(text)
	assert.Equal(t, []string{"https://ex.com/a.xml", "https://ex.com/b.xml", "https://ex.com/a.xml"}, data.Sitemaps)
	assert.Equal(t, data.Sitemaps, SitemapURLs(text))
}

func TestParse_ByteOrderMark(t *testing.T) {
	data := Parse("\ufeffUser-agent: *\nDisallow: /x\n")
	assert.Equal(t, []string{"/x"}, data.Agents["*"].Disallow)
}

func TestRulesFor(t *testing.T) {
	data := Parse(`User-agent: *
Disallow: /all

User-agent: mybot
Disallow: /mine
`)

	assert.Equal(t, []string{"/mine"}, RulesFor(data, "MyBot").Disallow, "exact match is case-insensitive")
	assert.Equal(t, []string{"/all"}, RulesFor(data, "otherbot").Disallow, "falls back to *")

	empty := RulesFor(Parse("User-agent: mybot\nDisallow: /mine\n"), "otherbot")
	assert.Empty(t, empty.Disallow)
	assert.Empty(t, empty.Allow)
	assert.Nil(t, empty.CrawlDelay)
}

func TestIsAllowed_LongestMatchWins(t *testing.T) {
	rules := Rules{Disallow: []string{"/a"}, Allow: []string{"/a/public"}}

	assert.True(t, IsAllowed(rules, "/a/public/x"))
	assert.False(t, IsAllowed(rules, "/a/private"))
	assert.False(t, IsAllowed(rules, "/a"))
	assert.True(t, IsAllowed(rules, "/b"))
}

func TestIsAllowed_Cases(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		path  string
		want  bool
	}{
		{"no rules", Rules{}, "/anything", true},
		{"empty disallow never matches", Rules{Disallow: []string{""}}, "/anything", true},
		{"root disallow", Rules{Disallow: []string{"/"}}, "/anything", false},
		{"tie prefers allow", Rules{Disallow: []string{"/page"}, Allow: []string{"/page"}}, "/page.html", true},
		{"longer disallow beats allow", Rules{Disallow: []string{"/docs/internal"}, Allow: []string{"/docs"}}, "/docs/internal/x", false},
		{"allow without disallow", Rules{Allow: []string{"/x"}}, "/y", true},
		{"non-prefix entries ignored", Rules{Disallow: []string{"/admin"}}, "/user/admin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(tt.rules, tt.path))
		})
	}
}

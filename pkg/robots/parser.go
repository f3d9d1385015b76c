// Package robots parses robots.txt files and evaluates path rules against them.
package robots

import (
	"bufio"
	"math"
	"strconv"
	"strings"
)

// WildcardAgent is the group key used when no group matches the caller's agent.
const WildcardAgent = "*"

// Rules holds the directives of one user-agent group. Treat as immutable once parsed.
type Rules struct {
	CrawlDelay *float64 // Seconds; nil when the group declares no usable Crawl-delay
	Disallow   []string // Path prefixes, in file order
	Allow      []string // Path prefixes, in file order
}

// Data is the parsed content of a robots.txt file.
type Data struct {
	Agents   map[string]Rules // Lowercase user-agent token -> rules
	Sitemaps []string         // Sitemap URLs in file order, not deduplicated
}

// Parse converts robots.txt text into Data. It never fails: malformed lines are
// skipped and empty or garbage input yields empty (but non-nil) Data.
func Parse(text string) Data {
	groups := make(map[string]*Rules)
	data := Data{Agents: make(map[string]Rules)}

	var current []*Rules // rule sets of the group being filled
	agentRun := false    // previous meaningful line was User-agent

	scanner := bufio.NewScanner(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		switch directive {
		case "user-agent":
			if !agentRun {
				current = current[:0]
			}
			agentRun = true
			agent := strings.ToLower(value)
			if agent == "" {
				continue
			}
			rules, exists := groups[agent]
			if !exists {
				rules = &Rules{}
				groups[agent] = rules
			}
			current = append(current, rules)
		case "disallow":
			agentRun = false
			for _, r := range current {
				r.Disallow = append(r.Disallow, value)
			}
		case "allow":
			agentRun = false
			for _, r := range current {
				r.Allow = append(r.Allow, value)
			}
		case "crawl-delay":
			agentRun = false
			delay, valid := parseDelay(value)
			if !valid {
				continue
			}
			for _, r := range current {
				d := delay
				r.CrawlDelay = &d
			}
		case "sitemap":
			if value != "" {
				data.Sitemaps = append(data.Sitemaps, value)
			}
		}
	}
	// A scanner error (line over 1MB) just truncates the parse.

	for agent, rules := range groups {
		data.Agents[agent] = *rules
	}
	return data
}

// SitemapURLs returns only the Sitemap directives of a robots.txt file.
func SitemapURLs(text string) []string {
	return Parse(text).Sitemaps
}

// RulesFor selects the rules for agent: an exact case-insensitive group match,
// else the "*" group, else empty rules (allow all, no delay).
func RulesFor(data Data, agent string) Rules {
	if rules, ok := data.Agents[strings.ToLower(strings.TrimSpace(agent))]; ok {
		return rules
	}
	if rules, ok := data.Agents[WildcardAgent]; ok {
		return rules
	}
	return Rules{}
}

// IsAllowed applies longest-match-wins between Allow and Disallow prefixes.
// Ties go to Allow, empty values never match, and no match means allowed.
func IsAllowed(rules Rules, path string) bool {
	longestDisallow := longestPrefix(rules.Disallow, path)
	if longestDisallow < 0 {
		return true
	}
	return longestPrefix(rules.Allow, path) >= longestDisallow
}

// longestPrefix returns the length of the longest non-empty entry that prefixes path, or -1.
func longestPrefix(entries []string, path string) int {
	best := -1
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if strings.HasPrefix(path, entry) && len(entry) > best {
			best = len(entry)
		}
	}
	return best
}

func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

func parseDelay(value string) (float64, bool) {
	delay, err := strconv.ParseFloat(value, 64)
	if err != nil || delay < 0 || math.IsNaN(delay) || math.IsInf(delay, 0) {
		return 0, false
	}
	return delay, true
}

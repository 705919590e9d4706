package adapter

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// Tags become spaces so adjacent block elements do not run together, then
// whitespace is collapsed.
func extractText(content string) string {
	plain := htmlTagRegex.ReplaceAllString(content, " ")
	return strings.Join(strings.Fields(html.UnescapeString(plain)), " ")
}

// cleanText collapses whitespace in s.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstText returns the cleaned text of the first selector that matches a
// non-empty element.
func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := cleanText(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstAttr returns attr of the first selector that matches with a non-empty value.
func firstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var relativeAgeRegex = regexp.MustCompile(`(?i)(\d+)\s*(minute|min|hour|hr|day|week|month|year)s?`)

// parseRelativeTime resolves text like "3 days ago" against now.
// Returns nil when the text has no recognizable age.
func parseRelativeTime(text string, now time.Time) *time.Time {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "just now") || strings.Contains(lower, "moments ago") {
		return &now
	}
	m := relativeAgeRegex.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	var t time.Time
	switch m[2] {
	case "minute", "min":
		t = now.Add(-time.Duration(n) * time.Minute)
	case "hour", "hr":
		t = now.Add(-time.Duration(n) * time.Hour)
	case "day":
		t = now.AddDate(0, 0, -n)
	case "week":
		t = now.AddDate(0, 0, -7*n)
	case "month":
		t = now.AddDate(0, -n, 0)
	case "year":
		t = now.AddDate(-n, 0, 0)
	default:
		return nil
	}
	return &t
}

package adapter

import (
	"testing"
	"time"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"&lt;p&gt;Encoded&lt;/p&gt; &amp; more", "<p>Encoded</p> & more"},
		{"<ul><li>Go</li><li>SQL</li></ul>", "Go SQL"},
		{"  plain   text \n", "plain text"},
	}
	for _, tt := range tests {
		if got := extractText(tt.in); got != tt.want {
			t.Errorf("extractText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		text string
		want time.Time
		ok   bool
	}{
		{"3 days ago", now.AddDate(0, 0, -3), true},
		{"Reposted 1 week ago", now.AddDate(0, 0, -7), true},
		{"2 hours ago", now.Add(-2 * time.Hour), true},
		{"45 minutes ago", now.Add(-45 * time.Minute), true},
		{"1 month ago", now.AddDate(0, -1, 0), true},
		{"Just now", now, true},
		{"Be an early applicant", time.Time{}, false},
	}
	for _, tt := range tests {
		got := parseRelativeTime(tt.text, now)
		if !tt.ok {
			if got != nil {
				t.Errorf("parseRelativeTime(%q) = %v, want nil", tt.text, *got)
			}
			continue
		}
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("parseRelativeTime(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

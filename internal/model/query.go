package model

import (
	"fmt"
	"strings"
)

// TimeWindow restricts discovery to postings newer than a fixed age.
type TimeWindow string

const (
	WindowHour  TimeWindow = "1h"
	WindowDay   TimeWindow = "24h"
	WindowWeek  TimeWindow = "7d"
	WindowMonth TimeWindow = "30d"
	WindowAny   TimeWindow = "any"
)

// windowCodes maps each window to the listing site's f_TPR filter value.
var windowCodes = map[TimeWindow]string{
	WindowHour:  "r3600",
	WindowDay:   "r86400",
	WindowWeek:  "r604800",
	WindowMonth: "r2592000",
	WindowAny:   "",
}

// ParseTimeWindow accepts "1h", "24h", "7d", "30d" or "any" (empty means any).
func ParseTimeWindow(s string) (TimeWindow, error) {
	w := TimeWindow(strings.ToLower(strings.TrimSpace(s)))
	if w == "" {
		return WindowAny, nil
	}
	if _, ok := windowCodes[w]; !ok {
		return "", fmt.Errorf("unknown time window %q (want 1h, 24h, 7d, 30d or any)", s)
	}
	return w, nil
}

// FilterCode returns the external filter code, empty for WindowAny.
func (w TimeWindow) FilterCode() string {
	return windowCodes[w]
}

// Query holds the inbound search parameters for one run.
type Query struct {
	Keywords string
	Location string
	Window   TimeWindow
	Limit    int
	Remote   bool // restrict to remote postings
	PartTime bool // restrict to part-time postings
}

// Key is the originating-query key stored on each posting. Limit and Window
// only bound how much is discovered, so they are not part of it.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(NormalizeEmployerName(q.Keywords))
	b.WriteByte('|')
	b.WriteString(NormalizeEmployerName(q.Location))
	if q.Remote {
		b.WriteString("|remote")
	}
	if q.PartTime {
		b.WriteString("|part-time")
	}
	return b.String()
}

func (q Query) String() string {
	return fmt.Sprintf("%q in %q (window=%s, limit=%d)", q.Keywords, q.Location, q.Window, q.Limit)
}

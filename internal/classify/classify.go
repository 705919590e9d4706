// Package classify derives a posting's work arrangement from its location and
// description text.
package classify

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobscout/internal/model"
)

var (
	remoteKeywords = []string{
		"remote", "work from home", "work-from-home", "wfh", "fully remote", "distributed",
	}
	// hybridKeywords mean Hybrid with or without a remote keyword.
	hybridKeywords = []string{"hybrid", "flexible", "remote optional", "remote-optional"}
	onsiteKeywords = []string{"on-site", "onsite", "in-office", "office-based"}
)

var (
	remoteRe = keywordRegexp(remoteKeywords)
	hybridRe = keywordRegexp(hybridKeywords)
	onsiteRe = keywordRegexp(onsiteKeywords)
)

// placeholderLocations never name a physical place.
var placeholderLocations = map[string]bool{
	"":                 true,
	"-":                true,
	"n/a":              true,
	"na":               true,
	"none":             true,
	"unknown":          true,
	"unknown location": true,
	"not specified":    true,
	"tbd":              true,
}

// keywordRegexp builds a case-insensitive, word-bounded alternation.
func keywordRegexp(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classify returns the work type for a posting. It is total and deterministic.
//
// Keywords are checked in fixed order: remote first, upgraded to Hybrid when
// hybrid language appears alongside it; then hybrid
// alone; then explicit on-site phrases. With no keyword at all, a location
// naming a physical place means OnSite and anything else is Unknown.
func Classify(locationText, bodyText string) model.WorkType {
	text := locationText + "\n" + bodyText

	remote := remoteRe.MatchString(text)
	hybrid := hybridRe.MatchString(text)

	switch {
	case remote && hybrid:
		return model.WorkTypeHybrid
	case remote:
		return model.WorkTypeRemote
	case hybrid:
		return model.WorkTypeHybrid
	case onsiteRe.MatchString(text):
		return model.WorkTypeOnSite
	case namesPlace(locationText):
		return model.WorkTypeOnSite
	default:
		return model.WorkTypeUnknown
	}
}

func namesPlace(location string) bool {
	loc := strings.ToLower(strings.Join(strings.Fields(location), " "))
	return !placeholderLocations[loc]
}

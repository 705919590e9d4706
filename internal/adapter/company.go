package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobscout/internal/model"
)

// ErrNoCompanyData is returned when a company page was fetched but none of
// the profile fields could be found on it.
var ErrNoCompanyData = errors.New("no company profile data on page")

var (
	employeesRegex = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})*(?:\s*-\s*\d{1,3}(?:,\d{3})*)?\+?)\s+employees?`)
	followersRegex = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*([KMB])?\s+followers?`)
)

var industrySelectors = []string{
	".org-top-card-summary__industry",
	"[data-test='company-industry']",
	"[data-test-id='about-us__industry'] dd",
	".top-card-layout__first-subline .top-card-layout__headline",
}

// FetchCompany downloads the company profile of name and returns the fields
// observed on it. Only Name, DisplayName and the observed fields are set; the
// caller merges them into the stored row. profileURL may be empty, in which
// case the URL is guessed from the name.
func (l *LinkedIn) FetchCompany(ctx context.Context, name, profileURL string) (model.Employer, error) {
	target := profileURL
	if target == "" {
		target = l.companyURL(name)
	}
	body, _, err := l.fetcher.Fetch(ctx, target, model.PageCompany, pageHeaders[model.PageCompany])
	if err != nil {
		return model.Employer{}, fmt.Errorf("fetching company page for %q: %w", name, err)
	}

	observed, err := parseCompanyPage(body)
	if err != nil {
		return model.Employer{}, fmt.Errorf("parsing company page for %q: %w", name, err)
	}
	observed.Name = model.NormalizeEmployerName(name)
	if observed.SizeText == nil && observed.Followers == nil && observed.Industry == nil {
		return model.Employer{}, fmt.Errorf("company page for %q: %w", name, ErrNoCompanyData)
	}
	observed.ProfileURL = &target
	return observed, nil
}

// parseCompanyPage extracts size, follower count and industry from a company
// profile page. Missing fields stay nil.
func parseCompanyPage(body []byte) (model.Employer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Employer{}, err
	}
	var e model.Employer
	e.DisplayName = firstText(doc.Selection, "h1.top-card-layout__title", "h1")

	text := cleanText(doc.Find("body").Text())
	if m := employeesRegex.FindStringSubmatch(text); m != nil {
		size := strings.Join(strings.Fields(m[1]), "") + " employees"
		e.SizeText = &size
	}
	e.Followers = ParseFollowers(text)

	for _, sel := range industrySelectors {
		if ind := cleanText(doc.Find(sel).First().Text()); len(ind) > 2 {
			e.Industry = &ind
			break
		}
	}
	return e, nil
}

// ParseFollowers finds a follower count in text such as "10,274,592 followers"
// or "12K followers" and returns it as an integer. It returns nil when text
// has no follower count.
func ParseFollowers(text string) *int64 {
	m := followersRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		f *= 1e3
	case "M":
		f *= 1e6
	case "B":
		f *= 1e9
	}
	n := int64(math.Round(f))
	return &n
}

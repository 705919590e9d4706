package adapter

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/amishk599/jobscout/internal/model"
)

var titleSelectors = []string{
	".top-card-layout__title",
	"h2.topcard__title",
	".topcard__title",
	".top-card-layout__entity-info a",
	"h1",
}

var companyLinkSelectors = []string{
	".topcard__org-name-link",
	"a[data-tracking-control-name='public_jobs_topcard-org-name']",
	".top-card-layout__card a[href*='/company/']",
	"a[href*='/company/']",
}

// Extract fetches the detail page of one posting and parses it. Every error
// is a *model.ExtractionFailure; the returned posting has no Query, RunID or
// WorkType set, those belong to the caller.
func (l *LinkedIn) Extract(ctx context.Context, externalID string) (model.Posting, error) {
	source := l.detailURL(externalID)
	body, _, err := l.fetcher.Fetch(ctx, source, model.PageDetail, pageHeaders[model.PageDetail])
	if err != nil {
		return model.Posting{}, &model.ExtractionFailure{ExternalID: externalID, Reason: "fetching detail page", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return model.Posting{}, &model.ExtractionFailure{ExternalID: externalID, Reason: "parsing detail page", Err: err}
	}

	p, ok := l.parsePosting(doc.Selection)
	if !ok {
		return model.Posting{}, &model.ExtractionFailure{ExternalID: externalID, Reason: "page structure unrecognized"}
	}
	p.ExternalID = externalID
	p.SourceURL = source
	return p, nil
}

// parsePosting reads the fields of a detail page. ok is false when the title,
// the only mandatory field besides the id, is missing.
func (l *LinkedIn) parsePosting(doc *goquery.Selection) (model.Posting, bool) {
	title := firstText(doc, titleSelectors...)
	if title == "" {
		return model.Posting{}, false
	}

	p := model.Posting{Title: title}

	p.EmployerName = firstText(doc, ".topcard__org-name-link", ".top-card-layout__second-subline a")
	if p.EmployerName == "" {
		p.EmployerName = firstAttr(doc, "alt", ".top-card-layout__card a img[alt]", ".top-card-layout__card img[alt]")
	}
	p.EmployerKey = model.NormalizeEmployerName(p.EmployerName)

	p.Location = optional(firstText(doc, ".topcard__flavor--bullet", ".top-card-layout__second-subline .topcard__flavor:not(.topcard__flavor--metadata)"))

	criteria := parseCriteria(doc)
	p.Seniority = optional(criteria["seniority level"])
	p.EmploymentType = optional(criteria["employment type"])
	p.JobFunction = optional(criteria["job function"])
	p.Industries = optional(criteria["industries"])

	if desc := doc.Find("div.description__text--rich, .show-more-less-html__markup, .description__text").First(); desc.Length() > 0 {
		markup, err := desc.Html()
		if err == nil {
			p.Body = extractText(markup)
		}
	}

	if posted := firstText(doc, "span.posted-time-ago__text", ".posted-time-ago__text"); posted != "" {
		p.PostedText = &posted
		p.PostedAt = parseRelativeTime(posted, l.now().UTC())
	}

	p.SalaryText = optional(firstText(doc, "div.compensation__salary-range .compensation__salary", ".salary.compensation__salary", ".compensation__salary"))
	p.ApplicantsText = optional(firstText(doc, "span.num-applicants__caption", "figcaption.num-applicants__caption", ".num-applicants__caption"))

	if href := firstAttr(doc, "href", "a.topcard__link"); href != "" {
		p.ListingURL = optional(l.absolute(href))
	}
	if href := firstAttr(doc, "href", companyLinkSelectors...); href != "" {
		if u := l.absolute(href); strings.Contains(u, companyPath) {
			p.CompanyURL = &u
		}
	}
	return p, true
}

// parseCriteria maps lower-cased criteria labels to their values.
func parseCriteria(doc *goquery.Selection) map[string]string {
	out := make(map[string]string)
	doc.Find("ul.description__job-criteria-list li, .description__job-criteria-item").Each(func(_ int, item *goquery.Selection) {
		label := cleanText(item.Find(".description__job-criteria-subheader, h3").First().Text())
		if label == "" {
			return
		}
		value := cleanText(item.Find(".description__job-criteria-text").First().Text())
		if full := cleanText(item.Text()); value == "" && len(full) > len(label) && strings.EqualFold(full[:len(label)], label) {
			value = strings.TrimSpace(full[len(label):])
		}
		key := strings.ToLower(label)
		if _, dup := out[key]; !dup && value != "" {
			out[key] = value
		}
	})
	return out
}

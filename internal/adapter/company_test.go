package adapter

import (
	"context"
	"errors"
	"testing"
)

func TestFetchCompany_ProfilePage(t *testing.T) {
	site := newFakeSite()
	site.companies["acme-corp"] = companyPage
	l := newTestLinkedIn(t, site, 0)

	e, err := l.FetchCompany(context.Background(), "Acme Corp", l.baseURL+"/company/acme-corp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Name != "acme corp" {
		t.Errorf("expected canonical name, got %q", e.Name)
	}
	if e.DisplayName != "Acme Corp" {
		t.Errorf("unexpected display name %q", e.DisplayName)
	}
	if e.Followers == nil || *e.Followers != 10274592 {
		t.Errorf("expected 10274592 followers, got %v", e.Followers)
	}
	if e.SizeText == nil || *e.SizeText != "1,001-5,000 employees" {
		t.Errorf("unexpected size %v", e.SizeText)
	}
	if e.Industry == nil || *e.Industry != "Software Development" {
		t.Errorf("unexpected industry %v", e.Industry)
	}
	if e.ProfileURL == nil || *e.ProfileURL != l.baseURL+"/company/acme-corp" {
		t.Errorf("unexpected profile url %v", e.ProfileURL)
	}
	if e.LastEnrichedAt != nil {
		t.Error("the adapter must not stamp enrichment time")
	}
}

func TestFetchCompany_GuessesURLFromName(t *testing.T) {
	site := newFakeSite()
	site.companies["acme-corp"] = companyPage
	l := newTestLinkedIn(t, site, 0)

	if _, err := l.FetchCompany(context.Background(), "ACME   corp", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if site.count(companyPath+"acme-corp") != 1 {
		t.Errorf("expected one request to the slug url, got %v", site.requests)
	}
}

func TestFetchCompany_NoProfileData(t *testing.T) {
	site := newFakeSite()
	site.companies["ghost"] = `<html><body><h1>Ghost Inc</h1><p>Nothing to see.</p></body></html>`
	l := newTestLinkedIn(t, site, 0)

	_, err := l.FetchCompany(context.Background(), "Ghost", "")
	if !errors.Is(err, ErrNoCompanyData) {
		t.Fatalf("expected ErrNoCompanyData, got %v", err)
	}
}

func TestFetchCompany_NotFound(t *testing.T) {
	site := newFakeSite()
	l := newTestLinkedIn(t, site, 0)

	_, err := l.FetchCompany(context.Background(), "Nobody", "")
	if err == nil {
		t.Fatal("expected error for missing company page")
	}
}

func TestParseFollowers(t *testing.T) {
	tests := []struct {
		text string
		want int64
		ok   bool
	}{
		{"10,274,592 followers", 10274592, true},
		{"Software Development · Austin · 1,234 followers on LinkedIn", 1234, true},
		{"12K followers", 12000, true},
		{"1.5M followers", 1500000, true},
		{"2B followers", 2000000000, true},
		{"950 follower", 950, true},
		{"no counts here", 0, false},
		{"500 employees", 0, false},
	}
	for _, tt := range tests {
		got := ParseFollowers(tt.text)
		if !tt.ok {
			if got != nil {
				t.Errorf("ParseFollowers(%q) = %d, want nil", tt.text, *got)
			}
			continue
		}
		if got == nil || *got != tt.want {
			t.Errorf("ParseFollowers(%q) = %v, want %d", tt.text, got, tt.want)
		}
	}
}

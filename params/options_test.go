package params

import (
	"testing"
	"time"

	"github.com/searchdeck/searchdeck/domain"
)

// ref is mid-April 2024, a Monday, so week and quarter bounds are easy to
// reason about in the assertions below.
var ref = time.Date(2024, time.April, 15, 10, 30, 0, 0, time.UTC)

func TestPeriodOptionDescriptions(t *testing.T) {
	options := PeriodOptions(ref)
	byID := make(map[string]Option, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}

	cases := map[string]string{
		"this_month":            "April",
		"last_month":            "March",
		"antepenultimate_month": "February",
		"this_year":             "2024",
		"last_year":             "2023",
		"antepenultimate_year":  "2022",
		"first_quarter":         "Q1",
	}
	for id, want := range cases {
		got, ok := byID[id]
		if !ok {
			t.Fatalf("missing option %s", id)
		}
		if got.Description != want {
			t.Errorf("option %s: expected description %q, got %q", id, want, got.Description)
		}
	}
}

func TestIsYearOption(t *testing.T) {
	for _, id := range []string{"this_year", "last_year", "antepenultimate_year"} {
		if !IsYearOption(id) {
			t.Errorf("%s should be a year option", id)
		}
	}
	for _, id := range []string{"this_month", "first_quarter", "unknown"} {
		if IsYearOption(id) {
			t.Errorf("%s should not be a year option", id)
		}
	}
}

func TestBasicDomainsYearBounds(t *testing.T) {
	domains := BasicDomainsFor("date_order", "date", ref)

	year, ok := domains["this_year"]
	if !ok {
		t.Fatal("missing this_year domain")
	}
	want := `["&",["date_order",">=","2024-01-01"],["date_order","<=","2024-12-31"]]`
	if got := domain.Serialize(year.Domain); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBasicDomainsCompoundMonthInYear(t *testing.T) {
	domains := BasicDomainsFor("date_order", "date", ref)

	compound, ok := domains["this_year__this_month"]
	if !ok {
		t.Fatal("missing this_year__this_month domain")
	}
	want := `["&",["date_order",">=","2024-04-01"],["date_order","<=","2024-04-30"]]`
	if got := domain.Serialize(compound.Domain); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if compound.Description != "April 2024" {
		t.Errorf("expected description \"April 2024\", got %q", compound.Description)
	}
}

func TestBasicDomainsCompoundMonthInPastYear(t *testing.T) {
	domains := BasicDomainsFor("date_order", "date", ref)

	compound, ok := domains["last_year__last_month"]
	if !ok {
		t.Fatal("missing last_year__last_month domain")
	}
	want := `["&",["date_order",">=","2023-03-01"],["date_order","<=","2023-03-31"]]`
	if got := domain.Serialize(compound.Domain); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBasicDomainsQuarterCompound(t *testing.T) {
	domains := BasicDomainsFor("date_order", "date", ref)

	compound, ok := domains["this_year__first_quarter"]
	if !ok {
		t.Fatal("missing this_year__first_quarter domain")
	}
	want := `["&",["date_order",">=","2024-01-01"],["date_order","<=","2024-03-31"]]`
	if got := domain.Serialize(compound.Domain); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBasicDomainsDatetimeFormatting(t *testing.T) {
	domains := BasicDomainsFor("create_date", "datetime", ref)
	compound := domains["this_year__this_month"]
	want := `["&",["create_date",">=","2024-04-01 00:00:00"],["create_date","<=","2024-04-30 23:59:59"]]`
	if got := domain.Serialize(compound.Domain); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestBasicDomainsKeyCount(t *testing.T) {
	domains := BasicDomainsFor("date_order", "date", ref)
	// 3 year options plus 3 years x 7 finer options.
	if len(domains) != 3+3*7 {
		t.Errorf("expected 24 precomputed domains, got %d", len(domains))
	}
}

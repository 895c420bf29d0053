// Package params holds the selectable option tables of the search panel:
// group-by intervals, date filter period generators and time range
// definitions, together with the date arithmetic that turns an option into a
// concrete field interval.
package params

import (
	"time"

	"github.com/searchdeck/searchdeck/domain"
)

// Granularity is the bucket size of a temporal option.
type Granularity string

const (
	GranYear    Granularity = "year"
	GranQuarter Granularity = "quarter"
	GranMonth   Granularity = "month"
	GranWeek    Granularity = "week"
	GranDay     Granularity = "day"
)

const (
	// DefaultInterval is the granularity a temporal group-by activates with.
	DefaultInterval = "month"
	// DefaultPeriod is the option a date filter activates with.
	DefaultPeriod = "this_month"
	// DefaultYear is the year-class option auto-selected when a finer
	// period is activated without a year scope.
	DefaultYear = "this_year"
)

// Option group numbers: finer (month/quarter) periods form group 1, the
// year-class anchors group 2. Date-bucket compound domains pair one option
// of each group.
const (
	PeriodGroupFine = 1
	PeriodGroupYear = 2
)

// Option is a selectable sub-option of a filter, with its description
// already resolved against the store's reference time.
type Option struct {
	ID          string
	Description string
	GroupNumber int
}

// IntervalOptions returns the group-by granularity options, coarsest first.
func IntervalOptions() []Option {
	return []Option{
		{ID: "year", Description: "Year"},
		{ID: "quarter", Description: "Quarter"},
		{ID: "month", Description: "Month"},
		{ID: "week", Description: "Week"},
		{ID: "day", Description: "Day"},
	}
}

// periodGenerator describes how one date filter option shifts the reference
// time. AddYears/AddMonths are relative offsets; SetQuarter pins the date to
// an absolute quarter of the (possibly shifted) year.
type periodGenerator struct {
	id          string
	groupNumber int
	granularity Granularity
	addYears    int
	addMonths   int
	setQuarter  int
	description string // empty means derived from the shifted date
}

var periodGenerators = []periodGenerator{
	{id: "this_month", groupNumber: PeriodGroupFine, granularity: GranMonth},
	{id: "last_month", groupNumber: PeriodGroupFine, granularity: GranMonth, addMonths: -1},
	{id: "antepenultimate_month", groupNumber: PeriodGroupFine, granularity: GranMonth, addMonths: -2},
	{id: "fourth_quarter", groupNumber: PeriodGroupFine, granularity: GranQuarter, setQuarter: 4, description: "Q4"},
	{id: "third_quarter", groupNumber: PeriodGroupFine, granularity: GranQuarter, setQuarter: 3, description: "Q3"},
	{id: "second_quarter", groupNumber: PeriodGroupFine, granularity: GranQuarter, setQuarter: 2, description: "Q2"},
	{id: "first_quarter", groupNumber: PeriodGroupFine, granularity: GranQuarter, setQuarter: 1, description: "Q1"},
	{id: "this_year", groupNumber: PeriodGroupYear, granularity: GranYear},
	{id: "last_year", groupNumber: PeriodGroupYear, granularity: GranYear, addYears: -1},
	{id: "antepenultimate_year", groupNumber: PeriodGroupYear, granularity: GranYear, addYears: -2},
}

// PeriodOptions returns the date filter options with descriptions resolved
// against the reference time (month names for month options, years for
// year-class options).
func PeriodOptions(ref time.Time) []Option {
	options := make([]Option, 0, len(periodGenerators))
	for _, gen := range periodGenerators {
		options = append(options, Option{
			ID:          gen.id,
			Description: gen.describe(ref),
			GroupNumber: gen.groupNumber,
		})
	}
	return options
}

// IsYearOption reports whether the option id is a year-class period option.
func IsYearOption(optionID string) bool {
	for _, gen := range periodGenerators {
		if gen.id == optionID {
			return gen.groupNumber == PeriodGroupYear
		}
	}
	return false
}

func (g periodGenerator) describe(ref time.Time) string {
	if g.description != "" {
		return g.description
	}
	date := g.shift(ref)
	switch g.granularity {
	case GranMonth:
		return date.Format("January")
	case GranYear:
		return date.Format("2006")
	default:
		return g.id
	}
}

func (g periodGenerator) shift(ref time.Time) time.Time {
	date := ref.AddDate(g.addYears, g.addMonths, 0)
	if g.setQuarter > 0 {
		firstMonth := time.Month((g.setQuarter-1)*3 + 1)
		date = time.Date(date.Year(), firstMonth, 1, 0, 0, 0, 0, date.Location())
	}
	return date
}

// BasicDomain is a precomputed interval domain plus its display description.
type BasicDomain struct {
	Domain      domain.Expr
	Description string
}

// BasicDomainsFor precomputes the interval domain of every year-class option
// and of every (year, finer-option) compound, keyed by the option id and by
// "<yearID>__<otherID>" respectively. Finer options never appear alone: a
// month or quarter is only well-formed scoped to a year.
func BasicDomainsFor(fieldName, fieldType string, ref time.Time) map[string]BasicDomain {
	domains := make(map[string]BasicDomain)
	for _, year := range periodGenerators {
		if year.groupNumber != PeriodGroupYear {
			continue
		}
		domains[year.id] = constructBasicDomain(fieldName, fieldType, ref, year, nil)
		for _, other := range periodGenerators {
			if other.groupNumber != PeriodGroupFine {
				continue
			}
			o := other
			domains[year.id+"__"+other.id] = constructBasicDomain(fieldName, fieldType, ref, year, &o)
		}
	}
	return domains
}

func constructBasicDomain(fieldName, fieldType string, ref time.Time, year periodGenerator, other *periodGenerator) BasicDomain {
	date := year.shift(ref)
	granularity := year.granularity
	description := year.describe(ref)
	if other != nil {
		// Compound: the year option shifts the date, then the finer option
		// applies its own shift on top.
		date = other.shift(date)
		granularity = other.granularity
		description = other.describe(ref) + " " + year.describe(ref)
	}
	start, end := granularityBounds(date, granularity)
	return BasicDomain{
		Domain:      intervalDomain(fieldName, fieldType, start, end),
		Description: description,
	}
}

// granularityBounds returns the inclusive [start, end] of the bucket
// containing date.
func granularityBounds(date time.Time, granularity Granularity) (time.Time, time.Time) {
	loc := date.Location()
	switch granularity {
	case GranYear:
		start := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0).Add(-time.Second)
	case GranQuarter:
		firstMonth := time.Month(((int(date.Month())-1)/3)*3 + 1)
		start := time.Date(date.Year(), firstMonth, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 3, 0).Add(-time.Second)
	case GranMonth:
		start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0).Add(-time.Second)
	case GranWeek:
		// ISO weeks: Monday through Sunday.
		offset := (int(date.Weekday()) + 6) % 7
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7).Add(-time.Second)
	default: // GranDay
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1).Add(-time.Second)
	}
}

// intervalDomain builds field >= start AND field <= end, with bounds
// formatted per the field type: dates as YYYY-MM-DD, datetimes as UTC
// YYYY-MM-DD HH:MM:SS.
func intervalDomain(fieldName, fieldType string, start, end time.Time) domain.Expr {
	return domain.And{Children: []domain.Expr{
		domain.Leaf{Field: fieldName, Op: ">=", Value: formatBound(start, fieldType)},
		domain.Leaf{Field: fieldName, Op: "<=", Value: formatBound(end, fieldType)},
	}}
}

func formatBound(t time.Time, fieldType string) string {
	if fieldType == "date" {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

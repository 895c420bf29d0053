package params

import (
	"fmt"
	"time"

	"github.com/searchdeck/searchdeck/domain"
)

// TimeRangeOption is one entry of the time range selector.
type TimeRangeOption struct {
	ID          string
	Description string
}

// timeRange computes the inclusive window of a range id around ref.
type timeRange struct {
	description string
	bounds      func(ref time.Time) (time.Time, time.Time)
}

var timeRanges = map[string]timeRange{
	"today": {"Today", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref, GranDay)
	}},
	"yesterday": {"Yesterday", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref.AddDate(0, 0, -1), GranDay)
	}},
	"this_week": {"This Week", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref, GranWeek)
	}},
	"last_week": {"Last Week", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref.AddDate(0, 0, -7), GranWeek)
	}},
	"this_month": {"This Month", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref, GranMonth)
	}},
	"last_month": {"Last Month", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref.AddDate(0, -1, 0), GranMonth)
	}},
	"this_quarter": {"This Quarter", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref, GranQuarter)
	}},
	"last_quarter": {"Last Quarter", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref.AddDate(0, -3, 0), GranQuarter)
	}},
	"this_year": {"This Year", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref, GranYear)
	}},
	"last_year": {"Last Year", func(ref time.Time) (time.Time, time.Time) {
		return granularityBounds(ref.AddDate(-1, 0, 0), GranYear)
	}},
	"last_7_days": {"Last 7 Days", func(ref time.Time) (time.Time, time.Time) {
		start, _ := granularityBounds(ref.AddDate(0, 0, -7), GranDay)
		_, end := granularityBounds(ref, GranDay)
		return start, end
	}},
	"last_30_days": {"Last 30 Days", func(ref time.Time) (time.Time, time.Time) {
		start, _ := granularityBounds(ref.AddDate(0, 0, -30), GranDay)
		_, end := granularityBounds(ref, GranDay)
		return start, end
	}},
	"last_365_days": {"Last 365 Days", func(ref time.Time) (time.Time, time.Time) {
		start, _ := granularityBounds(ref.AddDate(0, 0, -365), GranDay)
		_, end := granularityBounds(ref, GranDay)
		return start, end
	}},
}

// timeRangeOrder fixes the display order of the selector.
var timeRangeOrder = []string{
	"last_7_days", "last_30_days", "last_365_days",
	"today", "this_week", "this_month", "this_quarter", "this_year",
	"yesterday", "last_week", "last_month", "last_quarter", "last_year",
}

var comparisonRanges = map[string]string{
	"previous_period": "Previous Period",
	"previous_year":   "Previous Year",
}

// TimeRangeOptions returns the selectable ranges in display order.
func TimeRangeOptions() []TimeRangeOption {
	options := make([]TimeRangeOption, 0, len(timeRangeOrder))
	for _, id := range timeRangeOrder {
		options = append(options, TimeRangeOption{ID: id, Description: timeRanges[id].description})
	}
	return options
}

// ComparisonOptions returns the comparison range options.
func ComparisonOptions() []TimeRangeOption {
	return []TimeRangeOption{
		{ID: "previous_period", Description: comparisonRanges["previous_period"]},
		{ID: "previous_year", Description: comparisonRanges["previous_year"]},
	}
}

// RangeDescription returns the display label of a range id.
func RangeDescription(rangeID string) (string, bool) {
	tr, ok := timeRanges[rangeID]
	if !ok {
		return "", false
	}
	return tr.description, true
}

// ComparisonDescription returns the display label of a comparison range id.
func ComparisonDescription(comparisonID string) (string, bool) {
	desc, ok := comparisonRanges[comparisonID]
	return desc, ok
}

// ConstructRange builds the concrete interval domain of a range id applied
// to the given field around the reference time.
func ConstructRange(fieldName, rangeID, fieldType string, ref time.Time) (domain.Expr, error) {
	tr, ok := timeRanges[rangeID]
	if !ok {
		return nil, fmt.Errorf("unknown time range %q", rangeID)
	}
	start, end := tr.bounds(ref)
	return intervalDomain(fieldName, fieldType, start, end), nil
}

// ConstructComparisonRange builds the interval the range id is compared
// against: the same window shifted back by its own length for
// previous_period, or by one year for previous_year.
func ConstructComparisonRange(fieldName, rangeID, fieldType, comparisonID string, ref time.Time) (domain.Expr, error) {
	tr, ok := timeRanges[rangeID]
	if !ok {
		return nil, fmt.Errorf("unknown time range %q", rangeID)
	}
	start, end := tr.bounds(ref)
	switch comparisonID {
	case "previous_period":
		length := end.Sub(start) + time.Second
		start = start.Add(-length)
		end = end.Add(-length)
	case "previous_year":
		start = start.AddDate(-1, 0, 0)
		end = end.AddDate(-1, 0, 0)
	default:
		return nil, fmt.Errorf("unknown comparison range %q", comparisonID)
	}
	return intervalDomain(fieldName, fieldType, start, end), nil
}

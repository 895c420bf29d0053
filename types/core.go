// Package types defines the shared data model of the search store: filters
// as a tagged union over their kind, groups, activation pairs and the
// derived query handed to consumers.
package types

import (
	"github.com/searchdeck/searchdeck/domain"
	"github.com/searchdeck/searchdeck/params"
)

// Kind discriminates the filter variants.
type Kind string

const (
	KindField     Kind = "field"
	KindFilter    Kind = "filter"
	KindGroupBy   Kind = "groupBy"
	KindTimeRange Kind = "timeRange"
	KindFavorite  Kind = "favorite"
)

// Filter is one selectable search criterion. The Data field carries the
// kind-specific attributes; its dynamic type always matches Kind.
type Filter struct {
	ID          int
	Kind        Kind
	Description string
	GroupID     int
	GroupNumber int
	IsDefault   bool
	DefaultRank int
	Invisible   bool
	Data        FilterData
}

// FilterData is the kind-specific payload of a Filter.
type FilterData interface {
	Kind() Kind
}

// ConditionData backs filters of kind "filter": a fixed domain, an optional
// context contribution, and for date filters the option machinery.
type ConditionData struct {
	Domain  domain.Expr
	Context map[string]interface{}

	// Date-bucketed filter attributes; HasOptions gates all of them.
	FieldName        string
	FieldType        string
	HasOptions       bool
	Options          []params.Option
	DefaultOptionID  string
	CurrentOptionIDs []string
	BasicDomains     map[string]params.BasicDomain
}

func (*ConditionData) Kind() Kind { return KindFilter }

// GroupByData backs filters of kind "groupBy". Temporal fields carry
// interval options; each active (filter, option) pair contributes one
// "field:interval" entry to the derived group-by list.
type GroupByData struct {
	FieldName        string
	FieldType        string
	HasOptions       bool
	Options          []params.Option
	DefaultOptionID  string
	CurrentOptionIDs []string
}

func (*GroupByData) Kind() Kind { return KindGroupBy }

// TimeRangeData backs the (at most one active) time range filter.
type TimeRangeData struct {
	FieldName        string
	FieldDescription string
	RangeID          string
	Range            domain.Expr
	RangeDescription string

	ComparisonRangeID          string
	ComparisonRange            domain.Expr
	ComparisonRangeDescription string
}

func (*TimeRangeData) Kind() Kind { return KindTimeRange }

// TimeRangeSpec is the symbolic form of a time range selection, as stored in
// favorites and returned by unevaluated getters.
type TimeRangeSpec struct {
	Field           string `json:"field" yaml:"field"`
	RangeID         string `json:"range" yaml:"range"`
	ComparisonRange string `json:"comparison_range,omitempty" yaml:"comparison_range,omitempty"`
}

// OrderClause is one element of a favorite's stored sort.
type OrderClause struct {
	Name string
	Asc  bool
}

// FavoriteData backs filters of kind "favorite": a persisted snapshot of a
// full search query. Domain stays symbolic so the favorite remains valid
// across context changes.
type FavoriteData struct {
	Context      map[string]interface{}
	Domain       domain.Expr
	GroupBys     []string
	OrderedBy    []OrderClause
	TimeRanges   *TimeRangeSpec
	UserID       int // 0 means shared
	ServerSideID string
	Removable    bool
	Editable     bool
}

func (*FavoriteData) Kind() Kind { return KindFavorite }

// AutoCompleteValue is one accumulated value of an autocomplete field
// filter. A nil Value means the raw label is matched instead.
type AutoCompleteValue struct {
	Label string
	Value interface{}
}

// FieldData backs filters of kind "field": an autocomplete input whose
// domain is recomputed from its accumulated values.
type FieldData struct {
	FieldName string
	FieldType string
	// Operator overrides the per-value comparison operator; empty selects
	// "=" or a substring match depending on the field type.
	Operator string
	// FilterDomain, when set, is a per-value domain template evaluated with
	// the "self" and "raw_value" bindings.
	FilterDomain domain.Expr
	// Context, when set, is a context template evaluated with "self" bound
	// to the list of accumulated values.
	Context            map[string]interface{}
	AutoCompleteValues []AutoCompleteValue
	Domain             domain.Expr
	DefaultValue       interface{}
}

func (*FieldData) Kind() Kind { return KindField }

// ActivePair records one active filter within a group, optionally qualified
// by a sub-option (group-by intervals).
type ActivePair struct {
	FilterID int
	OptionID string
}

// Group aggregates filters that share one entry in the query sequence. A
// group is in the query sequence exactly when ActiveFilterIDs is non-empty.
type Group struct {
	ID              int
	Kind            Kind
	ActiveFilterIDs []ActivePair
}

// TimeRangeSnapshot is the evaluated time range data of a derived query.
type TimeRangeSnapshot struct {
	ComparisonField  string
	Range            domain.Expr
	RangeDescription string

	ComparisonRange            domain.Expr
	ComparisonRangeDescription string
}

// DerivedQuery is the read-only query computed from the active filters.
type DerivedQuery struct {
	Domain     domain.Expr
	GroupBy    []string
	Context    map[string]interface{}
	OrderedBy  []OrderClause
	TimeRanges *TimeRangeSnapshot
}

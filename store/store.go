// Package store implements the search control panel state store: a
// normalized catalog of filters and groups, a query sequence recording
// activation order, mutation actions and derived-query getters.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/searchdeck/searchdeck/domain"
	"github.com/searchdeck/searchdeck/internal/locking"
	"github.com/searchdeck/searchdeck/params"
	"github.com/searchdeck/searchdeck/persist"
	"github.com/searchdeck/searchdeck/schema"
	"github.com/searchdeck/searchdeck/types"
)

// Sentinel errors for invalid references. Actions fail fast on these rather
// than silently ignoring the call.
var (
	ErrUnknownFilter = errors.New("unknown filter")
	ErrUnknownGroup  = errors.New("unknown group")
	ErrUnknownField  = errors.New("unknown field")
)

// DynamicFilter is a filter preset supplied at construction time, activated
// by default.
type DynamicFilter struct {
	Description string
	Domain      domain.Expr
}

// Config configures a Store.
type Config struct {
	// View declares the filters the search view exposes. A nil view yields
	// a store with only dynamically created filters.
	View *schema.View

	ModelName string
	ActionID  int

	// ActionDomain is AND-combined with the filter domain when the derived
	// query is evaluated.
	ActionDomain domain.Expr
	// ActionContext seeds the derived context. Keys of the form
	// search_default_<name> are extracted as search defaults. A time_ranges
	// entry activates a default time range.
	ActionContext map[string]interface{}
	// UserContext provides the bindings symbolic expressions are evaluated
	// against (in addition to "uid").
	UserContext map[string]interface{}
	UserID      int

	DynamicFilters []DynamicFilter

	// Gateway persists favorites; defaults to an in-memory gateway.
	Gateway persist.Gateway

	// ActivateDefaultFavorite activates the default favorite instead of the
	// view's default filters.
	ActivateDefaultFavorite bool

	// ReferenceTime anchors all relative date computation; zero means now.
	ReferenceTime time.Time
}

// Store owns the filter catalog, group table and query sequence. All
// mutation goes through actions; readers receive derived snapshots.
type Store struct {
	lock *locking.LockManager

	modelName     string
	actionID      int
	actionDomain  domain.Expr
	actionContext map[string]interface{}
	userContext   map[string]interface{}
	userID        int

	searchDefaults map[string]interface{}
	fields         schema.FieldSet
	gateway        persist.Gateway
	referenceTime  time.Time
	periodOptions  []params.Option

	filters map[int]*types.Filter
	groups  map[int]*types.Group
	query   []int

	nextFilterID int
	nextGroupID  int
	groupNumber  int

	observers    map[int]func()
	nextObserver int
}

var searchDefaultPattern = regexp.MustCompile(`^search_default_(.+)$`)

// New builds a store from the config, populates the catalog from the view
// definition, dynamic filters and persisted favorites, and activates the
// default selections.
func New(cfg Config) (*Store, error) {
	view := cfg.View
	if view == nil {
		view = &schema.View{Fields: schema.FieldSet{}}
	}
	gateway := cfg.Gateway
	if gateway == nil {
		gateway = persist.NewMemoryGateway()
	}
	ref := cfg.ReferenceTime
	if ref.IsZero() {
		ref = time.Now()
	}

	s := &Store{
		lock:           locking.NewLockManager(),
		modelName:      cfg.ModelName,
		actionID:       cfg.ActionID,
		actionDomain:   cfg.ActionDomain,
		actionContext:  make(map[string]interface{}),
		userContext:    cfg.UserContext,
		userID:         cfg.UserID,
		searchDefaults: make(map[string]interface{}),
		fields:         view.Fields,
		gateway:        gateway,
		referenceTime:  ref,
		periodOptions:  params.PeriodOptions(ref),
		filters:        make(map[int]*types.Filter),
		groups:         make(map[int]*types.Group),
		observers:      make(map[int]func()),
		nextFilterID:   1,
		nextGroupID:    1,
		groupNumber:    1,
	}
	if s.userContext == nil {
		s.userContext = map[string]interface{}{}
	}

	// Split search defaults out of the action context.
	for key, value := range cfg.ActionContext {
		if m := searchDefaultPattern.FindStringSubmatch(key); m != nil {
			s.searchDefaults[m[1]] = value
			continue
		}
		s.actionContext[key] = value
	}

	if err := s.addViewFilters(view); err != nil {
		return nil, err
	}
	s.addDynamicFilters(cfg.DynamicFilters)
	if err := s.addFavorites(); err != nil {
		return nil, err
	}
	// The time range group always exists, initially empty.
	s.newGroup(types.KindTimeRange)

	if err := s.activateDefaults(cfg.ActivateDefaultFavorite); err != nil {
		return nil, err
	}
	return s, nil
}

// allocFilterID and allocGroupID hand out store-scoped monotonic ids; ids
// are never reused.
func (s *Store) allocFilterID() int {
	id := s.nextFilterID
	s.nextFilterID++
	return id
}

func (s *Store) allocGroupID() int {
	id := s.nextGroupID
	s.nextGroupID++
	return id
}

func (s *Store) allocGroupNumber() int {
	n := s.groupNumber
	s.groupNumber++
	return n
}

func (s *Store) newGroup(kind types.Kind) *types.Group {
	group := &types.Group{ID: s.allocGroupID(), Kind: kind}
	s.groups[group.ID] = group
	return group
}

// groupOfKind returns the singleton group of the given kind, or nil.
func (s *Store) groupOfKind(kind types.Kind) *types.Group {
	var found *types.Group
	for _, g := range s.groups {
		if g.Kind == kind && (found == nil || g.ID < found.ID) {
			found = g
		}
	}
	return found
}

func (s *Store) filterByID(id int) (*types.Filter, error) {
	f, ok := s.filters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFilter, id)
	}
	return f, nil
}

func (s *Store) groupByID(id int) (*types.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	return g, nil
}

// addViewFilters turns the view's item runs into filter groups. Each run
// carries its own group number; groupBy runs share the single group-by
// group.
func (s *Store) addViewFilters(view *schema.View) error {
	var groupByFilters []*types.Filter

	for _, run := range view.Runs() {
		runNumber := s.allocGroupNumber()
		switch run.Kind {
		case schema.ItemFilter:
			group := s.newGroup(types.KindFilter)
			for _, item := range run.Items {
				filter, err := s.filterFromItem(item, runNumber)
				if err != nil {
					return err
				}
				filter.GroupID = group.ID
				s.filters[filter.ID] = filter
			}
		case schema.ItemGroupBy:
			for _, item := range run.Items {
				filter, err := s.groupByFromItem(item, runNumber)
				if err != nil {
					return err
				}
				groupByFilters = append(groupByFilters, filter)
			}
		case schema.ItemField:
			group := s.newGroup(types.KindField)
			for _, item := range run.Items {
				filter, err := s.fieldFromItem(item)
				if err != nil {
					return err
				}
				filter.GroupID = group.ID
				s.filters[filter.ID] = filter
			}
		}
	}

	if len(groupByFilters) > 0 {
		group := s.newGroup(types.KindGroupBy)
		for _, filter := range groupByFilters {
			filter.GroupID = group.ID
			s.filters[filter.ID] = filter
		}
	}
	return nil
}

func (s *Store) filterFromItem(item schema.Item, groupNumber int) (*types.Filter, error) {
	data := &types.ConditionData{Context: item.Context}
	if item.Domain != "" {
		expr, err := domain.Parse(item.Domain)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", item.Name, err)
		}
		data.Domain = expr
	}
	if item.Date != "" {
		field := s.fields[item.Date]
		data.FieldName = item.Date
		data.FieldType = field.Type
		data.HasOptions = true
		data.Options = s.periodOptions
		data.DefaultOptionID = item.DefaultPeriod
		if data.DefaultOptionID == "" {
			data.DefaultOptionID = params.DefaultPeriod
		}
		data.BasicDomains = params.BasicDomainsFor(item.Date, field.Type, s.referenceTime)
	}

	_, isDefault := s.searchDefaults[item.Name]
	filter := &types.Filter{
		ID:          s.allocFilterID(),
		Kind:        types.KindFilter,
		Description: itemDescription(item),
		GroupNumber: groupNumber,
		IsDefault:   isDefault,
		Invisible:   item.Invisible,
		Data:        data,
	}
	if isDefault {
		filter.DefaultRank = -5
	}
	return filter, nil
}

func (s *Store) groupByFromItem(item schema.Item, groupNumber int) (*types.Filter, error) {
	field, ok := s.fields[item.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, item.Field)
	}
	data := &types.GroupByData{
		FieldName: item.Field,
		FieldType: field.Type,
	}
	if schema.IsTemporal(field.Type) {
		data.HasOptions = true
		data.Options = params.IntervalOptions()
		data.DefaultOptionID = item.Interval
		if data.DefaultOptionID == "" {
			data.DefaultOptionID = params.DefaultInterval
		}
	}

	defaultValue, isDefault := s.searchDefaults[item.Name]
	filter := &types.Filter{
		ID:          s.allocFilterID(),
		Kind:        types.KindGroupBy,
		Description: itemDescription(item),
		GroupNumber: groupNumber,
		IsDefault:   isDefault,
		Invisible:   item.Invisible,
		Data:        data,
	}
	if isDefault {
		if rank, ok := defaultValue.(int); ok {
			filter.DefaultRank = rank
		} else {
			filter.DefaultRank = 100
		}
	}
	return filter, nil
}

func (s *Store) fieldFromItem(item schema.Item) (*types.Filter, error) {
	field, ok := s.fields[item.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, item.Field)
	}
	data := &types.FieldData{
		FieldName: item.Field,
		FieldType: field.Type,
		Operator:  item.Operator,
		Context:   item.Context,
	}
	if item.FilterDomain != "" {
		expr, err := domain.Parse(item.FilterDomain)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", item.Name, err)
		}
		data.FilterDomain = expr
	}

	description := item.String
	if description == "" {
		description = field.String
	}
	if description == "" {
		description = item.Name
	}
	defaultValue, isDefault := s.searchDefaults[item.Name]
	filter := &types.Filter{
		ID:          s.allocFilterID(),
		Kind:        types.KindField,
		Description: description,
		IsDefault:   isDefault,
		Invisible:   item.Invisible,
		Data:        data,
	}
	if isDefault {
		filter.DefaultRank = -10
		data.DefaultValue = defaultValue
		if err := s.applyFieldDefault(data, field); err != nil {
			return nil, fmt.Errorf("field %q: %w", item.Name, err)
		}
	}
	return filter, nil
}

// applyFieldDefault seeds an autocomplete filter from its search default
// value, so it starts with a computed domain.
func (s *Store) applyFieldDefault(data *types.FieldData, field schema.Field) error {
	value := data.DefaultValue
	if field.Type == "selection" {
		for _, entry := range field.Selection {
			if entry.Value == value {
				data.AutoCompleteValues = append(data.AutoCompleteValues, types.AutoCompleteValue{
					Label: entry.Label,
					Value: entry.Value,
				})
				break
			}
		}
		if len(data.AutoCompleteValues) == 0 {
			return fmt.Errorf("default value %v is not in the selection", value)
		}
	} else {
		data.AutoCompleteValues = append(data.AutoCompleteValues, types.AutoCompleteValue{
			Label: fmt.Sprintf("%v", value),
			Value: value,
		})
	}
	expr, err := autoCompletionDomain(data)
	if err != nil {
		return err
	}
	data.Domain = expr
	return nil
}

func (s *Store) addDynamicFilters(dynamic []DynamicFilter) {
	if len(dynamic) == 0 {
		return
	}
	group := s.newGroup(types.KindFilter)
	groupNumber := s.allocGroupNumber()
	for _, pre := range dynamic {
		filter := &types.Filter{
			ID:          s.allocFilterID(),
			Kind:        types.KindFilter,
			Description: pre.Description,
			GroupID:     group.ID,
			GroupNumber: groupNumber,
			IsDefault:   true,
			DefaultRank: -5,
			Data:        &types.ConditionData{Domain: pre.Domain},
		}
		s.filters[filter.ID] = filter
	}
}

// addFavorites loads the persisted favorites of this model, one singleton
// group each.
func (s *Store) addFavorites() error {
	stored, err := s.gateway.List(context.Background(), s.modelName)
	if err != nil {
		return fmt.Errorf("failed to load favorites: %w", err)
	}
	for _, rec := range stored {
		filter, err := favoriteFromRecord(rec)
		if err != nil {
			return err
		}
		filter.ID = s.allocFilterID()
		group := s.newGroup(types.KindFavorite)
		filter.GroupID = group.ID
		s.filters[filter.ID] = filter
	}
	return nil
}

// favoriteFromRecord rebuilds a favorite filter from its persisted record:
// group-by and time range selections are folded out of the stored context,
// the sort notation is parsed back into order clauses.
func favoriteFromRecord(rec persist.StoredFilter) (*types.Filter, error) {
	expr, err := domain.Parse(rec.Domain)
	if err != nil {
		return nil, fmt.Errorf("favorite %q: %w", rec.Name, err)
	}

	ctx := make(map[string]interface{}, len(rec.Context))
	for k, v := range rec.Context {
		ctx[k] = v
	}
	groupBys := stringList(ctx["group_by"])
	delete(ctx, "group_by")

	var timeRanges *types.TimeRangeSpec
	if raw, ok := ctx["time_ranges"].(map[string]interface{}); ok {
		timeRanges = &types.TimeRangeSpec{}
		timeRanges.Field, _ = raw["field"].(string)
		timeRanges.RangeID, _ = raw["range"].(string)
		timeRanges.ComparisonRange, _ = raw["comparison_range"].(string)
	}
	delete(ctx, "time_ranges")

	groupNumber := 1
	if rec.UserID == 0 {
		// Shared favorites list after personal ones.
		groupNumber = 2
	}

	return &types.Filter{
		Kind:        types.KindFavorite,
		Description: rec.Name,
		GroupNumber: groupNumber,
		IsDefault:   rec.IsDefault,
		Data: &types.FavoriteData{
			Context:      ctx,
			Domain:       expr,
			GroupBys:     groupBys,
			OrderedBy:    parseSort(rec.Sort),
			TimeRanges:   timeRanges,
			UserID:       rec.UserID,
			ServerSideID: rec.ID,
			Removable:    true,
			Editable:     true,
		},
	}, nil
}

// parseSort reads "field"/"field desc" entries, accepting the legacy
// "-field" notation too.
func parseSort(sort []string) []types.OrderClause {
	clauses := make([]types.OrderClause, 0, len(sort))
	for _, entry := range sort {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if name, dir, ok := strings.Cut(entry, " "); ok {
			clauses = append(clauses, types.OrderClause{Name: name, Asc: strings.TrimSpace(dir) != "desc"})
			continue
		}
		if strings.HasPrefix(entry, "-") {
			clauses = append(clauses, types.OrderClause{Name: entry[1:], Asc: false})
			continue
		}
		clauses = append(clauses, types.OrderClause{Name: entry, Asc: true})
	}
	return clauses
}

func stringList(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if str, ok := entry.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// activateDefaults activates the default favorite, or failing that the
// view's default filters in rank order, then the action-level time range.
func (s *Store) activateDefaults(activateDefaultFavorite bool) error {
	if activateDefaultFavorite {
		if favorite := s.defaultFavorite(); favorite != nil {
			return s.toggleFilter(favorite.ID)
		}
	}

	defaults := make([]*types.Filter, 0)
	for _, f := range s.filters {
		if f.IsDefault && f.Kind != types.KindFavorite {
			defaults = append(defaults, f)
		}
	}
	sort.Slice(defaults, func(i, j int) bool {
		if defaults[i].DefaultRank != defaults[j].DefaultRank {
			return defaults[i].DefaultRank < defaults[j].DefaultRank
		}
		return defaults[i].ID < defaults[j].ID
	})
	for _, f := range defaults {
		var err error
		if hasOptions(f) {
			err = s.toggleFilterWithOptions(f.ID, "")
		} else {
			err = s.toggleFilter(f.ID)
		}
		if err != nil {
			return err
		}
	}

	if raw, ok := s.actionContext["time_ranges"].(map[string]interface{}); ok {
		field, _ := raw["field"].(string)
		rangeID, _ := raw["range"].(string)
		comparison, _ := raw["comparison_range"].(string)
		if err := s.activateTimeRange(field, rangeID, comparison); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) defaultFavorite() *types.Filter {
	var found *types.Filter
	for _, f := range s.filters {
		if f.Kind == types.KindFavorite && f.IsDefault && (found == nil || f.ID < found.ID) {
			found = f
		}
	}
	return found
}

func hasOptions(f *types.Filter) bool {
	switch data := f.Data.(type) {
	case *types.ConditionData:
		return data.HasOptions
	case *types.GroupByData:
		return data.HasOptions
	default:
		return false
	}
}

func itemDescription(item schema.Item) string {
	if item.String != "" {
		return item.String
	}
	return item.Name
}

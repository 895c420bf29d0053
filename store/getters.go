package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/searchdeck/searchdeck/domain"
	"github.com/searchdeck/searchdeck/internal/locking"
	"github.com/searchdeck/searchdeck/params"
	"github.com/searchdeck/searchdeck/types"
)

// OptionView is the display state of one filter option.
type OptionView struct {
	ID          string
	Description string
	GroupNumber int
	IsActive    bool
}

// FilterView is the display state of one filter.
type FilterView struct {
	ID          int
	Kind        types.Kind
	Description string
	GroupID     int
	GroupNumber int
	IsDefault   bool
	IsActive    bool
	Options     []OptionView
}

// Query derives the current search query: the evaluated domain, the
// group-by list, the merged context, the ordering and the active time
// ranges.
func (s *Store) Query() (types.DerivedQuery, error) {
	out, err := s.lock.ExecuteWithResult(locking.ReadOperation, func() (interface{}, error) {
		expr, err := s.domainExpr(true)
		if err != nil {
			return nil, err
		}
		ctx, err := s.contextMap()
		if err != nil {
			return nil, err
		}
		return types.DerivedQuery{
			Domain:     expr,
			GroupBy:    s.groupByList(),
			Context:    ctx,
			OrderedBy:  s.orderedBy(),
			TimeRanges: s.timeRangeSnapshot(),
		}, nil
	})
	if err != nil {
		return types.DerivedQuery{}, err
	}
	return out.(types.DerivedQuery), nil
}

// Domain derives the search domain alone. With evaluate false the result
// keeps its symbolic variables and excludes the action domain.
func (s *Store) Domain(evaluate bool) (domain.Expr, error) {
	out, err := s.lock.ExecuteWithResult(locking.ReadOperation, func() (interface{}, error) {
		return s.domainExpr(evaluate)
	})
	if err != nil {
		return nil, err
	}
	return out.(domain.Expr), nil
}

// domainExpr combines the domains of the active filters: disjunction within
// a group, conjunction across groups in query order. With evaluate set the
// action domain is prepended and symbolic variables are resolved.
func (s *Store) domainExpr(evaluate bool) (domain.Expr, error) {
	var groupDomains []domain.Expr
	for _, groupID := range s.query {
		g := s.groups[groupID]
		switch g.Kind {
		case types.KindFilter, types.KindFavorite, types.KindField:
		default:
			continue
		}
		var filterDomains []domain.Expr
		for _, pair := range g.ActiveFilterIDs {
			f := s.filters[pair.FilterID]
			filterDomains = append(filterDomains, s.filterDomain(f))
		}
		groupDomains = append(groupDomains, domain.Combine(filterDomains, domain.OrOp))
	}
	combined := domain.Combine(groupDomains, domain.AndOp)

	if !evaluate {
		return combined, nil
	}
	full := domain.Combine([]domain.Expr{s.actionDomain, combined}, domain.AndOp)
	resolved, err := domain.Evaluate(full, s.evalBindings())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate search domain: %w", err)
	}
	return resolved, nil
}

func (s *Store) filterDomain(f *types.Filter) domain.Expr {
	switch data := f.Data.(type) {
	case *types.ConditionData:
		if data.HasOptions {
			return s.dateFilterDomain(data)
		}
		return data.Domain
	case *types.FieldData:
		return data.Domain
	case *types.FavoriteData:
		return data.Domain
	default:
		return nil
	}
}

// dateFilterDomain combines the selected period options of a date filter.
// Year options alone match whole years; otherwise every (year, period)
// combination contributes its precomputed bucket.
func (s *Store) dateFilterDomain(data *types.ConditionData) domain.Expr {
	var yearIDs, otherIDs []string
	for _, optionID := range data.CurrentOptionIDs {
		if params.IsYearOption(optionID) {
			yearIDs = append(yearIDs, optionID)
		} else {
			otherIDs = append(otherIDs, optionID)
		}
	}

	var exprs []domain.Expr
	if len(otherIDs) == 0 {
		for _, yearID := range yearIDs {
			if basic, ok := data.BasicDomains[yearID]; ok {
				exprs = append(exprs, basic.Domain)
			}
		}
	} else {
		for _, otherID := range otherIDs {
			for _, yearID := range yearIDs {
				if basic, ok := data.BasicDomains[yearID+"__"+otherID]; ok {
					exprs = append(exprs, basic.Domain)
				}
			}
		}
	}
	return domain.Combine(exprs, domain.OrOp)
}

// groupByList collects the active group-bys in activation order, temporal
// ones qualified with their interval. Falls back to the action context.
func (s *Store) groupByList() []string {
	var out []string
	for _, groupID := range s.query {
		g := s.groups[groupID]
		switch g.Kind {
		case types.KindGroupBy:
			for _, pair := range g.ActiveFilterIDs {
				f := s.filters[pair.FilterID]
				data, ok := f.Data.(*types.GroupByData)
				if !ok {
					continue
				}
				entry := data.FieldName
				if pair.OptionID != "" {
					entry += ":" + pair.OptionID
				}
				out = append(out, entry)
			}
		case types.KindFavorite:
			for _, pair := range g.ActiveFilterIDs {
				f := s.filters[pair.FilterID]
				if data, ok := f.Data.(*types.FavoriteData); ok {
					out = append(out, data.GroupBys...)
				}
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	return stringList(s.actionContext["group_by"])
}

// contextMap merges the action context with the contexts of the active
// filters in query order; later entries win key conflicts.
func (s *Store) contextMap() (map[string]interface{}, error) {
	contexts := []map[string]interface{}{s.actionContext}
	for _, groupID := range s.query {
		g := s.groups[groupID]
		switch g.Kind {
		case types.KindFilter, types.KindFavorite, types.KindField:
		default:
			continue
		}
		for _, pair := range g.ActiveFilterIDs {
			f := s.filters[pair.FilterID]
			ctx, err := s.filterContext(f)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate search context: %w", err)
			}
			if ctx != nil {
				contexts = append(contexts, ctx)
			}
		}
	}
	return domain.MergeContexts(contexts...), nil
}

func (s *Store) filterContext(f *types.Filter) (map[string]interface{}, error) {
	switch data := f.Data.(type) {
	case *types.ConditionData:
		return evalContext(data.Context, s.evalBindings())
	case *types.FavoriteData:
		return evalContext(data.Context, s.evalBindings())
	case *types.FieldData:
		if data.Context == nil {
			return nil, nil
		}
		values := make([]interface{}, 0, len(data.AutoCompleteValues))
		for _, v := range data.AutoCompleteValues {
			if v.Value != nil {
				values = append(values, v.Value)
			} else {
				values = append(values, v.Label)
			}
		}
		bindings := s.evalBindings()
		bindings["self"] = values
		return evalContext(data.Context, bindings)
	default:
		return nil, nil
	}
}

// evalContext resolves $name string values in a context template against
// the bindings. Unknown bindings are an error.
func evalContext(tmpl map[string]interface{}, bindings map[string]interface{}) (map[string]interface{}, error) {
	if tmpl == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(tmpl))
	for key, value := range tmpl {
		str, ok := value.(string)
		if !ok || !strings.HasPrefix(str, "$") {
			out[key] = value
			continue
		}
		name := str[1:]
		bound, ok := bindings[name]
		if !ok {
			return nil, fmt.Errorf("unknown binding %q", name)
		}
		out[key] = bound
	}
	return out, nil
}

func (s *Store) evalBindings() map[string]interface{} {
	bindings := make(map[string]interface{}, len(s.userContext)+1)
	for k, v := range s.userContext {
		bindings[k] = v
	}
	bindings["uid"] = s.userID
	return bindings
}

// orderedBy returns the stored ordering of the most recently activated
// favorite. Only that favorite counts: when it carries no ordering the
// derived query has none, regardless of earlier active favorites.
func (s *Store) orderedBy() []types.OrderClause {
	for i := len(s.query) - 1; i >= 0; i-- {
		g := s.groups[s.query[i]]
		if g.Kind != types.KindFavorite || len(g.ActiveFilterIDs) == 0 {
			continue
		}
		f := s.filters[g.ActiveFilterIDs[0].FilterID]
		data, ok := f.Data.(*types.FavoriteData)
		if !ok || len(data.OrderedBy) == 0 {
			return nil
		}
		return append([]types.OrderClause(nil), data.OrderedBy...)
	}
	return nil
}

// timeRangeSnapshot returns the active time range with its computed
// domains, or nil.
func (s *Store) timeRangeSnapshot() *types.TimeRangeSnapshot {
	f := s.activeTimeRangeFilter()
	if f == nil {
		return nil
	}
	data := f.Data.(*types.TimeRangeData)
	return &types.TimeRangeSnapshot{
		ComparisonField:            data.FieldName,
		Range:                      data.Range,
		RangeDescription:           data.RangeDescription,
		ComparisonRange:            data.ComparisonRange,
		ComparisonRangeDescription: data.ComparisonRangeDescription,
	}
}

// timeRangeSpec returns the active time range in its symbolic form, or nil.
func (s *Store) timeRangeSpec() *types.TimeRangeSpec {
	f := s.activeTimeRangeFilter()
	if f == nil {
		return nil
	}
	data := f.Data.(*types.TimeRangeData)
	return &types.TimeRangeSpec{
		Field:           data.FieldName,
		RangeID:         data.RangeID,
		ComparisonRange: data.ComparisonRangeID,
	}
}

func (s *Store) activeTimeRangeFilter() *types.Filter {
	g := s.groupOfKind(types.KindTimeRange)
	if g == nil || len(g.ActiveFilterIDs) == 0 {
		return nil
	}
	return s.filters[g.ActiveFilterIDs[0].FilterID]
}

// FiltersOfKind returns the visible filters of a kind as display views, in
// id order. Favorites are ordered personal before shared.
func (s *Store) FiltersOfKind(kind types.Kind) []FilterView {
	views, _ := s.lock.ExecuteWithResult(locking.ReadOperation, func() (interface{}, error) {
		var collected []FilterView
		for _, f := range s.filters {
			if f.Kind != kind || f.Invisible {
				continue
			}
			collected = append(collected, s.filterView(f))
		}
		return collected, nil
	})
	out := views.([]FilterView)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if kind == types.KindFavorite {
		sort.SliceStable(out, func(i, j int) bool { return out[i].GroupNumber < out[j].GroupNumber })
	}
	return out
}

func (s *Store) filterView(f *types.Filter) FilterView {
	view := FilterView{
		ID:          f.ID,
		Kind:        f.Kind,
		Description: f.Description,
		GroupID:     f.GroupID,
		GroupNumber: f.GroupNumber,
		IsDefault:   f.IsDefault,
	}
	if g, ok := s.groups[f.GroupID]; ok {
		view.IsActive = indexOfFilter(g.ActiveFilterIDs, f.ID) >= 0
	}

	var options []params.Option
	var current []string
	switch data := f.Data.(type) {
	case *types.ConditionData:
		if data.HasOptions {
			options = data.Options
			current = data.CurrentOptionIDs
		}
	case *types.GroupByData:
		if data.HasOptions {
			options = data.Options
			current = data.CurrentOptionIDs
		}
	}
	for _, opt := range options {
		view.Options = append(view.Options, OptionView{
			ID:          opt.ID,
			Description: opt.Description,
			GroupNumber: opt.GroupNumber,
			IsActive:    indexOfString(current, opt.ID) >= 0,
		})
	}
	return view
}

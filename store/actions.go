package store

import (
	"context"
	"fmt"

	"github.com/searchdeck/searchdeck/domain"
	"github.com/searchdeck/searchdeck/internal/locking"
	"github.com/searchdeck/searchdeck/params"
	"github.com/searchdeck/searchdeck/persist"
	"github.com/searchdeck/searchdeck/schema"
	"github.com/searchdeck/searchdeck/types"
)

// Prefilter describes a filter created at runtime from the facet interface.
type Prefilter struct {
	Description string
	Domain      domain.Expr
	Context     map[string]interface{}
}

// PreFavorite describes a favorite to be persisted and committed.
type PreFavorite struct {
	Description string
	IsDefault   bool
	IsShared    bool
}

// ToggleAutoCompletion identifies a field filter and the value picked from
// its autocompletion dropdown.
type ToggleAutoCompletion struct {
	FilterID int
	Label    string
	Value    interface{}
}

// ToggleFilter flips the activation state of a filter. Activating appends
// the filter to its group and, if the group was inactive, appends the group
// to the query; deactivating removes both memberships.
func (s *Store) ToggleFilter(filterID int) error {
	return s.mutate(func() error {
		return s.toggleFilter(filterID)
	})
}

func (s *Store) toggleFilter(filterID int) error {
	f, err := s.filterByID(filterID)
	if err != nil {
		return err
	}
	g, err := s.groupByID(f.GroupID)
	if err != nil {
		return err
	}

	idx := indexOfFilter(g.ActiveFilterIDs, filterID)
	if idx < 0 {
		g.ActiveFilterIDs = append(g.ActiveFilterIDs, types.ActivePair{FilterID: filterID})
		if indexOfGroup(s.query, g.ID) < 0 {
			s.query = append(s.query, g.ID)
		}
		return nil
	}
	g.ActiveFilterIDs = append(g.ActiveFilterIDs[:idx], g.ActiveFilterIDs[idx+1:]...)
	if len(g.ActiveFilterIDs) == 0 {
		s.removeFromQuery(g.ID)
	}
	return nil
}

// ToggleFilterWithOptions toggles a single option of a filter with options.
// An empty optionID selects the filter's default option.
//
// Date filters treat the option list as one multi-selection: toggling an
// option on an inactive filter activates it, removing the last option
// deactivates it, and a period option is always paired with a year option.
// Group-by filters treat each (filter, option) pair independently.
func (s *Store) ToggleFilterWithOptions(filterID int, optionID string) error {
	return s.mutate(func() error {
		return s.toggleFilterWithOptions(filterID, optionID)
	})
}

func (s *Store) toggleFilterWithOptions(filterID int, optionID string) error {
	f, err := s.filterByID(filterID)
	if err != nil {
		return err
	}
	g, err := s.groupByID(f.GroupID)
	if err != nil {
		return err
	}

	switch data := f.Data.(type) {
	case *types.ConditionData:
		if !data.HasOptions {
			return fmt.Errorf("filter %d has no options", filterID)
		}
		if optionID == "" {
			optionID = data.DefaultOptionID
		}
		active := indexOfFilter(g.ActiveFilterIDs, filterID) >= 0
		if !active {
			if err := s.toggleFilter(filterID); err != nil {
				return err
			}
			data.CurrentOptionIDs = append(data.CurrentOptionIDs, optionID)
			if !anyYearOption(data.CurrentOptionIDs) {
				data.CurrentOptionIDs = append(data.CurrentOptionIDs, params.DefaultYear)
			}
			return nil
		}
		if idx := indexOfString(data.CurrentOptionIDs, optionID); idx >= 0 {
			data.CurrentOptionIDs = append(data.CurrentOptionIDs[:idx], data.CurrentOptionIDs[idx+1:]...)
			if !anyYearOption(data.CurrentOptionIDs) {
				// Without a year the remaining period options are unanchored.
				data.CurrentOptionIDs = nil
			}
			if len(data.CurrentOptionIDs) == 0 {
				return s.toggleFilter(filterID)
			}
			return nil
		}
		data.CurrentOptionIDs = append(data.CurrentOptionIDs, optionID)
		return nil

	case *types.GroupByData:
		if !data.HasOptions {
			return fmt.Errorf("filter %d has no options", filterID)
		}
		if optionID == "" {
			optionID = data.DefaultOptionID
		}
		initial := len(g.ActiveFilterIDs)
		pair := types.ActivePair{FilterID: filterID, OptionID: optionID}
		idx := indexOfPair(g.ActiveFilterIDs, pair)
		if idx < 0 {
			g.ActiveFilterIDs = append(g.ActiveFilterIDs, pair)
			data.CurrentOptionIDs = append(data.CurrentOptionIDs, optionID)
			if initial == 0 {
				s.query = append(s.query, g.ID)
			}
			return nil
		}
		g.ActiveFilterIDs = append(g.ActiveFilterIDs[:idx], g.ActiveFilterIDs[idx+1:]...)
		if sidx := indexOfString(data.CurrentOptionIDs, optionID); sidx >= 0 {
			data.CurrentOptionIDs = append(data.CurrentOptionIDs[:sidx], data.CurrentOptionIDs[sidx+1:]...)
		}
		if initial == 1 {
			s.removeFromQuery(g.ID)
		}
		return nil

	default:
		return fmt.Errorf("filter %d has no options", filterID)
	}
}

// CreateNewFilters adds the prefilters as one new active group of condition
// filters, all sharing a fresh group number, and returns their ids.
func (s *Store) CreateNewFilters(prefilters []Prefilter) ([]int, error) {
	var ids []int
	err := s.mutate(func() error {
		var err error
		ids, err = s.createNewFilters(prefilters)
		return err
	})
	return ids, err
}

func (s *Store) createNewFilters(prefilters []Prefilter) ([]int, error) {
	if len(prefilters) == 0 {
		return nil, nil
	}
	group := s.newGroup(types.KindFilter)
	groupNumber := s.allocGroupNumber()
	ids := make([]int, 0, len(prefilters))
	for _, pre := range prefilters {
		filter := &types.Filter{
			ID:          s.allocFilterID(),
			Kind:        types.KindFilter,
			Description: pre.Description,
			GroupID:     group.ID,
			GroupNumber: groupNumber,
			Data:        &types.ConditionData{Domain: pre.Domain, Context: pre.Context},
		}
		s.filters[filter.ID] = filter
		group.ActiveFilterIDs = append(group.ActiveFilterIDs, types.ActivePair{FilterID: filter.ID})
		ids = append(ids, filter.ID)
	}
	s.query = append(s.query, group.ID)
	return ids, nil
}

// CreateNewGroupBy adds a group-by filter on the named field and activates
// it. The field must exist in the view and be sortable. Temporal fields get
// interval options and start on the default interval.
func (s *Store) CreateNewGroupBy(fieldName string) (int, error) {
	var id int
	err := s.mutate(func() error {
		var err error
		id, err = s.createNewGroupBy(fieldName)
		return err
	})
	return id, err
}

func (s *Store) createNewGroupBy(fieldName string) (int, error) {
	field, ok := s.fields[fieldName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, fieldName)
	}
	if !field.Sortable {
		return 0, fmt.Errorf("field %s is not sortable", fieldName)
	}

	group := s.groupOfKind(types.KindGroupBy)
	if group == nil {
		group = s.newGroup(types.KindGroupBy)
	}

	data := &types.GroupByData{FieldName: fieldName, FieldType: field.Type}
	if schema.IsTemporal(field.Type) {
		data.HasOptions = true
		data.Options = params.IntervalOptions()
		data.DefaultOptionID = params.DefaultInterval
	}
	filter := &types.Filter{
		ID:          s.allocFilterID(),
		Kind:        types.KindGroupBy,
		Description: field.String,
		GroupID:     group.ID,
		GroupNumber: s.allocGroupNumber(),
		Data:        data,
	}
	if filter.Description == "" {
		filter.Description = fieldName
	}
	s.filters[filter.ID] = filter

	if data.HasOptions {
		return filter.ID, s.toggleFilterWithOptions(filter.ID, "")
	}
	return filter.ID, s.toggleFilter(filter.ID)
}

// ActivateTimeRange activates a time range on the given field, reusing an
// existing time range filter with the same parameters if one exists. Time
// ranges are mutually exclusive: an already active range is replaced.
func (s *Store) ActivateTimeRange(fieldName, rangeID, comparisonRangeID string) error {
	return s.mutate(func() error {
		return s.activateTimeRange(fieldName, rangeID, comparisonRangeID)
	})
}

func (s *Store) activateTimeRange(fieldName, rangeID, comparisonRangeID string) error {
	field, ok := s.fields[fieldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, fieldName)
	}
	rangeExpr, err := params.ConstructRange(fieldName, rangeID, field.Type, s.referenceTime)
	if err != nil {
		return err
	}

	rangeDesc, _ := params.RangeDescription(rangeID)
	data := &types.TimeRangeData{
		FieldName:        fieldName,
		FieldDescription: field.String,
		RangeID:          rangeID,
		Range:            rangeExpr,
		RangeDescription: rangeDesc,
	}
	if comparisonRangeID != "" {
		comparison, err := params.ConstructComparisonRange(fieldName, rangeID, field.Type, comparisonRangeID, s.referenceTime)
		if err != nil {
			return err
		}
		comparisonDesc, _ := params.ComparisonDescription(comparisonRangeID)
		data.ComparisonRangeID = comparisonRangeID
		data.ComparisonRange = comparison
		data.ComparisonRangeDescription = comparisonDesc
	}

	group := s.groupOfKind(types.KindTimeRange)
	if group == nil {
		group = s.newGroup(types.KindTimeRange)
	}

	filter := s.findTimeRangeFilter(group.ID, fieldName, rangeID, comparisonRangeID)
	if filter == nil {
		filter = &types.Filter{
			ID:          s.allocFilterID(),
			Kind:        types.KindTimeRange,
			Description: data.FieldDescription,
			GroupID:     group.ID,
			Data:        data,
		}
		s.filters[filter.ID] = filter
	} else {
		// Refresh the computed ranges against the current reference time.
		filter.Data = data
	}

	if len(group.ActiveFilterIDs) > 0 {
		group.ActiveFilterIDs = []types.ActivePair{{FilterID: filter.ID}}
		return nil
	}
	return s.toggleFilter(filter.ID)
}

func (s *Store) findTimeRangeFilter(groupID int, fieldName, rangeID, comparisonRangeID string) *types.Filter {
	for _, f := range s.filters {
		if f.GroupID != groupID {
			continue
		}
		data, ok := f.Data.(*types.TimeRangeData)
		if !ok {
			continue
		}
		if data.FieldName == fieldName && data.RangeID == rangeID && data.ComparisonRangeID == comparisonRangeID {
			return f
		}
	}
	return nil
}

// DeactivateGroup deactivates every filter of a group and resets their
// transient state (autocompletion values, selected options).
func (s *Store) DeactivateGroup(groupID int) error {
	return s.mutate(func() error {
		return s.deactivateGroup(groupID)
	})
}

func (s *Store) deactivateGroup(groupID int) error {
	g, err := s.groupByID(groupID)
	if err != nil {
		return err
	}
	for _, pair := range g.ActiveFilterIDs {
		if f, ok := s.filters[pair.FilterID]; ok {
			resetFilterState(f)
		}
	}
	if len(g.ActiveFilterIDs) == 0 {
		return nil
	}
	g.ActiveFilterIDs = nil
	s.removeFromQuery(g.ID)
	return nil
}

// ClearQuery deactivates every group in the query.
func (s *Store) ClearQuery() error {
	return s.mutate(func() error {
		s.clearQuery()
		return nil
	})
}

func (s *Store) clearQuery() {
	for _, groupID := range s.query {
		g := s.groups[groupID]
		for _, pair := range g.ActiveFilterIDs {
			if f, ok := s.filters[pair.FilterID]; ok {
				resetFilterState(f)
			}
		}
		g.ActiveFilterIDs = nil
	}
	s.query = nil
}

func resetFilterState(f *types.Filter) {
	switch data := f.Data.(type) {
	case *types.FieldData:
		data.AutoCompleteValues = nil
		data.Domain = nil
	case *types.ConditionData:
		data.CurrentOptionIDs = nil
	case *types.GroupByData:
		data.CurrentOptionIDs = nil
	}
}

// ToggleAutoCompletionFilter records a value picked for a field filter,
// recomputes the filter's domain as the disjunction over all recorded
// values, and ensures the filter is active.
func (s *Store) ToggleAutoCompletionFilter(payload ToggleAutoCompletion) error {
	return s.mutate(func() error {
		return s.toggleAutoCompletionFilter(payload)
	})
}

func (s *Store) toggleAutoCompletionFilter(payload ToggleAutoCompletion) error {
	f, err := s.filterByID(payload.FilterID)
	if err != nil {
		return err
	}
	data, ok := f.Data.(*types.FieldData)
	if !ok {
		return fmt.Errorf("filter %d is not a field filter", payload.FilterID)
	}

	data.AutoCompleteValues = append(data.AutoCompleteValues, types.AutoCompleteValue{
		Label: payload.Label,
		Value: payload.Value,
	})
	expr, err := autoCompletionDomain(data)
	if err != nil {
		data.AutoCompleteValues = data.AutoCompleteValues[:len(data.AutoCompleteValues)-1]
		return err
	}
	data.Domain = expr

	g, err := s.groupByID(f.GroupID)
	if err != nil {
		return err
	}
	if indexOfFilter(g.ActiveFilterIDs, f.ID) < 0 {
		return s.toggleFilter(f.ID)
	}
	return nil
}

// autoCompletionDomain builds the disjunction over the recorded values. A
// value with a concrete id matches by equality; otherwise the filter's
// domain template is instantiated with the label, falling back to the
// field's text operator.
func autoCompletionDomain(data *types.FieldData) (domain.Expr, error) {
	exprs := make([]domain.Expr, 0, len(data.AutoCompleteValues))
	for _, value := range data.AutoCompleteValues {
		switch {
		case value.Value != nil:
			exprs = append(exprs, domain.Leaf{Field: data.FieldName, Op: "=", Value: value.Value})
		case data.FilterDomain != nil:
			expr, err := domain.Evaluate(data.FilterDomain, map[string]interface{}{
				"self":      value.Label,
				"raw_value": value.Label,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate filter domain: %w", err)
			}
			exprs = append(exprs, expr)
		default:
			op := data.Operator
			if op == "" {
				op = defaultFieldOperator(data.FieldType)
			}
			exprs = append(exprs, domain.Leaf{Field: data.FieldName, Op: op, Value: value.Label})
		}
	}
	return domain.Combine(exprs, domain.OrOp), nil
}

func defaultFieldOperator(fieldType string) string {
	switch fieldType {
	case "char", "text", "html", "many2many", "one2many":
		return "ilike"
	default:
		return "="
	}
}

// CreateNewFavorite captures the current query as a favorite: the record is
// persisted first, and only on success is the query cleared and the new
// favorite activated. A persistence failure leaves the store untouched.
func (s *Store) CreateNewFavorite(ctx context.Context, pre PreFavorite) (int, error) {
	var record persist.FilterRecord
	err := s.lock.Execute(locking.ReadOperation, func() error {
		var err error
		record, err = s.buildFavoriteRecord(pre)
		return err
	})
	if err != nil {
		return 0, err
	}

	serverSideID, err := s.gateway.Create(ctx, record)
	if err != nil {
		return 0, fmt.Errorf("failed to save favorite %q: %w", pre.Description, err)
	}

	var id int
	err = s.mutate(func() error {
		var err error
		id, err = s.commitFavorite(record, serverSideID)
		return err
	})
	return id, err
}

func (s *Store) buildFavoriteRecord(pre PreFavorite) (persist.FilterRecord, error) {
	queryContext, err := s.contextMap()
	if err != nil {
		return persist.FilterRecord{}, err
	}
	expr, err := s.domainExpr(false)
	if err != nil {
		return persist.FilterRecord{}, err
	}

	ctx := make(map[string]interface{}, len(queryContext)+2)
	for k, v := range queryContext {
		ctx[k] = v
	}
	if groupBys := s.groupByList(); len(groupBys) > 0 {
		ctx["group_by"] = groupBys
	}
	if spec := s.timeRangeSpec(); spec != nil {
		ctx["time_ranges"] = map[string]interface{}{
			"field":            spec.Field,
			"range":            spec.RangeID,
			"comparison_range": spec.ComparisonRange,
		}
	}

	var sortSpec []string
	for _, clause := range s.orderedBy() {
		if clause.Asc {
			sortSpec = append(sortSpec, clause.Name)
		} else {
			sortSpec = append(sortSpec, clause.Name+" desc")
		}
	}

	userID := s.userID
	if pre.IsShared {
		userID = 0
	}

	return persist.FilterRecord{
		Name:      pre.Description,
		Context:   ctx,
		Domain:    domain.Serialize(expr),
		IsDefault: pre.IsDefault,
		UserID:    userID,
		ModelName: s.modelName,
		ActionID:  s.actionID,
		Sort:      sortSpec,
	}, nil
}

// commitFavorite installs a freshly persisted favorite: the query is
// cleared and replaced by the new favorite alone.
func (s *Store) commitFavorite(record persist.FilterRecord, serverSideID string) (int, error) {
	s.clearQuery()

	stored := persist.StoredFilter{ID: serverSideID, FilterRecord: record}
	filter, err := favoriteFromRecord(stored)
	if err != nil {
		return 0, err
	}
	filter.ID = s.allocFilterID()
	group := s.newGroup(types.KindFavorite)
	filter.GroupID = group.ID
	s.filters[filter.ID] = filter

	group.ActiveFilterIDs = []types.ActivePair{{FilterID: filter.ID}}
	s.query = append(s.query, group.ID)
	return filter.ID, nil
}

// DeleteFavorite removes a favorite from the server and then from the
// catalog. A persistence failure leaves the store untouched. This is the
// only action that removes entities.
func (s *Store) DeleteFavorite(ctx context.Context, filterID int) error {
	var serverSideID string
	err := s.lock.Execute(locking.ReadOperation, func() error {
		f, err := s.filterByID(filterID)
		if err != nil {
			return err
		}
		data, ok := f.Data.(*types.FavoriteData)
		if !ok {
			return fmt.Errorf("filter %d is not a favorite", filterID)
		}
		serverSideID = data.ServerSideID
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.gateway.Delete(ctx, serverSideID); err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}

	return s.mutate(func() error {
		f, err := s.filterByID(filterID)
		if err != nil {
			return err
		}
		g, err := s.groupByID(f.GroupID)
		if err != nil {
			return err
		}
		if indexOfFilter(g.ActiveFilterIDs, filterID) >= 0 {
			if err := s.toggleFilter(filterID); err != nil {
				return err
			}
		}
		delete(s.groups, g.ID)
		delete(s.filters, filterID)
		return nil
	})
}

// UpdateFilters creates the given prefilters as a new group and deactivates
// the listed filters, as one atomic action. Returns the new filter ids.
func (s *Store) UpdateFilters(newFilters []Prefilter, deactivate []int) ([]int, error) {
	var ids []int
	err := s.mutate(func() error {
		var err error
		ids, err = s.createNewFilters(newFilters)
		if err != nil {
			return err
		}
		for _, filterID := range deactivate {
			f, ferr := s.filterByID(filterID)
			if ferr != nil {
				return ferr
			}
			g, gerr := s.groupByID(f.GroupID)
			if gerr != nil {
				return gerr
			}
			if indexOfFilter(g.ActiveFilterIDs, filterID) >= 0 {
				if terr := s.toggleFilter(filterID); terr != nil {
					return terr
				}
			}
		}
		return nil
	})
	return ids, err
}

// mutate runs fn under the write lock and notifies observers on success.
func (s *Store) mutate(fn func() error) error {
	err := s.lock.Execute(locking.WriteOperation, fn)
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) removeFromQuery(groupID int) {
	if idx := indexOfGroup(s.query, groupID); idx >= 0 {
		s.query = append(s.query[:idx], s.query[idx+1:]...)
	}
}

func indexOfGroup(query []int, groupID int) int {
	for i, id := range query {
		if id == groupID {
			return i
		}
	}
	return -1
}

func indexOfFilter(pairs []types.ActivePair, filterID int) int {
	for i, pair := range pairs {
		if pair.FilterID == filterID {
			return i
		}
	}
	return -1
}

func indexOfPair(pairs []types.ActivePair, pair types.ActivePair) int {
	for i, p := range pairs {
		if p == pair {
			return i
		}
	}
	return -1
}

func indexOfString(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return -1
}

func anyYearOption(optionIDs []string) bool {
	for _, id := range optionIDs {
		if params.IsYearOption(id) {
			return true
		}
	}
	return false
}

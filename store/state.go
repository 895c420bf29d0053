package store

import (
	"github.com/searchdeck/searchdeck/internal/locking"
	"github.com/searchdeck/searchdeck/types"
)

// State is a self-contained snapshot of a store's filters, groups and query
// sequence, suitable for handing over to another store instance.
type State struct {
	Filters map[int]*types.Filter
	Groups  map[int]*types.Group
	Query   []int

	NextFilterID int
	NextGroupID  int
	GroupNumber  int
}

// ExportState deep-copies the store state. The snapshot shares nothing with
// the live store.
func (s *Store) ExportState() *State {
	state := &State{}
	s.lock.Execute(locking.ReadOperation, func() error {
		state.Filters = make(map[int]*types.Filter, len(s.filters))
		for id, f := range s.filters {
			state.Filters[id] = cloneFilter(f)
		}
		state.Groups = make(map[int]*types.Group, len(s.groups))
		for id, g := range s.groups {
			state.Groups[id] = cloneGroup(g)
		}
		state.Query = append([]int(nil), s.query...)
		state.NextFilterID = s.nextFilterID
		state.NextGroupID = s.nextGroupID
		state.GroupNumber = s.groupNumber
		return nil
	})
	return state
}

// ImportState replaces the store state with a snapshot. Observers are
// notified once.
func (s *Store) ImportState(state *State) {
	s.mutate(func() error {
		s.filters = make(map[int]*types.Filter, len(state.Filters))
		for id, f := range state.Filters {
			s.filters[id] = cloneFilter(f)
		}
		s.groups = make(map[int]*types.Group, len(state.Groups))
		for id, g := range state.Groups {
			s.groups[id] = cloneGroup(g)
		}
		s.query = append([]int(nil), state.Query...)
		s.nextFilterID = state.NextFilterID
		s.nextGroupID = state.NextGroupID
		s.groupNumber = state.GroupNumber
		return nil
	})
}

func cloneGroup(g *types.Group) *types.Group {
	clone := *g
	clone.ActiveFilterIDs = append([]types.ActivePair(nil), g.ActiveFilterIDs...)
	return &clone
}

func cloneFilter(f *types.Filter) *types.Filter {
	clone := *f
	clone.Data = cloneFilterData(f.Data)
	return &clone
}

// cloneFilterData copies the mutable parts of the filter payloads. Domain
// expressions and options are never mutated in place, so sharing them is
// safe.
func cloneFilterData(data types.FilterData) types.FilterData {
	switch d := data.(type) {
	case *types.ConditionData:
		clone := *d
		clone.Context = cloneContext(d.Context)
		clone.CurrentOptionIDs = append([]string(nil), d.CurrentOptionIDs...)
		return &clone
	case *types.GroupByData:
		clone := *d
		clone.CurrentOptionIDs = append([]string(nil), d.CurrentOptionIDs...)
		return &clone
	case *types.TimeRangeData:
		clone := *d
		return &clone
	case *types.FavoriteData:
		clone := *d
		clone.Context = cloneContext(d.Context)
		clone.GroupBys = append([]string(nil), d.GroupBys...)
		clone.OrderedBy = append([]types.OrderClause(nil), d.OrderedBy...)
		if d.TimeRanges != nil {
			spec := *d.TimeRanges
			clone.TimeRanges = &spec
		}
		return &clone
	case *types.FieldData:
		clone := *d
		clone.Context = cloneContext(d.Context)
		clone.AutoCompleteValues = append([]types.AutoCompleteValue(nil), d.AutoCompleteValues...)
		return &clone
	default:
		return data
	}
}

func cloneContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		clone[k] = v
	}
	return clone
}

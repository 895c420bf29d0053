package store_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/searchdeck/searchdeck/domain"
	"github.com/searchdeck/searchdeck/store"
	"github.com/searchdeck/searchdeck/testutil"
	"github.com/searchdeck/searchdeck/types"
)

func TestToggleFilterRoundTrip(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})
	before := evaluatedDomain(t, u.Store)

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	if got := evaluatedDomain(t, u.Store); got != `[["priority","=","high"]]` {
		t.Errorf("domain after activation = %s", got)
	}
	checkGroupQueryInvariant(t, u.Store)

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter back: %v", err)
	}
	if got := evaluatedDomain(t, u.Store); got != before {
		t.Errorf("domain after round trip = %s, want %s", got, before)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestToggleUnknownFilter(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})
	if err := u.Store.ToggleFilter(999); !errors.Is(err, store.ErrUnknownFilter) {
		t.Errorf("expected ErrUnknownFilter, got %v", err)
	}
}

func TestSameGroupFiltersDisjoin(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.MyOrders); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}

	want := `["|",["user_id","=",7],["priority","=","high"]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDistinctGroupsConjoin(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.MyOrders); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	err := u.Store.ToggleAutoCompletionFilter(store.ToggleAutoCompletion{
		FilterID: u.Partner,
		Label:    "Acme",
		Value:    5,
	})
	if err != nil {
		t.Fatalf("failed to toggle autocompletion: %v", err)
	}

	want := `["&",["user_id","=",7],["partner_id","=",5]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDateOptionsScopePeriodsByYear(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	// Activating with the default option also selects the default year.
	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, ""); err != nil {
		t.Fatalf("failed to toggle date filter: %v", err)
	}
	want := `["&",["date_order",">=","2024-04-01 00:00:00"],["date_order","<=","2024-04-30 23:59:59"]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}

	// Shifting the year rescopes the selected month. The new year is added
	// before the old one is removed so a year stays selected throughout.
	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, "last_year"); err != nil {
		t.Fatalf("failed to select last year: %v", err)
	}
	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, "this_year"); err != nil {
		t.Fatalf("failed to deselect year: %v", err)
	}
	want = `["&",["date_order",">=","2023-04-01 00:00:00"],["date_order","<=","2023-04-30 23:59:59"]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDateFilterYearOnlySelection(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, "this_year"); err != nil {
		t.Fatalf("failed to toggle date filter: %v", err)
	}
	want := `["&",["date_order",">=","2024-01-01 00:00:00"],["date_order","<=","2024-12-31 23:59:59"]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}
}

func TestDateFilterDeactivatesWhenLastYearRemoved(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, "this_month"); err != nil {
		t.Fatalf("failed to toggle date filter: %v", err)
	}
	// Removing the only year option clears the whole selection.
	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, "this_year"); err != nil {
		t.Fatalf("failed to remove year option: %v", err)
	}
	if got := evaluatedDomain(t, u.Store); got != "[]" {
		t.Errorf("domain = %s, want []", got)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestGroupByIntervalPairsToggleIndependently(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilterWithOptions(u.ByOrderDate, "month"); err != nil {
		t.Fatalf("failed to toggle interval: %v", err)
	}
	if err := u.Store.ToggleFilterWithOptions(u.ByOrderDate, "week"); err != nil {
		t.Fatalf("failed to toggle interval: %v", err)
	}
	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	want := []string{"date_order:month", "date_order:week"}
	if !reflect.DeepEqual(query.GroupBy, want) {
		t.Errorf("groupBy = %v, want %v", query.GroupBy, want)
	}

	if err := u.Store.ToggleFilterWithOptions(u.ByOrderDate, "month"); err != nil {
		t.Fatalf("failed to remove interval: %v", err)
	}
	query, err = u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if !reflect.DeepEqual(query.GroupBy, []string{"date_order:week"}) {
		t.Errorf("groupBy = %v, want [date_order:week]", query.GroupBy)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestCreateNewFiltersShareGroupNumber(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	expr, err := domain.Parse(`[["amount",">",1000]]`)
	if err != nil {
		t.Fatalf("failed to parse domain: %v", err)
	}
	ids, err := u.Store.CreateNewFilters([]store.Prefilter{
		{Description: "Big", Domain: expr},
		{Description: "Small", Domain: domain.Leaf{Field: "amount", Op: "<", Value: 10}},
	})
	if err != nil {
		t.Fatalf("failed to create filters: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 new filter ids, got %d", len(ids))
	}

	// Both are active immediately, as one disjunction.
	want := `["|",["amount",">",1000],["amount","<",10]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}

	views := u.Store.FiltersOfKind(types.KindFilter)
	numbers := make(map[int]int)
	for _, v := range views {
		if v.ID == ids[0] || v.ID == ids[1] {
			numbers[v.GroupNumber]++
		}
	}
	if len(numbers) != 1 {
		t.Errorf("new filters should share one group number, got %v", numbers)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestCreateNewGroupByActivates(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	id, err := u.Store.CreateNewGroupBy("amount")
	if err != nil {
		t.Fatalf("failed to create group-by: %v", err)
	}
	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if !reflect.DeepEqual(query.GroupBy, []string{"amount"}) {
		t.Errorf("groupBy = %v", query.GroupBy)
	}

	// It lands in the shared group-by group.
	existing := u.Store.FiltersOfKind(types.KindGroupBy)
	var created store.FilterView
	for _, v := range existing {
		if v.ID == id {
			created = v
		}
	}
	if created.GroupID == 0 || created.GroupID != existing[0].GroupID {
		t.Errorf("created group-by should join the existing group-by group")
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestCreateNewGroupByTemporalUsesDefaultInterval(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if _, err := u.Store.CreateNewGroupBy("date_order"); err != nil {
		t.Fatalf("failed to create group-by: %v", err)
	}
	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if !reflect.DeepEqual(query.GroupBy, []string{"date_order:month"}) {
		t.Errorf("groupBy = %v", query.GroupBy)
	}
}

func TestCreateNewGroupByRejectsUnsortableField(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if _, err := u.Store.CreateNewGroupBy("note"); err == nil {
		t.Error("expected an error for an unsortable field")
	}
	if _, err := u.Store.CreateNewGroupBy("missing"); !errors.Is(err, store.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestTimeRangesAreMutuallyExclusive(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ActivateTimeRange("date_order", "this_month", ""); err != nil {
		t.Fatalf("failed to activate time range: %v", err)
	}
	if err := u.Store.ActivateTimeRange("date_order", "last_week", "previous_period"); err != nil {
		t.Fatalf("failed to replace time range: %v", err)
	}

	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if query.TimeRanges == nil {
		t.Fatal("expected an active time range")
	}
	if query.TimeRanges.RangeDescription != "Last Week" {
		t.Errorf("range = %s, want Last Week", query.TimeRanges.RangeDescription)
	}
	if query.TimeRanges.ComparisonRange == nil {
		t.Error("expected a comparison range")
	}
	if query.TimeRanges.ComparisonRangeDescription != "Previous Period" {
		t.Errorf("comparison = %s", query.TimeRanges.ComparisonRangeDescription)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestActivateTimeRangeUnknownInputs(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ActivateTimeRange("missing", "this_month", ""); !errors.Is(err, store.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if err := u.Store.ActivateTimeRange("date_order", "whenever", ""); err == nil {
		t.Error("expected an error for an unknown range id")
	}
}

func TestDeactivateGroupResetsFilterState(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	err := u.Store.ToggleAutoCompletionFilter(store.ToggleAutoCompletion{
		FilterID: u.Partner, Label: "Acme", Value: 5,
	})
	if err != nil {
		t.Fatalf("failed to toggle autocompletion: %v", err)
	}

	var fieldGroup int
	for _, v := range u.Store.FiltersOfKind(types.KindField) {
		if v.ID == u.Partner {
			fieldGroup = v.GroupID
		}
	}
	if err := u.Store.DeactivateGroup(fieldGroup); err != nil {
		t.Fatalf("failed to deactivate group: %v", err)
	}
	if got := evaluatedDomain(t, u.Store); got != "[]" {
		t.Errorf("domain = %s, want []", got)
	}

	// Reactivating starts from a clean slate.
	err = u.Store.ToggleAutoCompletionFilter(store.ToggleAutoCompletion{
		FilterID: u.Partner, Label: "Globex", Value: 9,
	})
	if err != nil {
		t.Fatalf("failed to toggle autocompletion: %v", err)
	}
	if got := evaluatedDomain(t, u.Store); got != `[["partner_id","=",9]]` {
		t.Errorf("domain = %s", got)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestClearQueryDeactivatesEverything(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.MyOrders); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	if err := u.Store.ToggleFilterWithOptions(u.OrderDate, ""); err != nil {
		t.Fatalf("failed to toggle date filter: %v", err)
	}
	if err := u.Store.ToggleFilter(u.ByStatus); err != nil {
		t.Fatalf("failed to toggle group-by: %v", err)
	}
	if err := u.Store.ActivateTimeRange("date_order", "this_month", ""); err != nil {
		t.Fatalf("failed to activate time range: %v", err)
	}

	if err := u.Store.ClearQuery(); err != nil {
		t.Fatalf("failed to clear query: %v", err)
	}
	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if got := domain.Serialize(query.Domain); got != "[]" {
		t.Errorf("domain = %s, want []", got)
	}
	if len(query.GroupBy) != 0 {
		t.Errorf("groupBy = %v, want none", query.GroupBy)
	}
	if query.TimeRanges != nil {
		t.Errorf("time ranges should be cleared")
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestAutoCompletionAccumulatesValues(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	for _, pick := range []store.ToggleAutoCompletion{
		{FilterID: u.Partner, Label: "Acme", Value: 5},
		{FilterID: u.Partner, Label: "Globex", Value: 9},
		{FilterID: u.Partner, Label: "Initech"},
	} {
		if err := u.Store.ToggleAutoCompletionFilter(pick); err != nil {
			t.Fatalf("failed to toggle autocompletion: %v", err)
		}
	}

	// A value without an id matches by equality on a many2one field.
	want := `["|","|",["partner_id","=",5],["partner_id","=",9],["partner_id","=","Initech"]]`
	if got := evaluatedDomain(t, u.Store); got != want {
		t.Errorf("domain = %s, want %s", got, want)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestUpdateFiltersSwapsActivation(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	ids, err := u.Store.UpdateFilters([]store.Prefilter{
		{Description: "Big", Domain: domain.Leaf{Field: "amount", Op: ">", Value: 1000}},
	}, []int{u.Urgent})
	if err != nil {
		t.Fatalf("failed to update filters: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 new filter id, got %d", len(ids))
	}
	if got := evaluatedDomain(t, u.Store); got != `[["amount",">",1000]]` {
		t.Errorf("domain = %s", got)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestCreateNewFavoriteRoundTrip(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.MyOrders); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	if err := u.Store.ToggleFilter(u.ByStatus); err != nil {
		t.Fatalf("failed to toggle group-by: %v", err)
	}
	if err := u.Store.ActivateTimeRange("date_order", "this_month", ""); err != nil {
		t.Fatalf("failed to activate time range: %v", err)
	}
	wantDomain := evaluatedDomain(t, u.Store)

	id, err := u.Store.CreateNewFavorite(context.Background(), store.PreFavorite{
		Description: "April orders",
	})
	if err != nil {
		t.Fatalf("failed to create favorite: %v", err)
	}
	if u.Gateway.Len() != 1 {
		t.Fatalf("expected 1 persisted record, got %d", u.Gateway.Len())
	}

	// The favorite replaces the query it captured and derives the same
	// domain, with the symbolic parts re-evaluated.
	query, err := u.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if got := domain.Serialize(query.Domain); got != wantDomain {
		t.Errorf("domain = %s, want %s", got, wantDomain)
	}
	if !reflect.DeepEqual(query.GroupBy, []string{"status"}) {
		t.Errorf("groupBy = %v, want [status]", query.GroupBy)
	}

	favorites := u.Store.FiltersOfKind(types.KindFavorite)
	if len(favorites) != 1 || favorites[0].ID != id {
		t.Fatalf("favorites = %+v", favorites)
	}
	if !favorites[0].IsActive {
		t.Error("new favorite should be active")
	}
	checkGroupQueryInvariant(t, u.Store)

	// A fresh store over the same gateway sees the favorite and derives
	// the same query from it.
	reloaded := testutil.NewStore(t, store.Config{Gateway: u.Gateway})
	saved := reloaded.Store.FiltersOfKind(types.KindFavorite)
	if len(saved) != 1 {
		t.Fatalf("expected 1 favorite after reload, got %d", len(saved))
	}
	if err := reloaded.Store.ToggleFilter(saved[0].ID); err != nil {
		t.Fatalf("failed to activate reloaded favorite: %v", err)
	}
	query, err = reloaded.Store.Query()
	if err != nil {
		t.Fatalf("failed to derive query: %v", err)
	}
	if got := domain.Serialize(query.Domain); got != wantDomain {
		t.Errorf("reloaded domain = %s, want %s", got, wantDomain)
	}
	if !reflect.DeepEqual(query.GroupBy, []string{"status"}) {
		t.Errorf("reloaded groupBy = %v", query.GroupBy)
	}
}

func TestCreateNewFavoriteSharedUser(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	if _, err := u.Store.CreateNewFavorite(context.Background(), store.PreFavorite{
		Description: "Everyone",
		IsShared:    true,
	}); err != nil {
		t.Fatalf("failed to create favorite: %v", err)
	}

	favorites := u.Store.FiltersOfKind(types.KindFavorite)
	if len(favorites) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(favorites))
	}
	if favorites[0].GroupNumber != 2 {
		t.Errorf("shared favorite group number = %d, want 2", favorites[0].GroupNumber)
	}
}

func TestCreateNewFavoritePersistenceFailureLeavesStateUntouched(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})
	u.Gateway.CreateErr = errors.New("server unreachable")

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	before := evaluatedDomain(t, u.Store)

	_, err := u.Store.CreateNewFavorite(context.Background(), store.PreFavorite{Description: "Doomed"})
	if err == nil {
		t.Fatal("expected an error from the failing gateway")
	}
	if u.Gateway.Len() != 0 {
		t.Errorf("failed create should persist nothing")
	}
	if got := evaluatedDomain(t, u.Store); got != before {
		t.Errorf("domain changed across failed create: %s", got)
	}
	if len(u.Store.FiltersOfKind(types.KindFavorite)) != 0 {
		t.Error("no favorite should be committed")
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDeleteFavorite(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	id, err := u.Store.CreateNewFavorite(context.Background(), store.PreFavorite{Description: "Temp"})
	if err != nil {
		t.Fatalf("failed to create favorite: %v", err)
	}

	if err := u.Store.DeleteFavorite(context.Background(), id); err != nil {
		t.Fatalf("failed to delete favorite: %v", err)
	}
	if u.Gateway.Len() != 0 {
		t.Errorf("record should be deleted from the gateway")
	}
	if len(u.Store.FiltersOfKind(types.KindFavorite)) != 0 {
		t.Error("favorite should be removed from the catalog")
	}
	if got := evaluatedDomain(t, u.Store); got != "[]" {
		t.Errorf("domain = %s, want []", got)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDeleteFavoritePersistenceFailureLeavesStateUntouched(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})

	if err := u.Store.ToggleFilter(u.Urgent); err != nil {
		t.Fatalf("failed to toggle filter: %v", err)
	}
	id, err := u.Store.CreateNewFavorite(context.Background(), store.PreFavorite{Description: "Sticky"})
	if err != nil {
		t.Fatalf("failed to create favorite: %v", err)
	}

	u.Gateway.DeleteErr = errors.New("server unreachable")
	if err := u.Store.DeleteFavorite(context.Background(), id); err == nil {
		t.Fatal("expected an error from the failing gateway")
	}
	if u.Gateway.Len() != 1 {
		t.Errorf("record should survive the failed delete")
	}
	favorites := u.Store.FiltersOfKind(types.KindFavorite)
	if len(favorites) != 1 || !favorites[0].IsActive {
		t.Errorf("favorite should stay active, got %+v", favorites)
	}
	checkGroupQueryInvariant(t, u.Store)
}

func TestDeleteFavoriteRejectsOtherKinds(t *testing.T) {
	u := testutil.NewStore(t, store.Config{})
	if err := u.Store.DeleteFavorite(context.Background(), u.Urgent); err == nil {
		t.Error("expected an error deleting a non-favorite")
	}
}

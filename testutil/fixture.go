// Package testutil provides the canonical search view fixture used across
// the test suites: a sales-order-flavored view exercising every filter
// kind, and helpers to build stores on top of it.
package testutil

import (
	"testing"
	"time"

	"github.com/searchdeck/searchdeck/persist"
	"github.com/searchdeck/searchdeck/schema"
	"github.com/searchdeck/searchdeck/store"
	"github.com/searchdeck/searchdeck/types"
)

// ReferenceTime anchors all relative date computation in tests: a Monday in
// mid April.
var ReferenceTime = time.Date(2024, time.April, 15, 10, 30, 0, 0, time.UTC)

// ViewYAML is the canonical view definition: two condition filters, a date
// filter, an autocomplete field, and two group-bys, separated into distinct
// option groups.
const ViewYAML = `
items:
  - kind: filter
    name: my_orders
    string: My Orders
    domain: '[["user_id","=",{"$var":"uid"}]]'
  - kind: filter
    name: urgent
    string: Urgent
    domain: '[["priority","=","high"]]'
    context: {show_banner: true}
  - kind: separator
  - kind: filter
    name: order_date
    string: Order Date
    date: date_order
  - kind: field
    name: partner
    field: partner_id
  - kind: groupBy
    name: by_status
    string: Status
    field: status
  - kind: groupBy
    name: by_order_date
    string: Order Date
    field: date_order

fields:
  user_id:
    type: many2one
    string: Salesperson
    sortable: true
  priority:
    type: selection
    string: Priority
    sortable: true
    selection:
      - {value: low, label: Low}
      - {value: high, label: High}
  date_order:
    type: datetime
    string: Order Date
    sortable: true
  partner_id:
    type: many2one
    string: Customer
    sortable: true
  status:
    type: selection
    string: Status
    sortable: true
    selection:
      - {value: draft, label: Draft}
      - {value: done, label: Done}
  amount:
    type: float
    string: Amount
    sortable: true
  note:
    type: text
    string: Note
    sortable: false
`

// Universe exposes the fixture store together with the ids of its named
// filters, looked up once so tests do not repeat the scan.
type Universe struct {
	Store   *store.Store
	Gateway *persist.MemoryGateway

	MyOrders    int
	Urgent      int
	OrderDate   int
	Partner     int
	ByStatus    int
	ByOrderDate int
}

// View parses the canonical view definition.
func View(t *testing.T) *schema.View {
	t.Helper()
	view, err := schema.ParseView([]byte(ViewYAML))
	if err != nil {
		t.Fatalf("failed to parse fixture view: %v", err)
	}
	return view
}

// NewStore builds a store over the canonical view. The config's View,
// Gateway, ModelName, UserID and ReferenceTime are filled in when unset.
func NewStore(t *testing.T, cfg store.Config) *Universe {
	t.Helper()
	gateway, _ := cfg.Gateway.(*persist.MemoryGateway)
	if cfg.Gateway == nil {
		gateway = persist.NewMemoryGateway()
		cfg.Gateway = gateway
	}
	if cfg.View == nil {
		cfg.View = View(t)
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "sale.order"
	}
	if cfg.UserID == 0 {
		cfg.UserID = 7
	}
	if cfg.ReferenceTime.IsZero() {
		cfg.ReferenceTime = ReferenceTime
	}

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	u := &Universe{Store: s, Gateway: gateway}
	u.MyOrders = FilterID(t, s, types.KindFilter, "My Orders")
	u.Urgent = FilterID(t, s, types.KindFilter, "Urgent")
	u.OrderDate = FilterID(t, s, types.KindFilter, "Order Date")
	u.Partner = FilterID(t, s, types.KindField, "Customer")
	u.ByStatus = FilterID(t, s, types.KindGroupBy, "Status")
	u.ByOrderDate = FilterID(t, s, types.KindGroupBy, "Order Date")
	return u
}

// FilterID resolves a filter id by kind and description.
func FilterID(t *testing.T, s *store.Store, kind types.Kind, description string) int {
	t.Helper()
	for _, view := range s.FiltersOfKind(kind) {
		if view.Description == description {
			return view.ID
		}
	}
	t.Fatalf("no %s filter named %q", kind, description)
	return 0
}

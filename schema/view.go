// Package schema defines declarative search view descriptions: the ordered
// filter items a view exposes and the field descriptors they reference.
// Views are written in YAML and parsed into the runs of items the store
// turns into filter groups.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field describes one searchable model field, consumed read-only.
type Field struct {
	Type     string `yaml:"type"`
	String   string `yaml:"string"`
	Sortable bool   `yaml:"sortable"`
	// Selection lists the allowed values of selection fields as
	// [value, label] pairs.
	Selection []SelectionEntry `yaml:"selection"`
}

// SelectionEntry is one allowed value of a selection field.
type SelectionEntry struct {
	Value interface{} `yaml:"value"`
	Label string      `yaml:"label"`
}

// FieldSet maps field names to their descriptors.
type FieldSet map[string]Field

// Item kinds accepted in a view definition.
const (
	ItemFilter    = "filter"
	ItemGroupBy   = "groupBy"
	ItemField     = "field"
	ItemSeparator = "separator"
)

// Item is one entry of a view definition.
type Item struct {
	Kind   string `yaml:"kind"`
	Name   string `yaml:"name"`
	String string `yaml:"string"`

	// filter attributes
	Domain  string                 `yaml:"domain"`
	Context map[string]interface{} `yaml:"context"`
	// Date marks the filter as date-bucketed over the named field.
	Date          string `yaml:"date"`
	DefaultPeriod string `yaml:"default_period"`

	// groupBy / field attributes
	Field    string `yaml:"field"`
	Interval string `yaml:"interval"`

	// field (autocomplete) attributes
	Operator     string `yaml:"operator"`
	FilterDomain string `yaml:"filter_domain"`

	Invisible bool `yaml:"invisible"`
}

// View is a parsed search view definition.
type View struct {
	Items  []Item   `yaml:"items"`
	Fields FieldSet `yaml:"fields"`
}

// ParseView decodes and validates a YAML view definition.
func ParseView(data []byte) (*View, error) {
	var view View
	if err := yaml.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to parse view definition: %w", err)
	}
	if view.Fields == nil {
		view.Fields = FieldSet{}
	}
	view.normalize()
	if err := view.Validate(); err != nil {
		return nil, err
	}
	return &view, nil
}

// normalize rewrites filter items whose context carries a group_by key into
// groupBy items, extracting the field name and optional interval.
func (v *View) normalize() {
	for i, item := range v.Items {
		if item.Kind != ItemFilter || item.Context == nil {
			continue
		}
		groupBy, ok := item.Context["group_by"].(string)
		if !ok {
			continue
		}
		field, interval := SplitGroupBy(groupBy)
		item.Kind = ItemGroupBy
		item.Field = field
		item.Interval = interval
		delete(item.Context, "group_by")
		if len(item.Context) == 0 {
			item.Context = nil
		}
		v.Items[i] = item
	}
}

// Validate checks item kinds and field references.
func (v *View) Validate() error {
	for i, item := range v.Items {
		switch item.Kind {
		case ItemSeparator:
			continue
		case ItemFilter:
			if item.Date != "" {
				field, ok := v.Fields[item.Date]
				if !ok {
					return fmt.Errorf("item %d (%s): unknown date field %q", i, item.Name, item.Date)
				}
				if !IsTemporal(field.Type) {
					return fmt.Errorf("item %d (%s): date field %q has non-temporal type %q", i, item.Name, item.Date, field.Type)
				}
			}
		case ItemGroupBy:
			field, ok := v.Fields[item.Field]
			if !ok {
				return fmt.Errorf("item %d (%s): unknown group-by field %q", i, item.Name, item.Field)
			}
			if !field.Sortable {
				return fmt.Errorf("item %d (%s): group-by field %q is not sortable", i, item.Name, item.Field)
			}
		case ItemField:
			if _, ok := v.Fields[item.Field]; !ok {
				return fmt.Errorf("item %d (%s): unknown field %q", i, item.Name, item.Field)
			}
		default:
			return fmt.Errorf("item %d (%s): unknown kind %q", i, item.Name, item.Kind)
		}
		if item.Name == "" {
			return fmt.Errorf("item %d: missing name", i)
		}
	}
	return nil
}

// Run is a maximal stretch of view items that activate as one filter group.
type Run struct {
	Kind  string
	Items []Item
}

// Runs splits the view items into group runs: consecutive items of one kind
// form a run, separators end the current run, and every field item stands
// alone. GroupBy runs stay distinct here; the store coalesces them into its
// single group-by group while keeping their run numbering.
func (v *View) Runs() []Run {
	var runs []Run
	var current []Item
	currentKind := ""

	flush := func() {
		if len(current) > 0 {
			runs = append(runs, Run{Kind: currentKind, Items: current})
			current = nil
		}
	}

	for _, item := range v.Items {
		if item.Kind != currentKind || item.Kind == ItemSeparator || item.Kind == ItemField {
			flush()
			currentKind = item.Kind
		}
		if item.Kind == ItemSeparator {
			continue
		}
		current = append(current, item)
	}
	flush()
	return runs
}

// SplitGroupBy splits a "field:interval" group-by expression.
func SplitGroupBy(groupBy string) (field, interval string) {
	for i := 0; i < len(groupBy); i++ {
		if groupBy[i] == ':' {
			return groupBy[:i], groupBy[i+1:]
		}
	}
	return groupBy, ""
}

// IsTemporal reports whether the field type carries date semantics.
func IsTemporal(fieldType string) bool {
	return fieldType == "date" || fieldType == "datetime"
}

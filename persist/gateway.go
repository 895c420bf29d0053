// Package persist stores named favorite queries durably and hands back
// server-side identifiers for them.
package persist

import "context"

// FilterRecord is the persisted shape of a favorite query. Domain is kept in
// its serialized symbolic form; group-by and time range selections travel
// inside Context under the group_by and time_ranges keys.
type FilterRecord struct {
	Name      string                 `json:"name"`
	Context   map[string]interface{} `json:"context"`
	Domain    string                 `json:"domain"`
	IsDefault bool                   `json:"is_default"`
	UserID    int                    `json:"user_id"` // 0 means shared
	ModelName string                 `json:"model_name"`
	ActionID  int                    `json:"action_id"`
	Sort      []string               `json:"sort"` // "field" or "field desc"
}

// StoredFilter is a FilterRecord together with its durable identifier.
type StoredFilter struct {
	ID string `json:"id"`
	FilterRecord
}

// Gateway persists favorite queries. A failed Create or Delete must leave
// the backing store unchanged so callers can retry.
type Gateway interface {
	// Create persists the record and returns its durable identifier.
	Create(ctx context.Context, rec FilterRecord) (string, error)

	// Delete removes the record with the given identifier.
	Delete(ctx context.Context, serverSideID string) error

	// List returns the records stored for a model, in creation order.
	List(ctx context.Context, modelName string) ([]StoredFilter, error)
}

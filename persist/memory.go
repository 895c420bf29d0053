package persist

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway is an in-process Gateway for tests and ephemeral sessions.
// CreateErr and DeleteErr, when set, make the corresponding call fail
// without touching stored state.
type MemoryGateway struct {
	mu      sync.Mutex
	nextID  int
	records []StoredFilter

	CreateErr error
	DeleteErr error
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway returns an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{}
}

// Seed stores a record directly, returning its id. Intended for test setup.
func (g *MemoryGateway) Seed(rec FilterRecord) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("srv-%d", g.nextID)
	g.records = append(g.records, StoredFilter{ID: id, FilterRecord: rec})
	return id
}

// Create persists a record and returns its generated identifier.
func (g *MemoryGateway) Create(ctx context.Context, rec FilterRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CreateErr != nil {
		return "", g.CreateErr
	}
	g.nextID++
	id := fmt.Sprintf("srv-%d", g.nextID)
	g.records = append(g.records, StoredFilter{ID: id, FilterRecord: rec})
	return id, nil
}

// Delete removes a stored record by id.
func (g *MemoryGateway) Delete(ctx context.Context, serverSideID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.DeleteErr != nil {
		return g.DeleteErr
	}
	for i, rec := range g.records {
		if rec.ID == serverSideID {
			g.records = append(g.records[:i], g.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, serverSideID)
}

// List returns the records stored for a model, in creation order.
func (g *MemoryGateway) List(ctx context.Context, modelName string) ([]StoredFilter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var result []StoredFilter
	for _, rec := range g.records {
		if rec.ModelName == modelName {
			result = append(result, rec)
		}
	}
	return result, nil
}

// Len reports the number of stored records.
func (g *MemoryGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// ErrNotFound is returned when deleting an id that is not stored.
var ErrNotFound = errors.New("filter record not found")

// fileData is the on-disk layout of the gateway file.
type fileData struct {
	Filters []StoredFilter `json:"filters"`
}

// JSONGateway is a Gateway backed by a single JSON file. Writes are atomic
// (temp file + rename) and guarded by a cross-process `.lock` sibling file.
type JSONGateway struct {
	filePath string
	fileLock *flock.Flock
}

var _ Gateway = (*JSONGateway)(nil)

// NewJSONGateway creates a gateway storing records in filePath. The parent
// directory is created if missing; the file itself is created on first
// write.
func NewJSONGateway(filePath string) (*JSONGateway, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create gateway directory: %w", err)
	}
	return &JSONGateway{
		filePath: filePath,
		fileLock: flock.New(filePath + ".lock"),
	}, nil
}

// acquireLock attempts to acquire the exclusive file lock with retries.
func (g *JSONGateway) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := g.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

func (g *JSONGateway) releaseLock() error {
	return g.fileLock.Unlock()
}

// load reads the gateway file. Caller must hold the lock.
func (g *JSONGateway) load() (*fileData, error) {
	data := &fileData{}
	raw, err := os.ReadFile(g.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return data, nil
}

// save writes the gateway file atomically. Caller must hold the lock.
func (g *JSONGateway) save(data *fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	tmpFile := g.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, g.filePath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// withLock runs fn while holding the file lock, bounded by lockTimeout or
// the caller's deadline, whichever is sooner.
func (g *JSONGateway) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if err := g.acquireLock(lockCtx); err != nil {
		return err
	}
	defer func() { _ = g.releaseLock() }()
	return fn()
}

// Create persists a record and returns its generated identifier.
func (g *JSONGateway) Create(ctx context.Context, rec FilterRecord) (string, error) {
	id := uuid.New().String()
	err := g.withLock(ctx, func() error {
		data, err := g.load()
		if err != nil {
			return err
		}
		data.Filters = append(data.Filters, StoredFilter{ID: id, FilterRecord: rec})
		return g.save(data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create filter record: %w", err)
	}
	return id, nil
}

// Delete removes a stored record by id.
func (g *JSONGateway) Delete(ctx context.Context, serverSideID string) error {
	err := g.withLock(ctx, func() error {
		data, err := g.load()
		if err != nil {
			return err
		}
		for i, f := range data.Filters {
			if f.ID == serverSideID {
				data.Filters = append(data.Filters[:i], data.Filters[i+1:]...)
				return g.save(data)
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, serverSideID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete filter record: %w", err)
	}
	return nil
}

// List returns the records stored for a model, in creation order.
func (g *JSONGateway) List(ctx context.Context, modelName string) ([]StoredFilter, error) {
	var result []StoredFilter
	err := g.withLock(ctx, func() error {
		data, err := g.load()
		if err != nil {
			return err
		}
		for _, f := range data.Filters {
			if f.ModelName == modelName {
				result = append(result, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list filter records: %w", err)
	}
	return result, nil
}

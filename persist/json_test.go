package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestGateway(t *testing.T) *JSONGateway {
	t.Helper()
	g, err := NewJSONGateway(filepath.Join(t.TempDir(), "favorites.json"))
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return g
}

func TestJSONGatewayCreateList(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	id, err := g.Create(ctx, FilterRecord{Name: "My Orders", ModelName: "sale.order", UserID: 7})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty server side id")
	}

	records, err := g.List(ctx, "sale.order")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID != id || records[0].Name != "My Orders" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestJSONGatewayListFiltersByModel(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if _, err := g.Create(ctx, FilterRecord{Name: "a", ModelName: "sale.order"}); err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if _, err := g.Create(ctx, FilterRecord{Name: "b", ModelName: "res.partner"}); err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	records, err := g.List(ctx, "sale.order")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 1 || records[0].Name != "a" {
		t.Errorf("expected only sale.order records, got %+v", records)
	}
}

func TestJSONGatewayDelete(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	id, err := g.Create(ctx, FilterRecord{Name: "temp", ModelName: "sale.order"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if err := g.Delete(ctx, id); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	records, err := g.List(ctx, "sale.order")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records after delete, got %d", len(records))
	}
}

func TestJSONGatewayDeleteMissing(t *testing.T) {
	g := newTestGateway(t)
	err := g.Delete(context.Background(), "no-such-id")
	if err == nil {
		t.Fatal("expected error deleting missing record")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJSONGatewayPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favorites.json")
	ctx := context.Background()

	first, err := NewJSONGateway(path)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	id, err := first.Create(ctx, FilterRecord{Name: "kept", ModelName: "sale.order"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	second, err := NewJSONGateway(path)
	if err != nil {
		t.Fatalf("failed to reopen gateway: %v", err)
	}
	records, err := second.List(ctx, "sale.order")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(records) != 1 || records[0].ID != id {
		t.Errorf("expected record to survive reopen, got %+v", records)
	}
}

func TestMemoryGatewayFailureInjection(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	g.CreateErr = errors.New("server rejected")
	if _, err := g.Create(ctx, FilterRecord{Name: "x"}); err == nil {
		t.Fatal("expected injected create failure")
	}
	if g.Len() != 0 {
		t.Errorf("failed create must not store a record, got %d", g.Len())
	}

	g.CreateErr = nil
	id, err := g.Create(ctx, FilterRecord{Name: "x", ModelName: "m"})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}

	g.DeleteErr = errors.New("server rejected")
	if err := g.Delete(ctx, id); err == nil {
		t.Fatal("expected injected delete failure")
	}
	if g.Len() != 1 {
		t.Errorf("failed delete must not remove the record, got %d", g.Len())
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"brooklyn/internal/objectstore/core"
	"brooklyn/internal/objectstore/storetest"
)

func TestStoreContract(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Driver() != core.DriverSQLite {
		t.Fatalf("expected sqlite driver")
	}
	storetest.Run(t, store)
}

func TestListPrefixIsCaseSensitive(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	for _, key := range []string{"entities/a", "Entities/b"} {
		if _, err := store.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	list, err := store.List(ctx, "entities/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "entities/a" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStoreReopenKeepsObjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "locations/l1", []byte("loc")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = store.Close()
	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	got, err := reopened.Get(ctx, "locations/l1")
	if err != nil || string(got) != "loc" {
		t.Fatalf("expected persisted value, got %q %v", got, err)
	}
}

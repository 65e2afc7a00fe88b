// Package storetest holds the behavioural contract every object store backend
// must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"brooklyn/internal/objectstore/core"
)

// Run exercises put/overwrite/get/head/list/delete against a fresh, empty store.
func Run(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "entities/missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing get, got %v", err)
	}
	if _, err := store.Head(ctx, "entities/missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing head, got %v", err)
	}
	if ok, err := store.Delete(ctx, "entities/missing"); err != nil || ok {
		t.Fatalf("expected delete of missing key to report false, got %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "", []byte("x")); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	if _, err := store.Put(ctx, "../escape", []byte("x")); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}

	info, err := store.Put(ctx, "entities/e1", []byte("first"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "entities/e1" || info.Size != 5 {
		t.Fatalf("unexpected put info %+v", info)
	}
	if _, err := store.Put(ctx, "entities/e1", []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := store.Get(ctx, "entities/e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("second")) {
		t.Fatalf("expected overwritten value, got %q", got)
	}
	head, err := store.Head(ctx, "entities/e1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != int64(len("second")) {
		t.Fatalf("expected head size %d, got %d", len("second"), head.Size)
	}

	for _, key := range []string{"entities/e2", "locations/l1", "entitiesx/other"} {
		if _, err := store.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "entities/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "entities/e1" || list[1].Key != "entities/e2" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 objects, got %d", len(all))
	}

	ok, err := store.Delete(ctx, "entities/e1")
	if err != nil || !ok {
		t.Fatalf("expected delete to report true, got %v %v", ok, err)
	}
	if _, err := store.Get(ctx, "entities/e1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected deleted key to be gone, got %v", err)
	}
}

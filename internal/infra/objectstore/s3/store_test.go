package s3

import (
	"context"
	"testing"

	"brooklyn/internal/objectstore/core"
	"brooklyn/internal/objectstore/storetest"
)

func TestStoreContract(t *testing.T) {
	store := NewMockForTests("", 0)
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}
	storetest.Run(t, store)
}

func TestStorePrefixAndPagination(t *testing.T) {
	store := NewMockForTests("plane-a/", 1)
	ctx := context.Background()
	for _, key := range []string{"entities/a", "entities/b", "entities/c", "locations/l"} {
		if _, err := store.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "entities/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entities across pages, got %+v", list)
	}
	for i, want := range []string{"entities/a", "entities/b", "entities/c"} {
		if list[i].Key != want {
			t.Fatalf("list[%d] = %s, want %s (prefix must be stripped)", i, list[i].Key, want)
		}
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

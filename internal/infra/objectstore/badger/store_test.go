package badger

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"brooklyn/internal/objectstore/core"
	"brooklyn/internal/objectstore/storetest"
)

func TestStoreContractInMemory(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Driver() != core.DriverBadger {
		t.Fatalf("expected badger driver")
	}
	storetest.Run(t, store)
}

func TestStoreOnDiskWithLogger(t *testing.T) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.WarnLevel)
	dir := t.TempDir()
	store, err := New(Config{Path: dir, SyncWrites: true, Logger: logger})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "policies/p1", []byte("p")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := New(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, "policies/p1")
	if err != nil || string(got) != "p" {
		t.Fatalf("expected persisted value, got %q %v", got, err)
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without path")
	}
}

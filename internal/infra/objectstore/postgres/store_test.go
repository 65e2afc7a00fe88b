package postgres

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"brooklyn/internal/infra/objectstore/postgres/testutil"
	"brooklyn/internal/objectstore/core"
	"brooklyn/internal/objectstore/storetest"
)

func newStubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return store, conn
}

func TestStoreContractAgainstStub(t *testing.T) {
	store, conn := newStubStore(t)
	if store.Driver() != core.DriverPostgres {
		t.Fatalf("expected postgres driver")
	}
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS objects") {
		t.Fatalf("expected objects table ddl, got %v", conn.Execs)
	}
	storetest.Run(t, store)
}

func TestListEscapesLikeWildcards(t *testing.T) {
	store, _ := newStubStore(t)
	ctx := context.Background()
	for _, key := range []string{"entities/a_1", "entities/ab1"} {
		if _, err := store.Put(ctx, key, []byte("x")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	list, err := store.List(ctx, "entities/a_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "entities/a_1" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestNewPingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := New(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestStoreContractAgainstServer(t *testing.T) {
	dsn := os.Getenv("BROOKLYN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skipf("BROOKLYN_TEST_POSTGRES_DSN not set")
	}
	store, err := New(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.DB().Exec(`TRUNCATE TABLE objects`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	storetest.Run(t, store)
}

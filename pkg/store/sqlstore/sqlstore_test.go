package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/depscanner/pkg/store"
	"github.com/matzehuels/depscanner/pkg/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "depscanner.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "depscanner.db")
	key := store.VersionKey{System: "MAVEN", Name: "org.slf4j:slf4j-api", Version: "2.0.9"}

	s, err := Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, _, err := s.EnsureVersion(ctx, key)
	if err != nil {
		t.Fatalf("EnsureVersion: %v", err)
	}
	s.Close()

	s, err = Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.FindVersion(ctx, key)
	if err != nil {
		t.Fatalf("FindVersion after reopen: %v", err)
	}
	if got.ID != v.ID {
		t.Errorf("id = %d, want %d", got.ID, v.ID)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DEPSCANNER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEPSCANNER_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), Postgres, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		truncate(t, s)
		return s
	})
}

func truncate(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.db.Exec(`TRUNCATE graph_edges, graph_nodes, version_advisory_keys, advisory_keys,
		advisory_details, version_links, links, version_licenses, licenses, version_details,
		versions, dependencies, systems RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestUnsupportedDialect(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "dsn"); err == nil {
		t.Error("expected error for unsupported dialect")
	}
	if _, err := Open(context.Background(), SQLite, ""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect string
		in      string
		want    string
	}{
		{SQLite, "SELECT id FROM t WHERE a = ? AND b = ?", "SELECT id FROM t WHERE a = ? AND b = ?"},
		{Postgres, "SELECT id FROM t WHERE a = ? AND b = ?", "SELECT id FROM t WHERE a = $1 AND b = $2"},
		{Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.in, func(t *testing.T) {
			if got := dialects[tt.dialect].rebind(tt.in); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

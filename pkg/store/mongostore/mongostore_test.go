package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/depscanner/pkg/store"
	"github.com/matzehuels/depscanner/pkg/store/storetest"
)

var dbSeq atomic.Int64

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("DEPSCANNER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DEPSCANNER_TEST_MONGO_URI not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		name := fmt.Sprintf("depscanner_test_%d_%d", os.Getpid(), dbSeq.Add(1))
		s, err := Open(ctx, uri, name)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Drop(context.Background()) })
		return s
	})
}

func TestOpenRequiresURI(t *testing.T) {
	if _, err := Open(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty uri")
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/scans", "scans"},
		{"mongodb://user:pw@host/scans?authSource=admin", "scans"},
		{"mongodb+srv://cluster.example.net/prod", "prod"},
		{"mongodb://localhost:27017", ""},
		{"postgres://localhost/db", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := DatabaseName(tt.uri); got != tt.want {
				t.Errorf("DatabaseName(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

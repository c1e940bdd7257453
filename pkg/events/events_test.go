package events

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/depscanner/pkg/store"
)

// collect subscribes h to topic in the background and returns a function
// that waits until n messages arrived.
func collect(t *testing.T, ctx context.Context, bus Bus, topic, group string) func(n int) []Message {
	t.Helper()
	var (
		mu  sync.Mutex
		got []Message
	)
	go func() {
		err := bus.Subscribe(ctx, topic, group, func(_ context.Context, m Message) error {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Errorf("Subscribe: %v", err)
		}
	}()
	return func(n int) []Message {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			if len(got) >= n {
				out := append([]Message(nil), got...)
				mu.Unlock()
				return out
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d messages", n)
		return nil
	}
}

func exerciseBus(t *testing.T, bus Bus, topic string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Published before anyone subscribes.
	if err := bus.Publish(ctx, topic, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitA := collect(t, ctx, bus, topic, "group-a")
	waitB := collect(t, ctx, bus, topic, "group-b")

	if err := bus.Publish(ctx, topic, []byte(`{"n":2}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for name, wait := range map[string]func(int) []Message{"a": waitA, "b": waitB} {
		got := wait(2)
		if string(got[0].Payload) != `{"n":1}` || string(got[1].Payload) != `{"n":2}` {
			t.Errorf("group %s got %q, %q", name, got[0].Payload, got[1].Payload)
		}
		if got[0].Topic != topic || got[0].ID == "" {
			t.Errorf("group %s message = %+v", name, got[0])
		}
	}
}

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus(log.New(io.Discard))
	defer bus.Close()
	exerciseBus(t, bus, "scans")
}

func TestMemoryBusSharesGroup(t *testing.T) {
	bus := NewMemoryBus(log.New(io.Discard))
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	wg.Add(20)
	handler := func(_ context.Context, m Message) error {
		mu.Lock()
		seen[m.ID]++
		mu.Unlock()
		wg.Done()
		return nil
	}
	for range 3 {
		go bus.Subscribe(ctx, "t", "workers", handler)
	}
	for range 20 {
		if err := bus.Publish(ctx, "t", []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 20 {
		t.Errorf("distinct messages = %d, want 20", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("message %s delivered %d times within one group", id, n)
		}
	}
}

func TestMemoryBusSubscribeStops(t *testing.T) {
	bus := NewMemoryBus(log.New(io.Discard))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, "t", "g", func(context.Context, Message) error { return nil })
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}

	bus.Close()
	if err := bus.Publish(context.Background(), "t", nil); err != ErrClosed {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
}

func TestPublishJSONAndDecode(t *testing.T) {
	bus := NewMemoryBus(log.New(io.Discard))
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := ScanRequested{
		UserEmail:    "dev@example.com",
		Project:      Project{ID: "p1", Name: "shop"},
		Dependencies: []store.VersionKey{{System: "NPM", Name: "lib-a", Version: "1.0.0"}},
	}
	if err := PublishJSON(ctx, bus, TopicScanRequested, in); err != nil {
		t.Fatal(err)
	}
	wait := collect(t, ctx, bus, TopicScanRequested, "vuln")
	out, err := Decode[ScanRequested](wait(1)[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.UserEmail != in.UserEmail || out.Project.Name != "shop" || len(out.Dependencies) != 1 {
		t.Errorf("decoded = %+v", out)
	}

	if _, err := Decode[ScanRequested](Message{Topic: "t", Payload: []byte("{")}); err == nil {
		t.Error("Decode of invalid json succeeded")
	}
}

func TestPURL(t *testing.T) {
	tests := []struct {
		key  store.VersionKey
		want string
	}{
		{store.VersionKey{System: "NPM", Name: "lodash", Version: "4.17.21"}, "pkg:npm/lodash@4.17.21"},
		{store.VersionKey{System: "MAVEN", Name: "org.slf4j:slf4j-api", Version: "2.0.9"}, "pkg:maven/org.slf4j/slf4j-api@2.0.9"},
		{store.VersionKey{System: "PYPI", Name: "Django_Rest", Version: "1.0"}, "pkg:pypi/django-rest@1.0"},
		{store.VersionKey{System: "CARGO", Name: "serde", Version: "1.0.0"}, "pkg:cargo/serde@1.0.0"},
		{store.VersionKey{System: "RUBYGEMS", Name: "rails", Version: "7.1.0"}, "pkg:gem/rails@7.1.0"},
		{store.VersionKey{System: "COBOL", Name: "x", Version: "1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			if got := PURL(tt.key); got != tt.want {
				t.Errorf("PURL(%v) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("DEPSCANNER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DEPSCANNER_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	bus, err := DialRedisBus(ctx, addr, "", 0, RedisOptions{Block: 100 * time.Millisecond, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	defer bus.Close()

	topic := "depscanner-test-" + uuid.NewString()
	t.Cleanup(func() {
		client := redis.NewClient(&redis.Options{Addr: addr})
		client.Del(context.Background(), topic)
		client.Close()
	})
	exerciseBus(t, bus, topic)
}

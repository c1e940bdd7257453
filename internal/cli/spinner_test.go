package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerRendersAndUpdates(t *testing.T) {
	var w syncBuffer
	s := newSpinnerTo(context.Background(), &w, "Resolving...")
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Update("Rendering SVG...")
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	out := w.String()
	if !strings.Contains(out, "Resolving...") || !strings.Contains(out, "Rendering SVG...") {
		t.Errorf("spinner output missing messages: %q", out)
	}
	if !strings.HasSuffix(out, "\r") {
		t.Errorf("spinner did not clear its line: %q", out)
	}
}

func TestSpinnerStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var w syncBuffer
	s := newSpinnerTo(ctx, &w, "Scanning...")
	s.Start()

	done := make(chan struct{})
	go func() {
		<-s.stopped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("spinner kept running after its context ended")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var w syncBuffer
	s := newSpinnerTo(context.Background(), &w, "Testing...")

	s.Stop() // before Start
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSpinnerStopWithSuccess(t *testing.T) {
	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })

	var w syncBuffer
	s := newSpinnerTo(context.Background(), &w, "Writing...")
	s.Start()
	s.StopWithSuccess("Wrote graph")

	if !strings.Contains(out.String(), "Wrote graph") {
		t.Errorf("stdout = %q", out.String())
	}
}

package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	started := time.Unix(1700000000, 123)
	first := &Entry{
		Platform: "linux/amd64",
		Triple:   "x86_64-unknown-linux-gnu",
		Recipe:   "sha256:aa",
		Source:   "blake3:01",
		Started:  started,
		Duration: 90 * time.Second,
		Status:   Succeeded,
		Output:   "/dist/linux-amd64/image.tar",
	}
	second := &Entry{
		Platform: "linux/arm64",
		Triple:   "aarch64-unknown-linux-gnu",
		Recipe:   "sha256:aa",
		Source:   "blake3:01",
		CacheHit: true,
		Started:  started,
		Status:   Failed,
		Error:    "compile: exit code 101",
	}

	for _, e := range []*Entry{first, second} {
		if err := l.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids = %d, %d", first.ID, second.ID)
	}

	entries, err := l.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].ID != second.ID {
		t.Errorf("first listed = %d, want newest %d", entries[0].ID, second.ID)
	}

	got := entries[1]
	if got.Triple != first.Triple || got.Duration != first.Duration || !got.Started.Equal(started) ||
		got.Status != Succeeded || got.Output != first.Output || got.CacheHit {
		t.Errorf("round trip = %+v, want %+v", got, *first)
	}
	if !entries[0].CacheHit || entries[0].Error != second.Error {
		t.Errorf("second = %+v", entries[0])
	}

	limited, err := l.List(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited len = %d", len(limited))
	}
}

func TestLast(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	if _, err := l.Last(ctx, "x86_64-unknown-linux-gnu"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	for _, recipe := range []string{"sha256:01", "sha256:02"} {
		if err := l.Record(ctx, &Entry{Triple: "x86_64-unknown-linux-gnu", Recipe: recipe, Status: Succeeded}); err != nil {
			t.Fatal(err)
		}
	}
	l.Record(ctx, &Entry{Triple: "aarch64-unknown-linux-gnu", Recipe: "sha256:03", Status: Succeeded})

	e, err := l.Last(ctx, "x86_64-unknown-linux-gnu")
	if err != nil {
		t.Fatal(err)
	}
	if e.Recipe != "sha256:02" {
		t.Fatalf("recipe = %q, want newest", e.Recipe)
	}
}

func TestConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Record(ctx, &Entry{Triple: "t", Status: Succeeded}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	entries, err := l.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 8 {
		t.Fatalf("len = %d, want 8", len(entries))
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Record(ctx, &Entry{Triple: "t", Status: Succeeded})
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if _, err := l.Last(ctx, "t"); err != nil {
		t.Fatal(err)
	}
}

package pysource

import (
	"context"
	"testing"

	"github.com/matzehuels/macpack/pkg/cache"
)

type countingScanner struct {
	calls int
}

func (s *countingScanner) Scan(ctx context.Context, src []byte) (*Result, error) {
	s.calls++
	return &Result{Imports: []Import{{Module: string(src), Line: 1}}}, nil
}

func TestCachedScanner(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	inner := &countingScanner{}
	s := NewCachedScanner(inner, fc, nil)

	for i := 0; i < 3; i++ {
		res, err := s.Scan(ctx, []byte("os"))
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(res.Imports) != 1 || res.Imports[0].Module != "os" {
			t.Fatalf("Scan() = %+v", res)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner scanner called %d times, want 1", inner.calls)
	}

	if _, err := s.Scan(ctx, []byte("sys")); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("changed content did not trigger a rescan (calls = %d)", inner.calls)
	}
}

func TestCachedScannerNullCache(t *testing.T) {
	inner := &countingScanner{}
	s := NewCachedScanner(inner, nil, nil)
	for i := 0; i < 2; i++ {
		if _, err := s.Scan(context.Background(), []byte("os")); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 2 {
		t.Errorf("inner scanner called %d times, want 2", inner.calls)
	}
}

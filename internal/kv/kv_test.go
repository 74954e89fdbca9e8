package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "progress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected absent key")
	}

	if err := m.Set(ctx, "progress", `[["v1",{}]]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := m.Get(ctx, "progress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != `[["v1",{}]]` {
		t.Fatalf("expected stored value, got %q (ok=%v)", v, ok)
	}

	// Overwrite
	_ = m.Set(ctx, "progress", "x")
	v, _, _ = m.Get(ctx, "progress")
	if v != "x" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
}

type failingStore struct {
	fails int
	calls int
}

func (f *failingStore) Get(context.Context, string) (string, bool, error) {
	f.calls++
	if f.calls <= f.fails {
		return "", false, errors.New("backend down")
	}
	return "ok", true, nil
}

func (f *failingStore) Set(context.Context, string, string) error {
	f.calls++
	if f.calls <= f.fails {
		return errors.New("backend down")
	}
	return nil
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(NewMemory())
	ctx := context.Background()

	if err := b.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v err=%v", v, ok, err)
	}
	_, ok, err = b.Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingStore{fails: 100}
	b := NewBreaker(inner)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Set(ctx, "k", "v"); err == nil {
			t.Fatalf("expected error on call %d", i)
		}
	}
	before := inner.calls

	// Breaker is now open: calls fail without reaching the backend.
	if err := b.Set(ctx, "k", "v"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-breaker error, got %v", err)
	}
	if inner.calls != before {
		t.Fatalf("expected no backend calls while open, got %d extra", inner.calls-before)
	}
}

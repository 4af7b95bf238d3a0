package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/donorguard/store"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash("0.abcdefghijklmnopqrstuvwxyz")
	b := Hash("0.abcdefghijklmnopqrstuvwxyz")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
	if a == Hash("0.abcdefghijklmnopqrstuvwxyZ") {
		t.Fatal("different tokens must not collide")
	}
}

func TestMarkUsedThenWasUsed(t *testing.T) {
	g := New(store.NewMemoryStore(), 0, 0)
	ctx := context.Background()
	h := Hash("token-one-is-long-enough")

	used, err := g.WasUsed(ctx, h)
	if err != nil {
		t.Fatalf("WasUsed failed: %v", err)
	}
	if used {
		t.Fatal("never-marked hash must report unused")
	}

	if err := g.MarkUsed(ctx, h); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	used, err = g.WasUsed(ctx, h)
	if err != nil {
		t.Fatalf("WasUsed failed: %v", err)
	}
	if !used {
		t.Fatal("marked hash must report used")
	}
}

func TestMarkUsedExpiresAfterTTL(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	s.SetClock(func() time.Time { return now })
	g := New(s, time.Hour, 0)
	ctx := context.Background()
	h := Hash("token")

	_ = g.MarkUsed(ctx, h)
	ttl, err := s.TTL(ctx, key(h))
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	now = now.Add(time.Hour + time.Second)
	if used, _ := g.WasUsed(ctx, h); used {
		t.Fatal("record must expire after ttl")
	}
}

func TestDefaultTTLIs24h(t *testing.T) {
	g := New(store.NewMemoryStore(), 0, 0)
	if g.TTL() != 24*time.Hour {
		t.Fatalf("expected 24h default, got %v", g.TTL())
	}
}

func TestClaimIsExclusive(t *testing.T) {
	g := New(store.NewMemoryStore(), 0, time.Minute)
	ctx := context.Background()
	h := Hash("token")

	ok, err := g.Claim(ctx, h)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = g.Claim(ctx, h)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v", ok, err)
	}
	if used, _ := g.WasUsed(ctx, h); !used {
		t.Fatal("a claimed token must read as used")
	}
}

func TestReleaseOnlyDropsClaims(t *testing.T) {
	g := New(store.NewMemoryStore(), 0, time.Minute)
	ctx := context.Background()

	claimed := Hash("claimed")
	_, _ = g.Claim(ctx, claimed)
	if err := g.Release(ctx, claimed); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if used, _ := g.WasUsed(ctx, claimed); used {
		t.Fatal("released claim must read as unused")
	}

	consumed := Hash("consumed")
	_ = g.MarkUsed(ctx, consumed)
	if err := g.Release(ctx, consumed); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if used, _ := g.WasUsed(ctx, consumed); !used {
		t.Fatal("Release must never revive a consumed token")
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	s := store.NewMemoryStore()
	s.FailWith(errors.New("timeout"))
	g := New(s, 0, 0)
	ctx := context.Background()

	if _, err := g.WasUsed(ctx, Hash("x")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := g.MarkUsed(ctx, Hash("x")); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestEmptyHashRejected(t *testing.T) {
	g := New(store.NewMemoryStore(), 0, 0)
	if _, err := g.WasUsed(context.Background(), ""); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

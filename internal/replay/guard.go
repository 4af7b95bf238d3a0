package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/donorguard/store"
)

// DefaultTTL exceeds the lifetime of any provider token.
const DefaultTTL = 24 * time.Hour

const claimMarker = "claimed"

var (
	// ErrUnavailable is returned when the store cannot answer. Callers must
	// treat it as a rejection.
	ErrUnavailable = errors.New("replay guard unavailable")
	// ErrInvalidHash is returned for an empty digest.
	ErrInvalidHash = errors.New("invalid token hash")
)

// Guard records consumed token digests in the shared store.
type Guard struct {
	store    store.Store
	ttl      time.Duration
	claimTTL time.Duration
	now      func() time.Time
}

// New returns a guard that remembers consumed tokens for ttl (DefaultTTL
// when zero). claimTTL bounds how long an in-flight claim blocks other
// submissions; it should exceed the upstream timeout.
func New(s store.Store, ttl, claimTTL time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	return &Guard{
		store:    s,
		ttl:      ttl,
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

// Hash returns the deterministic one-way digest of a token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TTL returns the lifetime of a used-token record.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// WasUsed reports whether the digest has already been consumed or claimed.
func (g *Guard) WasUsed(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, ErrInvalidHash
	}
	ok, err := g.store.Exists(ctx, key(hash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// MarkUsed records the digest as consumed. The value is the consumption
// time in unix seconds.
func (g *Guard) MarkUsed(ctx context.Context, hash string) error {
	if hash == "" {
		return ErrInvalidHash
	}
	usedAt := strconv.FormatInt(g.now().Unix(), 10)
	if err := g.store.Set(ctx, key(hash), usedAt, g.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Claim atomically reserves the digest before upstream verification.
// It returns false when another request already holds or consumed it.
func (g *Guard) Claim(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, ErrInvalidHash
	}
	ok, err := g.store.SetNX(ctx, key(hash), claimMarker, g.claimTTL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Release drops a claim after upstream rejection so a legitimate retry of
// the same token is not blocked.
func (g *Guard) Release(ctx context.Context, hash string) error {
	if hash == "" {
		return ErrInvalidHash
	}
	val, err := g.store.Get(ctx, key(hash))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Never release a token that was fully consumed.
	if val != claimMarker {
		return nil
	}
	if _, err := g.store.Delete(ctx, key(hash)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func key(hash string) string {
	return "rp:" + hash
}

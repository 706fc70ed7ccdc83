package entitlements

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAuthenticated is returned by a Loader when there is no signed-in user.
var ErrNotAuthenticated = errors.New("entitlements: not authenticated")

// Loader fetches the authoritative snapshot for the current session.
type Loader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// AuthEvent is an authentication state transition that invalidates the cache.
type AuthEvent int

const (
	SignedIn AuthEvent = iota + 1
	SignedOut
	TokenRefreshed
)

func (e AuthEvent) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	default:
		return "unknown"
	}
}

// Cache is a session-scoped, read-only mirror of the user's subscription.
// It is never a write path: the only way to change what it holds is to
// reload it from the Loader.
type Cache struct {
	loader Loader
	now    func() time.Time

	mu   sync.RWMutex
	snap *Snapshot
	// gen increases on every invalidation so that a load started before a
	// sign-out cannot repopulate the cache afterwards.
	gen uint64
}

// NewCache creates an empty cache backed by loader.
func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader, now: time.Now}
}

// Bootstrap performs the initial load for a new session.
func (c *Cache) Bootstrap(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	if errors.Is(err, ErrNotAuthenticated) {
		return nil
	}
	return err
}

// HandleAuthEvent applies an authentication transition.
func (c *Cache) HandleAuthEvent(ctx context.Context, ev AuthEvent) error {
	switch ev {
	case SignedOut:
		c.Invalidate()
		return nil
	case SignedIn, TokenRefreshed:
		c.Invalidate()
		_, err := c.Refresh(ctx)
		return err
	default:
		return nil
	}
}

// Refresh reloads the snapshot from the Loader and returns it.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	snap, err := c.loader.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			c.Invalidate()
		}
		return Snapshot{}, err
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return snap, nil
	}
	c.snap = &snap
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
}

// Current returns the cached snapshot, if any.
func (c *Cache) Current() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return Snapshot{}, false
	}
	return *c.snap, true
}

// IsPro reports whether the cached snapshot grants pro right now.
func (c *Cache) IsPro() bool {
	snap, ok := c.Current()
	return ok && snap.ActiveAt(c.now())
}

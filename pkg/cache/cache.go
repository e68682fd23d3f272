package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
	pkgredis "github.com/rfigueroa/shopworks-backend/pkg/redis"
)

// remoteStore is the shared tier surface; pkg/redis.Client satisfies it.
type remoteStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelByPattern(ctx context.Context, pattern string) (int, error)
	CountByPattern(ctx context.Context, pattern string) (int, error)
	FlushDB(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Recorder receives hit/miss observations per tier.
type Recorder interface {
	CacheHit(tier string, namespace string)
	CacheMiss(namespace string)
}

const (
	TierLocal  = "local"
	TierRemote = "remote"
)

// TwoTier fronts reads with a process-local tier backed by the shared Redis
// tier. It is a read optimization only: it must never be consulted for a
// decision that mutates state.
type TwoTier struct {
	local   *localStore
	remote  remoteStore
	policy  TTLPolicy
	logg    *logger.Logger
	metrics Recorder
}

// Options configures the two-tier cache.
type Options struct {
	Remote  remoteStore
	Policy  TTLPolicy
	Logger  *logger.Logger
	Metrics Recorder
}

// New builds the two-tier cache. The remote tier is required; metrics are
// optional.
func New(opts Options) (*TwoTier, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote cache store required")
	}
	return &TwoTier{
		local:   newLocalStore(),
		remote:  opts.Remote,
		policy:  opts.Policy,
		logg:    opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// StartJanitor sweeps expired local entries until ctx is done.
func (c *TwoTier) StartJanitor(ctx context.Context, interval time.Duration) {
	c.local.StartJanitor(ctx, interval)
}

func (c *TwoTier) key(ns Namespace, id string) string {
	return pkgredis.Key(string(ns), id)
}

func (c *TwoTier) nsPattern(ns Namespace) string {
	return pkgredis.Key(string(ns)) + ":*"
}

func (c *TwoTier) nsPrefix(ns Namespace) string {
	return pkgredis.Key(string(ns)) + ":"
}

// Get loads a cached entry into dest. It checks the local tier, then the
// remote tier (backfilling local on a hit). Remote failures degrade to a miss.
func (c *TwoTier) Get(ctx context.Context, ns Namespace, id string, dest any) (bool, error) {
	key := c.key(ns, id)

	if raw, ok := c.local.Get(key); ok {
		c.recordHit(TierLocal, ns)
		return true, json.Unmarshal([]byte(raw), dest)
	}

	raw, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.Nil) {
			c.warn(ctx, "remote cache read failed", err)
		}
		c.recordMiss(ns)
		return false, nil
	}

	c.local.Set(key, raw, c.policy.TTLFor(ns))
	c.recordHit(TierRemote, ns)
	return true, json.Unmarshal([]byte(raw), dest)
}

// Set serializes value and writes it to both tiers with the namespace TTL.
// A remote write failure is logged and swallowed; the local tier still holds
// the entry for this instance.
func (c *TwoTier) Set(ctx context.Context, ns Namespace, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	ttl := c.policy.TTLFor(ns)
	key := c.key(ns, id)

	c.local.Set(key, string(raw), ttl)
	if err := c.remote.Set(ctx, key, string(raw), ttl); err != nil {
		c.warn(ctx, "remote cache write failed", err)
	}
	return nil
}

// GetOrLoad implements cache-aside: return the cached entry or invoke the
// loader and populate both tiers. The loader result is unmarshalled into dest
// via the same JSON round trip a cache hit takes, so hits and misses agree.
func (c *TwoTier) GetOrLoad(ctx context.Context, ns Namespace, id string, dest any, loader func(context.Context) (any, error)) error {
	hit, err := c.Get(ctx, ns, id, dest)
	if err == nil && hit {
		return nil
	}
	if err != nil {
		c.warn(ctx, "cache entry corrupt, reloading", err)
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal loaded value: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal loaded value: %w", err)
	}

	ttl := c.policy.TTLFor(ns)
	key := c.key(ns, id)
	c.local.Set(key, string(raw), ttl)
	if err := c.remote.Set(ctx, key, string(raw), ttl); err != nil {
		c.warn(ctx, "remote cache write failed", err)
	}
	return nil
}

// Invalidate evicts the identified entries from both tiers, then applies the
// namespace fan-out (product → search + listing pages, category → listing
// pages). Fan-out eviction is best-effort by contract.
func (c *TwoTier) Invalidate(ctx context.Context, ns Namespace, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(ns, id))
	}
	c.local.Delete(keys...)
	var firstErr error
	if err := c.remote.Del(ctx, keys...); err != nil {
		firstErr = err
	}

	for _, related := range fanOutFor(ns) {
		if err := c.Clear(ctx, related); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InvalidateByPattern evicts matching keys from both tiers. The pattern is a
// glob over ids within the namespace.
func (c *TwoTier) InvalidateByPattern(ctx context.Context, ns Namespace, pattern string) error {
	full := pkgredis.Key(string(ns), pattern)
	c.local.DeletePattern(full)
	_, err := c.remote.DelByPattern(ctx, full)
	return err
}

// Clear evicts an entire namespace from both tiers.
func (c *TwoTier) Clear(ctx context.Context, ns Namespace) error {
	c.local.DeletePrefix(c.nsPrefix(ns))
	_, err := c.remote.DelByPattern(ctx, c.nsPattern(ns))
	return err
}

// ClearAll wipes every namespace in both tiers.
func (c *TwoTier) ClearAll(ctx context.Context) error {
	c.local.Clear()
	return c.remote.FlushDB(ctx)
}

// Sizes reports entry counts per tier for one namespace.
type Sizes struct {
	Namespace Namespace `json:"namespace"`
	Local     int       `json:"local"`
	Remote    int       `json:"remote"`
}

// Size counts live entries in the namespace on both tiers.
func (c *TwoTier) Size(ctx context.Context, ns Namespace) (Sizes, error) {
	sizes := Sizes{
		Namespace: ns,
		Local:     c.local.CountPrefix(c.nsPrefix(ns)),
	}
	remote, err := c.remote.CountByPattern(ctx, c.nsPattern(ns))
	if err != nil {
		return sizes, err
	}
	sizes.Remote = remote
	return sizes, nil
}

// HealthCheck round-trips a sentinel key through both tiers: write, read,
// delete. Any step failing marks the cache unhealthy.
func (c *TwoTier) HealthCheck(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote ping: %w", err)
	}

	sentinel := "healthcheck:" + uuid.NewString()
	key := c.key(NamespaceSessions, sentinel)

	if err := c.remote.Set(ctx, key, "ok", 30*time.Second); err != nil {
		return fmt.Errorf("sentinel write: %w", err)
	}
	val, err := c.remote.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("sentinel read: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("sentinel mismatch: got %q", val)
	}
	if err := c.remote.Del(ctx, key); err != nil {
		return fmt.Errorf("sentinel delete: %w", err)
	}
	return nil
}

func (c *TwoTier) recordHit(tier string, ns Namespace) {
	if c.metrics != nil {
		c.metrics.CacheHit(tier, string(ns))
	}
}

func (c *TwoTier) recordMiss(ns Namespace) {
	if c.metrics != nil {
		c.metrics.CacheMiss(string(ns))
	}
}

func (c *TwoTier) warn(ctx context.Context, msg string, err error) {
	if c.logg != nil {
		c.logg.Error(ctx, msg, err)
	}
}

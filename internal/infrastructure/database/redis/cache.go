package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/prometheus"
)

const (
	defaultClosureTTL    = 24 * time.Hour
	defaultClosurePrefix = "hippo:ancestors:"
	cacheName            = "redis"
)

// CacheOption configures a CachedProvider.
type CacheOption func(*CachedProvider)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *CachedProvider) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRelease scopes every key to an ontology release and alt-id mode, so
// closures cached from one catalog are never served for another.
func WithRelease(release string, resolveAltIDs bool) CacheOption {
	return func(c *CachedProvider) {
		mode := "primary"
		if resolveAltIDs {
			mode = "alt"
		}
		c.scope = release + ":" + mode + ":"
	}
}

// WithTTL sets the expiration of cached closures; 0 keeps the default.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedProvider) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMetrics records hits and misses.
func WithMetrics(m *prometheus.RunMetrics) CacheOption {
	return func(c *CachedProvider) { c.metrics = m }
}

// CachedProvider caches the closures of another Provider as JSON arrays.
// Empty closures are cached too.  Concurrent misses on one id collapse into
// a single upstream call.  Redis failures degrade to the upstream provider.
type CachedProvider struct {
	client  *Client
	next    ontology.Provider
	prefix  string
	scope   string
	ttl     time.Duration
	metrics *prometheus.RunMetrics
	logger  logging.Logger
	group   singleflight.Group
}

var _ ontology.Provider = (*CachedProvider)(nil)

// NewCachedProvider decorates next with a Redis cache.
func NewCachedProvider(client *Client, next ontology.Provider, log logging.Logger, opts ...CacheOption) *CachedProvider {
	c := &CachedProvider{
		client: client,
		next:   next,
		prefix: defaultClosurePrefix,
		ttl:    defaultClosureTTL,
		logger: logging.OrNop(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the Redis key holding the closure of id.
func (c *CachedProvider) Key(id string) string { return c.prefix + c.scope + id }

// Ancestors implements ontology.Provider.
func (c *CachedProvider) Ancestors(ctx context.Context, id string) (ontology.ConceptSet, error) {
	key := c.Key(id)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ids []string
		if uerr := json.Unmarshal(data, &ids); uerr == nil {
			c.metrics.RecordCache(cacheName, true)
			return ontology.NewConceptSet(ids...), nil
		}
		c.logger.Warn("discarding corrupt cache entry", logging.String("key", key))
	case !stderrors.Is(err, redis.Nil):
		c.logger.Warn("closure cache unavailable", logging.String("key", key), logging.Err(err))
	}
	c.metrics.RecordCache(cacheName, false)

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		set, err := c.next.Ancestors(ctx, id)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(stringsOf(set))
		if err == nil {
			err = c.client.Set(ctx, key, string(payload), c.ttl).Err()
		}
		if err != nil {
			c.logger.Warn("failed to cache closure", logging.String("key", key), logging.Err(err))
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ontology.ConceptSet), nil
}

func stringsOf(s ontology.ConceptSet) []string {
	if s == nil {
		return []string{}
	}
	return []string(s)
}

package cli

import (
	"context"
	"io"

	"github.com/bbowles1/HIPPO/internal/config"
	"github.com/bbowles1/HIPPO/internal/domain/ontology"
	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	neo4jdriver "github.com/bbowles1/HIPPO/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/bbowles1/HIPPO/internal/infrastructure/database/neo4j/repositories"
	"github.com/bbowles1/HIPPO/internal/infrastructure/database/postgres"
	pgrepo "github.com/bbowles1/HIPPO/internal/infrastructure/database/postgres/repositories"
	"github.com/bbowles1/HIPPO/internal/infrastructure/database/redis"
	"github.com/bbowles1/HIPPO/internal/infrastructure/messaging/kafka"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/internal/infrastructure/storage/minio"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

// graphStore is the Neo4j-backed ontology.
type graphStore interface {
	ontology.Provider
	ontology.Store
	ontology.Versioned
}

// migrator is the schema migration engine behind `db migrate`.
type migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

// Backend constructors.  Tests replace them with fakes.
var (
	openGraphStore = func(ctx context.Context, cfg *config.Config, log logging.Logger) (graphStore, func(context.Context) error, error) {
		d, err := neo4jdriver.NewDriver(ctx, cfg.Neo4j, log)
		if err != nil {
			return nil, nil, err
		}
		repo := neo4jrepo.NewOntologyRepository(d, cfg.Neo4j.ImportBatchSize, log,
			neo4jrepo.WithAltIDResolution(cfg.Ontology.ResolveAltIDs))
		return repo, d.Close, nil
	}

	openRedis = func(ctx context.Context, cfg config.RedisConfig, log logging.Logger) (*redis.Client, error) {
		return redis.NewClient(ctx, cfg, log)
	}

	openMigrator = func(dsn string, log logging.Logger) (migrator, error) {
		return postgres.NewMigrator(dsn, log)
	}

	openSinks = defaultSinks
)

// closers runs cleanup functions in reverse order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// buildProvider resolves the configured ontology source and wraps it in the
// Redis closure cache when ontology.cache is set.
func buildProvider(ctx context.Context, c *CLIContext, cl *closers) (ontology.Provider, error) {
	cfg := c.Config
	log := c.Logger

	var provider interface {
		ontology.Provider
		ontology.Versioned
	}
	switch cfg.Ontology.Source {
	case config.SourceNeo4j:
		store, closeStore, err := openGraphStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		cl.add(func() { _ = closeStore(context.Background()) })
		provider = store
		log.Info("resolving ancestors through neo4j", logging.String("uri", cfg.Neo4j.URI))
	default:
		if cfg.Ontology.Path == "" {
			return nil, errors.Errorf("an ontology catalog is required: pass --catalog or set ontology.path")
		}
		var opts []ontology.GraphOption
		if cfg.Ontology.ResolveAltIDs {
			opts = append(opts, ontology.WithAltIDResolution())
		}
		g, err := ontology.LoadGraph(cfg.Ontology.Path, opts...)
		if err != nil {
			return nil, err
		}
		log.Info("ontology loaded",
			logging.String("path", cfg.Ontology.Path),
			logging.Int("terms", g.Len()),
			logging.Int("dangling_edges", g.DanglingEdges()))
		provider = g
	}

	if !cfg.Ontology.Cache {
		return provider, nil
	}
	release, err := provider.Release(ctx)
	if err != nil {
		return nil, err
	}
	client, err := openRedis(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	cl.add(func() { _ = client.Close() })
	log.Info("caching closures in redis",
		logging.String("release", release),
		logging.Bool("resolve_alt_ids", cfg.Ontology.ResolveAltIDs))
	return redis.NewCachedProvider(client, provider, log,
		redis.WithPrefix(cfg.Redis.KeyPrefix),
		redis.WithRelease(release, cfg.Ontology.ResolveAltIDs),
		redis.WithTTL(cfg.Redis.TTL),
		redis.WithMetrics(c.Metrics),
	), nil
}

// defaultSinks opens every enabled result sink.
func defaultSinks(ctx context.Context, cfg *config.Config, log logging.Logger, cl *closers) ([]similarity.ReportSink, error) {
	var sinks []similarity.ReportSink

	if cfg.MinIO.Enabled {
		client, err := minio.NewMinIOClient(ctx, cfg.MinIO, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, minio.NewMatrixStore(client, cfg.MinIO.Prefix, log))
	}

	if cfg.Postgres.Enabled {
		conn, err := postgres.NewConnection(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		cl.add(conn.Close)
		sinks = append(sinks, pgrepo.NewRunRepository(conn.Pool(), log))
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewRunEventProducer(cfg.Kafka, log)
		if err != nil {
			return nil, err
		}
		cl.add(closeQuietly(producer, log))
		sinks = append(sinks, producer)
	}
	return sinks, nil
}

func closeQuietly(c io.Closer, log logging.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn("close failed", logging.Err(err))
		}
	}
}

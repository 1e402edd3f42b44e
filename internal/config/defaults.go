package config

import (
	"strings"
	"time"
)

const (
	DefaultOntologySource = SourceOBO

	DefaultInputDelimiter   = "\t"
	DefaultIDColumn         = "ID"
	DefaultConceptColumn    = "HPO"
	DefaultConceptDelimiter = ","

	DefaultOutputDelimiter = "\t"
	DefaultColumnLabels    = LabelsIDs

	DefaultProgressPercent = 10

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultMetricsNamespace = "hippo"
	DefaultMetricsJobName   = "hippo"

	DefaultNeo4jURI        = "bolt://localhost:7687"
	DefaultNeo4jDatabase   = "neo4j"
	DefaultNeo4jPoolSize   = 50
	DefaultNeo4jBatchSize  = 500
	DefaultNeo4jConnectTTL = 30 * time.Second

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisTTL       = 24 * time.Hour
	DefaultRedisKeyPrefix = "hippo:ancestors:"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "hippo"
	DefaultMinIOPrefix   = "matrices/"

	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresDBName   = "hippo"
	DefaultPostgresMaxConns = 10

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaTopic       = "hippo.similarity.run.completed"
	DefaultKafkaBatchSize   = 1
	DefaultKafkaMaxAttempts = 3
)

// ApplyDefaults fills every zero-value field in cfg.  Explicit values win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Ontology ──────────────────────────────────────────────────────────────
	if cfg.Ontology.Source == "" {
		cfg.Ontology.Source = DefaultOntologySource
	}
	cfg.Ontology.Source = strings.ToLower(cfg.Ontology.Source)

	// ── Input / output ────────────────────────────────────────────────────────
	cfg.Input.Delimiter = NormalizeDelimiter(cfg.Input.Delimiter)
	if cfg.Input.Delimiter == "" {
		cfg.Input.Delimiter = DefaultInputDelimiter
	}
	if cfg.Input.IDColumn == "" {
		cfg.Input.IDColumn = DefaultIDColumn
	}
	if cfg.Input.ConceptColumn == "" {
		cfg.Input.ConceptColumn = DefaultConceptColumn
	}
	if cfg.Input.ConceptDelimiter == "" {
		cfg.Input.ConceptDelimiter = DefaultConceptDelimiter
	}
	cfg.Output.Delimiter = NormalizeDelimiter(cfg.Output.Delimiter)
	if cfg.Output.Delimiter == "" {
		cfg.Output.Delimiter = DefaultOutputDelimiter
	}
	if cfg.Output.ColumnLabels == "" {
		cfg.Output.ColumnLabels = DefaultColumnLabels
	}

	// ── Compute ───────────────────────────────────────────────────────────────
	if cfg.Compute.ProgressPercent == 0 {
		cfg.Compute.ProgressPercent = DefaultProgressPercent
	}

	// ── Log / metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = DefaultMetricsJobName
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Neo4j.MaxConnectionPoolSize = DefaultNeo4jPoolSize
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = DefaultNeo4jConnectTTL
	}
	if cfg.Neo4j.ImportBatchSize == 0 {
		cfg.Neo4j.ImportBatchSize = DefaultNeo4jBatchSize
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.Prefix == "" {
		cfg.MinIO.Prefix = DefaultMinIOPrefix
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.DBName == "" {
		cfg.Postgres.DBName = DefaultPostgresDBName
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = DefaultPostgresMaxConns
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.MaxAttempts == 0 {
		cfg.Kafka.MaxAttempts = DefaultKafkaMaxAttempts
	}
}

// NormalizeDelimiter accepts the spelled-out forms "tab", "\t" (backslash t)
// and "comma" used in env vars and flags.
func NormalizeDelimiter(d string) string {
	switch strings.ToLower(d) {
	case "tab", `\t`:
		return "\t"
	case "comma":
		return ","
	case "semicolon":
		return ";"
	case "pipe":
		return "|"
	}
	return d
}

// Default returns a fully defaulted Config without reading files or env.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

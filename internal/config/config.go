// Package config defines the configuration tree of the hippo binary.  No I/O
// lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Ontology sources.
const (
	SourceOBO   = "obo"
	SourceNeo4j = "neo4j"
)

// Column label modes of the output matrix.
const (
	LabelsIDs        = "ids"
	LabelsPositional = "positional"
)

// OntologyConfig selects where ancestor closures come from.
type OntologyConfig struct {
	Source        string `mapstructure:"source"` // "obo" | "neo4j"
	Path          string `mapstructure:"path"`   // OBO catalog, also used by `ontology import`
	ResolveAltIDs bool   `mapstructure:"resolve_alt_ids"`
	// Cache wraps the provider in the Redis closure cache.
	Cache bool `mapstructure:"cache"`
}

// InputConfig describes the case annotation table.
type InputConfig struct {
	Path             string `mapstructure:"path"`
	Delimiter        string `mapstructure:"delimiter"`
	IDColumn         string `mapstructure:"id_column"`
	ConceptColumn    string `mapstructure:"concept_column"`
	ConceptDelimiter string `mapstructure:"concept_delimiter"`
}

// OutputConfig describes the similarity matrix file.
type OutputConfig struct {
	Path         string `mapstructure:"path"`
	Delimiter    string `mapstructure:"delimiter"`
	ColumnLabels string `mapstructure:"column_labels"` // "ids" | "positional"
	// Precision is the number of decimals written; 0 keeps the shortest
	// representation that round-trips.
	Precision int `mapstructure:"precision"`
}

// ComputeConfig tunes the pairwise grid.
type ComputeConfig struct {
	Workers         int           `mapstructure:"workers"` // 0 = runtime.NumCPU()
	Timeout         time.Duration `mapstructure:"timeout"` // 0 = no deadline
	ProgressPercent int           `mapstructure:"progress_percent"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "console" | "json"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig controls how run metrics leave the process.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Namespace      string `mapstructure:"namespace"`
	TextfilePath   string `mapstructure:"textfile_path"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// Neo4jConfig holds graph store connection parameters.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
	ImportBatchSize       int           `mapstructure:"import_batch_size"`
}

// RedisConfig holds closure cache parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// MinIOConfig holds the matrix artifact store parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// PostgresConfig holds run persistence parameters.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the libpq-style URL accepted by pgx and golang-migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// KafkaConfig holds run event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RequiredAcks int           `mapstructure:"required_acks"` // -1 all, 0 none, 1 leader
}

// Config is the root configuration structure.
type Config struct {
	Ontology OntologyConfig `mapstructure:"ontology"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Compute  ComputeConfig  `mapstructure:"compute"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// Validate performs semantic validation of a defaulted Config and returns the
// first problem found.
func (c *Config) Validate() error {
	switch c.Ontology.Source {
	case SourceOBO, SourceNeo4j:
	default:
		return fmt.Errorf("config: ontology.source %q is invalid; expected obo|neo4j", c.Ontology.Source)
	}
	if c.Ontology.Source == SourceNeo4j && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required when ontology.source is neo4j")
	}
	if c.Ontology.Cache && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when ontology.cache is enabled")
	}

	if err := validateDelimiter("input.delimiter", c.Input.Delimiter); err != nil {
		return err
	}
	if c.Input.ConceptDelimiter == "" {
		return fmt.Errorf("config: input.concept_delimiter must not be empty")
	}
	if c.Input.IDColumn == "" || c.Input.ConceptColumn == "" {
		return fmt.Errorf("config: input.id_column and input.concept_column are required")
	}
	if c.Input.IDColumn == c.Input.ConceptColumn {
		return fmt.Errorf("config: input.id_column and input.concept_column must differ, both are %q", c.Input.IDColumn)
	}

	if err := validateDelimiter("output.delimiter", c.Output.Delimiter); err != nil {
		return err
	}
	switch c.Output.ColumnLabels {
	case LabelsIDs, LabelsPositional:
	default:
		return fmt.Errorf("config: output.column_labels %q is invalid; expected ids|positional", c.Output.ColumnLabels)
	}
	if c.Output.Precision < 0 || c.Output.Precision > 17 {
		return fmt.Errorf("config: output.precision must be in [0, 17], got %d", c.Output.Precision)
	}

	if c.Compute.Workers < 0 {
		return fmt.Errorf("config: compute.workers must be >= 0, got %d", c.Compute.Workers)
	}
	if c.Compute.Timeout < 0 {
		return fmt.Errorf("config: compute.timeout must be >= 0, got %s", c.Compute.Timeout)
	}
	if c.Compute.ProgressPercent < 1 || c.Compute.ProgressPercent > 100 {
		return fmt.Errorf("config: compute.progress_percent must be in [1, 100], got %d", c.Compute.ProgressPercent)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
		}
	}

	if c.Postgres.Enabled {
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.host, postgres.user and postgres.db_name are required when postgres is enabled")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return fmt.Errorf("config: postgres.port %d is out of range [1, 65535]", c.Postgres.Port)
		}
		if c.Postgres.MaxConns < 1 {
			return fmt.Errorf("config: postgres.max_conns must be >= 1, got %d", c.Postgres.MaxConns)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required when kafka is enabled")
		}
		switch c.Kafka.RequiredAcks {
		case -1, 0, 1:
		default:
			return fmt.Errorf("config: kafka.required_acks must be -1, 0 or 1, got %d", c.Kafka.RequiredAcks)
		}
	}

	if c.Metrics.Enabled && c.Metrics.TextfilePath == "" && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("config: metrics.textfile_path or metrics.pushgateway_url is required when metrics are enabled")
	}

	return nil
}

func validateDelimiter(key, d string) error {
	if utf8.RuneCountInString(d) != 1 {
		return fmt.Errorf("config: %s must be a single character, got %q", key, d)
	}
	r, _ := utf8.DecodeRuneInString(d)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return fmt.Errorf("config: %s %q is not a valid field delimiter", key, d)
	}
	return nil
}

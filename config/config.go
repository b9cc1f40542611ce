// Package config loads the fern service configuration: defaults, then an optional TOML file,
// then a .env file, then environment variables.
package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linker"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	LockMemory = "memory"
	LockRedis  = "redis"
)

type Config struct {
	App        AppConfig        `toml:"app"`
	HTTP       HTTPConfig       `toml:"http"`
	Log        LogConfig        `toml:"log"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Graph      GraphConfig      `toml:"graph"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Tracing    TracingConfig    `toml:"tracing"`
	Linking    LinkingConfig    `toml:"linking"`
	Limits     LimitsConfig     `toml:"limits"`
	Lock       LockConfig       `toml:"lock"`
	Processing ProcessingConfig `toml:"processing"`
}

type AppConfig struct {
	Name    string `toml:"name" env:"APP_NAME"`
	Version string `toml:"version" env:"APP_VERSION"`
	// Store selects the persistence backend: memory or postgres
	Store              string `toml:"store" env:"STORE_BACKEND"`
	StartupMaxAttempts int    `toml:"startup_max_attempts" env:"STARTUP_MAX_ATTEMPTS"`
}

type HTTPConfig struct {
	Port                     int      `toml:"port" env:"PORT"`
	ReadTimeoutSeconds       int      `toml:"read_timeout_seconds" env:"HTTP_SERVER_READ_TIMEOUT_SECONDS"`
	WriteTimeoutSeconds      int      `toml:"write_timeout_seconds" env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS"`
	IdleTimeoutSeconds       int      `toml:"idle_timeout_seconds" env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS"`
	ReadHeaderTimeoutSeconds int      `toml:"read_header_timeout_seconds" env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS"`
	MaxHeaderBytes           int      `toml:"max_header_bytes" env:"HTTP_SERVER_MAX_HEADER_BYTES"`
	AllowOrigins             []string `toml:"allow_origins" env:"HTTP_SERVER_ALLOW_ORIGINS"`
	AllowMethods             []string `toml:"allow_methods" env:"HTTP_SERVER_ALLOW_METHODS"`
	AuthEnabled              bool     `toml:"auth_enabled" env:"AUTH_ENABLED"`
	AuthIssuerURL            string   `toml:"auth_issuer_url" env:"AUTH_ISSUER_URL"`
	AuthClientID             string   `toml:"auth_client_id" env:"AUTH_CLIENT_ID"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Pretty bool   `toml:"pretty" env:"PRETTY_LOGS"`
}

type DatabaseConfig struct {
	Host                   string `toml:"host" env:"DB_HOST"`
	Port                   int    `toml:"port" env:"DB_PORT"`
	User                   string `toml:"user" env:"DB_USER_NAME"`
	Password               string `toml:"password" env:"DB_PASSWORD"`
	Name                   string `toml:"name" env:"DB_NAME"`
	SSLMode                string `toml:"ssl_mode" env:"DB_SQL_MODE"`
	MaxOpenConns           int    `toml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns           int    `toml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetimeSeconds int    `toml:"conn_max_lifetime_seconds" env:"DB_CONN_MAX_LIFETIME_SECONDS"`
	MigrationFolderPath    string `toml:"migration_folder_path" env:"DB_MIGRATION_FOLDER_PATH"`
	MigrationVersion       int    `toml:"migration_version" env:"DB_MIGRATION_VERSION"`
	MigrationForce         int    `toml:"migration_force" env:"DB_MIGRATION_FORCE"`
	MigrationAutoRollback  bool   `toml:"migration_auto_rollback" env:"DB_MIGRATION_AUTO_ROLLBACK"`
	MigrateOnStart         bool   `toml:"migrate_on_start" env:"DB_MIGRATE_ON_START"`
}

type RedisConfig struct {
	Host     string `toml:"host" env:"REDIS_HOST"`
	Port     int    `toml:"port" env:"REDIS_PORT"`
	Password string `toml:"password" env:"REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REDIS_DB"`
}

type GraphConfig struct {
	Enabled  bool   `toml:"enabled" env:"GRAPH_ENABLED"`
	Host     string `toml:"host" env:"GRAPH_DB_HOST"`
	Port     int    `toml:"port" env:"GRAPH_DB_PORT"`
	User     string `toml:"user" env:"GRAPH_DB_USER"`
	Password string `toml:"password" env:"GRAPH_DB_PASSWORD"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers" env:"KAFKA_BROKERS"`
	ConsumerEnabled bool     `toml:"consumer_enabled" env:"KAFKA_CONSUMER_ENABLED"`
	InputTopic      string   `toml:"input_topic" env:"KAFKA_INPUT_TOPIC"`
	ConsumerGroup   string   `toml:"consumer_group" env:"KAFKA_CONSUMER_GROUP"`
	MaxAttempts     int      `toml:"max_attempts" env:"KAFKA_MAX_ATTEMPTS"`
	RetryBackoffMs  int      `toml:"retry_backoff_ms" env:"KAFKA_RETRY_BACKOFF_MS"`
	ProducerEnabled bool     `toml:"producer_enabled" env:"KAFKA_PRODUCER_ENABLED"`
	OutputTopic     string   `toml:"output_topic" env:"KAFKA_OUTPUT_TOPIC"`
	BatchSize       int      `toml:"batch_size" env:"KAFKA_BATCH_SIZE"`
	BatchTimeoutMs  int      `toml:"batch_timeout_ms" env:"KAFKA_BATCH_TIMEOUT_MS"`
	RequiredAcks    int      `toml:"required_acks" env:"KAFKA_REQUIRED_ACKS"`
	Compression     string   `toml:"compression" env:"KAFKA_COMPRESSION"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string  `toml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol    string  `toml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL"`
	Insecure    bool    `toml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	SampleRatio float64 `toml:"sample_ratio" env:"TRACING_SAMPLE_RATIO"`
}

type WeightsConfig struct {
	CaseNumber       float64 `toml:"case_number"`
	PersonalID       float64 `toml:"personal_id"`
	PartyName        float64 `toml:"party_name"`
	Charge           float64 `toml:"charge"`
	Date             float64 `toml:"date"`
	Location         float64 `toml:"location"`
	VectorSimilarity float64 `toml:"vector_similarity"`
}

type LinkingConfig struct {
	Weights              WeightsConfig `toml:"weights"`
	MinConfidence        float64       `toml:"min_confidence" env:"FERN_MIN_CONFIDENCE"`
	SimilarityThreshold  float64       `toml:"similarity_threshold" env:"FERN_SIMILARITY_THRESHOLD"`
	DateWindowDays       int           `toml:"date_window_days" env:"FERN_DATE_WINDOW_DAYS"`
	NameThreshold        float64       `toml:"name_threshold"`
	DescriptionThreshold float64       `toml:"description_threshold"`
	EvidenceThreshold    float64       `toml:"evidence_threshold"`
	CandidateLimit       int           `toml:"candidate_limit" env:"FERN_CANDIDATE_LIMIT"`
	SimilarLimit         int           `toml:"similar_limit"`
	ConflictRetries      int           `toml:"conflict_retries"`
}

type LimitsConfig struct {
	MaxParties           int `toml:"max_parties" env:"FERN_MAX_PARTIES"`
	MaxCharges           int `toml:"max_charges" env:"FERN_MAX_CHARGES"`
	MaxEvidence          int `toml:"max_evidence" env:"FERN_MAX_EVIDENCE"`
	PerDocumentParties   int `toml:"per_document_parties"`
	PerDocumentCharges   int `toml:"per_document_charges"`
	PerDocumentEvidence  int `toml:"per_document_evidence"`
	PerDocumentJudgments int `toml:"per_document_judgments"`
	MaxTextLength        int `toml:"max_text_length" env:"FERN_MAX_TEXT_LENGTH"`
	MaxArraySize         int `toml:"max_array_size" env:"FERN_MAX_ARRAY_SIZE"`
}

type LockConfig struct {
	// Backend is memory for a single process or redis when several instances share a store
	Backend        string `toml:"backend" env:"LOCK_BACKEND"`
	KeyPrefix      string `toml:"key_prefix"`
	TTLSeconds     int    `toml:"ttl_seconds" env:"LOCK_TTL_SECONDS"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"LOCK_TIMEOUT_SECONDS"`
}

type ProcessingConfig struct {
	Workers                 int `toml:"workers" env:"MERGE_WORKER_COUNT"`
	OperationTimeoutSeconds int `toml:"operation_timeout_seconds" env:"OPERATION_TIMEOUT_SECONDS"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	scoring := matching.DefaultOptions()
	limits := merging.DefaultLimits()

	return &Config{
		App: AppConfig{
			Name:               "fern",
			Version:            "dev",
			Store:              StorePostgres,
			StartupMaxAttempts: 5,
		},
		HTTP: HTTPConfig{
			Port:                     3002,
			ReadTimeoutSeconds:       10,
			WriteTimeoutSeconds:      int(linker.DefaultOperationTimeout/time.Second) + 5,
			IdleTimeoutSeconds:       10,
			ReadHeaderTimeoutSeconds: 10,
			MaxHeaderBytes:           64000,
			AllowOrigins:             []string{"*"},
			AllowMethods:             []string{"GET", "POST", "PUT", "DELETE"},
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Host:                   "localhost",
			Port:                   5432,
			Name:                   "fern",
			SSLMode:                "disable",
			MaxOpenConns:           25,
			MaxIdleConns:           10,
			ConnMaxLifetimeSeconds: 300,
			MigrationFolderPath:    "db/pg",
			MigrationAutoRollback:  true,
			MigrateOnStart:         true,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Graph: GraphConfig{Host: "localhost", Port: 7687},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			InputTopic:     "entity-bags",
			ConsumerGroup:  "fern-linker",
			MaxAttempts:    5,
			RetryBackoffMs: 1000,
			OutputTopic:    "case-events",
			BatchSize:      100,
			BatchTimeoutMs: 100,
			RequiredAcks:   1,
			Compression:    "snappy",
		},
		Tracing: TracingConfig{
			Endpoint:    exporters.DefaultOTLPConfig().Endpoint,
			Protocol:    exporters.ProtocolGRPC,
			Insecure:    true,
			SampleRatio: 1,
		},
		Linking: LinkingConfig{
			Weights: WeightsConfig{
				CaseNumber:       scoring.Weights.CaseNumber,
				PersonalID:       scoring.Weights.PersonalID,
				PartyName:        scoring.Weights.PartyName,
				Charge:           scoring.Weights.Charge,
				Date:             scoring.Weights.Date,
				Location:         scoring.Weights.Location,
				VectorSimilarity: scoring.Weights.VectorSimilarity,
			},
			MinConfidence:        scoring.MinConfidence,
			SimilarityThreshold:  scoring.SimilarityThreshold,
			DateWindowDays:       scoring.DateWindowDays,
			NameThreshold:        scoring.Thresholds.Name,
			DescriptionThreshold: scoring.Thresholds.Description,
			EvidenceThreshold:    scoring.Thresholds.Evidence,
			CandidateLimit:       resolver.DefaultCandidateLimit,
			SimilarLimit:         resolver.DefaultSimilarLimit,
			ConflictRetries:      resolver.DefaultConflictRetries,
		},
		Limits: LimitsConfig{
			MaxParties:           limits.MaxParties,
			MaxCharges:           limits.MaxCharges,
			MaxEvidence:          limits.MaxEvidence,
			PerDocumentParties:   limits.PerDocument.Parties,
			PerDocumentCharges:   limits.PerDocument.Charges,
			PerDocumentEvidence:  limits.PerDocument.Evidence,
			PerDocumentJudgments: limits.PerDocument.Judgments,
			MaxTextLength:        limits.MaxTextLength,
			MaxArraySize:         limits.MaxArraySize,
		},
		Lock: LockConfig{
			Backend:        LockMemory,
			KeyPrefix:      "fern:lock:",
			TTLSeconds:     int(lock.DefaultTTL / time.Second),
			TimeoutSeconds: int(lock.DefaultAcquireTimeout / time.Second),
		},
		Processing: ProcessingConfig{
			Workers:                 4,
			OperationTimeoutSeconds: int(linker.DefaultOperationTimeout / time.Second),
		},
	}
}

// Load builds the configuration. path names an optional TOML file; a .env file in the working
// directory is loaded when present and never overrides variables already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.Wrap(err, "failed to load .env")
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the env tags on the config structs. Unset or empty variables
// leave the current value in place.
func (c *Config) ApplyEnv() error {
	if err := ectoenv.BindEnv(c); err != nil {
		return errors.Wrap(err, "invalid environment")
	}
	c.HTTP.AllowOrigins = trimList(c.HTTP.AllowOrigins)
	c.HTTP.AllowMethods = trimList(c.HTTP.AllowMethods)
	c.Kafka.Brokers = trimList(c.Kafka.Brokers)
	return nil
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, errors.Errorf(format, args...).Error())
	}

	switch c.App.Store {
	case StoreMemory, StorePostgres:
	default:
		add("app.store must be %q or %q, got %q", StoreMemory, StorePostgres, c.App.Store)
	}
	if c.App.Store == StorePostgres && c.Database.Host == "" {
		add("database.host is required for the postgres store")
	}
	if c.Database.MigrationVersion < 0 {
		add("database.migration_version must not be negative")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		add("http.port %d is out of range", c.HTTP.Port)
	}
	if c.HTTP.AuthEnabled && (c.HTTP.AuthIssuerURL == "" || c.HTTP.AuthClientID == "") {
		add("http.auth_issuer_url and http.auth_client_id are required when auth is enabled")
	}

	w := c.Linking.Weights
	for name, v := range map[string]float64{
		"case_number": w.CaseNumber, "personal_id": w.PersonalID, "party_name": w.PartyName,
		"charge": w.Charge, "date": w.Date, "location": w.Location, "vector_similarity": w.VectorSimilarity,
	} {
		if v < 0 {
			add("linking.weights.%s must not be negative", name)
		}
	}
	if c.Linking.MinConfidence <= 0 || c.Linking.MinConfidence > 1 {
		add("linking.min_confidence must be in (0, 1], got %v", c.Linking.MinConfidence)
	}
	if c.Linking.SimilarityThreshold < 0 || c.Linking.SimilarityThreshold > 1 {
		add("linking.similarity_threshold must be in [0, 1], got %v", c.Linking.SimilarityThreshold)
	}
	if c.Linking.DateWindowDays < 0 {
		add("linking.date_window_days must not be negative")
	}

	for name, v := range map[string]int{
		"max_parties": c.Limits.MaxParties, "max_charges": c.Limits.MaxCharges, "max_evidence": c.Limits.MaxEvidence,
		"per_document_parties": c.Limits.PerDocumentParties, "per_document_charges": c.Limits.PerDocumentCharges,
		"per_document_evidence": c.Limits.PerDocumentEvidence, "per_document_judgments": c.Limits.PerDocumentJudgments,
		"max_text_length": c.Limits.MaxTextLength, "max_array_size": c.Limits.MaxArraySize,
	} {
		if v <= 0 {
			add("limits.%s must be positive", name)
		}
	}

	switch c.Lock.Backend {
	case LockMemory, LockRedis:
	default:
		add("lock.backend must be %q or %q, got %q", LockMemory, LockRedis, c.Lock.Backend)
	}
	switch c.Tracing.Protocol {
	case exporters.ProtocolGRPC, exporters.ProtocolHTTP:
	default:
		add("tracing.protocol must be %q or %q", exporters.ProtocolGRPC, exporters.ProtocolHTTP)
	}
	if c.Processing.Workers <= 0 {
		add("processing.workers must be positive")
	}

	if len(problems) == 0 {
		return nil
	}
	// map iteration order is random
	sort.Strings(problems)
	return errors.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// Scoring returns the confidence scoring options
func (l LinkingConfig) Scoring() matching.Options {
	return matching.Options{
		Weights: matching.Weights{
			CaseNumber:       l.Weights.CaseNumber,
			PersonalID:       l.Weights.PersonalID,
			PartyName:        l.Weights.PartyName,
			Charge:           l.Weights.Charge,
			Date:             l.Weights.Date,
			Location:         l.Weights.Location,
			VectorSimilarity: l.Weights.VectorSimilarity,
		},
		MinConfidence:       l.MinConfidence,
		SimilarityThreshold: l.SimilarityThreshold,
		DateWindowDays:      l.DateWindowDays,
		Thresholds: matching.Thresholds{
			Name:        l.NameThreshold,
			Description: l.DescriptionThreshold,
			Evidence:    l.EvidenceThreshold,
		},
	}
}

// Resolver returns the resolver bounds
func (l LinkingConfig) Resolver() resolver.Options {
	return resolver.Options{
		CandidateLimit:  l.CandidateLimit,
		SimilarLimit:    l.SimilarLimit,
		ConflictRetries: l.ConflictRetries,
	}
}

// Options converts the caps into merge limits
func (l LimitsConfig) Options() merging.Limits {
	return merging.Limits{
		MaxParties:  l.MaxParties,
		MaxCharges:  l.MaxCharges,
		MaxEvidence: l.MaxEvidence,
		PerDocument: merging.DocumentLimits{
			Parties:   l.PerDocumentParties,
			Charges:   l.PerDocumentCharges,
			Evidence:  l.PerDocumentEvidence,
			Judgments: l.PerDocumentJudgments,
		},
		MaxTextLength: l.MaxTextLength,
		MaxArraySize:  l.MaxArraySize,
	}
}

// LinkerOptions returns the linker options, recording the scoring parameters on every link
func (c *Config) LinkerOptions() linker.Options {
	return linker.Options{
		OperationTimeout: seconds(c.Processing.OperationTimeoutSeconds),
		LinkingParams:    c.Linking.Scoring().Params(),
	}
}

func (d DatabaseConfig) Connection() database.Config {
	return database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Name:            d.Name,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: seconds(d.ConnMaxLifetimeSeconds),
	}
}

func (d DatabaseConfig) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: d.MigrationFolderPath,
		Version:             uint(d.MigrationVersion),
		Force:               d.MigrationForce,
		AutoRollback:        d.MigrationAutoRollback,
	}
}

func (g GraphConfig) Connection() graph.Config {
	return graph.Config{Host: g.Host, Port: g.Port, Username: g.User, Password: g.Password}
}

func (k KafkaConfig) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       k.Brokers,
		Topic:         k.InputTopic,
		ConsumerGroup: k.ConsumerGroup,
		MaxAttempts:   k.MaxAttempts,
		RetryBackoff:  time.Duration(k.RetryBackoffMs) * time.Millisecond,
	}
}

func (k KafkaConfig) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      k.Brokers,
		Topic:        k.OutputTopic,
		BatchSize:    k.BatchSize,
		BatchTimeout: time.Duration(k.BatchTimeoutMs) * time.Millisecond,
		RequiredAcks: k.RequiredAcks,
		Compression:  k.Compression,
	}
}

func (t TracingConfig) Exporter() exporters.OTLPConfig {
	cfg := exporters.DefaultOTLPConfig()
	cfg.Endpoint = t.Endpoint
	cfg.Protocol = t.Protocol
	cfg.Insecure = t.Insecure
	return cfg
}

func (r RedisConfig) Connection() lock.RedisConfig {
	return lock.RedisConfig{Host: r.Host, Port: r.Port, Password: r.Password, DB: r.DB}
}

func (l LockConfig) TTL() time.Duration {
	return seconds(l.TTLSeconds)
}

func (l LockConfig) Timeout() time.Duration {
	return seconds(l.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// trimList drops blanks and surrounding spaces from a comma separated value
func trimList(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

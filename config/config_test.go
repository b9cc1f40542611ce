package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, matching.DefaultOptions(), cfg.Linking.Scoring())
	assert.Equal(t, merging.DefaultLimits(), cfg.Limits.Options())
	assert.Equal(t, 60*time.Second, cfg.LinkerOptions().OperationTimeout)
	assert.Equal(t, 0.7, cfg.LinkerOptions().LinkingParams["min_confidence"])
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides",
			env: map[string]string{
				"DB_HOST":              "postgres",
				"DB_PORT":              "6543",
				"DB_MIGRATION_VERSION": "3",
				"AUTH_ENABLED":         "true",
				"FERN_MIN_CONFIDENCE":  "0.65",
				"LOCK_BACKEND":         "redis",
				"LOCK_TTL_SECONDS":     "45",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres", cfg.Database.Host)
				assert.Equal(t, 6543, cfg.Database.Port)
				assert.Equal(t, uint(3), cfg.Database.Migration().Version)
				assert.True(t, cfg.HTTP.AuthEnabled)
				assert.Equal(t, 0.65, cfg.Linking.MinConfidence)
				assert.Equal(t, LockRedis, cfg.Lock.Backend)
				assert.Equal(t, 45*time.Second, cfg.Lock.TTL())
			},
		},
		{
			name: "lists are trimmed",
			env:  map[string]string{"KAFKA_BROKERS": "kafka-1:9092, kafka-2:9092,"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
			},
		},
		{
			name: "empty values keep defaults",
			env:  map[string]string{"APP_NAME": "", "PORT": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default().App.Name, cfg.App.Name)
				assert.Equal(t, Default().HTTP.Port, cfg.HTTP.Port)
			},
		},
		{name: "invalid int", env: map[string]string{"DB_PORT": "five"}, wantErr: true},
		{name: "invalid bool", env: map[string]string{"AUTH_ENABLED": "sometimes"}, wantErr: true},
		{name: "invalid float", env: map[string]string{"FERN_MIN_CONFIDENCE": "high"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Default()
			err := cfg.ApplyEnv()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid environment")
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "memory store needs no database", mutate: func(c *Config) {
			c.App.Store = StoreMemory
			c.Database.Host = ""
		}},
		{name: "unknown store", mutate: func(c *Config) { c.App.Store = "mongo" }, wantErr: "app.store"},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database.host"},
		{name: "negative weight", mutate: func(c *Config) { c.Linking.Weights.Charge = -1 }, wantErr: "linking.weights.charge"},
		{name: "zero min confidence", mutate: func(c *Config) { c.Linking.MinConfidence = 0 }, wantErr: "min_confidence"},
		{name: "min confidence above one", mutate: func(c *Config) { c.Linking.MinConfidence = 1.2 }, wantErr: "min_confidence"},
		{name: "zero cap", mutate: func(c *Config) { c.Limits.MaxParties = 0 }, wantErr: "limits.max_parties"},
		{name: "auth without issuer", mutate: func(c *Config) { c.HTTP.AuthEnabled = true }, wantErr: "auth_issuer_url"},
		{name: "negative migration version", mutate: func(c *Config) { c.Database.MigrationVersion = -1 }, wantErr: "migration_version"},
		{name: "unknown lock backend", mutate: func(c *Config) { c.Lock.Backend = "etcd" }, wantErr: "lock.backend"},
		{name: "unknown tracing protocol", mutate: func(c *Config) { c.Tracing.Protocol = "udp" }, wantErr: "tracing.protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fern.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
store = "memory"

[linking]
min_confidence = 0.8

[linking.weights]
vector_similarity = 0.2

[limits]
max_parties = 50
`), 0o600))

	t.Setenv("FERN_MAX_PARTIES", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.App.Store)
	assert.Equal(t, 0.8, cfg.Linking.MinConfidence)
	assert.Equal(t, 0.2, cfg.Linking.Weights.VectorSimilarity)
	assert.Equal(t, 1.0, cfg.Linking.Weights.CaseNumber, "unset keys keep their defaults")
	assert.Equal(t, 75, cfg.Limits.MaxParties, "the environment wins over the file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

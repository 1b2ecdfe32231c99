package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "upchuck.yaml"

var validAutonomyLevels = map[string]bool{
	"ReviewRequired":  true,
	"SemiAutonomous":  true,
	"FullyAutonomous": true,
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the --config flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "UPCHUCK_PORT")
	setString(&cfg.Server.CORSOrigin, "UPCHUCK_CORS_ORIGIN")
	setDuration(&cfg.Server.ShutdownTimeout, "UPCHUCK_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.BodyLimit, "UPCHUCK_HTTP_BODY_LIMIT")
	setFloat64(&cfg.Server.RateLimitRPS, "UPCHUCK_HTTP_RATE_RPS")
	setInt(&cfg.Server.RateLimitBurst, "UPCHUCK_HTTP_RATE_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "UPCHUCK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "UPCHUCK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "UPCHUCK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "UPCHUCK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "UPCHUCK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "UPCHUCK_NATS_STREAM")
	setDuration(&cfg.NATS.DedupWindow, "UPCHUCK_NATS_DEDUP_WINDOW")
	setString(&cfg.Logging.Level, "UPCHUCK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "UPCHUCK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "UPCHUCK_LOG_ASYNC")
	setInt(&cfg.Logging.BufferSize, "UPCHUCK_LOG_BUFFER_SIZE")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "UPCHUCK_OTEL_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setFloat64(&cfg.OTEL.SampleRate, "UPCHUCK_OTEL_SAMPLE_RATE")
	setInt(&cfg.Breaker.MaxFailures, "UPCHUCK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "UPCHUCK_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "UPCHUCK_RATE_RPS")
	setInt(&cfg.Rate.Burst, "UPCHUCK_RATE_BURST")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "UPCHUCK_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "UPCHUCK_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "UPCHUCK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "UPCHUCK_CACHE_L2_TTL")

	// Queue
	setInt(&cfg.Queue.MaxRetryCount, "UPCHUCK_QUEUE_MAX_RETRY_COUNT")
	setInt(&cfg.Queue.Workers, "UPCHUCK_QUEUE_WORKERS")
	setDuration(&cfg.Queue.PollInterval, "UPCHUCK_QUEUE_POLL_INTERVAL")
	setInt(&cfg.Queue.ClaimBatch, "UPCHUCK_QUEUE_CLAIM_BATCH")
	setDuration(&cfg.Queue.ProcessingLease, "UPCHUCK_QUEUE_PROCESSING_LEASE")

	// Review
	setDuration(&cfg.Review.ExpireAfter, "UPCHUCK_REVIEW_EXPIRE_AFTER")
	setDuration(&cfg.Review.SweepInterval, "UPCHUCK_REVIEW_SWEEP_INTERVAL")
	setInt(&cfg.Review.SweepBatch, "UPCHUCK_REVIEW_SWEEP_BATCH")

	// Outbox
	setDuration(&cfg.Outbox.PollInterval, "UPCHUCK_OUTBOX_POLL_INTERVAL")
	setInt(&cfg.Outbox.BatchSize, "UPCHUCK_OUTBOX_BATCH_SIZE")
	setDuration(&cfg.Outbox.Retention, "UPCHUCK_OUTBOX_RETENTION")

	// Vault
	setString(&cfg.Vault.RawPath, "UPCHUCK_VAULT_RAW_PATH")
	setString(&cfg.Vault.PristinePath, "UPCHUCK_VAULT_PRISTINE_PATH")
	setStringSlice(&cfg.Vault.FileExtensions, "UPCHUCK_VAULT_FILE_EXTENSIONS")
	setStringSlice(&cfg.Vault.ExcludePatterns, "UPCHUCK_VAULT_EXCLUDE_PATTERNS")

	// Agents
	setString(&cfg.Agents.Defaults.AutonomyLevel, "UPCHUCK_AGENT_AUTONOMY_LEVEL")
	setFloat64(&cfg.Agents.Defaults.ConfidenceThreshold, "UPCHUCK_AGENT_CONFIDENCE_THRESHOLD")
	setString(&cfg.Agents.Defaults.Model, "UPCHUCK_AGENT_MODEL")
	setDuration(&cfg.AgentTransport.RequestTimeout, "UPCHUCK_AGENT_REQUEST_TIMEOUT")
}

// validate checks that required fields are set and values are in range.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if p, err := strconv.Atoi(cfg.Server.Port); err != nil || p < 1 || p > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.Server.BodyLimit < 1 {
		return errors.New("server.body_limit must be >= 1")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when server.rate_limit_rps is set")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.NATS.Stream == "" {
		return errors.New("nats.stream is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Queue.MaxRetryCount < 1 {
		return errors.New("queue.max_retry_count must be >= 1")
	}
	if cfg.Queue.Workers < 1 {
		return errors.New("queue.workers must be >= 1")
	}
	if cfg.Queue.PollInterval <= 0 {
		return errors.New("queue.poll_interval must be > 0")
	}
	if cfg.Review.ExpireAfter < 0 {
		return errors.New("review.expire_after must be >= 0")
	}
	if cfg.Review.ExpireAfter > 0 && cfg.Review.SweepInterval <= 0 {
		return errors.New("review.sweep_interval must be > 0 when review.expire_after is set")
	}
	if cfg.Outbox.BatchSize < 1 {
		return errors.New("outbox.batch_size must be >= 1")
	}
	if cfg.Outbox.PollInterval <= 0 {
		return errors.New("outbox.poll_interval must be > 0")
	}
	if strings.TrimSpace(cfg.Vault.RawPath) == "" {
		return errors.New("vault.raw_path is required")
	}
	if strings.TrimSpace(cfg.Vault.PristinePath) == "" {
		return errors.New("vault.pristine_path is required")
	}
	if len(cfg.Vault.FileExtensions) == 0 {
		return errors.New("vault.file_extensions must contain at least one extension")
	}
	if cfg.AgentTransport.RequestTimeout <= 0 {
		return errors.New("agent_transport.request_timeout must be > 0")
	}
	if cfg.Queue.ProcessingLease < 0 {
		return errors.New("queue.processing_lease must be >= 0")
	}
	if cfg.Queue.ProcessingLease > 0 && cfg.Queue.ProcessingLease <= cfg.AgentTransport.RequestTimeout {
		return errors.New("queue.processing_lease must exceed agent_transport.request_timeout")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	if err := validateAgent("agents.defaults", cfg.Agents.Defaults); err != nil {
		return err
	}
	for name := range cfg.Agents.Types {
		if strings.TrimSpace(name) == "" {
			return errors.New("agents.types: agent type name cannot be empty")
		}
		if err := validateAgent("agents.types."+name, cfg.Agents.Resolved(name)); err != nil {
			return err
		}
	}
	return nil
}

func validateAgent(prefix string, s AgentSettings) error {
	if !validAutonomyLevels[s.AutonomyLevel] {
		return fmt.Errorf("%s.autonomy_level %q is not one of ReviewRequired, SemiAutonomous, FullyAutonomous", prefix, s.AutonomyLevel)
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fmt.Errorf("%s.confidence_threshold must be between 0 and 1", prefix)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("%s.max_tokens must be >= 0", prefix)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStringSlice parses a comma-separated list.
func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

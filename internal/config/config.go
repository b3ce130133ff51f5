package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

// Config stores runtime configuration for the API and the worker.
type Config struct {
	AppEnv          string        `validate:"oneof=dev stage prod"`
	ServiceName     string        `validate:"required"`
	ServiceVersion  string        `validate:"required"`
	HTTPAddr        string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	LogLevel        logging.Level

	CORSAllowedOrigins []string `validate:"min=1,dive,required"`

	KafkaBrokers  []string `validate:"min=1,dive,required"`
	KafkaTopic    string   `validate:"required"`
	KafkaClientID string   `validate:"required"`

	ProducerAcks                  string        `validate:"oneof=none one all"`
	ProducerCompression           string        `validate:"oneof=none gzip snappy lz4 zstd"`
	ProducerBatchSize             int           `validate:"gt=0"`
	ProducerBatchBytes            int64         `validate:"gt=0"`
	ProducerLinger                time.Duration `validate:"gte=0"`
	ProducerMessageTimeout        time.Duration `validate:"gt=0"`
	ProducerCircuitEnabled        bool
	ProducerCircuitFailureCount   int           `validate:"gte=1"`
	ProducerCircuitOpenTimeout    time.Duration `validate:"gt=0"`
	ProducerCircuitHalfOpenMaxReq int           `validate:"gte=1"`

	ConsumerGroupID                string `validate:"required"`
	ConsumerAutoCommit             bool
	ConsumerFetchMaxBytes          int           `validate:"gte=0"`
	ConsumerMaxDegreeOfParallelism int           `validate:"gte=1"`
	ConsumerMaxProcessingRetries   int           `validate:"gte=1"`
	ConsumerRetryBackoff           time.Duration `validate:"gte=0"`
	ConsumerPollTimeout            time.Duration `validate:"gt=0"`
	ConsumerCommitMode             string        `validate:"oneof=completion contiguous"`

	DispatchAllowedExtensions []string      `validate:"dive,required"`
	DispatchPublishTimeout    time.Duration `validate:"gt=0"`
	DispatchMaxFileBytes      int64         `validate:"gte=0"`

	AuditDBEnabled          bool
	DBURL                   string `validate:"required_if=AuditDBEnabled true"`
	DBDisablePreparedBinary bool

	UptraceEnabled             bool
	UptraceDSN                 string `validate:"required_if=UptraceEnabled true"`
	PprofEnabled               bool
	PprofAddr                  string `validate:"required_if=PprofEnabled true"`
	PyroscopeEnabled           bool
	PyroscopeServerAddress     string        `validate:"required_if=PyroscopeEnabled true"`
	PyroscopeAppName           string        `validate:"required_if=PyroscopeEnabled true"`
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration `validate:"gt=0"`
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                strings.TrimSpace(getEnv("APP_SERVICE_NAME", "transaction-dispatch")),
		ServiceVersion:             strings.TrimSpace(getEnv("APP_SERVICE_VERSION", "dev")),
		HTTPAddr:                   strings.TrimSpace(getEnv("APP_HTTP_ADDR", ":8080")),
		LogLevel:                   logging.ParseLevel(getEnv("APP_LOG_LEVEL", "info")),
		CORSAllowedOrigins:         splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		KafkaBrokers:               splitCSV(getEnv("KAFKA_BOOTSTRAP_SERVERS", "")),
		KafkaTopic:                 strings.TrimSpace(getEnv("KAFKA_TOPIC", "")),
		KafkaClientID:              strings.TrimSpace(getEnv("KAFKA_CLIENT_ID", "transaction-dispatch")),
		ProducerAcks:               strings.ToLower(strings.TrimSpace(getEnv("KAFKA_PRODUCER_ACKS", "all"))),
		ProducerCompression:        strings.ToLower(strings.TrimSpace(getEnv("KAFKA_PRODUCER_COMPRESSION", "none"))),
		ConsumerGroupID:            strings.TrimSpace(getEnv("KAFKA_CONSUMER_GROUP_ID", defaultConsumerGroupID())),
		ConsumerCommitMode:         strings.ToLower(strings.TrimSpace(getEnv("CONSUMER_COMMIT_MODE", "completion"))),
		DispatchAllowedExtensions:  splitCSVKeepEmpty(getEnv("DISPATCH_ALLOWED_EXTENSIONS", ".xml,.json,.csv")),
		DBURL:                      strings.TrimSpace(getEnv("DB_URL", "")),
		UptraceDSN:                 strings.TrimSpace(getEnv("UPTRACE_DSN", "")),
		PprofAddr:                  strings.TrimSpace(getEnv("PPROF_ADDR", ":6060")),
		PyroscopeServerAddress:     strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", "")),
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
	}
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))

	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{key: "APP_READ_TIMEOUT", fallback: "10s", dst: &cfg.ReadTimeout},
		{key: "APP_WRITE_TIMEOUT", fallback: "15s", dst: &cfg.WriteTimeout},
		{key: "APP_SHUTDOWN_TIMEOUT", fallback: "30s", dst: &cfg.ShutdownTimeout},
		{key: "KAFKA_PRODUCER_LINGER", fallback: "5ms", dst: &cfg.ProducerLinger},
		{key: "KAFKA_PRODUCER_MESSAGE_TIMEOUT", fallback: "30s", dst: &cfg.ProducerMessageTimeout},
		{key: "KAFKA_PRODUCER_CIRCUIT_OPEN_TIMEOUT", fallback: "15s", dst: &cfg.ProducerCircuitOpenTimeout},
		{key: "CONSUMER_POLL_TIMEOUT", fallback: "200ms", dst: &cfg.ConsumerPollTimeout},
		{key: "DISPATCH_PUBLISH_TIMEOUT", fallback: "30s", dst: &cfg.DispatchPublishTimeout},
		{key: "PYROSCOPE_UPLOAD_RATE", fallback: "15s", dst: &cfg.PyroscopeUploadRate},
	}
	for _, item := range durations {
		value, err := time.ParseDuration(getEnv(item.key, item.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = value
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{key: "KAFKA_PRODUCER_BATCH_SIZE", fallback: 100, dst: &cfg.ProducerBatchSize},
		{key: "KAFKA_PRODUCER_CIRCUIT_FAILURE_COUNT", fallback: 5, dst: &cfg.ProducerCircuitFailureCount},
		{key: "KAFKA_PRODUCER_CIRCUIT_HALF_OPEN_MAX_REQ", fallback: 2, dst: &cfg.ProducerCircuitHalfOpenMaxReq},
		{key: "KAFKA_CONSUMER_FETCH_MAX_BYTES", fallback: 0, dst: &cfg.ConsumerFetchMaxBytes},
		{key: "CONSUMER_MAX_DEGREE_OF_PARALLELISM", fallback: 1, dst: &cfg.ConsumerMaxDegreeOfParallelism},
		{key: "CONSUMER_MAX_PROCESSING_RETRIES", fallback: 3, dst: &cfg.ConsumerMaxProcessingRetries},
	}
	for _, item := range ints {
		value, err := getEnvAsInt(item.key, item.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = value
	}

	backoffMS, err := getEnvAsInt("CONSUMER_RETRY_BACKOFF_MS", 1000)
	if err != nil {
		return Config{}, fmt.Errorf("parse CONSUMER_RETRY_BACKOFF_MS: %w", err)
	}
	cfg.ConsumerRetryBackoff = time.Duration(backoffMS) * time.Millisecond

	if cfg.ProducerBatchBytes, err = getEnvAsInt64("KAFKA_PRODUCER_BATCH_BYTES", 1048576); err != nil {
		return Config{}, fmt.Errorf("parse KAFKA_PRODUCER_BATCH_BYTES: %w", err)
	}
	if cfg.DispatchMaxFileBytes, err = getEnvAsInt64("DISPATCH_MAX_FILE_BYTES", 0); err != nil {
		return Config{}, fmt.Errorf("parse DISPATCH_MAX_FILE_BYTES: %w", err)
	}

	bools := []struct {
		key      string
		fallback string
		dst      *bool
	}{
		{key: "KAFKA_PRODUCER_CIRCUIT_ENABLED", fallback: "true", dst: &cfg.ProducerCircuitEnabled},
		{key: "KAFKA_CONSUMER_AUTO_COMMIT", fallback: "false", dst: &cfg.ConsumerAutoCommit},
		{key: "AUDIT_DB_ENABLED", fallback: "false", dst: &cfg.AuditDBEnabled},
		{key: "DB_DISABLE_PREPARED_BINARY_RESULT", fallback: "true", dst: &cfg.DBDisablePreparedBinary},
		{key: "UPTRACE_ENABLED", fallback: "false", dst: &cfg.UptraceEnabled},
		{key: "PPROF_ENABLED", fallback: "false", dst: &cfg.PprofEnabled},
		{key: "PYROSCOPE_ENABLED", fallback: "false", dst: &cfg.PyroscopeEnabled},
	}
	for _, item := range bools {
		value, err := strconv.ParseBool(getEnv(item.key, item.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", item.key, err)
		}
		*item.dst = value
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var configValidator = validator.New()

func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func defaultConsumerGroupID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "local"
	}
	return "transaction-dispatch-worker-" + host
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsInt64(key string, fallback int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return strconv.ParseInt(value, 10, 64)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

// splitCSVKeepEmpty keeps blank entries so validation can reject them.
func splitCSVKeepEmpty(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

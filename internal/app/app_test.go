package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/riskibarqy/transaction-dispatch/internal/config"
	"github.com/riskibarqy/transaction-dispatch/internal/interfaces/consumer"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:                    config.EnvDev,
		ServiceName:               "transaction-dispatch",
		ServiceVersion:            "test",
		HTTPAddr:                  "127.0.0.1:0",
		ReadTimeout:               time.Second,
		WriteTimeout:              time.Second,
		ShutdownTimeout:           time.Second,
		CORSAllowedOrigins:        []string{"*"},
		KafkaBrokers:              []string{"127.0.0.1:9092"},
		KafkaTopic:                "transactions",
		KafkaClientID:             "transaction-dispatch-test",
		ProducerAcks:              "all",
		ProducerCompression:       "none",
		ProducerBatchSize:         1,
		ProducerBatchBytes:        1 << 20,
		ProducerMessageTimeout:    time.Second,
		ConsumerGroupID:           "transaction-dispatch-test",
		ConsumerCommitMode:        "completion",
		DispatchAllowedExtensions: []string{".xml"},
		DispatchPublishTimeout:    time.Second,
	}
}

func TestNewAPI_ServesHealthAndShutsDown(t *testing.T) {
	api, err := NewAPI(testConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("build api: %v", err)
	}

	rec := httptest.NewRecorder()
	api.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown api: %v", err)
	}
}

func TestNewAPI_RejectsEmptyAddr(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPAddr = ""
	if _, err := NewAPI(cfg, logging.NewNop()); err == nil {
		t.Fatalf("expected error for empty http addr")
	}
}

func TestNewAPI_RejectsBadProducerSettings(t *testing.T) {
	cfg := testConfig()
	cfg.ProducerAcks = "most"
	if _, err := NewAPI(cfg, logging.NewNop()); err == nil {
		t.Fatalf("expected error for unsupported producer acks")
	}
}

func TestNewWorker_RejectsUnknownCommitMode(t *testing.T) {
	cfg := testConfig()
	cfg.ConsumerCommitMode = "eventually"
	if _, err := NewWorker(cfg, logging.NewNop()); !errors.Is(err, consumer.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

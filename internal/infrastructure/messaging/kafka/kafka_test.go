package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/resilience"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []kafkago.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishMapsMessage(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	p := newProducer(writer, "transactions", nil, logging.NewNop())
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	msg := dispatch.NewTransactionMessage("job-1", dispatch.FileEntry{FullPath: "/data/outbox/a.xml", Name: "a.xml"}, []byte("<tx/>"))
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(writer.written) != 1 {
		t.Fatalf("expected 1 written message, got %d", len(writer.written))
	}
	got := writer.written[0]
	if string(got.Key) != "a.xml" || string(got.Value) != "<tx/>" {
		t.Fatalf("unexpected key/value: %q %q", got.Key, got.Value)
	}
	if !got.Time.Equal(fixed) {
		t.Fatalf("unexpected timestamp %v", got.Time)
	}
	if len(got.Headers) != 3 || got.Headers[0].Key != dispatch.HeaderSourceFile || string(got.Headers[1].Value) != "job-1" {
		t.Fatalf("unexpected headers: %+v", got.Headers)
	}
	if string(got.Headers[0].Value) != "/data/outbox/a.xml" {
		t.Fatalf("unexpected source-file header %q", got.Headers[0].Value)
	}

	if err := p.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed, err=%v", err)
	}
}

func TestProducer_PublishFailureIsMarked(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{err: errors.New("leader not available")}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Enabled: true, FailureThreshold: 2, OpenTimeout: time.Minute})
	p := newProducer(writer, "transactions", breaker, logging.NewNop())
	msg := dispatch.NewTransactionMessage("job-1", dispatch.FileEntry{Name: "a.xml"}, nil)

	for i := 0; i < 2; i++ {
		err := p.Publish(context.Background(), msg)
		if !errors.Is(err, dispatch.ErrPublishFailure) {
			t.Fatalf("attempt %d: expected ErrPublishFailure, got %v", i, err)
		}
	}

	err := p.Publish(context.Background(), msg)
	if !errors.Is(err, dispatch.ErrPublishFailure) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open-circuit publish failure, got %v", err)
	}
}

func TestParseRequiredAcks(t *testing.T) {
	t.Parallel()

	cases := map[string]kafkago.RequiredAcks{
		"none": kafkago.RequireNone,
		"One":  kafkago.RequireOne,
		"all":  kafkago.RequireAll,
		"":     kafkago.RequireAll,
	}
	for raw, want := range cases {
		got, err := ParseRequiredAcks(raw)
		if err != nil || got != want {
			t.Fatalf("ParseRequiredAcks(%q)=%v,%v want %v", raw, got, err, want)
		}
	}
	if _, err := ParseRequiredAcks("most"); err == nil {
		t.Fatalf("expected error for unknown acks")
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	cases := map[string]kafkago.Compression{
		"none":   0,
		"gzip":   kafkago.Gzip,
		"SNAPPY": kafkago.Snappy,
		"lz4":    kafkago.Lz4,
		"zstd":   kafkago.Zstd,
	}
	for raw, want := range cases {
		got, err := ParseCompression(raw)
		if err != nil || got != want {
			t.Fatalf("ParseCompression(%q)=%v,%v want %v", raw, got, err, want)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

type fakeReader struct {
	fetched   chan kafkago.Message
	fetchCall int
	readCall  int
	committed []kafkago.Message
	closed    bool
}

func (r *fakeReader) next(ctx context.Context) (kafkago.Message, error) {
	select {
	case m := <-r.fetched:
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.fetchCall++
	return r.next(ctx)
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	r.readCall++
	return r.next(ctx)
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumer_PollAndCommit(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{fetched: make(chan kafkago.Message, 1)}
	c := newConsumer(reader, false, logging.NewNop())

	got, err := c.Poll(context.Background(), 10*time.Millisecond)
	if err != nil || got != nil {
		t.Fatalf("expected empty poll, got %v err=%v", got, err)
	}

	reader.fetched <- kafkago.Message{
		Topic:     "transactions",
		Partition: 2,
		Offset:    41,
		Key:       []byte("a.xml"),
		Value:     []byte("<tx/>"),
		Headers:   []kafkago.Header{{Key: dispatch.HeaderJobID, Value: []byte("job-1")}},
	}
	got, err = c.Poll(context.Background(), time.Second)
	if err != nil || got == nil {
		t.Fatalf("expected delivery, got %v err=%v", got, err)
	}
	if got.Position() != "transactions/2@41" {
		t.Fatalf("unexpected position %s", got.Position())
	}
	if v, _ := got.Header(dispatch.HeaderJobID); v != "job-1" {
		t.Fatalf("unexpected job-id header %q", v)
	}
	if reader.fetchCall != 2 || reader.readCall != 0 {
		t.Fatalf("expected FetchMessage in manual commit mode, fetch=%d read=%d", reader.fetchCall, reader.readCall)
	}

	if err := c.Commit(context.Background(), *got); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(reader.committed) != 1 || reader.committed[0].Offset != 41 || reader.committed[0].Partition != 2 {
		t.Fatalf("unexpected committed messages: %+v", reader.committed)
	}

	if err := c.Close(); err != nil || !reader.closed {
		t.Fatalf("expected reader closed, err=%v", err)
	}
}

func TestConsumer_AutoCommitSkipsCommit(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{fetched: make(chan kafkago.Message, 1)}
	reader.fetched <- kafkago.Message{Topic: "transactions", Offset: 1}
	c := newConsumer(reader, true, logging.NewNop())

	got, err := c.Poll(context.Background(), time.Second)
	if err != nil || got == nil {
		t.Fatalf("expected delivery, got %v err=%v", got, err)
	}
	if reader.readCall != 1 {
		t.Fatalf("expected ReadMessage in auto-commit mode")
	}
	if err := c.Commit(context.Background(), *got); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(reader.committed) != 0 {
		t.Fatalf("auto-commit consumer must not commit explicitly")
	}
}

func TestConsumer_PollCanceled(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{fetched: make(chan kafkago.Message)}
	c := newConsumer(reader, false, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Poll(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package kafka

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	kafkago "github.com/segmentio/kafka-go"
)

func ParseRequiredAcks(raw string) (kafkago.RequiredAcks, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "0":
		return kafkago.RequireNone, nil
	case "one", "leader", "1":
		return kafkago.RequireOne, nil
	case "", "all", "-1":
		return kafkago.RequireAll, nil
	default:
		return 0, errors.Newf("unsupported producer acks %q", raw)
	}
}

// ParseCompression maps a codec name to kafka-go's codec. "none" yields the zero value.
func ParseCompression(raw string) (kafkago.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafkago.Gzip, nil
	case "snappy":
		return kafkago.Snappy, nil
	case "lz4":
		return kafkago.Lz4, nil
	case "zstd":
		return kafkago.Zstd, nil
	default:
		return 0, errors.Newf("unsupported producer compression %q", raw)
	}
}

func toKafkaHeaders(headers []dispatch.Header) []kafkago.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafkago.Header, 0, len(headers))
	for _, h := range headers {
		out = append(out, kafkago.Header{Key: h.Key, Value: []byte(h.Value)})
	}
	return out
}

func fromKafkaHeaders(headers []kafkago.Header) []dispatch.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]dispatch.Header, 0, len(headers))
	for _, h := range headers {
		out = append(out, dispatch.Header{Key: h.Key, Value: string(h.Value)})
	}
	return out
}

func toDelivery(m kafkago.Message) *dispatch.Delivery {
	return &dispatch.Delivery{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       string(m.Key),
		Value:     m.Value,
		Headers:   fromKafkaHeaders(m.Headers),
		Time:      m.Time,
	}
}

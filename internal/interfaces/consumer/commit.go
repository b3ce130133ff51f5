package consumer

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
)

type CommitMode string

const (
	// CommitOnCompletion commits each acked message as soon as it finishes.
	// With parallel workers a later offset may be committed before an
	// earlier one is done.
	CommitOnCompletion CommitMode = "completion"
	// CommitContiguous commits per partition only up to the highest offset
	// below which every received message is resolved. Exhausted messages
	// count as resolved, so an exhausted message at the end of the resolved
	// run has its own offset committed and is not redelivered.
	CommitContiguous CommitMode = "contiguous"
)

func ParseCommitMode(raw string) (CommitMode, error) {
	switch mode := CommitMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "", CommitOnCompletion:
		return CommitOnCompletion, nil
	case CommitContiguous:
		return CommitContiguous, nil
	default:
		return "", errors.Wrapf(ErrInvalidConfig, "unknown commit mode %q", raw)
	}
}

// commitPolicy decides which deliveries become committable as messages are
// received and resolved. Only the polling goroutine calls it.
type commitPolicy interface {
	received(d dispatch.Delivery)
	resolved(d dispatch.Delivery, acked bool) []dispatch.Delivery
}

func newCommitPolicy(mode CommitMode) commitPolicy {
	if mode == CommitContiguous {
		return newContiguousPolicy()
	}
	return completionPolicy{}
}

type completionPolicy struct{}

func (completionPolicy) received(dispatch.Delivery) {}

func (completionPolicy) resolved(d dispatch.Delivery, acked bool) []dispatch.Delivery {
	if !acked {
		return nil
	}
	return []dispatch.Delivery{d}
}

type partitionKey struct {
	topic     string
	partition int
}

type ledgerEntry struct {
	delivery dispatch.Delivery
	resolved bool
}

// contiguousPolicy keeps received deliveries per partition in receive order.
// Exhausted messages count as resolved. Messages that never resolve (canceled
// at shutdown) hold the watermark back so they are redelivered.
type contiguousPolicy struct {
	ledgers map[partitionKey][]ledgerEntry
}

func newContiguousPolicy() *contiguousPolicy {
	return &contiguousPolicy{ledgers: make(map[partitionKey][]ledgerEntry)}
}

func (p *contiguousPolicy) received(d dispatch.Delivery) {
	key := partitionKey{topic: d.Topic, partition: d.Partition}
	p.ledgers[key] = append(p.ledgers[key], ledgerEntry{delivery: d})
}

func (p *contiguousPolicy) resolved(d dispatch.Delivery, _ bool) []dispatch.Delivery {
	key := partitionKey{topic: d.Topic, partition: d.Partition}
	ledger := p.ledgers[key]
	for i := range ledger {
		if ledger[i].delivery.Offset == d.Offset {
			ledger[i].resolved = true
			break
		}
	}

	advanced := -1
	for advanced+1 < len(ledger) && ledger[advanced+1].resolved {
		advanced++
	}
	if advanced < 0 {
		return nil
	}

	watermark := ledger[advanced].delivery
	remaining := ledger[advanced+1:]
	if len(remaining) == 0 {
		delete(p.ledgers, key)
	} else {
		p.ledgers[key] = append([]ledgerEntry(nil), remaining...)
	}
	return []dispatch.Delivery{watermark}
}

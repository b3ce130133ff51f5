package consumer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc/panics"

	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/riskibarqy/transaction-dispatch/internal/platform/logging"
)

const (
	defaultPollTimeout  = 200 * time.Millisecond
	commitTimeout       = 5 * time.Second
	shutdownCommitLimit = 10 * time.Second
)

// Source is the broker side of the engine. Only the polling goroutine calls
// it. Poll returns (nil, nil) when nothing arrived within wait.
type Source interface {
	Poll(ctx context.Context, wait time.Duration) (*dispatch.Delivery, error)
	Commit(ctx context.Context, deliveries ...dispatch.Delivery) error
	AutoCommit() bool
	Close() error
}

type Config struct {
	MaxDegreeOfParallelism int
	MaxAttempts            int
	RetryBackoff           time.Duration
	PollTimeout            time.Duration
	CommitMode             CommitMode
}

type outcome int

const (
	outcomeAcked outcome = iota
	outcomeExhausted
	outcomeCanceled
)

func (o outcome) String() string {
	switch o {
	case outcomeAcked:
		return "acked"
	case outcomeExhausted:
		return "exhausted"
	default:
		return "canceled"
	}
}

type completion struct {
	delivery dispatch.Delivery
	outcome  outcome
	attempts int
	err      error
}

// Engine polls a Source and runs the handler on at most
// MaxDegreeOfParallelism messages at a time.
type Engine struct {
	source  Source
	handler Handler
	cfg     Config
	logger  *logging.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewEngine(source Source, handler Handler, cfg Config, logger *logging.Logger) (*Engine, error) {
	if source == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "source is required")
	}
	if handler == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "handler is required")
	}
	if cfg.MaxDegreeOfParallelism < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "max degree of parallelism must be >= 1, got %d", cfg.MaxDegreeOfParallelism)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.CommitMode == "" {
		cfg.CommitMode = CommitOnCompletion
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Engine{
		source:  source,
		handler: handler,
		cfg:     cfg,
		logger:  logger.Named("consumer"),
		sleep:   sleepContext,
	}, nil
}

// Run consumes until ctx is canceled. On cancellation it stops polling,
// waits for every in-flight message and closes the source.
func (e *Engine) Run(ctx context.Context) error {
	pool, err := ants.NewPool(e.cfg.MaxDegreeOfParallelism)
	if err != nil {
		return errors.Wrap(err, "create consumer worker pool")
	}
	defer pool.Release()

	completions := make(chan completion, e.cfg.MaxDegreeOfParallelism)
	policy := newCommitPolicy(e.cfg.CommitMode)
	inFlight := 0

	e.logger.InfoContext(ctx, "consumer engine started",
		"max_degree_of_parallelism", e.cfg.MaxDegreeOfParallelism,
		"max_attempts", e.cfg.MaxAttempts,
		"retry_backoff", e.cfg.RetryBackoff.String(),
		"commit_mode", string(e.cfg.CommitMode),
		"auto_commit", e.source.AutoCommit(),
	)

	for ctx.Err() == nil {
		if inFlight >= e.cfg.MaxDegreeOfParallelism {
			select {
			case c := <-completions:
				inFlight--
				e.handleCompletion(ctx, policy, c)
			case <-ctx.Done():
				continue
			}
		}

		delivery, err := e.source.Poll(ctx, e.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.ErrorContext(ctx, "poll transaction message failed", "error", err)
			inFlight -= e.drain(ctx, policy, completions)
			_ = e.sleep(ctx, e.cfg.PollTimeout)
			continue
		}
		if delivery == nil {
			inFlight -= e.drain(ctx, policy, completions)
			continue
		}

		if e.submit(ctx, pool, policy, *delivery, completions) {
			inFlight++
		}
		inFlight -= e.drain(ctx, policy, completions)
	}

	e.logger.Info("consumer engine stopping", "in_flight", inFlight)
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownCommitLimit)
	defer cancel()
	for ; inFlight > 0; inFlight-- {
		e.handleCompletion(commitCtx, policy, <-completions)
	}

	if err := e.source.Close(); err != nil {
		return errors.Wrap(err, "close consumer source")
	}
	e.logger.Info("consumer engine stopped")
	return nil
}

// submit hands d to the pool. The commit policy only tracks deliveries that
// were actually scheduled, so a rejected one cannot hold back a watermark.
func (e *Engine) submit(ctx context.Context, pool *ants.Pool, policy commitPolicy, d dispatch.Delivery, completions chan<- completion) bool {
	if err := pool.Submit(func() { completions <- e.process(ctx, d) }); err != nil {
		e.logger.ErrorContext(ctx, "submit transaction message failed",
			"partition", d.Partition,
			"offset", d.Offset,
			"error", err,
		)
		return false
	}
	policy.received(d)
	return true
}

// drain handles every completion that is already available without blocking
// and reports how many it handled.
func (e *Engine) drain(ctx context.Context, policy commitPolicy, completions <-chan completion) int {
	handled := 0
	for {
		select {
		case c := <-completions:
			handled++
			e.handleCompletion(ctx, policy, c)
		default:
			return handled
		}
	}
}

func (e *Engine) process(ctx context.Context, d dispatch.Delivery) completion {
	c := completion{delivery: d}
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			c.outcome = outcomeCanceled
			return c
		}

		c.attempts = attempt
		err := e.invoke(ctx, d)
		if err == nil {
			c.outcome = outcomeAcked
			c.err = nil
			return c
		}
		if ctx.Err() != nil {
			c.outcome = outcomeCanceled
			c.err = err
			return c
		}

		c.err = err
		if IsPermanent(err) || attempt == e.cfg.MaxAttempts {
			c.outcome = outcomeExhausted
			return c
		}

		delay := Backoff(e.cfg.RetryBackoff, attempt)
		e.logger.WarnContext(ctx, "processing attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"delay", delay.String(),
			"partition", d.Partition,
			"offset", d.Offset,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			c.outcome = outcomeCanceled
			return c
		}
	}

	c.outcome = outcomeExhausted
	return c
}

func (e *Engine) invoke(ctx context.Context, d dispatch.Delivery) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() { err = e.handler(ctx, d) })
	if recovered := catcher.Recovered(); recovered != nil {
		return errors.Wrapf(recovered.AsError(), "handler panicked at %s", d.Position())
	}
	return err
}

func (e *Engine) handleCompletion(ctx context.Context, policy commitPolicy, c completion) {
	d := c.delivery
	switch c.outcome {
	case outcomeCanceled:
		e.logger.InfoContext(ctx, "message processing canceled, leaving uncommitted",
			"partition", d.Partition,
			"offset", d.Offset,
		)
		return
	case outcomeExhausted:
		e.logger.ErrorContext(ctx, "message processing exhausted",
			"partition", d.Partition,
			"offset", d.Offset,
			"attempts", c.attempts,
			"error", c.err,
		)
	}

	if e.source.AutoCommit() {
		return
	}
	committable := policy.resolved(d, c.outcome == outcomeAcked)
	if len(committable) == 0 {
		return
	}
	// Commits outlive Run's cancellation.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := e.source.Commit(commitCtx, committable...); err != nil {
		last := committable[len(committable)-1]
		e.logger.ErrorContext(ctx, "commit message offset failed",
			"partition", last.Partition,
			"offset", last.Offset,
			"error", err,
		)
	}
}

// Package logger is the public facade of the audit pipeline. It buffers
// events in memory, flushes them in batches, links every persisted record
// into a tamper-evident hash chain, and encrypts sensitive payloads before
// they reach storage.
//
// Log is cheap and non-blocking: it appends to an in-memory queue under a
// short lock and performs no I/O on the caller's path. All storage work
// happens on the flush path, which is serialized so one linear chain is
// guaranteed.
package logger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"custodia/pkg/audit"
	"custodia/pkg/audit/chain"
	"custodia/pkg/audit/fieldcrypt"
	"custodia/pkg/requestcontext"
)

// Logger records audit events with integrity chaining and field encryption.
// Construct one per process with New and pass it to every producing component.
type Logger struct {
	cfg     Config
	store   audit.Store
	codec   *fieldcrypt.Codec
	chain   *chain.Builder
	log     *slog.Logger
	metrics *Metrics
	breaker *circuitBreaker

	// mu guards the buffer, the closed flag, and the deferred background
	// failure awaiting surfacing.
	mu       sync.Mutex
	buf      []audit.Event
	deferred error
	closed   bool

	// flushMu serializes drain -> encrypt -> chain -> persist. pending holds a
	// sealed batch a previous flush failed to persist; it is retried before
	// any newer batch so hashes stay valid.
	flushMu sync.Mutex
	pending []audit.Record

	kick   chan struct{}
	cancel context.CancelFunc
	group  *errgroup.Group

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures the Logger.
type Option func(*Logger)

// WithLogger sets the structured logger used for background flush reporting.
func WithLogger(log *slog.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics sets the metrics collector. Without it the logger runs
// unmetered, which is what unit tests want.
func WithMetrics(m *Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// New builds a logger on top of the given store and starts the background
// flush timer. The chain tail is reloaded from the store's last record so the
// chain stays continuous across process restarts; an empty store starts from
// genesis.
func New(ctx context.Context, cfg Config, st audit.Store, opts ...Option) (*Logger, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	codec, err := fieldcrypt.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	last, err := st.LastRecord(ctx)
	if err != nil {
		return nil, err
	}
	tail := ""
	if last != nil {
		tail = last.LogHash
	}

	l := &Logger{
		cfg:     cfg,
		store:   st,
		codec:   codec,
		chain:   chain.NewBuilder(tail),
		log:     slog.Default().With("component", "audit"),
		breaker: newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		kick:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, runCtx := errgroup.WithContext(runCtx)
	l.cancel = cancel
	l.group = g
	g.Go(func() error {
		l.run(runCtx)
		return nil
	})
	return l, nil
}

// Log validates the event and appends it to the batch buffer. It never
// performs I/O and cannot fail for transient storage trouble; the only errors
// are *audit.InvalidEventError, audit.ErrClosed, and a deferred background
// persistence failure being surfaced (once) from an earlier flush. In the
// deferred case the event has still been enqueued: audit gaps are never
// silent, but no event is lost to the reporting either.
func (l *Logger) Log(ctx context.Context, event audit.Event) error {
	normalize(ctx, &event)
	if err := event.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return audit.ErrClosed
	}
	deferred := l.deferred
	l.deferred = nil
	l.buf = append(l.buf, event)
	n := len(l.buf)
	l.mu.Unlock()

	l.metrics.incEventsLogged()
	l.metrics.setBufferSize(n)

	if n >= l.cfg.BatchSize {
		select {
		case l.kick <- struct{}{}:
		default: // a flush is already scheduled; the next cycle picks this up
		}
	}
	return deferred
}

// Flush persists everything buffered so far. It also surfaces any deferred
// background failure.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return audit.ErrClosed
	}
	deferred := l.deferred
	l.deferred = nil
	l.mu.Unlock()

	// The parked failure is already consumed; if this flush fails too, both
	// must reach the caller.
	if err := l.flushOnce(ctx); err != nil {
		return errors.Join(deferred, err)
	}
	return deferred
}

// Shutdown drains the buffer with a final flush, stops the timer, and
// releases the storage handle. It is idempotent: the second call is a no-op.
// Later Log and Flush calls fail fast with audit.ErrClosed.
func (l *Logger) Shutdown(ctx context.Context) error {
	first := false
	l.shutdownOnce.Do(func() {
		first = true

		// Stop the timer goroutine before the final flush so the two cannot
		// interleave.
		l.cancel()
		_ = l.group.Wait()

		l.mu.Lock()
		l.closed = true
		deferred := l.deferred
		l.deferred = nil
		l.mu.Unlock()

		flushErr := l.flushOnce(ctx)
		closeErr := l.store.Close()
		l.shutdownErr = errors.Join(deferred, flushErr, closeErr)
	})
	if !first {
		return nil
	}
	return l.shutdownErr
}

// VerifyChain walks every persisted record in order, recomputes each digest,
// and checks the linkage invariant. A *audit.ChainIntegrityError names the
// first record at or after the tamper point.
func (l *Logger) VerifyChain(ctx context.Context) error {
	records, err := l.store.ReadRange(ctx, time.Time{}, time.Time{}, 0)
	if err != nil {
		return err
	}
	return chain.Verify(records, chain.GenesisHash)
}

// ReadRange exposes the store's range read for external consumers (compliance
// reports, audit viewers).
func (l *Logger) ReadRange(ctx context.Context, from, to time.Time, limit int) ([]audit.Record, error) {
	return l.store.ReadRange(ctx, from, to, limit)
}

// run owns the flush-interval timer. Size triggers arrive on the kick
// channel; time triggers from the ticker. Failures are logged and deferred to
// the next caller so they never stay invisible.
func (l *Logger) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-l.kick:
		}
		if err := l.flushOnce(context.Background()); err != nil {
			l.log.Error("audit flush failed",
				"error", err,
				"log_type", "audit",
			)
			l.noteFailure(err)
		}
	}
}

// noteFailure records a background failure for surfacing on the next
// Log/Flush call.
func (l *Logger) noteFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deferred == nil {
		l.deferred = err
	}
}

// flushOnce performs one drain -> encrypt -> chain -> persist cycle. Flushes
// are mutually exclusive to preserve chain ordering.
func (l *Logger) flushOnce(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	start := time.Now()

	// A batch sealed by an earlier failed flush goes first; its hashes are
	// already fixed and the tail sits after it.
	if len(l.pending) > 0 {
		if err := l.persist(ctx, l.pending); err != nil {
			return err
		}
		l.pending = nil
	}

	l.mu.Lock()
	events := l.buf
	l.buf = nil
	l.mu.Unlock()
	l.metrics.setBufferSize(0)

	if len(events) == 0 {
		return nil
	}

	records := make([]*audit.Record, 0, len(events))
	for i := range events {
		encrypted, err := l.codec.EncryptMap(events[i].SensitiveData)
		if err != nil {
			l.requeue(events)
			return &audit.PersistenceError{Op: "encrypt", Err: err}
		}
		rec, err := audit.NewRecord(events[i], encrypted)
		if err != nil {
			l.requeue(events)
			return &audit.PersistenceError{Op: "build record", Err: err}
		}
		records = append(records, &rec)
	}

	if err := l.chain.Seal(records); err != nil {
		l.requeue(events)
		return &audit.PersistenceError{Op: "seal", Err: err}
	}

	batch := make([]audit.Record, len(records))
	for i, r := range records {
		batch[i] = *r
	}
	if err := l.persist(ctx, batch); err != nil {
		// The batch is sealed and the tail already advanced past it; keep it
		// pending so it lands before anything sealed later.
		l.pending = batch
		return err
	}

	l.metrics.incFlushes()
	l.metrics.observeFlushDuration(time.Since(start).Seconds())
	return nil
}

// requeue puts drained events back at the head of the buffer, preserving
// their order relative to events logged in the meantime.
func (l *Logger) requeue(events []audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(events, l.buf...)
	l.metrics.setBufferSize(len(l.buf))
}

// persist commits one batch with bounded retry and backoff. Each attempt is
// bounded by FlushTimeout; a timeout is a retryable persistence failure.
func (l *Logger) persist(ctx context.Context, batch []audit.Record) error {
	if !l.breaker.allow() {
		l.metrics.setBreakerOpen(true)
		return &audit.PersistenceError{Op: "append", Err: errStoreUnavailable}
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(l.cfg.MaxRetries)),
		retry.Delay(l.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			l.metrics.incPersistRetries()
			l.log.Warn("audit persist attempt failed",
				"attempt", n+1,
				"batch_size", len(batch),
				"error", err,
			)
		}),
	)
	err := r.Do(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.FlushTimeout)
		defer cancel()
		return l.store.AppendBatch(attemptCtx, batch)
	})
	if err != nil {
		l.breaker.recordFailure()
		l.metrics.setBreakerOpen(l.breaker.open())
		l.metrics.incPersistFailures()
		var perr *audit.PersistenceError
		if errors.As(err, &perr) {
			return perr
		}
		return &audit.PersistenceError{Op: "append", Err: err}
	}

	l.breaker.recordSuccess()
	l.metrics.setBreakerOpen(false)
	return nil
}

var errStoreUnavailable = errors.New("store unavailable, circuit open")

// normalize fills zero-value fields the way NewEvent would, so hand-built
// events and context-enriched calls behave identically.
func normalize(ctx context.Context, e *audit.Event) {
	if e.CorrelationID == uuid.Nil {
		if id := requestcontext.CorrelationID(ctx); id != uuid.Nil {
			e.CorrelationID = id
		} else {
			e.CorrelationID = uuid.New()
		}
	}
	if e.UserIP == "" {
		e.UserIP = requestcontext.ClientIP(ctx)
	}
	if e.UserID == "" {
		e.UserID = requestcontext.UserID(ctx)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	} else {
		e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	}
	if e.Level == "" {
		e.Level = audit.LevelInfo
	}
	if e.Result == "" {
		e.Result = audit.ResultSuccess
	}
	if e.RetentionYears == 0 {
		e.RetentionYears = audit.DefaultRetentionFor(e.Level)
	}
}

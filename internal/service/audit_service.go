package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-admin-portal/internal/ids"
	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
	"go-admin-portal/pkg/apierror"
)

type AuditOptions struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// AuditService is the append-only audit log. Critical actions are persisted
// before Append returns; routine actions are batched by a background writer.
// A full queue or a closed service degrades to a synchronous write, so no
// entry is ever discarded.
type AuditService struct {
	store AuditStore
	opts  AuditOptions
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan model.AuditEntry
	done   chan struct{}
}

func NewAuditService(store AuditStore, opts AuditOptions) *AuditService {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	s := &AuditService{
		store: store,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		queue: make(chan model.AuditEntry, opts.QueueSize),
		done:  make(chan struct{}),
	}
	go s.run()

	return s
}

func (s *AuditService) Append(ctx context.Context, entry model.AuditEntry) error {
	entry = s.prepare(ctx, entry)
	markOutcome(ctx)

	if entry.Action.Critical() {
		return s.writeSync(ctx, entry, "sync")
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return s.writeSync(ctx, entry, "degraded")
	}

	select {
	case s.queue <- entry:
		s.mu.RUnlock()
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
		return nil
	default:
		s.mu.RUnlock()
		slog.Warn("audit queue full; writing synchronously", "action", entry.Action)
		return s.writeSync(ctx, entry, "degraded")
	}
}

// Stamp assigns the id, timestamp and request fields of an entry that will be
// written by another store's transaction.
func (s *AuditService) Stamp(ctx context.Context, entry model.AuditEntry) model.AuditEntry {
	return s.prepare(ctx, entry)
}

// Written marks a stamped entry as committed.
func (s *AuditService) Written(ctx context.Context, _ model.AuditEntry) {
	metrics.AuditWrites.WithLabelValues("tx", "ok").Inc()
	markOutcome(ctx)
}

// Record appends entry and only logs a failure. Callers use it where the
// audited change has already been committed.
func (s *AuditService) Record(ctx context.Context, entry model.AuditEntry) {
	_ = s.Append(ctx, entry)
}

func (s *AuditService) Query(ctx context.Context, requester model.User, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return nil, model.Meta{}, apierror.BadRequest("'to' must not be before 'from'", "")
	}

	return s.store.Query(ctx, AuditScopeFor(requester), query)
}

// AuditScopeFor maps a requester to the entries it may read: administrators
// see everything, managers everything not involving an administrator, and
// everyone else only their own actions.
func AuditScopeFor(requester model.User) model.AuditScope {
	switch requester.Role {
	case model.RoleAdmin:
		return model.AuditScope{All: true}
	case model.RoleManager:
		return model.AuditScope{ExcludeAdmin: true}
	default:
		if requester.ID == "" {
			return model.AuditScope{}
		}
		return model.AuditScope{ActorID: requester.ID}
	}
}

func (s *AuditService) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.PurgeBefore(ctx, cutoff)
}

// Close stops accepting queued entries and waits for the writer to drain.
func (s *AuditService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

func (s *AuditService) prepare(ctx context.Context, entry model.AuditEntry) model.AuditEntry {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now()
	}
	if entry.ID == "" {
		entry.ID = ids.NewAt(entry.OccurredAt)
	}
	if entry.Severity == "" {
		entry.Severity = model.SeverityInfo
		if entry.Action.Critical() {
			entry.Severity = model.SeverityWarning
		}
	}

	if info, ok := RequestInfoFromContext(ctx); ok {
		if entry.RequestID == "" {
			entry.RequestID = info.RequestID
		}
		if entry.IP == "" {
			entry.IP = info.IP
		}
	}

	return entry
}

func (s *AuditService) writeSync(ctx context.Context, entry model.AuditEntry, mode string) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()

	if err := s.store.Append(writeCtx, entry); err != nil {
		metrics.AuditWrites.WithLabelValues(mode, "error").Inc()
		logLostEntry(entry, err)
		return fmt.Errorf("write audit entry: %w", err)
	}

	metrics.AuditWrites.WithLabelValues(mode, "ok").Inc()
	return nil
}

func (s *AuditService) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]model.AuditEntry, 0, s.opts.BatchSize)
	for {
		select {
		case entry, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= s.opts.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
		metrics.AuditQueueDepth.Set(float64(len(s.queue)))
	}
}

// flush writes a batch; if the batch insert fails each entry is retried on
// its own so one bad row cannot take the rest down with it.
func (s *AuditService) flush(batch []model.AuditEntry) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	err := s.store.AppendBatch(ctx, batch)
	cancel()
	if err == nil {
		metrics.AuditWrites.WithLabelValues("async", "ok").Add(float64(len(batch)))
		return
	}

	slog.Error("audit batch write failed; retrying entries individually", "size", len(batch), "error", err)
	for _, entry := range batch {
		_ = s.writeSync(context.Background(), entry, "async")
	}
}

func logLostEntry(entry model.AuditEntry, err error) {
	slog.Error("audit entry could not be persisted",
		"error", err,
		"audit_id", entry.ID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"target_type", entry.TargetType,
		"target_id", entry.TargetID,
		"request_id", entry.RequestID,
		"occurred_at", entry.OccurredAt,
		"metadata", entry.Metadata,
	)
}

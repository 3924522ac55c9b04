// Package ledger records scan executions reported by the scan pipeline.
//
// Records are append-only: Start creates a running record and Finish closes
// it exactly once. The record id is a random UUID; holding it is what lets
// a scan job finish its own record.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/leads"
	"github.com/spigell/permit-scout/internal/storage"
)

// Outcome is what a scan job reports when it is done.
type Outcome struct {
	Status leads.ScanStatus
	Found  int
	New    int
	Err    error
}

type Ledger struct {
	db     *storage.DB
	logger *zap.Logger
	now    func() time.Time
}

func New(db *storage.DB, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: db, logger: logger, now: time.Now}
}

// Start appends a running record for source.
func (l *Ledger) Start(ctx context.Context, source leads.Source) (*leads.ScanRecord, error) {
	if _, err := leads.ParseSource(string(source)); err != nil {
		return nil, leads.InvalidArgument("source", "%s", err)
	}

	rec := &leads.ScanRecord{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    leads.ScanRunning,
		StartedAt: l.now().UTC(),
	}
	if err := l.db.InsertScan(ctx, rec); err != nil {
		return nil, err
	}

	l.logger.Info("scan started", zap.String("record_id", rec.ID), zap.String("source", string(source)))
	return rec, nil
}

// Finish closes a running record. Unknown ids fail with NotFound and records
// that were already finished fail with Conflict.
func (l *Ledger) Finish(ctx context.Context, id string, o Outcome) (*leads.ScanRecord, error) {
	status, err := leads.ParseFinalScanStatus(string(o.Status))
	if err != nil {
		return nil, leads.InvalidArgument("status", "%s", err)
	}
	if o.Found < 0 {
		return nil, leads.InvalidArgument("found", "must be >= 0, got %d", o.Found)
	}
	if o.New < 0 || o.New > o.Found {
		return nil, leads.InvalidArgument("new", "must be within 0..%d, got %d", o.Found, o.New)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, leads.NotFound("recordId", "scan record %q not found", id)
	}

	ended := l.now().UTC()
	rec := &leads.ScanRecord{
		ID:      id,
		Status:  status,
		Found:   o.Found,
		New:     o.New,
		EndedAt: &ended,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}

	if err := l.db.FinishScan(ctx, rec); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("record_id", id),
		zap.String("status", string(status)),
		zap.Int("found", o.Found),
		zap.Int("new", o.New),
	}
	if o.Err != nil {
		l.logger.Warn("scan finished with error", append(fields, zap.Error(o.Err))...)
	} else {
		l.logger.Info("scan finished", fields...)
	}

	return l.db.ScanRecord(ctx, id)
}

// List returns the newest records first. limit 0 returns every record.
func (l *Ledger) List(ctx context.Context, limit int) ([]*leads.ScanRecord, error) {
	if limit < 0 {
		return nil, leads.InvalidArgument("limit", "must be >= 0, got %d", limit)
	}
	return l.db.Scans(ctx, limit)
}

// LastScanAt is the end time of the latest finished scan, nil if none finished.
func (l *Ledger) LastScanAt(ctx context.Context) (*time.Time, error) {
	return l.db.LastScanAt(ctx)
}

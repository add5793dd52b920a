// Package worker reacts to ledger events outside the request path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bizledger/internal/amqp"
	"bizledger/internal/core"
	"bizledger/internal/grid"
	"bizledger/internal/services"
)

// LedgerSource is the part of the expense service the worker reads.
type LedgerSource interface {
	Ledger(ctx context.Context, vehicleID string) (services.VehicleLedger, error)
	RebuildGrid(ctx context.Context, year int) (*grid.Grid, error)
}

// GridPublisher pushes a grid somewhere readable, e.g. a spreadsheet.
type GridPublisher interface {
	Publish(ctx context.Context, g *grid.Grid) error
}

// AuditWorker verifies a vehicle's odometer chain after every event and
// refreshes the published grid of the affected year.
type AuditWorker struct {
	source    LedgerSource
	publisher GridPublisher
	logger    *slog.Logger
}

// NewAuditWorker creates a worker. A nil publisher only audits.
func NewAuditWorker(source LedgerSource, publisher GridPublisher, logger *slog.Logger) *AuditWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWorker{source: source, publisher: publisher, logger: logger.With("component", "worker")}
}

// HandleLedgerEvent is the AMQP handler. Continuity breaks are reported, not
// retried. A failing store or publisher returns a core.UpstreamError so the
// event is redelivered.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"kind", ev.Kind,
		"expense_id", ev.ExpenseID,
		"vehicle_id", ev.VehicleID,
		"year", ev.Year)

	if ev.VehicleID != "" {
		if _, err := w.Audit(ctx, ev.VehicleID); err != nil {
			return err
		}
	}
	if w.publisher != nil && ev.Year > 0 {
		if err := w.Refresh(ctx, ev.Year); err != nil {
			return err
		}
	}
	return nil
}

// Audit verifies vehicleID's chain and returns the breaks found. A vehicle
// that no longer exists is not an error.
func (w *AuditWorker) Audit(ctx context.Context, vehicleID string) ([]string, error) {
	l, err := w.source.Ledger(ctx, vehicleID)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Vehicle not found, skipping audit", "vehicle_id", vehicleID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", vehicleID, err)
	}

	out := make([]string, 0, len(l.Breaks))
	for _, b := range l.Breaks {
		out = append(out, b.String())
		w.logger.WarnContext(ctx, "Odometer chain break",
			"vehicle_id", vehicleID,
			"record_id", b.RecordID,
			"field", b.Field,
			"expected", b.Expected.String(),
			"actual", b.Actual.String())
	}
	if len(out) == 0 {
		w.logger.InfoContext(ctx, "Ledger verified", "vehicle_id", vehicleID, "records", len(l.Records))
	}
	return out, nil
}

// Refresh rebuilds year's grid from the store and publishes it.
func (w *AuditWorker) Refresh(ctx context.Context, year int) error {
	if w.publisher == nil {
		return nil
	}
	g, err := w.source.RebuildGrid(ctx, year)
	if err != nil {
		return fmt.Errorf("build grid %d: %w", year, err)
	}
	if err := w.publisher.Publish(ctx, g); err != nil {
		return core.Upstream(fmt.Sprintf("publish grid %d", year), err)
	}
	if len(g.Warnings) > 0 {
		w.logger.WarnContext(ctx, "Published grid skipped expenses", "year", year, "warnings", len(g.Warnings))
	}
	return nil
}

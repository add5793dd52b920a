// Package services orchestrates the engine over a store backend.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bizledger/internal/amqp"
	"bizledger/internal/cache"
	"bizledger/internal/core"
	"bizledger/internal/grid"
	"bizledger/internal/intake"
	"bizledger/internal/ledger"
	"bizledger/internal/log"
	"bizledger/internal/ratio"
	"bizledger/internal/store"
	"bizledger/internal/taxonomy"
)

// catalogFanOut bounds concurrent label lookups.
const catalogFanOut = 8

// defaultPublishTimeout caps how long a commit or delete waits on the broker.
const defaultPublishTimeout = 2 * time.Second

// Publisher sends ledger events. A nil Publisher disables events.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// ExpenseService owns the commit path: per-vehicle serialization, the ledger
// freshness check, grid cache invalidation and event publishing.
type ExpenseService struct {
	store     store.Store
	grids     cache.Cache[*grid.Grid]
	publisher Publisher
	logger    *slog.Logger
	gridLog   *slog.Logger
	vehicles  keyedMutex

	publishTimeout time.Duration
}

var _ intake.Committer = (*ExpenseService)(nil)

// NewExpenseService wires a backend. grids, publisher and logger may be nil.
func NewExpenseService(st store.Store, grids cache.Cache[*grid.Grid], publisher Publisher, logger *slog.Logger) *ExpenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseService{
		store:     st,
		grids:     grids,
		publisher: publisher,
		logger:    logger.With("component", "service"),
		gridLog:   logger.With("component", "grid"),

		publishTimeout: defaultPublishTimeout,
	}
}

// LoadCatalog reads the whole taxonomy and the owner's premises ownership.
func (s *ExpenseService) LoadCatalog(ctx context.Context, owner store.OwnerContext) (intake.Catalog, error) {
	var (
		cat intake.Catalog
		biz *core.Business
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		types, labels, err := s.taxonomy(gctx)
		cat.Types, cat.Labels = types, labels
		return err
	})
	g.Go(func() error {
		b, err := s.store.GetOldestBusiness(gctx, owner)
		if err != nil {
			return upstream("get oldest business", err)
		}
		biz = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return intake.Catalog{}, err
	}
	if biz != nil {
		cat.Ownership = biz.OwnershipType
	}
	return cat, nil
}

// StartIntake opens an entry flow over the owner's catalog.
func (s *ExpenseService) StartIntake(ctx context.Context, owner store.OwnerContext) (*intake.Flow, error) {
	cat, err := s.LoadCatalog(ctx, owner)
	if err != nil {
		return nil, err
	}
	return intake.New(cat), nil
}

// taxonomy loads every type and then the labels of each type concurrently.
func (s *ExpenseService) taxonomy(ctx context.Context) ([]core.ExpenseType, []core.ExpenseLabel, error) {
	types, err := s.store.ListTypes(ctx)
	if err != nil {
		return nil, nil, upstream("list types", err)
	}

	perType := make([][]core.ExpenseLabel, len(types))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(catalogFanOut)
	for i, t := range types {
		g.Go(func() error {
			ls, err := s.store.ListLabelsForType(gctx, t.ID)
			if err != nil {
				return upstream("list labels for type "+t.ID, err)
			}
			perType[i] = ls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	labels := make([]core.ExpenseLabel, 0)
	for _, ls := range perType {
		labels = append(labels, ls...)
	}
	return types, labels, nil
}

// VehicleLedger is a vehicle with its chronological records and any
// continuity breaks found in them.
type VehicleLedger struct {
	Vehicle          core.Vehicle         `json:"vehicle"`
	Records          []core.MileageRecord `json:"records"`
	StartingOdometer decimal.Decimal      `json:"starting_odometer"`
	Breaks           []ledger.Break       `json:"breaks"`
}

// LoadVehicle reads a vehicle and its ledger as they are right now.
func (s *ExpenseService) LoadVehicle(ctx context.Context, vehicleID string) (core.Vehicle, []core.MileageRecord, error) {
	v, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return core.Vehicle{}, nil, upstream("get vehicle", err)
	}
	recs, err := s.store.ListMileageRecords(ctx, vehicleID)
	if err != nil {
		return core.Vehicle{}, nil, upstream("list mileage records", err)
	}
	return v, recs, nil
}

// StartingOdometer is the reading the next mileage entry of vehicleID starts at.
func (s *ExpenseService) StartingOdometer(ctx context.Context, vehicleID string) (decimal.Decimal, error) {
	v, recs, err := s.LoadVehicle(ctx, vehicleID)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.StartingOdometer(v, recs), nil
}

// Ledger returns vehicleID's chain and verifies it.
func (s *ExpenseService) Ledger(ctx context.Context, vehicleID string) (VehicleLedger, error) {
	v, recs, err := s.LoadVehicle(ctx, vehicleID)
	if err != nil {
		return VehicleLedger{}, err
	}
	chain := ledger.Chronological(v.ID, recs)
	breaks := ledger.Verify(v, chain)
	if len(breaks) > 0 {
		s.logger.WarnContext(ctx, "Ledger continuity broken",
			"vehicle_id", v.ID,
			"breaks", len(breaks))
	}
	return VehicleLedger{
		Vehicle:          v,
		Records:          chain,
		StartingOdometer: ledger.StartingOdometer(v, chain),
		Breaks:           breaks,
	}, nil
}

// CommitExpense persists a normalized expense. Mileage entries are committed
// under the vehicle's lock after checking that the ledger has not moved since
// their starting odometer was computed.
func (s *ExpenseService) CommitExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	var (
		saved core.Expense
		err   error
	)
	if e.ExpenseMethod == core.ExpenseMethodMileage {
		saved, err = s.commitMileage(ctx, e)
	} else {
		saved, err = s.store.CreateExpense(ctx, e)
		err = upstream("create expense", err)
	}
	if err != nil {
		return core.Expense{}, err
	}

	s.invalidate()
	fields := log.NewFields().
		WithExpense(saved.ID, string(saved.Range), saved.TypeID, saved.LabelID, saved.Value()).
		WithOperation(log.OpCommit)
	fields[log.FieldExpenseMethod] = saved.ExpenseMethod
	s.logger.InfoContext(ctx, "Expense committed", fields.ToSlice()...)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventCommitted, saved.ID, saved.VehicleID, saved.Date.Year()))
	return saved, nil
}

func (s *ExpenseService) commitMileage(ctx context.Context, e core.Expense) (core.Expense, error) {
	unlock := s.vehicles.Lock(e.VehicleID)
	defer unlock()

	v, recs, err := s.LoadVehicle(ctx, e.VehicleID)
	if err != nil {
		return core.Expense{}, err
	}
	if err := ledger.CheckFresh(v, recs, e.MileageRecord.StartingOdometer); err != nil {
		s.logger.WarnContext(ctx, "Stale starting odometer",
			log.NewFields().WithVehicle(v.ID, e.MileageRecord.StartingOdometer).WithError(err).ToSlice()...)
		return core.Expense{}, err
	}
	if err := ledger.CheckOrder(v, recs, e.MileageRecord.Date); err != nil {
		return core.Expense{}, core.NewValidationError("date", err)
	}
	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, upstream("create expense", err)
	}
	return saved, nil
}

// Submission is one expense entered in a single request.
type Submission struct {
	Range         core.Range          `json:"range"`
	VehicleID     string              `json:"vehicle_id"`
	TypeID        string              `json:"type_id"`
	LabelID       string              `json:"label_id"`
	Method        core.Method         `json:"method"`
	Date          string              `json:"date"`
	Amount        decimal.NullDecimal `json:"amount"`
	BusinessMiles decimal.NullDecimal `json:"business_miles"`
	Note          string              `json:"note"`
}

// Submit walks an intake flow through every step with the submitted values
// and commits it. It stops at the first step that fails validation.
func (s *ExpenseService) Submit(ctx context.Context, owner store.OwnerContext, in Submission) (core.Expense, error) {
	flow, err := s.StartIntake(ctx, owner)
	if err != nil {
		return core.Expense{}, err
	}

	if err := flow.SelectRange(in.Range, in.VehicleID); err != nil {
		return core.Expense{}, err
	}
	if vid := flow.Draft().VehicleID; vid != "" {
		v, recs, err := s.LoadVehicle(ctx, vid)
		if errors.Is(err, core.ErrNotFound) {
			return core.Expense{}, core.NewValidationError("vehicle_id", core.ErrNotFound)
		}
		if err != nil {
			return core.Expense{}, err
		}
		if err := flow.SetVehicle(v, recs); err != nil {
			return core.Expense{}, err
		}
	}
	if err := flow.Next(); err != nil {
		return core.Expense{}, err
	}

	if err := flow.SelectType(in.TypeID); err != nil {
		return core.Expense{}, err
	}
	_ = flow.SelectLabel(in.LabelID)
	_ = flow.SelectMethod(in.Method)
	if err := flow.Next(); err != nil {
		return core.Expense{}, err
	}

	if in.Date != "" {
		d, err := core.ParseDate(in.Date)
		if err != nil {
			return core.Expense{}, core.NewValidationError("date", fmt.Errorf("must be YYYY-MM-DD"))
		}
		_ = flow.SetDate(d)
	}
	if in.Amount.Valid {
		_ = flow.SetAmount(in.Amount.Decimal)
	}
	if in.BusinessMiles.Valid {
		_ = flow.SetBusinessMiles(in.BusinessMiles.Decimal)
	}
	_ = flow.SetNote(in.Note)
	if err := flow.Next(); err != nil {
		return core.Expense{}, err
	}

	return flow.Commit(ctx, s)
}

// DeleteExpense removes an expense. Deleting a mileage expense re-chains the
// vehicle's remaining records so the odometer stays continuous.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return upstream("get expense", err)
	}

	if e.MileageRecord != nil && e.VehicleID != "" {
		if err := s.deleteMileage(ctx, e); err != nil {
			return err
		}
	} else if err := s.store.DeleteExpense(ctx, id); err != nil {
		return upstream("delete expense", err)
	}

	s.invalidate()
	s.logger.InfoContext(ctx, "Expense deleted", "expense_id", id, "vehicle_id", e.VehicleID)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventDeleted, id, e.VehicleID, e.Date.Year()))
	return nil
}

func (s *ExpenseService) deleteMileage(ctx context.Context, e core.Expense) error {
	unlock := s.vehicles.Lock(e.VehicleID)
	defer unlock()

	v, err := s.store.GetVehicle(ctx, e.VehicleID)
	if err != nil {
		return upstream("get vehicle", err)
	}
	updated, err := s.store.DeleteMileageExpense(ctx, e.ID, func(remaining []core.MileageRecord) []core.MileageRecord {
		return ledger.Rechain(v, remaining)
	})
	if err != nil {
		return upstream("delete mileage expense", err)
	}
	if updated > 0 {
		s.logger.InfoContext(ctx, "Ledger re-chained",
			"vehicle_id", v.ID,
			"updated", updated)
	}
	return nil
}

// ListExpenses passes the filter through to the store.
func (s *ExpenseService) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	out, err := s.store.ListExpenses(ctx, f)
	return out, upstream("list expenses", err)
}

// Grid returns the aggregation grid for year, building it on a cache miss.
func (s *ExpenseService) Grid(ctx context.Context, year int) (*grid.Grid, error) {
	key := strconv.Itoa(year)
	if s.grids != nil {
		if g, ok := s.grids.Get(key); ok {
			return g, nil
		}
	}

	var (
		expenses []core.Expense
		types    []core.ExpenseType
		labels   []core.ExpenseLabel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.store.ListExpenses(gctx, store.ExpenseFilter{Year: year})
		return upstream("list expenses", err)
	})
	g.Go(func() error {
		var err error
		types, labels, err = s.taxonomy(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	built := grid.Build(expenses, types, labels, year, s.gridLog)
	if s.grids != nil {
		s.grids.Set(key, built)
	}
	return built, nil
}

// RebuildGrid drops any cached grid of year and builds it again. Processes
// that did not make the change themselves use it to see fresh data.
func (s *ExpenseService) RebuildGrid(ctx context.Context, year int) (*grid.Grid, error) {
	if s.grids != nil {
		s.grids.Delete(strconv.Itoa(year))
	}
	return s.Grid(ctx, year)
}

// Types lists the types selectable for r under the owner's ownership. An
// empty r lists every type.
func (s *ExpenseService) Types(ctx context.Context, owner store.OwnerContext, r core.Range) ([]core.ExpenseType, error) {
	if r == "" {
		types, err := s.store.ListTypes(ctx)
		return types, upstream("list types", err)
	}
	if !r.Valid() {
		return nil, core.NewValidationError("range", core.ErrUnknownRange)
	}
	cat, err := s.LoadCatalog(ctx, owner)
	if err != nil {
		return nil, err
	}
	return taxonomy.TypesByRange(cat.Types, r, cat.Ownership), nil
}

// Labels lists typeID's labels, optionally only those of method.
func (s *ExpenseService) Labels(ctx context.Context, typeID string, method core.ExpenseMethod) ([]core.ExpenseLabel, error) {
	if method != "" && !method.Valid() {
		return nil, core.NewValidationError("method", core.ErrUnknownExpense)
	}
	labels, err := s.store.ListLabelsForType(ctx, typeID)
	if err != nil {
		return nil, upstream("list labels", err)
	}
	return taxonomy.LabelsForType(labels, typeID, method), nil
}

// Business returns the owner's oldest business, or nil.
func (s *ExpenseService) Business(ctx context.Context, owner store.OwnerContext) (*core.Business, error) {
	b, err := s.store.GetOldestBusiness(ctx, owner)
	return b, upstream("get oldest business", err)
}

func (s *ExpenseService) SaveType(ctx context.Context, t core.ExpenseType) (core.ExpenseType, error) {
	out, err := s.store.SaveType(ctx, t)
	if err != nil {
		return core.ExpenseType{}, upstream("save type", err)
	}
	s.invalidate()
	return out, nil
}

func (s *ExpenseService) SaveLabel(ctx context.Context, l core.ExpenseLabel) (core.ExpenseLabel, error) {
	out, err := s.store.SaveLabel(ctx, l)
	if err != nil {
		return core.ExpenseLabel{}, upstream("save label", err)
	}
	s.invalidate()
	return out, nil
}

func (s *ExpenseService) SaveVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error) {
	out, err := s.store.SaveVehicle(ctx, v)
	return out, upstream("save vehicle", err)
}

// SaveBusiness derives the ratio and basis before saving; supplied values for
// either are ignored.
func (s *ExpenseService) SaveBusiness(ctx context.Context, owner store.OwnerContext, b core.Business) (core.Business, error) {
	if b.OwnerID == "" {
		b.OwnerID = owner.UserID
	}
	ratio.Derive(&b)
	out, err := s.store.SaveBusiness(ctx, b)
	if err != nil {
		return core.Business{}, upstream("save business", err)
	}
	s.logger.InfoContext(ctx, "Business saved",
		"business_id", out.ID,
		"owner_id", out.OwnerID,
		"business_use_ratio", out.BusinessUseRatio.Decimal.String(),
		"total_basis", out.TotalBasis.String())
	return out, nil
}

// Ping reports backend health when the backend supports it.
func (s *ExpenseService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the backend and publisher when they hold resources.
func (s *ExpenseService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *ExpenseService) invalidate() {
	if s.grids != nil {
		s.grids.Purge()
	}
}

// publish never fails the caller: the expense is already stored. It runs
// detached from the request's cancellation and gives up after
// publishTimeout.
func (s *ExpenseService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.PublishLedgerEvent(pctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", ev.Kind,
			"expense_id", ev.ExpenseID,
			"error", err)
	}
}

// upstream wraps store failures. Domain errors pass through unchanged so
// callers can still tell a bad request from a failing backend.
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrValidation) || errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.Upstream(op, err)
}

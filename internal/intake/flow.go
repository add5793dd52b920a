// Package intake drives the multi-step expense entry flow.
//
// The flow moves linearly through RangeSelection, TypeLabelSelection,
// DetailEntry and Review to Committed. Whether a step is complete is always
// recomputed from the accumulated draft; no per-step flag is stored, so an
// edit made after leaving a step can never leave it marked valid.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bizledger/internal/core"
	"bizledger/internal/ledger"
	"bizledger/internal/taxonomy"
)

type Step int

const (
	StepRangeSelection Step = iota
	StepTypeLabelSelection
	StepDetailEntry
	StepReview
	StepCommitted
)

func (s Step) String() string {
	switch s {
	case StepRangeSelection:
		return "range_selection"
	case StepTypeLabelSelection:
		return "type_label_selection"
	case StepDetailEntry:
		return "detail_entry"
	case StepReview:
		return "review"
	case StepCommitted:
		return "committed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

var (
	ErrCommitted   = errors.New("intake: flow already committed")
	ErrFirstStep   = errors.New("intake: already at the first step")
	ErrLastStep    = errors.New("intake: review is left only by committing")
	ErrNotInReview = errors.New("intake: commit is only allowed from review")
)

// Committer persists a normalized expense. The returned expense carries any
// store-assigned fields.
type Committer interface {
	CommitExpense(ctx context.Context, e core.Expense) (core.Expense, error)
}

// Catalog is the taxonomy snapshot a flow selects from.
type Catalog struct {
	Types     []core.ExpenseType
	Labels    []core.ExpenseLabel
	Ownership core.OwnershipType
}

// Draft is the input accumulated so far.
type Draft struct {
	Range         core.Range
	VehicleID     string
	TypeID        string
	LabelID       string
	Method        core.Method
	Date          time.Time
	Amount        decimal.NullDecimal
	BusinessMiles decimal.NullDecimal
	Note          string
}

// Flow is one expense entry in progress. It is not safe for concurrent use.
type Flow struct {
	catalog Catalog
	step    Step
	draft   Draft
	errs    *core.ValidationError

	vehicle *core.Vehicle
	prior   []core.MileageRecord

	committed core.Expense
}

// New starts a flow at RangeSelection.
func New(catalog Catalog) *Flow {
	return &Flow{catalog: catalog, step: StepRangeSelection, errs: &core.ValidationError{}}
}

func (f *Flow) Step() Step   { return f.step }
func (f *Flow) Draft() Draft { return f.draft }

// Errors returns the field errors of the last failed transition.
func (f *Flow) Errors() []core.FieldError {
	return append([]core.FieldError(nil), f.errs.Fields...)
}

// Committed returns the expense produced by a successful Commit.
func (f *Flow) Committed() (core.Expense, bool) {
	return f.committed, f.step == StepCommitted
}

func (f *Flow) editable() error {
	if f.step == StepCommitted {
		return ErrCommitted
	}
	return nil
}

// SelectRange sets the range and, for vehicle expenses, the vehicle. Moving to
// another range clears the type and label selection.
func (f *Flow) SelectRange(r core.Range, vehicleID string) error {
	if err := f.editable(); err != nil {
		return err
	}
	if r != f.draft.Range {
		f.draft.TypeID = ""
		f.draft.LabelID = ""
	}
	f.draft.Range = r
	vehicleID = strings.TrimSpace(vehicleID)
	if r != core.RangeVehicle {
		vehicleID = ""
	}
	if vehicleID != f.draft.VehicleID {
		f.vehicle = nil
		f.prior = nil
	}
	f.draft.VehicleID = vehicleID
	return nil
}

// SetVehicle supplies the selected vehicle and its ledger as read right now.
// Mileage entries derive their starting odometer from it.
func (f *Flow) SetVehicle(v core.Vehicle, prior []core.MileageRecord) error {
	if err := f.editable(); err != nil {
		return err
	}
	if v.ID != f.draft.VehicleID {
		return fmt.Errorf("intake: vehicle %q is not the selected vehicle %q", v.ID, f.draft.VehicleID)
	}
	f.vehicle = &v
	f.prior = append([]core.MileageRecord(nil), prior...)
	return nil
}

// SelectType sets the type. Changing it clears the label.
func (f *Flow) SelectType(typeID string) error {
	if err := f.editable(); err != nil {
		return err
	}
	if typeID != f.draft.TypeID {
		f.draft.LabelID = ""
	}
	f.draft.TypeID = typeID
	return nil
}

func (f *Flow) SelectLabel(labelID string) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.LabelID = labelID
	return nil
}

func (f *Flow) SelectMethod(m core.Method) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.Method = m
	return nil
}

func (f *Flow) SetDate(d time.Time) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.Date = d
	return nil
}

func (f *Flow) SetAmount(d decimal.Decimal) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.Amount = core.Null(d)
	return nil
}

func (f *Flow) SetBusinessMiles(d decimal.Decimal) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.BusinessMiles = core.Null(d)
	return nil
}

func (f *Flow) SetNote(note string) error {
	if err := f.editable(); err != nil {
		return err
	}
	f.draft.Note = strings.TrimSpace(note)
	return nil
}

// AvailableTypes lists the types selectable for the chosen range.
func (f *Flow) AvailableTypes() []core.ExpenseType {
	return taxonomy.TypesByRange(f.catalog.Types, f.draft.Range, f.catalog.Ownership)
}

// AvailableLabels lists the labels of the chosen type.
func (f *Flow) AvailableLabels() []core.ExpenseLabel {
	return taxonomy.LabelsForType(f.catalog.Labels, f.draft.TypeID, "")
}

// Label returns the selected label when it belongs to the selected type.
func (f *Flow) Label() (core.ExpenseLabel, bool) {
	l, ok := taxonomy.FindLabel(f.catalog.Labels, f.draft.LabelID)
	if !ok || l.TypeID != f.draft.TypeID {
		return core.ExpenseLabel{}, false
	}
	return l, true
}

// StartingOdometer is the read-only starting reading of a mileage entry. It
// is unavailable until SetVehicle was called for the selected vehicle.
func (f *Flow) StartingOdometer() (decimal.Decimal, bool) {
	if f.vehicle == nil {
		return decimal.Zero, false
	}
	return ledger.StartingOdometer(*f.vehicle, f.prior), true
}

// MileageSummary previews the record a mileage entry would produce: final
// reading, personal miles and use percentages.
func (f *Flow) MileageSummary() (core.MileageRecord, bool) {
	if f.vehicle == nil {
		return core.MileageRecord{}, false
	}
	return ledger.Preview(*f.vehicle, f.prior, ledger.Entry{
		Date:          f.draft.Date,
		BusinessMiles: f.draft.BusinessMiles.Decimal,
	}), true
}

// Next validates the current step and advances. On failure the flow stays put
// and Errors reports the failing fields.
func (f *Flow) Next() error {
	if err := f.editable(); err != nil {
		return err
	}
	if f.step == StepReview {
		return ErrLastStep
	}
	f.errs = f.validate(f.step)
	if err := f.errs.Err(); err != nil {
		return err
	}
	f.step++
	return nil
}

// Back returns to the previous step. Entered values are kept.
func (f *Flow) Back() error {
	if err := f.editable(); err != nil {
		return err
	}
	if f.step == StepRangeSelection {
		return ErrFirstStep
	}
	f.step--
	f.errs = &core.ValidationError{}
	return nil
}

// Commit re-validates every step, builds the normalized expense and hands it
// to c. The flow only becomes Committed when c succeeds.
func (f *Flow) Commit(ctx context.Context, c Committer) (core.Expense, error) {
	if err := f.editable(); err != nil {
		return core.Expense{}, err
	}
	if f.step != StepReview {
		return core.Expense{}, ErrNotInReview
	}
	f.errs = f.validate(StepReview)
	if err := f.errs.Err(); err != nil {
		return core.Expense{}, err
	}

	e, err := f.expense()
	if err != nil {
		return core.Expense{}, err
	}
	saved, err := c.CommitExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}
	f.committed = saved
	f.step = StepCommitted
	return saved, nil
}

func (f *Flow) expense() (core.Expense, error) {
	label, _ := f.Label()
	e := core.Expense{
		Range:         f.draft.Range,
		TypeID:        f.draft.TypeID,
		LabelID:       f.draft.LabelID,
		VehicleID:     f.draft.VehicleID,
		Date:          f.draft.Date,
		Method:        f.draft.Method,
		ExpenseMethod: label.ExpenseMethod,
		Note:          f.draft.Note,
	}
	if label.ExpenseMethod == core.ExpenseMethodMileage {
		rec, err := ledger.Commit(*f.vehicle, f.prior, ledger.Entry{
			Date:          f.draft.Date,
			BusinessMiles: f.draft.BusinessMiles.Decimal,
		})
		if err != nil {
			return core.Expense{}, err
		}
		e.MileageRecord = &rec
	} else {
		e.Amount = f.draft.Amount
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// validate runs the predicates of every step up to and including s.
func (f *Flow) validate(s Step) *core.ValidationError {
	verr := &core.ValidationError{}
	f.checkRange(verr)
	if s >= StepTypeLabelSelection {
		f.checkTypeLabel(verr)
	}
	if s >= StepDetailEntry {
		f.checkDetail(verr)
	}
	return verr
}

func (f *Flow) checkRange(verr *core.ValidationError) {
	d := f.draft
	if d.Range == "" {
		verr.Add("range", core.ErrRequired)
		return
	}
	if !d.Range.Valid() {
		verr.Add("range", core.ErrUnknownRange)
		return
	}
	if d.Range == core.RangeVehicle && d.VehicleID == "" {
		verr.Add("vehicle_id", core.ErrRequired)
	}
}

func (f *Flow) checkTypeLabel(verr *core.ValidationError) {
	d := f.draft
	if d.TypeID == "" {
		verr.Add("type_id", core.ErrRequired)
	} else if _, ok := taxonomy.TypeInRange(f.catalog.Types, d.TypeID, d.Range, f.catalog.Ownership); !ok {
		verr.Add("type_id", fmt.Errorf("is not available for range %s", d.Range))
	}

	if d.LabelID == "" {
		verr.Add("label_id", core.ErrRequired)
	} else if l, ok := taxonomy.FindLabel(f.catalog.Labels, d.LabelID); !ok {
		verr.Add("label_id", core.ErrNotFound)
	} else if l.TypeID != d.TypeID {
		verr.Add("label_id", core.ErrLabelMismatch)
	}

	if !d.Method.Valid() {
		verr.Add("method", core.ErrUnknownMethod)
	}
}

func (f *Flow) checkDetail(verr *core.ValidationError) {
	d := f.draft
	label, ok := f.Label()
	if !ok {
		// Reported by checkTypeLabel.
		return
	}
	if d.Date.IsZero() {
		verr.Add("date", core.ErrRequired)
	}
	switch label.ExpenseMethod {
	case core.ExpenseMethodAmount:
		if !d.Amount.Valid || !d.Amount.Decimal.IsPositive() {
			verr.Add("amount", core.ErrInvalidAmount)
		}
	case core.ExpenseMethodMileage:
		if d.VehicleID == "" {
			verr.Add("vehicle_id", core.ErrRequired)
		}
		if f.vehicle != nil && !d.Date.IsZero() {
			if err := ledger.CheckOrder(*f.vehicle, f.prior, d.Date); err != nil {
				verr.Add("date", err)
			}
		}
		start, ok := f.StartingOdometer()
		switch {
		case !ok:
			verr.Add("starting_odometer", core.ErrRequired)
		case start.IsNegative():
			verr.Add("starting_odometer", core.ErrNegative)
		}
		if !d.BusinessMiles.Valid || !d.BusinessMiles.Decimal.IsPositive() {
			verr.Add("business_miles", core.ErrInvalidAmount)
		}
	default:
		verr.Add("label_id", core.ErrUnknownExpense)
	}
}

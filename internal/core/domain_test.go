package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func amountExpense() Expense {
	return Expense{
		Range:         RangeOperationExpense,
		TypeID:        "t1",
		LabelID:       "l1",
		Date:          NewDate(2024, 1, 15),
		Method:        MethodDirect,
		ExpenseMethod: ExpenseMethodAmount,
		Amount:        Null(decimal.NewFromInt(100)),
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := amountExpense().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	mileage := amountExpense()
	mileage.Range = RangeVehicle
	mileage.VehicleID = "v1"
	mileage.ExpenseMethod = ExpenseMethodMileage
	mileage.Amount = decimal.NullDecimal{}
	mileage.MileageRecord = &MileageRecord{BusinessMiles: decimal.NewFromInt(10)}
	if err := mileage.Validate(); err != nil {
		t.Fatalf("expected mileage ok, got %v", err)
	}

	cases := []struct {
		name  string
		mut   func(*Expense)
		field string
	}{
		{"zero amount", func(e *Expense) { e.Amount = Null(decimal.Zero) }, "amount"},
		{"missing amount", func(e *Expense) { e.Amount = decimal.NullDecimal{} }, "amount"},
		{"bad range", func(e *Expense) { e.Range = "garage" }, "range"},
		{"vehicle without id", func(e *Expense) { e.Range = RangeVehicle }, "vehicle_id"},
		{"bad method", func(e *Expense) { e.Method = "" }, "method"},
		{"zero date", func(e *Expense) { e.Date = time.Time{} }, "date"},
		{"both populated", func(e *Expense) { e.MileageRecord = &MileageRecord{} }, "mileage_record"},
		{"mileage missing record", func(e *Expense) {
			e.ExpenseMethod = ExpenseMethodMileage
			e.Amount = decimal.NullDecimal{}
		}, "mileage_record"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := amountExpense()
			tc.mut(&e)
			err := e.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || !verr.Has(tc.field) {
				t.Fatalf("expected field %q in %v", tc.field, err)
			}
		})
	}
}

func TestExpenseValue(t *testing.T) {
	e := amountExpense()
	if !e.Value().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("amount value = %s", e.Value())
	}
	e.ExpenseMethod = ExpenseMethodMileage
	e.Amount = decimal.NullDecimal{}
	e.MileageRecord = &MileageRecord{BusinessMiles: decimal.NewFromInt(150), PersonalMiles: decimal.NewFromInt(200)}
	if !e.Value().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("mileage value should be business miles only, got %s", e.Value())
	}
}

func TestValidationErrorNilWhenEmpty(t *testing.T) {
	v := &ValidationError{}
	v.Add("x", nil)
	if v.Err() != nil {
		t.Fatalf("expected nil error")
	}
}

func TestStaleLedgerErrorIs(t *testing.T) {
	err := error(&StaleLedgerError{VehicleID: "v1", Expected: decimal.NewFromInt(1), Actual: decimal.NewFromInt(2)})
	if !errors.Is(err, ErrStaleLedger) {
		t.Fatalf("expected ErrStaleLedger")
	}
}

func TestUpstreamUnwrap(t *testing.T) {
	err := Upstream("list expenses", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped ErrNotFound")
	}
	var up *UpstreamError
	if !errors.As(err, &up) || up.Op != "list expenses" {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if Upstream("noop", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

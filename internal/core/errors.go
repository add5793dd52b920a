package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrStaleLedger = errors.New("ledger changed since starting odometer was computed")
	ErrNotFound    = errors.New("not found")
)

// FieldError attributes a validation failure to a single input.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError collects every failing field of one validation pass.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Add records a failing field. A nil reason is ignored.
func (v *ValidationError) Add(field string, reason error) {
	if reason == nil {
		return
	}
	v.Fields = append(v.Fields, FieldError{Field: field, Reason: reason.Error()})
}

// Err returns v as an error, or nil when no field failed.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// Has reports whether field failed.
func (v *ValidationError) Has(field string) bool {
	for _, f := range v.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError is a shorthand for a single failing field.
func NewValidationError(field string, reason error) *ValidationError {
	v := &ValidationError{}
	v.Add(field, reason)
	return v
}

// IntegrityWarning reports an expense that could not be placed in the grid
// because its taxonomy no longer matches. It is collected, never returned.
type IntegrityWarning struct {
	ExpenseID string `json:"expense_id"`
	TypeID    string `json:"type_id"`
	LabelID   string `json:"label_id"`
	Reason    string `json:"reason"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("expense %s (type %s, label %s): %s", w.ExpenseID, w.TypeID, w.LabelID, w.Reason)
}

// StaleLedgerError is returned when a vehicle's ledger moved between computing
// a starting odometer and committing the entry. Callers re-fetch and retry.
type StaleLedgerError struct {
	VehicleID string
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (e *StaleLedgerError) Error() string {
	return fmt.Sprintf("stale ledger for vehicle %s: expected starting odometer %s, ledger now at %s",
		e.VehicleID, e.Expected.String(), e.Actual.String())
}

func (e *StaleLedgerError) Is(target error) bool { return target == ErrStaleLedger }

// UpstreamError wraps a failure of an external store unchanged.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError, passing nil through.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

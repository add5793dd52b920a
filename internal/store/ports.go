// Package store declares the persistence boundary of the engine.
//
// The engine never talks to a database directly. It consumes these interfaces,
// implemented in-process by store/memory and on SQLite by internal/storage.
package store

import (
	"context"
	"time"

	"bizledger/internal/core"
)

// OwnerContext identifies whose data an operation reads. It is passed
// explicitly to every owner-scoped lookup.
type OwnerContext struct {
	UserID string
}

// ExpenseFilter narrows ListExpenses. Zero fields match everything.
type ExpenseFilter struct {
	Year          int
	From          time.Time // inclusive
	To            time.Time // inclusive
	ExpenseMethod core.ExpenseMethod
	VehicleID     string
}

// Matches reports whether e passes the filter.
func (f ExpenseFilter) Matches(e core.Expense) bool {
	if f.Year != 0 && e.Date.Year() != f.Year {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if f.ExpenseMethod != "" && e.ExpenseMethod != f.ExpenseMethod {
		return false
	}
	if f.VehicleID != "" && e.VehicleID != f.VehicleID {
		return false
	}
	return true
}

// Rechainer recomputes the remaining records of a vehicle after one was
// removed and returns the records whose readings changed.
type Rechainer func(remaining []core.MileageRecord) []core.MileageRecord

// Ports for outbound adapters.
type (
	// ExpenseStore persists expenses. List returns insertion order.
	ExpenseStore interface {
		ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		// CreateExpense stores e and its mileage record, assigning missing ids.
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		// DeleteExpense removes e and its mileage record. Unknown ids yield
		// core.ErrNotFound.
		DeleteExpense(ctx context.Context, id string) error
		// DeleteMileageExpense removes a mileage expense and stores the
		// readings rechain returns for the vehicle's remaining records in
		// the same transaction. On any error nothing is changed. It returns
		// the number of records updated.
		DeleteMileageExpense(ctx context.Context, id string, rechain Rechainer) (int, error)
	}

	TaxonomyStore interface {
		ListTypes(ctx context.Context) ([]core.ExpenseType, error)
		ListLabelsForType(ctx context.Context, typeID string) ([]core.ExpenseLabel, error)
	}

	VehicleStore interface {
		GetVehicle(ctx context.Context, id string) (core.Vehicle, error)
		// ListMileageRecords returns the vehicle's records ordered by date.
		ListMileageRecords(ctx context.Context, vehicleID string) ([]core.MileageRecord, error)
		// UpdateMileageRecords overwrites the odometer readings of existing
		// records, matched by id.
		UpdateMileageRecords(ctx context.Context, records []core.MileageRecord) error
	}

	BusinessStore interface {
		// GetOldestBusiness returns the owner's earliest created business,
		// or nil when the owner has none.
		GetOldestBusiness(ctx context.Context, owner OwnerContext) (*core.Business, error)
	}

	// CatalogWriter creates or replaces catalog entities, assigning ids when
	// empty.
	CatalogWriter interface {
		SaveType(ctx context.Context, t core.ExpenseType) (core.ExpenseType, error)
		SaveLabel(ctx context.Context, l core.ExpenseLabel) (core.ExpenseLabel, error)
		SaveVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error)
		SaveBusiness(ctx context.Context, b core.Business) (core.Business, error)
	}

	// Store is everything a backend provides.
	Store interface {
		ExpenseStore
		TaxonomyStore
		VehicleStore
		BusinessStore
		CatalogWriter
	}
)

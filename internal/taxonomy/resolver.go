// Package taxonomy classifies expense types into ranges.
//
// ResolveRange is the only place range inference happens; the intake flow and
// the grid builder both call it so they can never disagree.
package taxonomy

import (
	"strings"

	"bizledger/internal/core"
)

// ResolveRange maps a type name and optional stored range to a range.
//
// A stored range wins, except that a home_office type named "...basis..." and
// a vehicle type named "...mileage..." are auxiliary pseudo-types. Without a
// stored range the name is matched case-insensitively: "vehicle" selects
// vehicle, "home office", "homeoffice" or "office" select home_office, and
// anything else is an operation expense.
func ResolveRange(typeName string, explicit core.Range) core.Range {
	name := strings.ToLower(strings.TrimSpace(typeName))
	isBasis := strings.Contains(name, "basis")
	isMileage := strings.Contains(name, "mileage")

	if explicit != "" {
		switch {
		case explicit == core.RangeHomeOffice && isBasis:
			return core.RangeAuxiliary
		case explicit == core.RangeVehicle && isMileage:
			return core.RangeAuxiliary
		case explicit.Valid():
			return explicit
		}
		// An unknown stored value falls through to inference.
	}

	switch {
	case strings.Contains(name, "vehicle"):
		if isMileage {
			return core.RangeAuxiliary
		}
		return core.RangeVehicle
	case strings.Contains(name, "home office"),
		strings.Contains(name, "homeoffice"),
		strings.Contains(name, "office"):
		if isBasis {
			return core.RangeAuxiliary
		}
		return core.RangeHomeOffice
	}
	return core.RangeOperationExpense
}

// Of resolves the range of a stored type.
func Of(t core.ExpenseType) core.Range {
	return ResolveRange(t.Name, t.Range)
}

// TypesByRange returns the types that resolve to r, in input order. A type
// named "rent" is hidden when the business owns its premises.
func TypesByRange(types []core.ExpenseType, r core.Range, ownership core.OwnershipType) []core.ExpenseType {
	out := make([]core.ExpenseType, 0, len(types))
	for _, t := range types {
		if Of(t) != r {
			continue
		}
		if ownership == core.OwnershipOwn && isRent(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TypeInRange reports whether typeID is selectable for r under ownership.
func TypeInRange(types []core.ExpenseType, typeID string, r core.Range, ownership core.OwnershipType) (core.ExpenseType, bool) {
	for _, t := range TypesByRange(types, r, ownership) {
		if t.ID == typeID {
			return t, true
		}
	}
	return core.ExpenseType{}, false
}

// LabelsForType returns the labels belonging to typeID. An empty method
// returns labels of every method.
func LabelsForType(labels []core.ExpenseLabel, typeID string, method core.ExpenseMethod) []core.ExpenseLabel {
	out := make([]core.ExpenseLabel, 0)
	for _, l := range labels {
		if l.TypeID != typeID {
			continue
		}
		if method != "" && l.ExpenseMethod != method {
			continue
		}
		out = append(out, l)
	}
	return out
}

// FindLabel looks a label up by id.
func FindLabel(labels []core.ExpenseLabel, id string) (core.ExpenseLabel, bool) {
	for _, l := range labels {
		if l.ID == id {
			return l, true
		}
	}
	return core.ExpenseLabel{}, false
}

// FindType looks a type up by id.
func FindType(types []core.ExpenseType, id string) (core.ExpenseType, bool) {
	for _, t := range types {
		if t.ID == id {
			return t, true
		}
	}
	return core.ExpenseType{}, false
}

func isRent(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "rent")
}

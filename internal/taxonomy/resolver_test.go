package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger/internal/core"
)

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		explicit core.Range
		want     core.Range
	}{
		{"inferred vehicle", "Vehicle Expenses", "", core.RangeVehicle},
		{"inferred vehicle lower case", "company vehicle", "", core.RangeVehicle},
		{"vehicle mileage is not a vehicle type", "Vehicle Mileage", "", core.RangeAuxiliary},
		{"home office", "Home Office", "", core.RangeHomeOffice},
		{"homeoffice", "HomeOffice Utilities", "", core.RangeHomeOffice},
		{"office", "Office Supplies", "", core.RangeHomeOffice},
		{"office basis", "Office Basis", "", core.RangeAuxiliary},
		{"mileage without vehicle is an office type", "Mileage Office", "", core.RangeHomeOffice},
		{"vehicle is matched before office", "Vehicle Mileage Office", "", core.RangeAuxiliary},
		{"vehicle office is a vehicle type", "Vehicle Office Kit", "", core.RangeVehicle},
		{"mileage alone is an operation type", "Mileage", "", core.RangeOperationExpense},
		{"operation", "Advertising", "", core.RangeOperationExpense},
		{"explicit wins over name", "Office Supplies", core.RangeOperationExpense, core.RangeOperationExpense},
		{"explicit home office basis", "Basis", core.RangeHomeOffice, core.RangeAuxiliary},
		{"explicit vehicle mileage", "Mileage", core.RangeVehicle, core.RangeAuxiliary},
		{"basis under another range stays", "Basis", core.RangeOperationExpense, core.RangeOperationExpense},
		{"unknown explicit falls back to inference", "Vehicle Repairs", "garage", core.RangeVehicle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRange(tt.typeName, tt.explicit))
		})
	}
}

func TestResolveRangeIsDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		require.Equal(t, core.RangeAuxiliary, ResolveRange("Vehicle Mileage", ""))
	}
}

func TestTypesByRange(t *testing.T) {
	types := []core.ExpenseType{
		{ID: "1", Name: "Vehicle Expenses"},
		{ID: "2", Name: "Vehicle Mileage"},
		{ID: "3", Name: "Home Office"},
		{ID: "4", Name: "Basis", Range: core.RangeHomeOffice},
		{ID: "5", Name: "Rent", Range: core.RangeHomeOffice},
		{ID: "6", Name: "Advertising"},
	}

	vehicle := TypesByRange(types, core.RangeVehicle, core.OwnershipRent)
	require.Len(t, vehicle, 1)
	assert.Equal(t, "1", vehicle[0].ID)

	rented := TypesByRange(types, core.RangeHomeOffice, core.OwnershipRent)
	assert.Equal(t, []string{"3", "5"}, ids(rented))

	owned := TypesByRange(types, core.RangeHomeOffice, core.OwnershipOwn)
	assert.Equal(t, []string{"3"}, ids(owned))

	ops := TypesByRange(types, core.RangeOperationExpense, core.OwnershipOwn)
	assert.Equal(t, []string{"6"}, ids(ops))

	_, ok := TypeInRange(types, "5", core.RangeHomeOffice, core.OwnershipOwn)
	assert.False(t, ok)
	_, ok = TypeInRange(types, "5", core.RangeHomeOffice, "")
	assert.True(t, ok)
}

func TestLabelsForType(t *testing.T) {
	labels := []core.ExpenseLabel{
		{ID: "a", TypeID: "1", Name: "Fuel", ExpenseMethod: core.ExpenseMethodAmount},
		{ID: "b", TypeID: "1", Name: "Business Miles", ExpenseMethod: core.ExpenseMethodMileage},
		{ID: "c", TypeID: "2", Name: "Internet", ExpenseMethod: core.ExpenseMethodAmount},
	}
	assert.Len(t, LabelsForType(labels, "1", ""), 2)
	mileage := LabelsForType(labels, "1", core.ExpenseMethodMileage)
	require.Len(t, mileage, 1)
	assert.Equal(t, "b", mileage[0].ID)
	assert.Empty(t, LabelsForType(labels, "9", ""))
}

func ids(types []core.ExpenseType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.ID)
	}
	return out
}

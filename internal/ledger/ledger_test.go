package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testVehicle() core.Vehicle {
	return core.Vehicle{
		ID:                   "v1",
		Make:                 "Ford",
		JanuaryBaselineMiles: dec("1000"),
		PersonalMiles:        dec("200"),
	}
}

func TestStartingOdometerWithoutRecordsIsBaseline(t *testing.T) {
	v := testVehicle()
	assert.True(t, StartingOdometer(v, nil).Equal(dec("1000")))

	other := []core.MileageRecord{{VehicleID: "v2", Date: core.NewDate(2024, 1, 1), EndingOdometer: dec("9999")}}
	assert.True(t, StartingOdometer(v, other).Equal(dec("1000")), "records of other vehicles are ignored")
}

func TestCommitFirstAndSecondEntry(t *testing.T) {
	v := testVehicle()

	first, err := Commit(v, nil, Entry{Date: core.NewDate(2024, 2, 1), BusinessMiles: dec("150")})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "v1", first.VehicleID)
	assert.True(t, first.StartingOdometer.Equal(dec("1000")))
	assert.True(t, first.EndingOdometer.Equal(dec("1350")))
	require.True(t, first.BusinessUsePercentage.Valid)
	require.True(t, first.PersonalUsePercentage.Valid)
	assert.True(t, first.BusinessUsePercentage.Decimal.Equal(dec("42.86")), first.BusinessUsePercentage.Decimal.String())
	assert.True(t, first.PersonalUsePercentage.Decimal.Equal(dec("57.14")), first.PersonalUsePercentage.Decimal.String())

	second, err := Commit(v, []core.MileageRecord{first}, Entry{Date: core.NewDate(2024, 3, 1), BusinessMiles: dec("100")})
	require.NoError(t, err)
	assert.True(t, second.StartingOdometer.Equal(dec("1350")))
	assert.True(t, second.EndingOdometer.Equal(dec("1650")))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCommitChainStaysContinuous(t *testing.T) {
	v := testVehicle()
	var records []core.MileageRecord
	for i := 1; i <= 12; i++ {
		rec, err := Commit(v, records, Entry{Date: core.NewDate(2024, i, 10), BusinessMiles: decimal.NewFromInt(int64(10 * i))})
		require.NoError(t, err)
		records = append(records, rec)
	}

	for k := 1; k < len(records); k++ {
		assert.True(t, records[k].StartingOdometer.Equal(records[k-1].EndingOdometer), "record %d", k)
	}
	for _, r := range records {
		sum := r.BusinessUsePercentage.Decimal.Add(r.PersonalUsePercentage.Decimal)
		assert.True(t, sum.Equal(core.Hundred()), "percentages sum to %s", sum)
	}
	assert.Empty(t, Verify(v, records))
}

func TestCommitUsesPersonalOverride(t *testing.T) {
	v := testVehicle()
	rec, err := Commit(v, nil, Entry{
		Date:          core.NewDate(2024, 1, 5),
		BusinessMiles: dec("50"),
		PersonalMiles: core.Null(dec("50")),
	})
	require.NoError(t, err)
	assert.True(t, rec.PersonalMiles.Equal(dec("50")))
	assert.True(t, rec.EndingOdometer.Equal(dec("1100")))
	assert.True(t, rec.BusinessUsePercentage.Decimal.Equal(dec("50")))
}

func TestCommitValidation(t *testing.T) {
	v := testVehicle()
	tests := []struct {
		name  string
		v     core.Vehicle
		in    Entry
		field string
	}{
		{"zero business miles", v, Entry{Date: core.NewDate(2024, 1, 1), BusinessMiles: decimal.Zero}, "business_miles"},
		{"negative business miles", v, Entry{Date: core.NewDate(2024, 1, 1), BusinessMiles: dec("-5")}, "business_miles"},
		{"missing date", v, Entry{BusinessMiles: dec("5")}, "date"},
		{"negative personal override", v, Entry{Date: core.NewDate(2024, 1, 1), BusinessMiles: dec("5"), PersonalMiles: core.Null(dec("-1"))}, "personal_miles"},
		{"negative baseline", core.Vehicle{ID: "v9", JanuaryBaselineMiles: dec("-1")}, Entry{Date: core.NewDate(2024, 1, 1), BusinessMiles: dec("5")}, "starting_odometer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Commit(tt.v, nil, tt.in)
			require.ErrorIs(t, err, core.ErrValidation)
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Has(tt.field), "fields: %v", verr.Fields)
		})
	}
}

func TestCommitRejectsBackdatedEntry(t *testing.T) {
	v := testVehicle()
	march, err := Commit(v, nil, Entry{Date: core.NewDate(2024, 3, 1), BusinessMiles: dec("100")})
	require.NoError(t, err)
	prior := []core.MileageRecord{march}

	_, err = Commit(v, prior, Entry{Date: core.NewDate(2024, 1, 10), BusinessMiles: dec("50")})
	require.ErrorIs(t, err, core.ErrValidation)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("date"), "fields: %v", verr.Fields)
	assert.Contains(t, verr.Error(), "2024-03-01")

	sameDay, err := Commit(v, prior, Entry{Date: core.NewDate(2024, 3, 1), BusinessMiles: dec("50")})
	require.NoError(t, err)
	assert.True(t, sameDay.StartingOdometer.Equal(march.EndingOdometer))
	assert.Empty(t, Verify(v, append(prior, sameDay)))
}

func TestCheckOrder(t *testing.T) {
	v := testVehicle()
	records := []core.MileageRecord{
		{ID: "a", VehicleID: "v1", Date: core.NewDate(2024, 2, 1)},
		{ID: "b", VehicleID: "v1", Date: core.NewDate(2024, 5, 1)},
		{ID: "x", VehicleID: "v2", Date: core.NewDate(2024, 9, 1)},
	}
	tests := []struct {
		name    string
		date    time.Time
		wantErr bool
	}{
		{"after latest", core.NewDate(2024, 6, 1), false},
		{"on latest", core.NewDate(2024, 5, 1), false},
		{"between records", core.NewDate(2024, 3, 1), true},
		{"before first", core.NewDate(2024, 1, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrder(v, records, tt.date)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrBackdated)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.NoError(t, CheckOrder(v, nil, core.NewDate(2020, 1, 1)), "empty ledger accepts any date")
}

func TestSplit(t *testing.T) {
	biz, personal := Split(decimal.Zero, decimal.Zero)
	assert.False(t, biz.Valid)
	assert.False(t, personal.Valid)

	biz, personal = Split(dec("1"), dec("2"))
	assert.True(t, biz.Decimal.Equal(dec("33.33")))
	assert.True(t, personal.Decimal.Equal(dec("66.67")))

	biz, personal = Split(dec("10"), decimal.Zero)
	assert.True(t, biz.Decimal.Equal(core.Hundred()))
	assert.True(t, personal.Decimal.IsZero())
}

func TestPreviewDoesNotAssignID(t *testing.T) {
	rec := Preview(testVehicle(), nil, Entry{Date: core.NewDate(2024, 2, 1), BusinessMiles: dec("150")})
	assert.Empty(t, rec.ID)
	assert.True(t, rec.EndingOdometer.Equal(dec("1350")))
}

func TestChronologicalIgnoresInsertionOrder(t *testing.T) {
	v := testVehicle()
	late := core.MileageRecord{ID: "late", VehicleID: "v1", Date: core.NewDate(2024, 6, 1), EndingOdometer: dec("2000")}
	early := core.MileageRecord{ID: "early", VehicleID: "v1", Date: core.NewDate(2024, 2, 1), EndingOdometer: dec("1500")}

	got := Chronological("v1", []core.MileageRecord{late, early})
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.True(t, StartingOdometer(v, []core.MileageRecord{late, early}).Equal(dec("2000")))
}

func TestCheckFresh(t *testing.T) {
	v := testVehicle()
	expected := StartingOdometer(v, nil)
	require.NoError(t, CheckFresh(v, nil, expected))

	concurrent, err := Commit(v, nil, Entry{Date: core.NewDate(2024, 1, 20), BusinessMiles: dec("25")})
	require.NoError(t, err)

	err = CheckFresh(v, []core.MileageRecord{concurrent}, expected)
	require.ErrorIs(t, err, core.ErrStaleLedger)
	var stale *core.StaleLedgerError
	require.True(t, errors.As(err, &stale))
	assert.True(t, stale.Actual.Equal(dec("1225")))
	assert.True(t, stale.Expected.Equal(dec("1000")))
}

func TestVerifyReportsBreaks(t *testing.T) {
	v := testVehicle()
	records := []core.MileageRecord{
		{ID: "a", VehicleID: "v1", Date: core.NewDate(2024, 1, 1), StartingOdometer: dec("1000"), BusinessMiles: dec("100"), PersonalMiles: dec("200"), EndingOdometer: dec("1300")},
		{ID: "b", VehicleID: "v1", Date: core.NewDate(2024, 2, 1), StartingOdometer: dec("1400"), BusinessMiles: dec("100"), PersonalMiles: dec("200"), EndingOdometer: dec("1700"),
			BusinessUsePercentage: core.Null(dec("40")), PersonalUsePercentage: core.Null(dec("40"))},
	}
	breaks := Verify(v, records)
	require.Len(t, breaks, 2)
	assert.Equal(t, "b", breaks[0].RecordID)
	assert.Equal(t, "starting_odometer", breaks[0].Field)
	assert.True(t, breaks[0].Expected.Equal(dec("1300")))
	assert.Equal(t, "use_percentage", breaks[1].Field)
	assert.Contains(t, breaks[0].String(), "2024-02-01")
}

func TestRechainAfterDeletingMiddleRecord(t *testing.T) {
	v := testVehicle()
	var records []core.MileageRecord
	for i, miles := range []string{"150", "100", "50"} {
		rec, err := Commit(v, records, Entry{Date: core.NewDate(2024, i+1, 1), BusinessMiles: dec(miles)})
		require.NoError(t, err)
		records = append(records, rec)
	}

	remaining := []core.MileageRecord{records[0], records[2]}
	require.NotEmpty(t, Verify(v, remaining))

	changed := Rechain(v, remaining)
	require.Len(t, changed, 1)
	assert.Equal(t, records[2].ID, changed[0].ID)
	assert.True(t, changed[0].StartingOdometer.Equal(dec("1350")))
	assert.True(t, changed[0].EndingOdometer.Equal(dec("1600")))

	assert.Empty(t, Verify(v, []core.MileageRecord{records[0], changed[0]}))
	assert.Empty(t, Rechain(v, []core.MileageRecord{records[0], changed[0]}))
}

// Package ledger maintains per-vehicle odometer continuity.
//
// Every mileage record of a vehicle starts where the previous one ended, or at
// the vehicle's January baseline when there is no previous record.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bizledger/internal/core"
)

// Entry is the caller's input for a new mileage record.
type Entry struct {
	Date          time.Time
	BusinessMiles decimal.Decimal
	// PersonalMiles overrides the vehicle's fixed personal allowance when Valid.
	PersonalMiles decimal.NullDecimal
}

// Break describes one continuity violation found by Verify.
type Break struct {
	RecordID string          `json:"record_id"`
	Date     time.Time       `json:"date"`
	Field    string          `json:"field"`
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
}

func (b Break) String() string {
	return fmt.Sprintf("record %s on %s: %s expected %s, got %s",
		b.RecordID, b.Date.Format(core.DateLayout), b.Field, b.Expected, b.Actual)
}

var percentTolerance = decimal.RequireFromString("0.01")

// Chronological returns the records belonging to vehicleID ordered by date.
// Records sharing a date keep their input order.
func Chronological(vehicleID string, records []core.MileageRecord) []core.MileageRecord {
	out := make([]core.MileageRecord, 0, len(records))
	for _, r := range records {
		if r.VehicleID == vehicleID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// StartingOdometer returns the ending odometer of the chronologically latest
// prior record of v, or v's January baseline when there is none.
func StartingOdometer(v core.Vehicle, prior []core.MileageRecord) decimal.Decimal {
	chain := Chronological(v.ID, prior)
	if len(chain) == 0 {
		return v.JanuaryBaselineMiles
	}
	return chain[len(chain)-1].EndingOdometer
}

// Split derives business and personal use percentages. The business share is
// rounded to two places and the personal share is its complement, so the two
// always sum to exactly 100. Both are null when there are no miles at all.
func Split(business, personal decimal.Decimal) (decimal.NullDecimal, decimal.NullDecimal) {
	total := business.Add(personal)
	if !total.IsPositive() {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	biz := core.Round2(business.Div(total).Mul(core.Hundred()))
	return core.Null(biz), core.Null(core.Hundred().Sub(biz))
}

// Preview derives the record an entry would produce without validating it.
// The intake flow uses it to show read-only summary fields.
func Preview(v core.Vehicle, prior []core.MileageRecord, in Entry) core.MileageRecord {
	personal := v.PersonalMiles
	if in.PersonalMiles.Valid {
		personal = in.PersonalMiles.Decimal
	}
	start := StartingOdometer(v, prior)
	bizPct, personalPct := Split(in.BusinessMiles, personal)
	return core.MileageRecord{
		VehicleID:             v.ID,
		Date:                  in.Date,
		StartingOdometer:      start,
		BusinessMiles:         in.BusinessMiles,
		PersonalMiles:         personal,
		EndingOdometer:        start.Add(in.BusinessMiles).Add(personal),
		BusinessUsePercentage: bizPct,
		PersonalUsePercentage: personalPct,
	}
}

// Commit validates an entry and produces the next record of v's chain.
func Commit(v core.Vehicle, prior []core.MileageRecord, in Entry) (core.MileageRecord, error) {
	verr := &core.ValidationError{}
	if !in.BusinessMiles.IsPositive() {
		verr.Add("business_miles", core.ErrInvalidAmount)
	}
	if in.Date.IsZero() {
		verr.Add("date", core.ErrRequired)
	} else if err := CheckOrder(v, prior, in.Date); err != nil {
		verr.Add("date", err)
	}
	if in.PersonalMiles.Valid && in.PersonalMiles.Decimal.IsNegative() {
		verr.Add("personal_miles", core.ErrNegative)
	}
	if v.JanuaryBaselineMiles.IsNegative() {
		verr.Add("starting_odometer", core.ErrNegative)
	}
	if err := verr.Err(); err != nil {
		return core.MileageRecord{}, err
	}

	rec := Preview(v, prior, in)
	rec.ID = uuid.NewString()
	return rec, nil
}

// CheckOrder rejects an entry dated before v's latest record. New records
// only extend the end of the chain; an entry on the latest date is allowed.
func CheckOrder(v core.Vehicle, prior []core.MileageRecord, date time.Time) error {
	chain := Chronological(v.ID, prior)
	if len(chain) == 0 {
		return nil
	}
	latest := chain[len(chain)-1].Date
	if date.Before(latest) {
		return fmt.Errorf("%w (%s)", core.ErrBackdated, latest.Format(core.DateLayout))
	}
	return nil
}

// CheckFresh compares the starting odometer a caller computed earlier against
// the ledger as it is now. It returns a StaleLedgerError when they differ.
func CheckFresh(v core.Vehicle, latest []core.MileageRecord, expected decimal.Decimal) error {
	actual := StartingOdometer(v, latest)
	if !actual.Equal(expected) {
		return &core.StaleLedgerError{VehicleID: v.ID, Expected: expected, Actual: actual}
	}
	return nil
}

// Verify walks v's chain and reports every record whose start does not match
// the previous end, whose end is not start plus miles, or whose percentages do
// not sum to 100.
func Verify(v core.Vehicle, records []core.MileageRecord) []Break {
	var breaks []Break
	prevEnd := v.JanuaryBaselineMiles
	for _, r := range Chronological(v.ID, records) {
		if !r.StartingOdometer.Equal(prevEnd) {
			breaks = append(breaks, Break{RecordID: r.ID, Date: r.Date, Field: "starting_odometer", Expected: prevEnd, Actual: r.StartingOdometer})
		}
		wantEnd := r.StartingOdometer.Add(r.BusinessMiles).Add(r.PersonalMiles)
		if !r.EndingOdometer.Equal(wantEnd) {
			breaks = append(breaks, Break{RecordID: r.ID, Date: r.Date, Field: "ending_odometer", Expected: wantEnd, Actual: r.EndingOdometer})
		}
		if r.BusinessUsePercentage.Valid && r.PersonalUsePercentage.Valid {
			sum := r.BusinessUsePercentage.Decimal.Add(r.PersonalUsePercentage.Decimal)
			if sum.Sub(core.Hundred()).Abs().GreaterThan(percentTolerance) {
				breaks = append(breaks, Break{RecordID: r.ID, Date: r.Date, Field: "use_percentage", Expected: core.Hundred(), Actual: sum})
			}
		}
		prevEnd = r.EndingOdometer
	}
	return breaks
}

// Rechain recomputes starting and ending odometers of v's records so that the
// chain is continuous again, typically after a record was deleted. It returns
// only the records whose readings changed. Percentages depend on a record's own
// miles and are left alone.
func Rechain(v core.Vehicle, records []core.MileageRecord) []core.MileageRecord {
	var changed []core.MileageRecord
	prevEnd := v.JanuaryBaselineMiles
	for _, r := range Chronological(v.ID, records) {
		end := prevEnd.Add(r.BusinessMiles).Add(r.PersonalMiles)
		if !r.StartingOdometer.Equal(prevEnd) || !r.EndingOdometer.Equal(end) {
			r.StartingOdometer = prevEnd
			r.EndingOdometer = end
			changed = append(changed, r)
		}
		prevEnd = end
	}
	return changed
}

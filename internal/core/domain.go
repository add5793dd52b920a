package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RangeVehicle          Range = "vehicle"
	RangeHomeOffice       Range = "home_office"
	RangeOperationExpense Range = "operation_expense"
	// RangeAuxiliary marks internal pseudo-types ("Basis", "Mileage") that feed the
	// ratio and ledger calculators and never appear as a user-facing category.
	RangeAuxiliary Range = "auxiliary"
)

const (
	MethodDirect   Method = "direct"
	MethodIndirect Method = "indirect"
)

const (
	ExpenseMethodAmount  ExpenseMethod = "amount"
	ExpenseMethodMileage ExpenseMethod = "mileage"
)

const (
	OwnershipOwn  OwnershipType = "own"
	OwnershipRent OwnershipType = "rent"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

type (
	Range         string
	Method        string
	ExpenseMethod string
	OwnershipType string

	ExpenseType struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Range Range  `json:"range,omitempty"` // empty means inferred from Name
	}

	ExpenseLabel struct {
		ID            string        `json:"id"`
		Name          string        `json:"name"`
		TypeID        string        `json:"type_id"`
		ExpenseMethod ExpenseMethod `json:"expense_method"`
	}

	Vehicle struct {
		ID                   string          `json:"id"`
		Make                 string          `json:"make"`
		Cost                 decimal.Decimal `json:"cost"`
		OwnershipType        OwnershipType   `json:"ownership_type"`
		DeductionType        string          `json:"deduction_type"`
		JanuaryBaselineMiles decimal.Decimal `json:"january_baseline_miles"`
		PersonalMiles        decimal.Decimal `json:"personal_miles"`
		DatePlacedInService  time.Time       `json:"date_placed_in_service"`
	}

	MileageRecord struct {
		ID                    string              `json:"id"`
		VehicleID             string              `json:"vehicle_id"`
		Date                  time.Time           `json:"date"`
		StartingOdometer      decimal.Decimal     `json:"starting_odometer"`
		BusinessMiles         decimal.Decimal     `json:"business_miles"`
		PersonalMiles         decimal.Decimal     `json:"personal_miles"`
		EndingOdometer        decimal.Decimal     `json:"ending_odometer"`
		BusinessUsePercentage decimal.NullDecimal `json:"business_use_percentage"`
		PersonalUsePercentage decimal.NullDecimal `json:"personal_use_percentage"`
	}

	Expense struct {
		ID            string              `json:"id"`
		Range         Range               `json:"range"`
		TypeID        string              `json:"type_id"`
		LabelID       string              `json:"label_id"`
		VehicleID     string              `json:"vehicle_id,omitempty"`
		Date          time.Time           `json:"date"`
		Method        Method              `json:"method"`
		ExpenseMethod ExpenseMethod       `json:"expense_method"`
		Amount        decimal.NullDecimal `json:"amount"`
		MileageRecord *MileageRecord      `json:"mileage_record,omitempty"`
		Note          string              `json:"note"`
	}

	Business struct {
		ID                  string              `json:"id"`
		OwnerID             string              `json:"owner_id"`
		BusinessName        string              `json:"business_name"`
		OfficeSquareFootage decimal.Decimal     `json:"office_square_footage"`
		HomeSquareFootage   decimal.Decimal     `json:"home_square_footage"`
		BusinessUseRatio    decimal.NullDecimal `json:"business_use_ratio"`
		OwnershipType       OwnershipType       `json:"ownership_type"`
		PurchasePrice       decimal.Decimal     `json:"purchase_price"`
		CostOfPurchase      decimal.Decimal     `json:"cost_of_purchase"`
		LandValue           decimal.Decimal     `json:"land_value"`
		Improvements        decimal.Decimal     `json:"improvements"`
		TotalBasis          decimal.Decimal     `json:"total_basis"`
		CreatedAt           time.Time           `json:"created_at"`
	}
)

var (
	ErrInvalidAmount  = errors.New("must be a positive number")
	ErrNegative       = errors.New("must not be negative")
	ErrRequired       = errors.New("is required")
	ErrUnknownRange   = errors.New("unknown range")
	ErrUnknownMethod  = errors.New("must be direct or indirect")
	ErrUnknownExpense = errors.New("must be amount or mileage")
	ErrLabelMismatch  = errors.New("label does not belong to the selected type")
	ErrMethodMismatch = errors.New("label does not accept this expense method")
	ErrBackdated      = errors.New("must not be before the latest mileage record")
)

// Valid reports whether r is one of the user-facing ranges.
func (r Range) Valid() bool {
	switch r {
	case RangeVehicle, RangeHomeOffice, RangeOperationExpense:
		return true
	}
	return false
}

func (r Range) String() string { return string(r) }

// Ranges returns the user-facing ranges in display order.
func Ranges() []Range {
	return []Range{RangeVehicle, RangeHomeOffice, RangeOperationExpense}
}

func (m Method) Valid() bool {
	return m == MethodDirect || m == MethodIndirect
}

func (m ExpenseMethod) Valid() bool {
	return m == ExpenseMethodAmount || m == ExpenseMethodMileage
}

// MonthKey formats the "YYYY-MM" bucket key used by the aggregation grid.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// NewDate creates a UTC date from year, month, day.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (l ExpenseLabel) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(l.Name) == "" {
		verr.Add("name", ErrRequired)
	}
	if strings.TrimSpace(l.TypeID) == "" {
		verr.Add("type_id", ErrRequired)
	}
	if !l.ExpenseMethod.Valid() {
		verr.Add("expense_method", ErrUnknownExpense)
	}
	return verr.Err()
}

func (t ExpenseType) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(t.Name) == "" {
		verr.Add("name", ErrRequired)
	}
	if t.Range != "" && !t.Range.Valid() {
		verr.Add("range", ErrUnknownRange)
	}
	return verr.Err()
}

func (v Vehicle) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(v.Make) == "" {
		verr.Add("make", ErrRequired)
	}
	if v.JanuaryBaselineMiles.IsNegative() {
		verr.Add("january_baseline_miles", ErrNegative)
	}
	if v.PersonalMiles.IsNegative() {
		verr.Add("personal_miles", ErrNegative)
	}
	if v.Cost.IsNegative() {
		verr.Add("cost", ErrNegative)
	}
	return verr.Err()
}

func (b Business) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(b.BusinessName) == "" {
		verr.Add("business_name", ErrRequired)
	}
	if strings.TrimSpace(b.OwnerID) == "" {
		verr.Add("owner_id", ErrRequired)
	}
	if b.OfficeSquareFootage.IsNegative() {
		verr.Add("office_square_footage", ErrNegative)
	}
	if b.HomeSquareFootage.IsNegative() {
		verr.Add("home_square_footage", ErrNegative)
	}
	return verr.Err()
}

// Validate checks the normalized expense shape: exactly one of Amount or
// MileageRecord is populated, matching ExpenseMethod.
func (e Expense) Validate() error {
	verr := &ValidationError{}
	if !e.Range.Valid() {
		verr.Add("range", ErrUnknownRange)
	}
	if e.Range == RangeVehicle && strings.TrimSpace(e.VehicleID) == "" {
		verr.Add("vehicle_id", ErrRequired)
	}
	if strings.TrimSpace(e.TypeID) == "" {
		verr.Add("type_id", ErrRequired)
	}
	if strings.TrimSpace(e.LabelID) == "" {
		verr.Add("label_id", ErrRequired)
	}
	if e.Date.IsZero() {
		verr.Add("date", ErrRequired)
	}
	if !e.Method.Valid() {
		verr.Add("method", ErrUnknownMethod)
	}
	switch e.ExpenseMethod {
	case ExpenseMethodAmount:
		if !e.Amount.Valid || !e.Amount.Decimal.IsPositive() {
			verr.Add("amount", ErrInvalidAmount)
		}
		if e.MileageRecord != nil {
			verr.Add("mileage_record", errors.New("must be empty for amount expenses"))
		}
	case ExpenseMethodMileage:
		if e.MileageRecord == nil {
			verr.Add("mileage_record", ErrRequired)
		} else if !e.MileageRecord.BusinessMiles.IsPositive() {
			verr.Add("business_miles", ErrInvalidAmount)
		}
		if e.Amount.Valid {
			verr.Add("amount", errors.New("must be empty for mileage expenses"))
		}
	default:
		verr.Add("expense_method", ErrUnknownExpense)
	}
	return verr.Err()
}

// Value is the number the grid aggregates for this expense: the amount for
// amount-method expenses, business miles for mileage-method expenses.
func (e Expense) Value() decimal.Decimal {
	if e.ExpenseMethod == ExpenseMethodMileage && e.MileageRecord != nil {
		return e.MileageRecord.BusinessMiles
	}
	if e.Amount.Valid {
		return e.Amount.Decimal
	}
	return decimal.Zero
}

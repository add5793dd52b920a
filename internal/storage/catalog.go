package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bizledger/internal/core"
	"bizledger/internal/store"
)

// ListTypes implements store.TaxonomyStore
func (r *SQLiteRepository) ListTypes(ctx context.Context) ([]core.ExpenseType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, range_name FROM expense_types ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExpenseType, 0)
	for rows.Next() {
		var (
			t         core.ExpenseType
			rangeName string
		)
		if err := rows.Scan(&t.ID, &t.Name, &rangeName); err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		t.Range = core.Range(rangeName)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListLabelsForType implements store.TaxonomyStore
func (r *SQLiteRepository) ListLabelsForType(ctx context.Context, typeID string) ([]core.ExpenseLabel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type_id, expense_method FROM expense_labels WHERE type_id = ? ORDER BY rowid`, typeID)
	if err != nil {
		return nil, fmt.Errorf("list labels for type %s: %w", typeID, err)
	}
	defer rows.Close()

	out := make([]core.ExpenseLabel, 0)
	for rows.Next() {
		var (
			l      core.ExpenseLabel
			method string
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.TypeID, &method); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		l.ExpenseMethod = core.ExpenseMethod(method)
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetVehicle implements store.VehicleStore
func (r *SQLiteRepository) GetVehicle(ctx context.Context, id string) (core.Vehicle, error) {
	var (
		v               core.Vehicle
		ownership       string
		placedInService string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, make, cost, ownership_type, deduction_type, january_baseline_miles, personal_miles, date_placed_in_service
FROM vehicles WHERE id = ?`, id).Scan(&v.ID, &v.Make, &v.Cost, &ownership, &v.DeductionType,
		&v.JanuaryBaselineMiles, &v.PersonalMiles, &placedInService)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Vehicle{}, fmt.Errorf("get vehicle %s: %w", id, err)
	}
	v.OwnershipType = core.OwnershipType(ownership)
	if v.DatePlacedInService, err = parseDate(placedInService); err != nil {
		return core.Vehicle{}, err
	}
	return v, nil
}

const businessColumns = `id, owner_id, business_name, office_square_footage, home_square_footage,
    business_use_ratio, ownership_type, purchase_price, cost_of_purchase, land_value, improvements,
    total_basis, created_at`

// GetOldestBusiness implements store.BusinessStore
func (r *SQLiteRepository) GetOldestBusiness(ctx context.Context, owner store.OwnerContext) (*core.Business, error) {
	var (
		b         core.Business
		ownership string
		created   int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT `+businessColumns+`
FROM businesses WHERE owner_id = ? ORDER BY created_at, rowid LIMIT 1`, owner.UserID).Scan(
		&b.ID, &b.OwnerID, &b.BusinessName, &b.OfficeSquareFootage, &b.HomeSquareFootage,
		&b.BusinessUseRatio, &ownership, &b.PurchasePrice, &b.CostOfPurchase, &b.LandValue,
		&b.Improvements, &b.TotalBasis, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oldest business: %w", err)
	}
	b.OwnershipType = core.OwnershipType(ownership)
	b.CreatedAt = time.Unix(0, created).UTC()
	return &b, nil
}

// SaveType implements store.CatalogWriter
func (r *SQLiteRepository) SaveType(ctx context.Context, t core.ExpenseType) (core.ExpenseType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return core.ExpenseType{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO expense_types (id, name, range_name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, range_name = excluded.range_name`,
		t.ID, t.Name, string(t.Range))
	if err != nil {
		return core.ExpenseType{}, fmt.Errorf("save type: %w", err)
	}
	return t, nil
}

// SaveLabel implements store.CatalogWriter
func (r *SQLiteRepository) SaveLabel(ctx context.Context, l core.ExpenseLabel) (core.ExpenseLabel, error) {
	l.Name = strings.TrimSpace(l.Name)
	if err := l.Validate(); err != nil {
		return core.ExpenseLabel{}, err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM expense_types WHERE id = ?`, l.TypeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check type: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("type %s: %w", l.TypeID, core.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO expense_labels (id, name, type_id, expense_method) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, type_id = excluded.type_id,
    expense_method = excluded.expense_method`,
			l.ID, l.Name, l.TypeID, string(l.ExpenseMethod))
		if err != nil {
			return fmt.Errorf("save label: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.ExpenseLabel{}, err
	}
	return l, nil
}

// SaveVehicle implements store.CatalogWriter
func (r *SQLiteRepository) SaveVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error) {
	if err := v.Validate(); err != nil {
		return core.Vehicle{}, err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO vehicles (id, make, cost, ownership_type, deduction_type, january_baseline_miles, personal_miles, date_placed_in_service)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET make = excluded.make, cost = excluded.cost,
    ownership_type = excluded.ownership_type, deduction_type = excluded.deduction_type,
    january_baseline_miles = excluded.january_baseline_miles, personal_miles = excluded.personal_miles,
    date_placed_in_service = excluded.date_placed_in_service`,
		v.ID, v.Make, v.Cost, string(v.OwnershipType), v.DeductionType, v.JanuaryBaselineMiles,
		v.PersonalMiles, formatDate(v.DatePlacedInService))
	if err != nil {
		return core.Vehicle{}, fmt.Errorf("save vehicle: %w", err)
	}
	return v, nil
}

// SaveBusiness implements store.CatalogWriter. An existing business keeps its
// original creation time.
func (r *SQLiteRepository) SaveBusiness(ctx context.Context, b core.Business) (core.Business, error) {
	if err := b.Validate(); err != nil {
		return core.Business{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var created int64
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM businesses WHERE id = ?`, b.ID).Scan(&created)
		switch {
		case err == nil:
			b.CreatedAt = time.Unix(0, created).UTC()
		case errors.Is(err, sql.ErrNoRows):
			if b.CreatedAt.IsZero() {
				b.CreatedAt = r.now().UTC()
			}
		default:
			return fmt.Errorf("read business: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO businesses (`+businessColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, business_name = excluded.business_name,
    office_square_footage = excluded.office_square_footage, home_square_footage = excluded.home_square_footage,
    business_use_ratio = excluded.business_use_ratio, ownership_type = excluded.ownership_type,
    purchase_price = excluded.purchase_price, cost_of_purchase = excluded.cost_of_purchase,
    land_value = excluded.land_value, improvements = excluded.improvements, total_basis = excluded.total_basis`,
			b.ID, b.OwnerID, b.BusinessName, b.OfficeSquareFootage, b.HomeSquareFootage,
			b.BusinessUseRatio, string(b.OwnershipType), b.PurchasePrice, b.CostOfPurchase, b.LandValue,
			b.Improvements, b.TotalBasis, b.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("save business: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Business{}, err
	}
	return b, nil
}

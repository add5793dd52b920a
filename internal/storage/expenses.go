package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bizledger/internal/core"
	"bizledger/internal/store"
)

const expenseSelect = `
SELECT e.id, e.range_name, e.type_id, e.label_id, e.vehicle_id, e.date, e.method,
       e.expense_method, e.amount, e.note,
       m.id, m.date, m.starting_odometer, m.business_miles, m.personal_miles,
       m.ending_odometer, m.business_use_percentage, m.personal_use_percentage
FROM expenses e
LEFT JOIN mileage_records m ON m.expense_id = e.id`

const mileageSelect = `
SELECT id, vehicle_id, date, starting_odometer, business_miles, personal_miles,
       ending_odometer, business_use_percentage, personal_use_percentage
FROM mileage_records`

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                            core.Expense
		rangeName, method, expMethod string
		date                         string
		recID, recDate               sql.NullString
		start, biz, personal, end    decimal.NullDecimal
		bizPct, personalPct          decimal.NullDecimal
	)
	err := row.Scan(&e.ID, &rangeName, &e.TypeID, &e.LabelID, &e.VehicleID, &date, &method,
		&expMethod, &e.Amount, &e.Note,
		&recID, &recDate, &start, &biz, &personal, &end, &bizPct, &personalPct)
	if err != nil {
		return core.Expense{}, err
	}
	e.Range = core.Range(rangeName)
	e.Method = core.Method(method)
	e.ExpenseMethod = core.ExpenseMethod(expMethod)
	if e.Date, err = parseDate(date); err != nil {
		return core.Expense{}, err
	}
	if recID.Valid {
		rd, err := parseDate(recDate.String)
		if err != nil {
			return core.Expense{}, err
		}
		e.MileageRecord = &core.MileageRecord{
			ID:                    recID.String,
			VehicleID:             e.VehicleID,
			Date:                  rd,
			StartingOdometer:      start.Decimal,
			BusinessMiles:         biz.Decimal,
			PersonalMiles:         personal.Decimal,
			EndingOdometer:        end.Decimal,
			BusinessUsePercentage: bizPct,
			PersonalUsePercentage: personalPct,
		}
	}
	return e, nil
}

func scanMileage(row rowScanner) (core.MileageRecord, error) {
	var (
		rec  core.MileageRecord
		date string
	)
	err := row.Scan(&rec.ID, &rec.VehicleID, &date, &rec.StartingOdometer, &rec.BusinessMiles,
		&rec.PersonalMiles, &rec.EndingOdometer, &rec.BusinessUsePercentage, &rec.PersonalUsePercentage)
	if err != nil {
		return core.MileageRecord{}, err
	}
	if rec.Date, err = parseDate(date); err != nil {
		return core.MileageRecord{}, err
	}
	return rec, nil
}

// ListExpenses implements store.ExpenseStore
func (r *SQLiteRepository) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	var (
		where []string
		args  []any
	)
	if f.Year != 0 {
		where = append(where, "e.date >= ? AND e.date <= ?")
		args = append(args, fmt.Sprintf("%04d-01-01", f.Year), fmt.Sprintf("%04d-12-31", f.Year))
	}
	if !f.From.IsZero() {
		where = append(where, "e.date >= ?")
		args = append(args, formatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "e.date <= ?")
		args = append(args, formatDate(f.To))
	}
	if f.ExpenseMethod != "" {
		where = append(where, "e.expense_method = ?")
		args = append(args, string(f.ExpenseMethod))
	}
	if f.VehicleID != "" {
		where = append(where, "e.vehicle_id = ?")
		args = append(args, f.VehicleID)
	}

	query := expenseSelect
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY e.seq"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// GetExpense implements store.ExpenseStore
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, expenseSelect+"\nWHERE e.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

// CreateExpense implements store.ExpenseStore
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MileageRecord != nil {
		rec := *e.MileageRecord
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.VehicleID = e.VehicleID
		e.MileageRecord = &rec
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO expenses (id, range_name, type_id, label_id, vehicle_id, date, method, expense_method, amount, note)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, string(e.Range), e.TypeID, e.LabelID, e.VehicleID, formatDate(e.Date),
			string(e.Method), string(e.ExpenseMethod), e.Amount, e.Note)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if rec := e.MileageRecord; rec != nil {
			_, err = tx.ExecContext(ctx, `
INSERT INTO mileage_records (id, expense_id, vehicle_id, date, starting_odometer, business_miles,
    personal_miles, ending_odometer, business_use_percentage, personal_use_percentage)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, e.ID, rec.VehicleID, formatDate(rec.Date), rec.StartingOdometer, rec.BusinessMiles,
				rec.PersonalMiles, rec.EndingOdometer, rec.BusinessUsePercentage, rec.PersonalUsePercentage)
			if err != nil {
				return fmt.Errorf("insert mileage record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"component", "storage",
		"id", e.ID,
		"range", e.Range,
		"expense_method", e.ExpenseMethod,
		"date", formatDate(e.Date))
	return e, nil
}

// DeleteExpense implements store.ExpenseStore
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return deleteExpense(ctx, tx, id)
	})
}

// DeleteMileageExpense implements store.ExpenseStore
func (r *SQLiteRepository) DeleteMileageExpense(ctx context.Context, id string, rechain store.Rechainer) (int, error) {
	var updated int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var vehicleID string
		err := tx.QueryRowContext(ctx, `SELECT vehicle_id FROM mileage_records WHERE expense_id = ?`, id).Scan(&vehicleID)
		hasRecord := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find mileage record: %w", err)
		}
		if err := deleteExpense(ctx, tx, id); err != nil {
			return err
		}
		if !hasRecord {
			return nil
		}
		remaining, err := listMileage(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		changed := rechain(remaining)
		if err := updateReadings(ctx, tx, changed); err != nil {
			return err
		}
		updated = len(changed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func deleteExpense(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM mileage_records WHERE expense_id = ?`, id); err != nil {
		return fmt.Errorf("delete mileage record: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// ListMileageRecords implements store.VehicleStore
func (r *SQLiteRepository) ListMileageRecords(ctx context.Context, vehicleID string) ([]core.MileageRecord, error) {
	return listMileage(ctx, r.db, vehicleID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listMileage(ctx context.Context, q queryer, vehicleID string) ([]core.MileageRecord, error) {
	rows, err := q.QueryContext(ctx, mileageSelect+"\nWHERE vehicle_id = ?\nORDER BY date, rowid", vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list mileage records: %w", err)
	}
	defer rows.Close()

	var out []core.MileageRecord
	for rows.Next() {
		rec, err := scanMileage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mileage record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mileage records: %w", err)
	}
	return out, nil
}

// UpdateMileageRecords implements store.VehicleStore
func (r *SQLiteRepository) UpdateMileageRecords(ctx context.Context, records []core.MileageRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return updateReadings(ctx, tx, records)
	})
}

func updateReadings(ctx context.Context, tx *sql.Tx, records []core.MileageRecord) error {
	for _, rec := range records {
		res, err := tx.ExecContext(ctx,
			`UPDATE mileage_records SET starting_odometer = ?, ending_odometer = ? WHERE id = ?`,
			rec.StartingOdometer, rec.EndingOdometer, rec.ID)
		if err != nil {
			return fmt.Errorf("update mileage record %s: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update mileage record %s: %w", rec.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("mileage record %s: %w", rec.ID, core.ErrNotFound)
		}
	}
	return nil
}

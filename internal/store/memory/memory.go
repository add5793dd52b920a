package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bizledger/internal/core"
	"bizledger/internal/store"
)

// Seed is the JSON document NewFromFile reads.
type Seed struct {
	Types      []core.ExpenseType  `json:"types"`
	Labels     []core.ExpenseLabel `json:"labels"`
	Vehicles   []core.Vehicle      `json:"vehicles"`
	Businesses []core.Business     `json:"businesses"`
}

// Store keeps everything in process memory. Records are copied on the way
// in and out so callers can never alias internal state.
type Store struct {
	mu         sync.RWMutex
	types      []core.ExpenseType
	labels     []core.ExpenseLabel
	vehicles   map[string]core.Vehicle
	businesses []core.Business
	expenses   []core.Expense
	now        func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(seed Seed) *Store {
	s := &Store{vehicles: map[string]core.Vehicle{}, now: time.Now}
	s.types = dedupeTypes(seed.Types)
	s.labels = append(s.labels, seed.Labels...)
	for _, v := range seed.Vehicles {
		s.vehicles[v.ID] = v
	}
	s.businesses = append(s.businesses, seed.Businesses...)
	return s
}

// NewFromFile loads a seed from path. A missing file yields the default
// taxonomy; a malformed one is an error.
func NewFromFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(DefaultSeed()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if len(seed.Types) == 0 {
		def := DefaultSeed()
		seed.Types, seed.Labels = def.Types, def.Labels
	}
	return New(seed), nil
}

// DefaultSeed is a minimal taxonomy covering each range.
func DefaultSeed() Seed {
	return Seed{
		Types: []core.ExpenseType{
			{ID: "vehicle-expenses", Name: "Vehicle Expenses"},
			{ID: "vehicle-mileage", Name: "Vehicle Mileage"},
			{ID: "home-office", Name: "Home Office"},
			{ID: "rent", Name: "Rent", Range: core.RangeHomeOffice},
			{ID: "basis", Name: "Basis", Range: core.RangeHomeOffice},
			{ID: "advertising", Name: "Advertising"},
			{ID: "supplies", Name: "Supplies"},
		},
		Labels: []core.ExpenseLabel{
			{ID: "fuel", Name: "Fuel", TypeID: "vehicle-expenses", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "repairs", Name: "Repairs", TypeID: "vehicle-expenses", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "business-miles", Name: "Business Miles", TypeID: "vehicle-expenses", ExpenseMethod: core.ExpenseMethodMileage},
			{ID: "mileage-log", Name: "Mileage Log", TypeID: "vehicle-mileage", ExpenseMethod: core.ExpenseMethodMileage},
			{ID: "utilities", Name: "Utilities", TypeID: "home-office", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "internet", Name: "Internet", TypeID: "home-office", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "monthly-rent", Name: "Monthly Rent", TypeID: "rent", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "purchase-price", Name: "Purchase Price", TypeID: "basis", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "online-ads", Name: "Online", TypeID: "advertising", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "print-ads", Name: "Print", TypeID: "advertising", ExpenseMethod: core.ExpenseMethodAmount},
			{ID: "office-supplies", Name: "Office Supplies", TypeID: "supplies", ExpenseMethod: core.ExpenseMethodAmount},
		},
	}
}

func (s *Store) ListExpenses(_ context.Context, f store.ExpenseFilter) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if f.Matches(e) {
			out = append(out, cloneExpense(e))
		}
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.expenses {
		if e.ID == id {
			return cloneExpense(e), nil
		}
	}
	return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e = cloneExpense(e)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MileageRecord != nil {
		if e.MileageRecord.ID == "" {
			e.MileageRecord.ID = uuid.NewString()
		}
		e.MileageRecord.VehicleID = e.VehicleID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, e)
	return cloneExpense(e), nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.expenses {
		if e.ID == id {
			s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
}

func (s *Store) DeleteMileageExpense(_ context.Context, id string, rechain store.Rechainer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, e := range s.expenses {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}

	var changed []core.MileageRecord
	if deleted := s.expenses[idx].MileageRecord; deleted != nil {
		var remaining []core.MileageRecord
		for i, e := range s.expenses {
			if i != idx && e.MileageRecord != nil && e.MileageRecord.VehicleID == deleted.VehicleID {
				remaining = append(remaining, *e.MileageRecord)
			}
		}
		sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].Date.Before(remaining[j].Date) })
		changed = rechain(remaining)
	}
	if err := s.applyReadings(changed, idx); err != nil {
		return 0, err
	}
	s.expenses = append(s.expenses[:idx], s.expenses[idx+1:]...)
	return len(changed), nil
}

func (s *Store) ListTypes(_ context.Context) ([]core.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.ExpenseType(nil), s.types...), nil
}

func (s *Store) ListLabelsForType(_ context.Context, typeID string) ([]core.ExpenseLabel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ExpenseLabel, 0)
	for _, l := range s.labels {
		if l.TypeID == typeID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Store) GetVehicle(_ context.Context, id string) (core.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return core.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, core.ErrNotFound)
	}
	return v, nil
}

func (s *Store) ListMileageRecords(_ context.Context, vehicleID string) ([]core.MileageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.MileageRecord
	for _, e := range s.expenses {
		if e.MileageRecord != nil && e.MileageRecord.VehicleID == vehicleID {
			out = append(out, *e.MileageRecord)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) UpdateMileageRecords(_ context.Context, records []core.MileageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyReadings(records, -1)
}

// applyReadings overwrites odometer readings by record id, skipping the
// expense at index skip. It changes nothing when any id is unknown. The
// caller holds the write lock.
func (s *Store) applyReadings(records []core.MileageRecord, skip int) error {
	index := make(map[string]*core.MileageRecord, len(s.expenses))
	for i := range s.expenses {
		if i == skip {
			continue
		}
		if rec := s.expenses[i].MileageRecord; rec != nil {
			index[rec.ID] = rec
		}
	}
	var missing []string
	for _, r := range records {
		if _, ok := index[r.ID]; !ok {
			missing = append(missing, r.ID)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("mileage records %s: %w", strings.Join(missing, ","), core.ErrNotFound)
	}
	for _, r := range records {
		rec := index[r.ID]
		rec.StartingOdometer = r.StartingOdometer
		rec.EndingOdometer = r.EndingOdometer
	}
	return nil
}

func (s *Store) GetOldestBusiness(_ context.Context, owner store.OwnerContext) (*core.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest *core.Business
	for i := range s.businesses {
		b := s.businesses[i]
		if b.OwnerID != owner.UserID {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &b
		}
	}
	return oldest, nil
}

func (s *Store) SaveType(_ context.Context, t core.ExpenseType) (core.ExpenseType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return core.ExpenseType{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.types {
		if s.types[i].ID == t.ID {
			s.types[i] = t
			return t, nil
		}
	}
	s.types = append(s.types, t)
	return t, nil
}

func (s *Store) SaveLabel(_ context.Context, l core.ExpenseLabel) (core.ExpenseLabel, error) {
	l.Name = strings.TrimSpace(l.Name)
	if err := l.Validate(); err != nil {
		return core.ExpenseLabel{}, err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, t := range s.types {
		if t.ID == l.TypeID {
			found = true
			break
		}
	}
	if !found {
		return core.ExpenseLabel{}, fmt.Errorf("type %s: %w", l.TypeID, core.ErrNotFound)
	}
	for i := range s.labels {
		if s.labels[i].ID == l.ID {
			s.labels[i] = l
			return l, nil
		}
	}
	s.labels = append(s.labels, l)
	return l, nil
}

func (s *Store) SaveVehicle(_ context.Context, v core.Vehicle) (core.Vehicle, error) {
	if err := v.Validate(); err != nil {
		return core.Vehicle{}, err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = v
	return v, nil
}

func (s *Store) SaveBusiness(_ context.Context, b core.Business) (core.Business, error) {
	if err := b.Validate(); err != nil {
		return core.Business{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.businesses {
		if s.businesses[i].ID == b.ID {
			b.CreatedAt = s.businesses[i].CreatedAt
			s.businesses[i] = b
			return b, nil
		}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now().UTC()
	}
	s.businesses = append(s.businesses, b)
	return b, nil
}

func cloneExpense(e core.Expense) core.Expense {
	if e.MileageRecord != nil {
		rec := *e.MileageRecord
		e.MileageRecord = &rec
	}
	return e
}

func dedupeTypes(in []core.ExpenseType) []core.ExpenseType {
	seen := map[string]struct{}{}
	out := make([]core.ExpenseType, 0, len(in))
	for _, t := range in {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" || t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

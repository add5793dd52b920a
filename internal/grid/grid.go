// Package grid aggregates expenses into the range → type → label → month
// structure consumed by reports.
//
// Label rows are the only place values are added. Type, range and grand totals
// are summed from label rows exactly once, when Build finishes, so a displayed
// type total always equals the sum of its displayed labels.
package grid

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bizledger/internal/core"
	"bizledger/internal/taxonomy"
)

// LabelRow holds the values of one (type, label) pair.
type LabelRow struct {
	LabelID string                     `json:"label_id"`
	Name    string                     `json:"name"`
	Total   decimal.Decimal            `json:"total"`
	Monthly map[string]decimal.Decimal `json:"monthly"`
	Entries map[string][]core.Expense  `json:"entries"`
}

// TypeBlock groups the label rows of one expense type.
type TypeBlock struct {
	TypeID  string                     `json:"type_id"`
	Name    string                     `json:"name"`
	Total   decimal.Decimal            `json:"total"`
	Monthly map[string]decimal.Decimal `json:"monthly"`
	Labels  map[string]*LabelRow       `json:"labels"`
	// LabelOrder lists label names in taxonomy order.
	LabelOrder []string `json:"label_order"`
}

// RangeBlock groups the types resolving to one range.
type RangeBlock struct {
	Range     core.Range                 `json:"range"`
	Total     decimal.Decimal            `json:"total"`
	Monthly   map[string]decimal.Decimal `json:"monthly"`
	Types     map[string]*TypeBlock      `json:"types"`
	TypeOrder []string                   `json:"type_order"`
}

// Grid is the aggregation of one calendar year.
type Grid struct {
	Year     int                        `json:"year"`
	Months   []string                   `json:"months"`
	Total    decimal.Decimal            `json:"total"`
	Ranges   map[core.Range]*RangeBlock `json:"ranges"`
	Warnings []core.IntegrityWarning    `json:"warnings"`
}

// Months returns the twelve "YYYY-MM" keys of year.
func Months(year int) []string {
	out := make([]string, 0, 12)
	for m := time.January; m <= time.December; m++ {
		out = append(out, core.MonthKey(time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)))
	}
	return out
}

func zeroMonths(months []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(months))
	for _, m := range months {
		out[m] = decimal.Zero
	}
	return out
}

// Build aggregates the expenses dated in year. Every (type, label) pair of the
// taxonomy gets a row even without activity; auxiliary types get none.
// Expenses whose type or label is missing from the taxonomy are skipped and
// reported in Grid.Warnings. A nil logger discards warnings.
func Build(expenses []core.Expense, types []core.ExpenseType, labels []core.ExpenseLabel, year int, logger *slog.Logger) *Grid {
	g := &Grid{
		Year:     year,
		Months:   Months(year),
		Total:    decimal.Zero,
		Ranges:   make(map[core.Range]*RangeBlock, 3),
		Warnings: []core.IntegrityWarning{},
	}
	for _, r := range core.Ranges() {
		g.Ranges[r] = &RangeBlock{
			Range:     r,
			Total:     decimal.Zero,
			Monthly:   zeroMonths(g.Months),
			Types:     map[string]*TypeBlock{},
			TypeOrder: []string{},
		}
	}

	for _, t := range types {
		rb, ok := g.Ranges[taxonomy.Of(t)]
		if !ok {
			continue
		}
		tb, ok := rb.Types[t.Name]
		if !ok {
			tb = &TypeBlock{
				TypeID:     t.ID,
				Name:       t.Name,
				Total:      decimal.Zero,
				Monthly:    zeroMonths(g.Months),
				Labels:     map[string]*LabelRow{},
				LabelOrder: []string{},
			}
			rb.Types[t.Name] = tb
			rb.TypeOrder = append(rb.TypeOrder, t.Name)
		}
		for _, l := range taxonomy.LabelsForType(labels, t.ID, "") {
			if _, ok := tb.Labels[l.Name]; ok {
				continue
			}
			tb.Labels[l.Name] = &LabelRow{
				LabelID: l.ID,
				Name:    l.Name,
				Total:   decimal.Zero,
				Monthly: zeroMonths(g.Months),
				Entries: map[string][]core.Expense{},
			}
			tb.LabelOrder = append(tb.LabelOrder, l.Name)
		}
	}

	for _, e := range expenses {
		if e.Date.Year() != year {
			continue
		}
		row, reason := locate(g, e, types, labels)
		if row == nil {
			w := core.IntegrityWarning{ExpenseID: e.ID, TypeID: e.TypeID, LabelID: e.LabelID, Reason: reason}
			g.Warnings = append(g.Warnings, w)
			if logger != nil {
				logger.Warn("skipping expense in grid", "expense_id", e.ID, "type_id", e.TypeID, "label_id", e.LabelID, "reason", reason)
			}
			continue
		}
		key := core.MonthKey(e.Date)
		row.Monthly[key] = row.Monthly[key].Add(e.Value())
		row.Entries[key] = append(row.Entries[key], e)
	}

	g.finalize()
	return g
}

func locate(g *Grid, e core.Expense, types []core.ExpenseType, labels []core.ExpenseLabel) (*LabelRow, string) {
	t, ok := taxonomy.FindType(types, e.TypeID)
	if !ok {
		return nil, "type not in taxonomy"
	}
	l, ok := taxonomy.FindLabel(labels, e.LabelID)
	if !ok {
		return nil, "label not in taxonomy"
	}
	if l.TypeID != t.ID {
		return nil, fmt.Sprintf("label %q belongs to another type", l.Name)
	}
	r := taxonomy.Of(t)
	rb, ok := g.Ranges[r]
	if !ok {
		return nil, fmt.Sprintf("type %q resolves to %s range", t.Name, r)
	}
	tb, ok := rb.Types[t.Name]
	if !ok {
		return nil, fmt.Sprintf("type %q not initialised", t.Name)
	}
	row, ok := tb.Labels[l.Name]
	if !ok {
		return nil, fmt.Sprintf("label %q not initialised", l.Name)
	}
	return row, ""
}

// finalize computes every total bottom-up from the label monthly buckets.
func (g *Grid) finalize() {
	for _, r := range core.Ranges() {
		rb := g.Ranges[r]
		for _, typeName := range rb.TypeOrder {
			tb := rb.Types[typeName]
			for _, labelName := range tb.LabelOrder {
				row := tb.Labels[labelName]
				for _, m := range g.Months {
					row.Total = row.Total.Add(row.Monthly[m])
					tb.Monthly[m] = tb.Monthly[m].Add(row.Monthly[m])
				}
				tb.Total = tb.Total.Add(row.Total)
			}
			for _, m := range g.Months {
				rb.Monthly[m] = rb.Monthly[m].Add(tb.Monthly[m])
			}
			rb.Total = rb.Total.Add(tb.Total)
		}
		g.Total = g.Total.Add(rb.Total)
	}
}

// Row returns the label row for (r, typeName, labelName), or nil.
func (g *Grid) Row(r core.Range, typeName, labelName string) *LabelRow {
	rb, ok := g.Ranges[r]
	if !ok {
		return nil
	}
	tb, ok := rb.Types[typeName]
	if !ok {
		return nil
	}
	return tb.Labels[labelName]
}

// Package report flattens an aggregation grid into rows and writes them to
// spreadsheet formats.
package report

import (
	"github.com/shopspring/decimal"

	"bizledger/internal/core"
	"bizledger/internal/grid"
)

type RowKind int

const (
	RowLabel RowKind = iota
	RowTypeTotal
	RowRangeTotal
	RowGrandTotal
)

// Row is one line of the flattened grid. Monthly follows Grid.Months.
type Row struct {
	Kind    RowKind
	Range   core.Range
	Type    string
	Label   string
	Monthly []decimal.Decimal
	Total   decimal.Decimal
}

// Header returns the column titles matching Row cells.
func Header(g *grid.Grid) []string {
	h := []string{"Range", "Type", "Label"}
	h = append(h, g.Months...)
	return append(h, "Total")
}

// Rows lists label rows grouped by type and range in display order, each
// group followed by its subtotal, ending with the grand total.
func Rows(g *grid.Grid) []Row {
	var out []Row
	for _, r := range core.Ranges() {
		rb, ok := g.Ranges[r]
		if !ok {
			continue
		}
		for _, typeName := range rb.TypeOrder {
			tb := rb.Types[typeName]
			for _, labelName := range tb.LabelOrder {
				lr := tb.Labels[labelName]
				out = append(out, Row{
					Kind: RowLabel, Range: r, Type: typeName, Label: labelName,
					Monthly: monthly(g.Months, lr.Monthly), Total: lr.Total,
				})
			}
			out = append(out, Row{
				Kind: RowTypeTotal, Range: r, Type: typeName,
				Monthly: monthly(g.Months, tb.Monthly), Total: tb.Total,
			})
		}
		out = append(out, Row{
			Kind: RowRangeTotal, Range: r,
			Monthly: monthly(g.Months, rb.Monthly), Total: rb.Total,
		})
	}

	grand := make([]decimal.Decimal, len(g.Months))
	for i, m := range g.Months {
		for _, r := range core.Ranges() {
			if rb, ok := g.Ranges[r]; ok {
				grand[i] = grand[i].Add(rb.Monthly[m])
			}
		}
	}
	return append(out, Row{Kind: RowGrandTotal, Monthly: grand, Total: g.Total})
}

// Cells renders r as spreadsheet cells: text for the first three columns and
// floats for the values.
func (r Row) Cells() []any {
	first, second, third := string(r.Range), r.Type, r.Label
	switch r.Kind {
	case RowTypeTotal:
		third = "Total " + r.Type
	case RowRangeTotal:
		second = "Total " + string(r.Range)
	case RowGrandTotal:
		first = "Grand total"
	}
	cells := []any{first, second, third}
	for _, v := range r.Monthly {
		cells = append(cells, v.InexactFloat64())
	}
	return append(cells, r.Total.InexactFloat64())
}

// Matrix is the header followed by every row's cells.
func Matrix(g *grid.Grid) [][]any {
	header := Header(g)
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	out := [][]any{hdr}
	for _, r := range Rows(g) {
		out = append(out, r.Cells())
	}
	return out
}

func monthly(months []string, values map[string]decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(months))
	for i, m := range months {
		out[i] = values[m]
	}
	return out
}

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	"bizledger/internal/core"
	"bizledger/internal/grid"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleGrid() *grid.Grid {
	types := []core.ExpenseType{
		{ID: "veh", Name: "Vehicle Expenses"},
		{ID: "sup", Name: "Supplies"},
	}
	labels := []core.ExpenseLabel{
		{ID: "fuel", Name: "Fuel", TypeID: "veh", ExpenseMethod: core.ExpenseMethodAmount},
		{ID: "paper", Name: "Paper", TypeID: "sup", ExpenseMethod: core.ExpenseMethodAmount},
	}
	amount := func(id, label, typ string, month int, v string) core.Expense {
		return core.Expense{
			ID: id, TypeID: typ, LabelID: label, Date: core.NewDate(2024, month, 10),
			ExpenseMethod: core.ExpenseMethodAmount, Amount: core.Null(dec(v)),
		}
	}
	expenses := []core.Expense{
		amount("1", "fuel", "veh", 1, "45.67"),
		amount("2", "fuel", "veh", 3, "10"),
		amount("3", "paper", "sup", 1, "20"),
	}
	return grid.Build(expenses, types, labels, 2024, nil)
}

func TestRows(t *testing.T) {
	g := sampleGrid()
	rows := Rows(g)

	kinds := make([]RowKind, len(rows))
	for i, r := range rows {
		kinds[i] = r.Kind
	}
	assert.Equal(t, []RowKind{
		RowLabel, RowTypeTotal, RowRangeTotal, // vehicle
		RowRangeTotal,                         // home office, no types
		RowLabel, RowTypeTotal, RowRangeTotal, // operation expense
		RowGrandTotal,
	}, kinds)

	fuel := rows[0]
	assert.Equal(t, "Fuel", fuel.Label)
	require.Len(t, fuel.Monthly, 12)
	assert.True(t, fuel.Monthly[0].Equal(dec("45.67")))
	assert.True(t, fuel.Monthly[2].Equal(dec("10")))
	assert.True(t, fuel.Total.Equal(dec("55.67")))

	grand := rows[len(rows)-1]
	assert.True(t, grand.Monthly[0].Equal(dec("65.67")))
	assert.True(t, grand.Total.Equal(dec("75.67")))

	sum := decimal.Zero
	for _, m := range grand.Monthly {
		sum = sum.Add(m)
	}
	assert.True(t, sum.Equal(grand.Total))
}

func TestMatrix(t *testing.T) {
	g := sampleGrid()
	m := Matrix(g)
	require.Len(t, m, 9)
	assert.Equal(t, "Range", m[0][0])
	assert.Equal(t, "2024-01", m[0][3])
	assert.Equal(t, "Total", m[0][15])
	assert.Equal(t, "Total Vehicle Expenses", m[2][2])
	assert.Equal(t, "Grand total", m[8][0])
	assert.InDelta(t, 75.67, m[8][15], 1e-9)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleGrid()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"2024 Grid"}, f.GetSheetList())
	rows, err := f.GetRows("2024 Grid")
	require.NoError(t, err)
	require.Len(t, rows, 9)
	assert.Equal(t, []string{"vehicle", "Vehicle Expenses", "Fuel"}, rows[1][:3])

	v, err := f.GetCellValue("2024 Grid", "D2")
	require.NoError(t, err)
	assert.Contains(t, v, "45.67")
}

type fakeSheets struct {
	mu       sync.Mutex
	requests []string
	values   [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if r.Method == http.MethodPut {
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		f.values = vr.Values
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{}`))
}

func TestSheetsPublisher(t *testing.T) {
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	p, err := NewSheetsPublisher(ctx, "sheet-123", "Grid", "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, sampleGrid()))

	require.Len(t, fake.requests, 2)
	assert.True(t, strings.HasPrefix(fake.requests[0], "POST "), fake.requests[0])
	assert.True(t, strings.HasSuffix(fake.requests[0], ":clear"), fake.requests[0])
	assert.Contains(t, fake.requests[0], "sheet-123")
	assert.True(t, strings.HasPrefix(fake.requests[1], "PUT "), fake.requests[1])
	assert.Contains(t, fake.requests[1], "2024 Grid")
	require.Len(t, fake.values, 9)
	assert.Equal(t, "Grand total", fake.values[8][0])

	_, err = NewSheetsPublisher(ctx, "", "Grid", "")
	assert.Error(t, err)
}

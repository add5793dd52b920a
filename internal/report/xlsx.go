package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"bizledger/internal/grid"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

// SheetName is the worksheet name used for year's grid.
func SheetName(year int) string {
	return fmt.Sprintf("%d Grid", year)
}

// WriteXLSX writes g as a single-sheet workbook.
func WriteXLSX(w io.Writer, g *grid.Grid) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(g.Year)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    thinBorder,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	valueStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4, Border: thinBorder})
	if err != nil {
		return fmt.Errorf("value style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		NumFmt: 4,
		Border: thinBorder,
	})
	if err != nil {
		return fmt.Errorf("total style: %w", err)
	}

	matrix := Matrix(g)
	cols := len(matrix[0])
	lastCol, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}
	_ = f.SetColWidth(sheet, "A", "C", 22)

	rows := Rows(g)
	for i, cells := range matrix {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}

		style := valueStyle
		switch {
		case i == 0:
			style = headerStyle
		case rows[i-1].Kind != RowLabel:
			style = totalStyle
		}
		end := fmt.Sprintf("%s%d", lastCol, i+1)
		if err := f.SetCellStyle(sheet, cell, end, style); err != nil {
			return fmt.Errorf("style row %d: %w", i+1, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, XSplit: 3, YSplit: 1, TopLeftCell: "D2", ActivePane: "bottomRight"}); err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}
	return f.Write(w)
}

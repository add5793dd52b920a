package report

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"bizledger/internal/grid"
)

// SheetsPublisher overwrites one tab of a spreadsheet with a year's grid.
// The tab is named "<year> <base>" and must already exist.
type SheetsPublisher struct {
	svc           *sheets.Service
	spreadsheetID string
	baseName      string
}

// NewSheetsPublisher authenticates with credentialsFile, or application
// default credentials when it is empty. Extra options are passed through.
func NewSheetsPublisher(ctx context.Context, spreadsheetID, baseName, credentialsFile string, opts ...option.ClientOption) (*SheetsPublisher, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsPublisher{svc: svc, spreadsheetID: spreadsheetID, baseName: baseName}, nil
}

func (p *SheetsPublisher) sheetName(year int) string {
	return fmt.Sprintf("%d %s", year, p.baseName)
}

// Publish clears the year's tab and writes the grid matrix into it.
func (p *SheetsPublisher) Publish(ctx context.Context, g *grid.Grid) error {
	sheet := p.sheetName(g.Year)
	rng := fmt.Sprintf("'%s'!A1", sheet)

	_, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, fmt.Sprintf("'%s'", sheet), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", sheet, err)
	}

	matrix := Matrix(g)
	_, err = p.svc.Spreadsheets.Values.Update(p.spreadsheetID, rng, &sheets.ValueRange{Values: matrix}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Grid published to spreadsheet",
		"component", "report",
		"sheet", sheet,
		"rows", len(matrix))
	return nil
}

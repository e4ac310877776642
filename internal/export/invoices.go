// Package export renders tabular reports as Excel workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-tutor-backend/internal/domain"
)

// InvoicesSheet is the sheet name of InvoicesXLSX workbooks.
const InvoicesSheet = "Invoices"

var invoiceHeader = []string{"ID", "Student", "Amount", "Status", "Due date", "Created", "Notes"}

// InvoicesXLSX renders invoices as a single-sheet workbook. studentNames maps
// student ids to display names; unknown ids fall back to the id.
func InvoicesXLSX(invoices []domain.Invoice, studentNames map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", InvoicesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for c, h := range invoiceHeader {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellStr(InvoicesSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	for i, in := range invoices {
		row := i + 2
		name := studentNames[in.StudentID]
		if name == "" {
			name = in.StudentID
		}
		due := ""
		if in.DueDate != nil {
			due = in.DueDate.UTC().Format("2006-01-02")
		}
		values := []any{
			in.ID,
			name,
			in.Amount.InexactFloat64(),
			in.Status,
			due,
			in.CreatedAt.UTC().Format("2006-01-02 15:04"),
			in.Notes,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			if err := f.SetCellValue(InvoicesSheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := formatSheet(f, InvoicesSheet, len(invoiceHeader), len(invoices)+1); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// formatSheet bolds the header row, adds an auto-filter, applies a money
// format to the amount column and sizes the columns.
func formatSheet(f *excelize.File, sheet string, cols, rows int) error {
	last, _ := excelize.CoordinatesToCellName(cols, 1)
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last, bold)
	}
	if err := f.AutoFilter(sheet, "A1:"+last, nil); err != nil {
		return fmt.Errorf("auto filter: %w", err)
	}
	if rows > 1 {
		money := "#,##0.00"
		if st, err := f.NewStyle(&excelize.Style{CustomNumFmt: &money}); err == nil {
			_ = f.SetCellStyle(sheet, "C2", fmt.Sprintf("C%d", rows), st)
		}
	}
	widths := []float64{38, 24, 12, 12, 12, 18, 40}
	for c := 1; c <= cols && c <= len(widths); c++ {
		col, _ := excelize.ColumnNumberToName(c)
		_ = f.SetColWidth(sheet, col, col, widths[c-1])
	}
	return nil
}

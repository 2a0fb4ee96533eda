package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/application/port"
)

const sheetName = "Line Items"

// ExcelExporter renders line items to an xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates an exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export writes the workbook for sheet to w. The title goes in A1, the
// header fields below it, then the line table with a totals row.
func (e *ExcelExporter) Export(w io.Writer, sheet port.ExportSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	e.setCell(f, cell(1, 1), sheet.Title)
	e.style(f, cell(1, 1), cell(1, 1), bold)

	row := 2
	for _, kv := range sheet.Header {
		e.setCell(f, cell(1, row), kv[0])
		e.setCell(f, cell(2, row), kv[1])
		row++
	}
	row++

	columns := tableColumns(sheet)
	for i, name := range columns {
		e.setCell(f, cell(i+1, row), name)
	}
	e.style(f, cell(1, row), cell(len(columns), row), bold)
	firstLine := row + 1

	for _, li := range sheet.Lines {
		row++
		values := []any{li.SrNo, li.ItemName, li.UOMName, li.CertificationName,
			number(li.Quantity), number(li.Rate), number(li.Amount)}
		if sheet.SalesColumns {
			values = append(values, nullNumber(li.SalesRate), nullNumber(li.SalesAmount))
		}
		for i, v := range values {
			e.setCell(f, cell(i+1, row), v)
		}
	}

	row++
	e.setCell(f, cell(1, row), "Total")
	e.setCell(f, cell(5, row), number(sheet.Totals.Quantity))
	e.setCell(f, cell(7, row), number(sheet.Totals.Amount))
	if sheet.SalesColumns {
		e.setCell(f, cell(9, row), number(sheet.Totals.SalesAmount))
	}
	e.style(f, cell(1, row), cell(len(columns), row), bold)
	if row > firstLine {
		e.style(f, cell(6, firstLine), cell(7, row-1), money)
	}

	if err := f.SetColWidth(sheetName, "B", "D", 24); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Line items exported",
		zap.String("title", sheet.Title),
		zap.Int("lines", len(sheet.Lines)))
	return nil
}

func tableColumns(sheet port.ExportSheet) []string {
	rateLabel := sheet.RateLabel
	if rateLabel == "" {
		rateLabel = "Rate"
	}
	columns := []string{"Sr No", "Item", "UOM", "Certification", "Quantity", rateLabel, "Amount"}
	if sheet.SalesColumns {
		columns = append(columns, "Sales Rate", "Sales Amount")
	}
	return columns
}

func (e *ExcelExporter) setCell(f *excelize.File, axis string, value any) {
	if err := f.SetCellValue(sheetName, axis, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("cell", axis),
			zap.Error(err))
	}
}

func (e *ExcelExporter) style(f *excelize.File, from, to string, style int) {
	if err := f.SetCellStyle(sheetName, from, to, style); err != nil {
		e.logger.Warn("Failed to set cell style",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err))
	}
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		panic(err)
	}
	return name
}

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func nullNumber(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}

var _ port.LineItemExporter = (*ExcelExporter)(nil)

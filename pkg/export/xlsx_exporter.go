package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	eventsSheet  = "Events"
)

// XLSXExporter renders reports as a workbook with a summary sheet and a flat events sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType implements Renderer.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements Renderer.
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render builds the workbook in memory.
func (e *XLSXExporter) Render(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	idx, err := f.NewSheet(eventsSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 11}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	row := 1
	if report.Title != "" {
		_ = f.SetCellValue(summarySheet, "A1", report.Title)
		_ = f.SetCellStyle(summarySheet, "A1", "A1", bold)
		row++
	}
	if report.Subtitle != "" {
		_ = f.SetCellValue(summarySheet, cell(1, row), report.Subtitle)
		row++
	}
	row++
	for _, field := range report.Summary {
		_ = f.SetCellValue(summarySheet, cell(1, row), field.Label)
		_ = f.SetCellStyle(summarySheet, cell(1, row), cell(1, row), bold)
		_ = f.SetCellValue(summarySheet, cell(2, row), field.Value)
		row++
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)

	data := flatten(report)
	for i, header := range data.Headers {
		_ = f.SetCellValue(eventsSheet, cell(i+1, 1), header)
	}
	if len(data.Headers) > 0 {
		_ = f.SetCellStyle(eventsSheet, cell(1, 1), cell(len(data.Headers), 1), headerStyle)
		last, _ := excelize.ColumnNumberToName(len(data.Headers))
		_ = f.SetColWidth(eventsSheet, "A", last, 22)
	}
	for r, record := range data.Rows {
		for c, header := range data.Headers {
			_ = f.SetCellValue(eventsSheet, cell(c+1, r+2), record[header])
		}
	}
	f.SetActiveSheet(idx)

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

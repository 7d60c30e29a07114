package history

import (
	"fmt"
	"io"
	"sort"

	"jasper_srv/internal/models"

	"github.com/xuri/excelize/v2"
)

// ExportSheet is the sheet written by ExportXLSX.
const ExportSheet = "Generations"

// XLSXMimeType is the content type of ExportXLSX output.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeaders = []string{
	"ID", "Report", "Format", "Status", "Error", "Message",
	"Size (bytes)", "Duration (ms)", "Archive key", "Parameters", "Created at",
}

// ExportXLSX writes generations as a spreadsheet, one row per record.
func ExportXLSX(w io.Writer, generations []models.Generation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(ExportSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(ExportSheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for i, g := range generations {
		row := []interface{}{
			g.UUID, g.Report, g.Format, g.Status, g.ErrorKind, g.Message,
			g.Size, g.DurationMs, g.ArchiveKey, formatParameters(g.Parameters),
			g.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ExportSheet, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(ExportSheet, "B", "K", 20); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func formatParameters(params models.JSON) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var s string
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%v", k, params[k])
	}
	return s
}

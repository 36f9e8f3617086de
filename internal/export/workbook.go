package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet is one sheet: a header row and data rows. Cells keep their Go
// type so amounts land in Excel as numbers.
type Sheet struct {
	Title  string
	Header []string
	Rows   [][]any
}

type Workbook struct {
	File *excelize.File
}

func NewWorkbook(sheets []Sheet) (*Workbook, error) {
	f := excelize.NewFile()
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	for i, s := range sheets {
		name := s.Title
		// первый лист: переименованный стандартный Sheet1
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}

		header := make([]any, len(s.Header))
		for c, h := range s.Header {
			header[c] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return nil, fmt.Errorf("header %s: %w", name, err)
		}
		for r, row := range s.Rows {
			cell := fmt.Sprintf("A%d", r+2)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return nil, fmt.Errorf("set row %s: %w", cell, err)
			}
			for c, v := range row {
				if _, ok := v.(float64); ok {
					ref, err := excelize.CoordinatesToCellName(c+1, r+2)
					if err != nil {
						return nil, err
					}
					if err := f.SetCellStyle(name, ref, ref, money); err != nil {
						return nil, fmt.Errorf("style %s: %w", ref, err)
					}
				}
			}
		}
		if err := formatSheet(f, name, s); err != nil {
			return nil, fmt.Errorf("format %s: %w", name, err)
		}
	}
	return &Workbook{File: f}, nil
}

func (w *Workbook) Write(out io.Writer) error {
	_, err := w.File.WriteTo(out)
	return err
}

func (w *Workbook) SaveAs(path string) error { return w.File.SaveAs(path) }

func (w *Workbook) Close() error { return w.File.Close() }

package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "Productos"

var sampleRow = []string{"CAM-001", "Camisa Roja", "199.00", "150.00", "Camisa de algodón manga corta", "Ropa"}

var columnHelp = map[string]string{
	ColSKU:            "Código único del producto",
	ColName:           "Nombre visible en el catálogo",
	ColPrice:          "Precio al público, ej. 199.00",
	ColWholesalePrice: "Precio de mayoreo (opcional)",
	ColDescription:    "Descripción (opcional)",
	ColCategory:       "Categoría (opcional)",
}

// Template returns an empty sheet with the expected headers and a sample row.
func Template(format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write(Columns)
		_ = w.Write(sampleRow)
		w.Flush()
		return buf.Bytes(), w.Error()
	case FormatXLSX:
		return xlsxTemplate()
	default:
		return nil, fmt.Errorf("unsupported sheet format %q", format)
	}
}

func xlsxTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	required := map[string]bool{}
	for _, c := range requiredColumns {
		required[c] = true
	}

	for i, col := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(templateSheet, cell, col)
		style := headerStyle
		if required[col] {
			style = requiredStyle
		}
		f.SetCellStyle(templateSheet, cell, cell, style)

		sample, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(templateSheet, sample, sampleRow[i])

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(templateSheet, colName, colName, 22)
	}

	f.NewSheet("Instrucciones")
	f.SetCellValue("Instrucciones", "A1", "Columna")
	f.SetCellValue("Instrucciones", "B1", "Descripción")
	for i, col := range Columns {
		f.SetCellValue("Instrucciones", fmt.Sprintf("A%d", i+2), col)
		f.SetCellValue("Instrucciones", fmt.Sprintf("B%d", i+2), columnHelp[col])
	}
	f.SetColWidth("Instrucciones", "B", "B", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Package sheet parses merchant product sheets (CSV or XLSX) into product
// rows. Column names are the Spanish ones merchants fill in.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	apperrors "github.com/carloz138/catalogo-magico-mx-sub005/common/errors"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
)

const (
	ColSKU            = "sku"
	ColName           = "nombre"
	ColPrice          = "precio"
	ColWholesalePrice = "precio_mayoreo"
	ColDescription    = "descripcion"
	ColCategory       = "categoria"
)

var (
	requiredColumns = []string{ColSKU, ColName, ColPrice}
	// Columns lists every recognised column in template order.
	Columns = []string{ColSKU, ColName, ColPrice, ColWholesalePrice, ColDescription, ColCategory}
)

// Format is the container format of a sheet.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported sheet type %q: use .csv or .xlsx", filepath.Ext(name))
	}
}

var validate = validator.New()

// Parse reads every row of the sheet. Any malformed row rejects the whole
// sheet with a *errors.ValidationError listing each problem.
func Parse(r io.Reader, format Format) ([]models.ProductRow, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported sheet format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return parseRecords(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &apperrors.ValidationError{Rows: []apperrors.RowError{{Row: parseErr.Line, Message: "malformed CSV: " + parseErr.Err.Error()}}}
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &apperrors.ValidationError{Rows: []apperrors.RowError{{Message: "failed to open Excel file: " + err.Error()}}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &apperrors.ValidationError{Rows: []apperrors.RowError{{Message: "no sheets found in Excel file"}}}
	}
	name := sheets[0]
	for _, s := range sheets {
		if strings.EqualFold(s, templateSheet) {
			name = s
			break
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	return rows, nil
}

func parseRecords(records [][]string) ([]models.ProductRow, error) {
	if len(records) == 0 {
		return nil, &apperrors.ValidationError{Rows: []apperrors.RowError{{Message: "sheet must include a header row"}}}
	}

	index := headerIndex(records[0])
	verr := &apperrors.ValidationError{}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			verr.Add(apperrors.RowError{Row: 1, Field: col, Message: fmt.Sprintf("missing required column %q", col)})
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	rows := make([]models.ProductRow, 0, len(records)-1)
	firstSeen := map[string]int{}
	for i, rec := range records[1:] {
		rowNum := i + 2
		if blank(rec) {
			continue
		}
		get := func(col string) string {
			if idx, ok := index[col]; ok && idx < len(rec) {
				return strings.TrimSpace(rec[idx])
			}
			return ""
		}

		row, rowErrs := buildRow(rowNum, get)
		if prev, dup := firstSeen[row.SKU]; dup && row.SKU != "" {
			rowErrs = append(rowErrs, apperrors.RowError{Row: rowNum, Field: ColSKU, Message: fmt.Sprintf("duplicate SKU %q (also in row %d)", row.SKU, prev)})
		} else if row.SKU != "" {
			firstSeen[row.SKU] = rowNum
		}

		if len(rowErrs) > 0 {
			verr.Rows = append(verr.Rows, rowErrs...)
			continue
		}
		rows = append(rows, row)
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &apperrors.ValidationError{Rows: []apperrors.RowError{{Message: "sheet has no product rows"}}}
	}
	return rows, nil
}

func buildRow(rowNum int, get func(string) string) (models.ProductRow, []apperrors.RowError) {
	var errs []apperrors.RowError
	row := models.ProductRow{
		Row:         rowNum,
		SKU:         get(ColSKU),
		Name:        get(ColName),
		Description: get(ColDescription),
		Category:    get(ColCategory),
	}

	if raw := get(ColPrice); raw != "" {
		cents, err := ParsePrice(raw)
		if err != nil {
			errs = append(errs, apperrors.RowError{Row: rowNum, Field: ColPrice, Message: err.Error()})
		}
		row.PriceCents = cents
	} else {
		errs = append(errs, apperrors.RowError{Row: rowNum, Field: ColPrice, Message: "precio is required"})
	}

	if raw := get(ColWholesalePrice); raw != "" {
		cents, err := ParsePrice(raw)
		if err != nil {
			errs = append(errs, apperrors.RowError{Row: rowNum, Field: ColWholesalePrice, Message: err.Error()})
		} else {
			row.WholesalePriceCents = &cents
		}
	}

	if err := validate.Struct(row); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, apperrors.RowError{Row: rowNum, Field: columnFor(fe.Field()), Message: describe(fe)})
			}
		} else {
			errs = append(errs, apperrors.RowError{Row: rowNum, Message: err.Error()})
		}
	}
	return row, errs
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(h)), "*")
		h = strings.Join(strings.Fields(strings.ReplaceAll(h, "-", " ")), "_")
		if _, exists := index[h]; !exists {
			index[h] = i
		}
	}
	return index
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func columnFor(field string) string {
	switch field {
	case "SKU":
		return ColSKU
	case "Name":
		return ColName
	case "PriceCents":
		return ColPrice
	case "WholesalePriceCents":
		return ColWholesalePrice
	case "Description":
		return ColDescription
	case "Category":
		return ColCategory
	default:
		return strings.ToLower(field)
	}
}

func describe(fe validator.FieldError) string {
	col := columnFor(fe.Field())
	switch fe.Tag() {
	case "required":
		return col + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", col, fe.Param())
	case "gte":
		return col + " must not be negative"
	default:
		return fmt.Sprintf("%s failed %s validation", col, fe.Tag())
	}
}

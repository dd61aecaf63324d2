package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoicebot/internal/logger"
	"invoicebot/pkg/models"
)

// Required header names, matched exactly unless lenient matching is enabled.
const (
	colInvoiceNumber = "Invoice Number"
	colSupplierName  = "Supplier Name"
	colInvoiceAmount = "Invoice Amount"
	colDueDate       = "Due Date"
	colPaymentTerms  = "Payment Terms"

	// Optional column; invoices without it carry a zero discount.
	colDiscount = "Discount"
)

var requiredColumns = []string{
	colInvoiceNumber,
	colSupplierName,
	colInvoiceAmount,
	colDueDate,
	colPaymentTerms,
}

// ParseOptions controls header matching and row-failure policy.
type ParseOptions struct {
	// LenientHeaders enables whitespace-trimmed, case-insensitive header
	// matching. Default is exact matching.
	LenientHeaders bool

	// SkipBadRows drops rows that fail to parse instead of aborting the
	// whole batch on the first failure.
	SkipBadRows bool
}

// ParseCSV reads a header-row delimited table into invoice records, in file
// row order. An empty file or a header-only file yields an empty batch, not
// an error.
func ParseCSV(r io.Reader, opts ParseOptions) ([]models.Invoice, error) {
	const op = "ParseCSV"
	log := logger.WithComponent("ingest")

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []models.Invoice{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header row: %w", op, err)
	}

	columns, err := mapColumns(header, opts.LenientHeaders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	invoices := make([]models.Invoice, 0)
	rowNum := 1 // header row
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read row %d: %w", op, rowNum, err)
		}

		invoice, rowErr := parseRow(row, columns, rowNum)
		if rowErr != nil {
			if opts.SkipBadRows {
				log.Warn().
					Err(rowErr).
					Int("row", rowNum).
					Msg("Skipping unparsable invoice row")
				continue
			}
			return nil, rowErr
		}

		invoices = append(invoices, invoice)
	}

	log.Info().
		Int("rows", rowNum-1).
		Int("parsed_invoices", len(invoices)).
		Msg("Invoice file parsed")

	return invoices, nil
}

// columnMap holds the header index of each recognized column. The discount
// index is -1 when the column is absent.
type columnMap struct {
	id       int
	supplier int
	amount   int
	dueDate  int
	terms    int
	discount int
}

func mapColumns(header []string, lenient bool) (columnMap, error) {
	matches := func(got, want string) bool {
		if lenient {
			return strings.EqualFold(strings.TrimSpace(got), want)
		}
		return got == want
	}

	find := func(want string) int {
		for i, got := range header {
			if matches(got, want) {
				return i
			}
		}
		return -1
	}

	columns := columnMap{
		id:       find(colInvoiceNumber),
		supplier: find(colSupplierName),
		amount:   find(colInvoiceAmount),
		dueDate:  find(colDueDate),
		terms:    find(colPaymentTerms),
		discount: find(colDiscount),
	}

	for _, want := range requiredColumns {
		if find(want) == -1 {
			return columnMap{}, fmt.Errorf("%w: %q", ErrMissingColumn, want)
		}
	}

	return columns, nil
}

func parseRow(row []string, columns columnMap, rowNum int) (models.Invoice, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	id := field(columns.id)
	if id == "" {
		return models.Invoice{}, &RowError{Row: rowNum, Column: colInvoiceNumber, Err: errors.New("empty value")}
	}

	amount, err := decimal.NewFromString(field(columns.amount))
	if err != nil {
		return models.Invoice{}, &RowError{Row: rowNum, Column: colInvoiceAmount, Err: err}
	}
	if amount.IsNegative() {
		return models.Invoice{}, &RowError{Row: rowNum, Column: colInvoiceAmount, Err: errors.New("amount must be non-negative")}
	}

	dueDate, err := time.ParseInLocation(models.DateLayout, field(columns.dueDate), time.UTC)
	if err != nil {
		return models.Invoice{}, &RowError{Row: rowNum, Column: colDueDate, Err: err}
	}

	var discount float64
	if columns.discount >= 0 {
		raw := field(columns.discount)
		if raw != "" {
			discount, err = strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
			if err != nil {
				return models.Invoice{}, &RowError{Row: rowNum, Column: colDiscount, Err: err}
			}
			if discount < 0 || discount > 100 {
				return models.Invoice{}, &RowError{Row: rowNum, Column: colDiscount, Err: errors.New("discount must be between 0 and 100")}
			}
		}
	}

	return models.Invoice{
		ID:           id,
		Supplier:     field(columns.supplier),
		DueDate:      dueDate,
		Amount:       amount,
		Discount:     discount,
		PaymentTerms: field(columns.terms),
		Status:       models.StatusUnpaid,
	}, nil
}

package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/flowbit/invoiceql/internal/query"
)

type invoiceRecord struct {
	ID             int64    `parquet:"id"`
	InvoiceID      *string  `parquet:"invoice_id,optional"`
	InvoiceDate    *string  `parquet:"invoice_date,optional"`
	DeliveryDate   *string  `parquet:"delivery_date,optional"`
	SubTotal       *float64 `parquet:"sub_total,optional"`
	TotalTax       *float64 `parquet:"total_tax,optional"`
	InvoiceTotal   *float64 `parquet:"invoice_total,optional"`
	CurrencySymbol *string  `parquet:"currency_symbol,optional"`
	VendorName     *string  `parquet:"vendor_name,optional"`
	VendorTaxID    *string  `parquet:"vendor_tax_id,optional"`
	CustomerName   *string  `parquet:"customer_name,optional"`
}

// encodeInvoices writes listing rows as a single parquet file.
func encodeInvoices(rows []query.Row) ([]byte, error) {
	records := make([]invoiceRecord, 0, len(rows))
	for i, row := range rows {
		id, ok := int64Value(row["id"])
		if !ok {
			return nil, fmt.Errorf("row %d: invalid id %v", i, row["id"])
		}
		records = append(records, invoiceRecord{
			ID:             id,
			InvoiceID:      stringValue(row["invoice_id"]),
			InvoiceDate:    stringValue(row["invoice_date"]),
			DeliveryDate:   stringValue(row["delivery_date"]),
			SubTotal:       floatValue(row["sub_total"]),
			TotalTax:       floatValue(row["total_tax"]),
			InvoiceTotal:   floatValue(row["invoice_total"]),
			CurrencySymbol: stringValue(row["currency_symbol"]),
			VendorName:     stringValue(row["vendor_name"]),
			VendorTaxID:    stringValue(row["vendor_tax_id"]),
			CustomerName:   stringValue(row["customer_name"]),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[invoiceRecord](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func int64Value(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case int:
		return int64(typed), true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}

func stringValue(value any) *string {
	var out string
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		out = typed
	case fmt.Stringer:
		out = typed.String()
	default:
		out = fmt.Sprint(typed)
	}
	return &out
}

func floatValue(value any) *float64 {
	var out float64
	switch typed := value.(type) {
	case float64:
		out = typed
	case float32:
		out = float64(typed)
	case int64:
		out = float64(typed)
	case int32:
		out = float64(typed)
	case int:
		out = float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return nil
		}
		out = parsed
	default:
		return nil
	}
	return &out
}

// Package seed loads extracted-invoice datasets into the invoicing schema.
//
// Dataset fields are either plain scalars or objects of the form
// {"value": ...} as produced by the document extraction pipeline. Both
// shapes are accepted everywhere.
package seed

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Vendor struct {
	Name    *string
	TaxID   *string
	Address *string
}

type Customer struct {
	Name    *string
	Address *string
}

type Invoice struct {
	InvoiceID    *string
	InvoiceDate  *string
	DeliveryDate *string
	SubTotal     *float64
	TotalTax     *float64
	InvoiceTotal *float64
	Currency     *string
}

type Payment struct {
	DueDate           *string
	PaymentTerms      *string
	BankAccountNumber *string
}

type LineItem struct {
	Description *string
	Quantity    *float64
	UnitPrice   *float64
	TotalPrice  *float64
	VATRate     *float64
	VATAmount   *float64
}

// Document is one extracted invoice ready for insertion. Payment is nil when
// the source carried no payment block.
type Document struct {
	Vendor    Vendor
	Customer  Customer
	Invoice   Invoice
	Payment   *Payment
	LineItems []LineItem
}

// Decode reads a JSON array of extraction records. Records without
// extractedData.llmData are skipped and counted.
func Decode(r io.Reader) ([]Document, int, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, 0, fmt.Errorf("decode dataset: %w", err)
	}

	docs := make([]Document, 0, len(records))
	skipped := 0
	for _, record := range records {
		llm, ok := lookupMap(record, "extractedData", "llmData")
		if !ok || len(llm) == 0 {
			skipped++
			continue
		}
		docs = append(docs, documentFromLLM(llm))
	}
	return docs, skipped, nil
}

func documentFromLLM(llm map[string]any) Document {
	vendor := unwrap(llm["vendor"])
	customer := unwrap(llm["customer"])
	invoice := unwrap(llm["invoice"])
	payment := unwrap(llm["payment"])
	summary := unwrap(llm["summary"])

	doc := Document{
		Vendor: Vendor{
			Name:    text(field(vendor, "vendorName")),
			TaxID:   text(field(vendor, "vendorTaxId")),
			Address: text(field(vendor, "vendorAddress")),
		},
		Customer: Customer{
			Name:    text(field(customer, "customerName")),
			Address: text(field(customer, "customerAddress")),
		},
		Invoice: Invoice{
			InvoiceID:    text(field(invoice, "invoiceId")),
			InvoiceDate:  NormalizeDate(field(invoice, "invoiceDate")),
			DeliveryDate: NormalizeDate(field(invoice, "deliveryDate")),
			SubTotal:     number(field(summary, "subTotal")),
			TotalTax:     number(field(summary, "totalTax")),
			InvoiceTotal: number(field(summary, "invoiceTotal")),
			Currency:     text(currency(summary)),
		},
	}

	if present(payment) {
		doc.Payment = &Payment{
			DueDate:           text(field(payment, "dueDate")),
			PaymentTerms:      text(field(payment, "paymentTerms")),
			BankAccountNumber: text(field(payment, "bankAccountNumber")),
		}
	}

	items, _ := lookupList(llm, "lineItems", "value", "items", "value")
	for _, raw := range items {
		doc.LineItems = append(doc.LineItems, LineItem{
			Description: text(field(raw, "description")),
			Quantity:    number(field(raw, "quantity")),
			UnitPrice:   number(field(raw, "unitPrice")),
			TotalPrice:  number(field(raw, "totalPrice")),
			VATRate:     number(field(raw, "vatRate")),
			VATAmount:   number(field(raw, "vatAmount")),
		})
	}
	return doc
}

var (
	yearOnly  = regexp.MustCompile(`^\d{4}$`)
	yearMonth = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// NormalizeDate widens YYYY and YYYY-MM to the first day of the period.
// Full YYYY-MM-DD dates pass through; anything else yields nil.
func NormalizeDate(value any) *string {
	raw, ok := value.(string)
	if !ok || raw == "" {
		return nil
	}
	var out string
	switch {
	case yearOnly.MatchString(raw):
		out = raw + "-01-01"
	case yearMonth.MatchString(raw):
		out = raw + "-01"
	default:
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return nil
		}
		out = raw
	}
	return &out
}

// unwrap returns the payload of a {"value": ...} wrapper. Other values,
// including objects without a "value" key, are returned unchanged.
func unwrap(value any) any {
	if m, ok := value.(map[string]any); ok {
		if inner, wrapped := m["value"]; wrapped {
			return inner
		}
	}
	return value
}

// field returns obj[key] unwrapped when obj is an object; nested objects that
// are not value wrappers and arrays resolve to nil.
func field(obj any, key string) any {
	m, ok := obj.(map[string]any)
	if !ok {
		return nil
	}
	return scalarOrNil(unwrap(m[key]))
}

func scalarOrNil(value any) any {
	switch value.(type) {
	case string, json.Number, bool:
		return value
	default:
		return nil
	}
}

func currency(summary any) any {
	if m, ok := summary.(map[string]any); ok {
		return scalarOrNil(unwrap(m["currencySymbol"]))
	}
	return scalarOrNil(summary)
}

func text(value any) *string {
	var out string
	switch typed := value.(type) {
	case string:
		out = typed
	case json.Number:
		out = typed.String()
	case bool:
		out = strconv.FormatBool(typed)
	default:
		return nil
	}
	return &out
}

// number accepts JSON numbers and numeric strings. Other values become nil so
// a malformed amount never aborts the whole dataset.
func number(value any) *float64 {
	var raw string
	switch typed := value.(type) {
	case json.Number:
		raw = typed.String()
	case string:
		raw = strings.TrimSpace(typed)
	default:
		return nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func present(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case map[string]any:
		return len(typed) > 0
	case []any:
		return len(typed) > 0
	case string:
		return typed != ""
	default:
		return true
	}
}

func lookupMap(root map[string]any, path ...string) (map[string]any, bool) {
	current := root
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func lookupList(root map[string]any, path ...string) ([]any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	parent, ok := lookupMap(root, path[:len(path)-1]...)
	if !ok {
		return nil, false
	}
	list, ok := parent[path[len(path)-1]].([]any)
	return list, ok
}

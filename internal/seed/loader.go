package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flowbit/invoiceql/internal/observability"
	"github.com/flowbit/invoiceql/internal/storage"
)

const (
	insertVendorSQL   = `INSERT INTO vendors (vendor_name, vendor_tax_id, vendor_address) VALUES ($1, $2, $3) RETURNING id`
	insertCustomerSQL = `INSERT INTO customers (customer_name, customer_address) VALUES ($1, $2) RETURNING id`
	insertInvoiceSQL  = `INSERT INTO invoices (invoice_id, invoice_date, delivery_date, vendor_id, customer_id, sub_total, total_tax, invoice_total, currency_symbol)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	insertPaymentSQL  = `INSERT INTO payments (invoice_id, due_date, payment_terms, bank_account_number) VALUES ($1, $2, $3, $4)`
	insertLineItemSQL = `INSERT INTO line_items (invoice_id, description, quantity, unit_price, total_price, vat_rate, vat_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type Result struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Loader writes documents into the invoicing schema. The whole dataset is
// committed in a single transaction, so a failure leaves the tables unchanged.
type Loader struct {
	DB     *sql.DB
	Logger *slog.Logger
}

func NewLoader(db *sql.DB, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{DB: db, Logger: logger}
}

// Run decodes a dataset and loads every usable document.
func (l *Loader) Run(ctx context.Context, r io.Reader) (Result, error) {
	docs, skipped, err := Decode(r)
	if err != nil {
		return Result{}, err
	}
	inserted, err := l.Load(ctx, docs)
	if err != nil {
		return Result{}, err
	}
	result := Result{Inserted: inserted, Skipped: skipped}
	observability.ObserveSeed(result.Inserted, result.Skipped)
	l.Logger.InfoContext(ctx, "seed completed", "inserted", result.Inserted, "skipped", result.Skipped)
	return result, nil
}

func (l *Loader) Load(ctx context.Context, docs []Document) (int, error) {
	if l.DB == nil {
		return 0, errors.New("database is required")
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, doc := range docs {
		if err := insertDocument(ctx, tx, doc); err != nil {
			return 0, fmt.Errorf("insert document %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return len(docs), nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc Document) error {
	var vendorID int64
	if err := tx.QueryRowContext(ctx, insertVendorSQL,
		nullable(doc.Vendor.Name), nullable(doc.Vendor.TaxID), nullable(doc.Vendor.Address),
	).Scan(&vendorID); err != nil {
		return fmt.Errorf("vendor: %w", err)
	}

	var customerID int64
	if err := tx.QueryRowContext(ctx, insertCustomerSQL,
		nullable(doc.Customer.Name), nullable(doc.Customer.Address),
	).Scan(&customerID); err != nil {
		return fmt.Errorf("customer: %w", err)
	}

	inv := doc.Invoice
	var invoiceID int64
	if err := tx.QueryRowContext(ctx, insertInvoiceSQL,
		nullable(inv.InvoiceID), nullable(inv.InvoiceDate), nullable(inv.DeliveryDate),
		vendorID, customerID,
		nullable(inv.SubTotal), nullable(inv.TotalTax), nullable(inv.InvoiceTotal),
		nullable(inv.Currency),
	).Scan(&invoiceID); err != nil {
		return fmt.Errorf("invoice: %w", err)
	}

	if p := doc.Payment; p != nil {
		if _, err := tx.ExecContext(ctx, insertPaymentSQL,
			invoiceID, nullable(p.DueDate), nullable(p.PaymentTerms), nullable(p.BankAccountNumber),
		); err != nil {
			return fmt.Errorf("payment: %w", err)
		}
	}

	for _, item := range doc.LineItems {
		if _, err := tx.ExecContext(ctx, insertLineItemSQL,
			invoiceID, nullable(item.Description),
			nullable(item.Quantity), nullable(item.UnitPrice), nullable(item.TotalPrice),
			nullable(item.VATRate), nullable(item.VATAmount),
		); err != nil {
			return fmt.Errorf("line item: %w", err)
		}
	}
	return nil
}

func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

// Source names where a dataset lives: a local file or an object-store key.
// Exactly one must be set.
type Source struct {
	File      string
	ObjectKey string
}

func Open(ctx context.Context, src Source, store storage.ObjectStore) (io.ReadCloser, error) {
	file := strings.TrimSpace(src.File)
	key := strings.TrimSpace(src.ObjectKey)
	switch {
	case file != "" && key != "":
		return nil, errors.New("set either a file or an object key, not both")
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		return f, nil
	case key != "":
		if store == nil {
			return nil, errors.New("object store is not configured")
		}
		reader, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetch dataset %q: %w", key, err)
		}
		return reader, nil
	default:
		return nil, errors.New("dataset source is required")
	}
}

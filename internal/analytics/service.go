// Package analytics holds the fixed dashboard aggregations. Every statement
// is a constant; no caller input reaches the SQL text.
package analytics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/flowbit/invoiceql/internal/query"
)

const (
	invoiceTotalsStatement = `SELECT COUNT(*) AS total_invoices,
	COALESCE(SUM(invoice_total), 0) AS total_spend,
	AVG(invoice_total) AS average_invoice_value,
	MIN(invoice_date) AS first_invoice_date,
	MAX(invoice_date) AS last_invoice_date
FROM invoices`

	vendorCountStatement   = `SELECT COUNT(*) AS total_vendors FROM vendors`
	customerCountStatement = `SELECT COUNT(*) AS total_customers FROM customers`

	lineItemTotalsStatement = `SELECT COUNT(*) AS total_line_items,
	COALESCE(SUM(total_price), 0) AS line_item_value
FROM line_items`

	invoiceTrendsStatement = `SELECT CAST(date_trunc('month', invoice_date) AS DATE) AS month,
	COUNT(*) AS invoice_count,
	COALESCE(SUM(invoice_total), 0) AS total_spend
FROM invoices
WHERE invoice_date IS NOT NULL
GROUP BY CAST(date_trunc('month', invoice_date) AS DATE)
ORDER BY month`

	topVendorsStatement = `SELECT v.vendor_name,
	COUNT(i.id) AS invoice_count,
	COALESCE(SUM(i.invoice_total), 0) AS total_spend
FROM vendors v
JOIN invoices i ON i.vendor_id = v.id
GROUP BY v.vendor_name
ORDER BY total_spend DESC, v.vendor_name
LIMIT 10`

	topCustomersStatement = `SELECT c.customer_name,
	COUNT(i.id) AS invoice_count,
	COALESCE(SUM(i.invoice_total), 0) AS total_spend
FROM customers c
JOIN invoices i ON i.customer_id = c.id
GROUP BY c.customer_name
ORDER BY total_spend DESC, c.customer_name
LIMIT 10`

	currencySpendStatement = `SELECT COALESCE(currency_symbol, 'unknown') AS currency,
	COUNT(*) AS invoice_count,
	COALESCE(SUM(invoice_total), 0) AS total_spend
FROM invoices
GROUP BY COALESCE(currency_symbol, 'unknown')
ORDER BY total_spend DESC, currency`
)

type Service struct {
	Executor query.Executor
}

func NewService(executor query.Executor) *Service {
	return &Service{Executor: executor}
}

// Stats runs the headline aggregates concurrently and merges them into one
// row. The first failure cancels the rest.
func (s *Service) Stats(ctx context.Context) (query.Row, error) {
	statements := []string{
		invoiceTotalsStatement,
		vendorCountStatement,
		customerCountStatement,
		lineItemTotalsStatement,
	}
	parts := make([]query.Row, len(statements))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, statement := range statements {
		group.Go(func() error {
			row, err := s.Executor.ExecuteAggregate(groupCtx, statement)
			if err != nil {
				return err
			}
			parts[i] = row
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}

	merged := query.Row{}
	for _, part := range parts {
		for key, value := range part {
			merged[key] = value
		}
	}
	return merged, nil
}

func (s *Service) InvoiceTrends(ctx context.Context) ([]query.Row, error) {
	return s.list(ctx, "invoice trends", invoiceTrendsStatement)
}

func (s *Service) TopVendors(ctx context.Context) ([]query.Row, error) {
	return s.list(ctx, "top vendors", topVendorsStatement)
}

func (s *Service) TopCustomers(ctx context.Context) ([]query.Row, error) {
	return s.list(ctx, "top customers", topCustomersStatement)
}

func (s *Service) CurrencySpend(ctx context.Context) ([]query.Row, error) {
	return s.list(ctx, "currency spend", currencySpendStatement)
}

func (s *Service) list(ctx context.Context, name, statement string) ([]query.Row, error) {
	rows, err := s.Executor.Execute(ctx, query.BoundQuery{Statement: statement})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

package nl2sql

import (
	"fmt"
	"strings"
)

// invoicingSchema describes the tables the model may query.
const invoicingSchema = `vendors(id SERIAL PRIMARY KEY, vendor_name TEXT, vendor_tax_id TEXT, vendor_address TEXT)
customers(id SERIAL PRIMARY KEY, customer_name TEXT, customer_address TEXT)
invoices(id SERIAL PRIMARY KEY, invoice_id TEXT, invoice_date DATE, delivery_date DATE,
  vendor_id INT REFERENCES vendors(id), customer_id INT REFERENCES customers(id),
  sub_total NUMERIC, total_tax NUMERIC, invoice_total NUMERIC, currency_symbol TEXT)
payments(id SERIAL PRIMARY KEY, invoice_id INT REFERENCES invoices(id), due_date TEXT,
  payment_terms TEXT, bank_account_number TEXT)
line_items(id SERIAL PRIMARY KEY, invoice_id INT REFERENCES invoices(id), description TEXT,
  quantity NUMERIC, unit_price NUMERIC, total_price NUMERIC, vat_rate NUMERIC, vat_amount NUMERIC)`

const systemPrompt = "You convert natural language questions about an invoicing database into a single PostgreSQL SELECT query. " +
	"Only read data; never modify it. " +
	"Return ONLY SQL. No markdown, no explanation."

func buildUserPrompt(req Request) string {
	return fmt.Sprintf(
		"Schema:\n%s\n\nQuestion:\n%s\n\nRules:\n- Use only the listed tables and columns.\n- Join invoices to vendors and customers through vendor_id and customer_id.\n- Add LIMIT 200 unless the question asks for an aggregate or another limit.\n- Output a single SQL query only.",
		invoicingSchema,
		strings.TrimSpace(req.Question),
	)
}

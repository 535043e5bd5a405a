package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/flowbit/invoiceql/internal/query"
)

var (
	ErrInvalidLimit        = errors.New("limit must be a positive integer")
	ErrPlaceholderMismatch = errors.New("placeholders do not match bound arguments")
)

// Criteria holds the optional listing filters. A zero field means the
// filter is absent, not that the column must be null.
//
// Vendor and Search are case-insensitive substring matches. Their values are
// taken literally: %, _ and \ are escaped, so "100%" only matches names that
// contain "100%".
type Criteria struct {
	Vendor   string
	Currency string
	DateFrom *time.Time
	DateTo   *time.Time
	MinTotal *float64
	MaxTotal *float64
	Search   string
}

const baseStatement = `SELECT i.id, i.invoice_id, i.invoice_date, i.delivery_date, i.sub_total, i.total_tax, i.invoice_total, i.currency_symbol, v.vendor_name, v.vendor_tax_id, c.customer_name
FROM invoices i
LEFT JOIN vendors v ON v.id = i.vendor_id
LEFT JOIN customers c ON c.id = i.customer_id`

const orderClause = "ORDER BY i.invoice_date DESC NULLS LAST, i.id DESC"

var placeholderPattern = regexp.MustCompile(`\$([0-9]+)`)

const likeEscape = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Binder appends arguments and hands back their positional placeholder.
type Binder struct {
	args []any
}

func (b *Binder) Bind(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *Binder) Args() []any {
	return b.args
}

// Predicate renders one WHERE condition when its filter is present.
type Predicate struct {
	Name   string
	Render func(c Criteria, b *Binder) (string, bool)
}

// Predicates is the canonical order in which present filters are appended.
var Predicates = []Predicate{
	{Name: "vendor", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.Vendor == "" {
			return "", false
		}
		return "v.vendor_name ILIKE " + b.Bind(contains(c.Vendor)) + likeEscape, true
	}},
	{Name: "currency", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.Currency == "" {
			return "", false
		}
		return "i.currency_symbol = " + b.Bind(c.Currency), true
	}},
	{Name: "date_from", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.DateFrom == nil {
			return "", false
		}
		return "i.invoice_date >= " + b.Bind(*c.DateFrom), true
	}},
	{Name: "date_to", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.DateTo == nil {
			return "", false
		}
		return "i.invoice_date <= " + b.Bind(*c.DateTo), true
	}},
	{Name: "min_total", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.MinTotal == nil {
			return "", false
		}
		return "i.invoice_total >= " + b.Bind(*c.MinTotal), true
	}},
	{Name: "max_total", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.MaxTotal == nil {
			return "", false
		}
		return "i.invoice_total <= " + b.Bind(*c.MaxTotal), true
	}},
	{Name: "search", Render: func(c Criteria, b *Binder) (string, bool) {
		if c.Search == "" {
			return "", false
		}
		pattern := contains(c.Search)
		return "(i.invoice_id ILIKE " + b.Bind(pattern) + likeEscape +
			" OR c.customer_name ILIKE " + b.Bind(pattern) + likeEscape + ")", true
	}},
}

// Build assembles the listing statement. Values are only ever bound, never
// written into the statement text, and limit is always the last argument.
func Build(c Criteria, limit int) (query.BoundQuery, error) {
	if limit < 1 {
		return query.BoundQuery{}, ErrInvalidLimit
	}

	binder := &Binder{}
	conditions := make([]string, 0, len(Predicates))
	for _, predicate := range Predicates {
		if clause, ok := predicate.Render(c, binder); ok {
			conditions = append(conditions, clause)
		}
	}

	var statement strings.Builder
	statement.WriteString(baseStatement)
	if len(conditions) > 0 {
		statement.WriteString("\nWHERE ")
		statement.WriteString(strings.Join(conditions, " AND "))
	}
	statement.WriteString("\n")
	statement.WriteString(orderClause)
	statement.WriteString(" LIMIT ")
	statement.WriteString(binder.Bind(limit))

	bound := query.BoundQuery{Statement: statement.String(), Args: binder.Args()}
	if err := CheckPlaceholders(bound); err != nil {
		return query.BoundQuery{}, err
	}
	return bound, nil
}

// CheckPlaceholders verifies that the statement references exactly $1..$n
// for n bound arguments.
func CheckPlaceholders(q query.BoundQuery) error {
	seen := map[int]struct{}{}
	for _, match := range placeholderPattern.FindAllStringSubmatch(q.Statement, -1) {
		position, err := strconv.Atoi(match[1])
		if err != nil {
			return fmt.Errorf("%w: %q", ErrPlaceholderMismatch, match[0])
		}
		if position < 1 || position > len(q.Args) {
			return fmt.Errorf("%w: %s with %d arguments", ErrPlaceholderMismatch, match[0], len(q.Args))
		}
		seen[position] = struct{}{}
	}
	if len(seen) != len(q.Args) {
		return fmt.Errorf("%w: %d placeholders for %d arguments", ErrPlaceholderMismatch, len(seen), len(q.Args))
	}
	return nil
}

func contains(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

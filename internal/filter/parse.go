package filter

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCriteria = errors.New("invalid filter")

const dateLayout = "2006-01-02"

// ParseCriteria reads the listing filters from query parameters. Blank
// parameters count as absent.
func ParseCriteria(values url.Values) (Criteria, error) {
	c := Criteria{
		Vendor:   strings.TrimSpace(values.Get("vendor")),
		Currency: strings.TrimSpace(values.Get("currency")),
		Search:   strings.TrimSpace(values.Get("search")),
	}

	var err error
	if c.DateFrom, err = parseDate(values, "date_from"); err != nil {
		return Criteria{}, err
	}
	if c.DateTo, err = parseDate(values, "date_to"); err != nil {
		return Criteria{}, err
	}
	if c.MinTotal, err = parseAmount(values, "min_total"); err != nil {
		return Criteria{}, err
	}
	if c.MaxTotal, err = parseAmount(values, "max_total"); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

// ParseLimit applies the default when the parameter is absent and rejects
// values outside 1..maxLimit.
func ParseLimit(raw string, defaultLimit, maxLimit int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, ErrInvalidLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		return 0, fmt.Errorf("%w: at most %d", ErrInvalidLimit, maxLimit)
	}
	return limit, nil
}

func parseDate(values url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidCriteria, key)
	}
	return &parsed, nil
}

func parseAmount(values url.Values, key string) (*float64, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidCriteria, key)
	}
	return &parsed, nil
}

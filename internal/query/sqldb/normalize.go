package sqldb

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/marcboeker/go-duckdb/v2"
)

const dateLayout = "2006-01-02"

// normalizeValue converts driver values into JSON primitives. Decimals become
// float64 and temporal values become ISO-8601 strings; anything else is
// passed through.
func normalizeValue(value any, databaseType string) any {
	typeName := strings.ToUpper(strings.TrimSpace(databaseType))

	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(string(typed), typeName)
	case string:
		return normalizeText(typed, typeName)
	case duckdb.Decimal:
		return typed.Float64()
	case pgtype.Numeric:
		f, err := typed.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case time.Time:
		if typeName == "DATE" {
			return typed.Format(dateLayout)
		}
		return typed.Format(time.RFC3339Nano)
	default:
		return typed
	}
}

func normalizeText(value, typeName string) any {
	if !isDecimalType(typeName) {
		return value
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		// NaN/Infinity spellings differ between engines; keep the raw text.
		return value
	}
	return parsed
}

func isDecimalType(typeName string) bool {
	return strings.HasPrefix(typeName, "NUMERIC") || strings.HasPrefix(typeName, "DECIMAL")
}

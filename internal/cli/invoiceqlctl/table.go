package invoiceqlctl

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pterm/pterm"
)

// renderTable draws the rows found under listKey, or the top-level object
// as field/value pairs when listKey is empty or absent.
func renderTable(raw []byte, listKey string) (string, error) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if listKey != "" {
		if items, ok := body[listKey].([]any); ok {
			return renderRows(items)
		}
	}

	keys := sortedKeys(body)
	data := pterm.TableData{{"field", "value"}}
	for _, key := range keys {
		data = append(data, []string{key, cell(body[key])})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func renderRows(items []any) (string, error) {
	if len(items) == 0 {
		return "(no rows)", nil
	}

	columnSet := map[string]any{}
	for _, item := range items {
		if row, ok := item.(map[string]any); ok {
			for key := range row {
				columnSet[key] = nil
			}
		}
	}
	columns := sortedKeys(columnSet)

	data := pterm.TableData{columns}
	for _, item := range items {
		row, _ := item.(map[string]any)
		line := make([]string, len(columns))
		for i, column := range columns {
			line[i] = cell(row[column])
		}
		data = append(data, line)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func cell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return fmt.Sprintf("%g", typed)
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

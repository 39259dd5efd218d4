package dashboard

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nast-payroll/portal/internal/view"
)

var upperCasers = sync.Pool{
	New: func() any {
		c := cases.Upper(language.English)
		return &c
	},
}

// Breadcrumb renders "<Area> / <PAGE TITLE>" for a path segment.
func Breadcrumb(area, segment string) string {
	title := strings.ReplaceAll(strings.Trim(segment, "/"), "-", " ")
	c := upperCasers.Get().(*cases.Caser)
	defer upperCasers.Put(c)
	return area + " / " + c.String(title)
}

// decodeRows accepts a JSON array, a paged object with a "content" array, or
// a single object.
func decodeRows(body []byte) ([]map[string]any, error) {
	var arr []map[string]any
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if content, ok := obj["content"].([]any); ok {
		rows := make([]map[string]any, 0, len(content))
		for _, item := range content {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		return rows, nil
	}
	return []map[string]any{obj}, nil
}

// countItems reduces a backend payload to a dashboard count.
func countItems(body []byte) (string, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return strconv.Itoa(len(arr)), true
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	for _, key := range []string{"totalElements", "total", "count"} {
		if n, ok := obj[key].(float64); ok {
			return view.FormatCell(n), true
		}
	}
	if content, ok := obj["content"].([]any); ok {
		return strconv.Itoa(len(content)), true
	}
	return "", false
}

// columnsFor returns the configured columns, or the sorted keys of the first
// row when none are configured.
func columnsFor(configured []Column, rows []map[string]any) []Column {
	if len(configured) > 0 {
		return configured
	}
	if len(rows) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rows[0]))
	for key := range rows[0] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	cols := make([]Column, 0, len(keys))
	for _, key := range keys {
		cols = append(cols, Column{Key: key, Label: key})
	}
	return cols
}

func tableRows(cols []Column, rows []map[string]any) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = view.FormatCell(row[col.Key])
		}
		out = append(out, cells)
	}
	return out
}

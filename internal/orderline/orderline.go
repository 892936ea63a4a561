// Package orderline parses the structured order-line payloads attached
// to completed answers. Payloads are arrays of flat objects; the server
// may also attach the previous version of the same data so changed rows
// can be highlighted. Parsing never fails a message: a malformed
// payload degrades to the raw server text.
package orderline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// columnTitles maps raw column keys to display names.
var columnTitles = map[string]string{
	"reqnum": "Request Number",
	"ordlin": "Order Line",
	"effpri": "Effective Priority",
}

// ColumnTitle returns the display name for a column key, or the key
// itself when no mapping exists.
func ColumnTitle(key string) string {
	if title, ok := columnTitles[key]; ok {
		return title
	}
	return key
}

// Row is one order line. Changed marks rows that differ from the same
// position in the previous version.
type Row struct {
	Cells   map[string]string
	Changed bool
}

// Table is the parsed payload. Columns preserve the key order of the
// first row. When parsing failed, Raw carries the server text verbatim
// and Columns/Rows are empty.
type Table struct {
	Columns []string
	Rows    []Row
	Raw     string
}

// Degraded reports whether the payload could not be parsed and only
// the raw server text is available.
func (t *Table) Degraded() bool { return t.Raw != "" }

// ChangedRows counts rows that differ from the previous version.
func (t *Table) ChangedRows() int {
	n := 0
	for _, r := range t.Rows {
		if r.Changed {
			n++
		}
	}
	return n
}

// Parse decodes an order-line payload and, when a previous version is
// supplied, marks rows whose values differ from the row at the same
// index. Any decode failure, of either payload, degrades to the raw
// current text rather than returning an error.
func Parse(orderline, previous []byte) *Table {
	current, err := decodeRows(orderline)
	if err != nil {
		return &Table{Raw: string(orderline)}
	}

	var prev []map[string]any
	if len(previous) > 0 && !bytes.Equal(bytes.TrimSpace(previous), []byte("null")) {
		prev, err = decodeRows(previous)
		if err != nil {
			return &Table{Raw: string(orderline)}
		}
	}

	columns := headerOrder(orderline)
	rows := make([]Row, len(current))
	for i, rec := range current {
		cells := make(map[string]string, len(rec))
		for k, v := range rec {
			cells[k] = formatValue(v)
		}
		rows[i] = Row{Cells: cells, Changed: rowChanged(rec, prev, i, columns)}
	}

	return &Table{Columns: columns, Rows: rows}
}

func decodeRows(raw []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func rowChanged(rec map[string]any, prev []map[string]any, i int, columns []string) bool {
	if i >= len(prev) || prev[i] == nil {
		return false
	}
	for _, col := range columns {
		if formatValue(rec[col]) != formatValue(prev[i][col]) {
			return true
		}
	}
	return false
}

// headerOrder walks the tokens of the first object so columns render
// in the order the server sent them, which a decoded map loses.
func headerOrder(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))

	// consume '[' then '{'
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil
	}
	if !dec.More() {
		return nil
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var columns []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return columns
		}
		key, ok := tok.(string)
		if !ok {
			return columns
		}
		columns = append(columns, key)

		// skip the value
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return columns
		}
	}
	return columns
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

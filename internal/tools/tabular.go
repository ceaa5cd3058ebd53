package tools

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/MEKXH/taskgate/internal/query"
	"github.com/cloudwego/eino/schema"
)

// ErrUnknownColumn is returned by Filter when the header has no such column.
var ErrUnknownColumn = errors.New("unknown column")

// FilterResult is the payload of filter-tabular-data.
type FilterResult struct {
	Rows []query.Row `json:"rows"`
}

type columnType int

const (
	columnBool columnType = iota
	columnInt
	columnFloat
	columnString
)

// Table is a parsed CSV file with typed cells.
type Table struct {
	Header []string
	Rows   [][]any
}

// ReadTable parses CSV with a header row. Each column gets the narrowest type
// that fits every non-empty cell (bool, int, float, then string); empty cells
// become nil.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = dedupeHeader(header)
	body := records[1:]

	types := make([]columnType, len(header))
	for col := range header {
		types[col] = inferColumnType(body, col)
	}

	t := &Table{Header: header, Rows: make([][]any, 0, len(body))}
	for _, rec := range body {
		row := make([]any, len(header))
		for col := range header {
			row[col] = typedCell(rec[col], types[col])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// dedupeHeader renames repeated column names to name.1, name.2 and so on, so
// every cell stays addressable and row objects never share a key.
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for _, name := range header {
		taken[name] = true
	}
	seen := make(map[string]int, len(header))
	for i, name := range header {
		n := seen[name]
		seen[name] = n + 1
		if n == 0 {
			out[i] = name
			continue
		}
		candidate := fmt.Sprintf("%s.%d", name, n)
		for taken[candidate] {
			n++
			candidate = fmt.Sprintf("%s.%d", name, n)
		}
		seen[name] = n + 1
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}

func inferColumnType(rows [][]string, col int) columnType {
	for t := columnBool; t < columnString; t++ {
		fits := true
		for _, rec := range rows {
			if cell := rec[col]; cell != "" && !fitsType(cell, t) {
				fits = false
				break
			}
		}
		if fits {
			return t
		}
	}
	return columnString
}

func fitsType(cell string, t columnType) bool {
	switch t {
	case columnBool:
		_, ok := parseBool(cell)
		return ok
	case columnInt:
		_, err := strconv.ParseInt(cell, 10, 64)
		return err == nil
	case columnFloat:
		_, err := strconv.ParseFloat(cell, 64)
		return err == nil
	default:
		return true
	}
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "true", "True", "TRUE":
		return true, true
	case "false", "False", "FALSE":
		return false, true
	}
	return false, false
}

func typedCell(cell string, t columnType) any {
	if cell == "" {
		return nil
	}
	switch t {
	case columnBool:
		b, _ := parseBool(cell)
		return b
	case columnInt:
		n, _ := strconv.ParseInt(cell, 10, 64)
		return n
	case columnFloat:
		f, _ := strconv.ParseFloat(cell, 64)
		return f
	default:
		return cell
	}
}

// Filter returns the rows whose column equals value. It returns
// ErrUnknownColumn if the column does not exist.
func (t *Table) Filter(column string, value any) ([]query.Row, error) {
	idx := -1
	for i, name := range t.Header {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w %q", ErrUnknownColumn, column)
	}

	out := []query.Row{}
	for _, row := range t.Rows {
		if cellEquals(row[idx], value) {
			out = append(out, query.Row{Columns: t.Header, Values: row})
		}
	}
	return out, nil
}

// cellEquals compares numerically when both sides are numbers (or numeric
// strings) and as text otherwise. A nil filter value matches empty cells.
func cellEquals(cell, value any) bool {
	if value == nil || cell == nil {
		return value == nil && cell == nil
	}
	if cf, ok := numericValue(cell); ok {
		if vf, ok := numericValue(value); ok {
			return cf == vf
		}
	}
	if cb, ok := cell.(bool); ok {
		if vb, ok := value.(bool); ok {
			return cb == vb
		}
	}
	return dispatch.FormatValue(cell) == dispatch.FormatValue(value)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

type tabularImpl struct{}

// NewFilterTabularData filters a CSV file by equality on one column.
func NewFilterTabularData() *dispatch.Spec {
	impl := &tabularImpl{}
	return &dispatch.Spec{
		Name: FilterTabularData,
		Desc: "Return the rows of a CSV file whose column equals a value",
		Params: map[string]*schema.ParameterInfo{
			"csv_path":      requiredString("CSV file with a header row"),
			"filter_column": requiredString("Column to compare"),
			"filter_value":  {Desc: "Value to match; numbers compare numerically", Required: true},
		},
		Paths: []dispatch.PathParam{
			{Param: "csv_path", Intent: policy.IntentRead},
		},
		Perform: impl.perform,
	}
}

func (tabularImpl) perform(_ context.Context, call *dispatch.Call) (any, error) {
	data, err := readFile("read csv", call.Path("csv_path"))
	if err != nil {
		return nil, err
	}
	table, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, dispatch.Failf(err, "parse csv")
	}
	rows, err := table.Filter(call.Params.String("filter_column"), call.Params["filter_value"])
	if errors.Is(err, ErrUnknownColumn) {
		return nil, dispatch.Invalidf("filter_column", "%v", err)
	}
	if err != nil {
		return nil, dispatch.Failf(err, "filter")
	}
	return &FilterResult{Rows: rows}, nil
}

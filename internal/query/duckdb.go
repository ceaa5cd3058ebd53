package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MEKXH/taskgate/internal/proc"
)

const defaultDuckDBBinary = "duckdb"

// lockdownSQL runs before the user query. It stops the query from reading or
// writing files other than the opened database and keeps it from turning the
// setting back on.
const lockdownSQL = "SET enable_external_access = false; SET lock_configuration = true;"

// DuckDB runs queries through the duckdb command line client in read-only
// JSON mode.
type DuckDB struct {
	Binary string
	Runner proc.Runner
}

// Query runs sql against dbPath and decodes the JSON rows printed by the CLI.
func (d DuckDB) Query(ctx context.Context, dbPath, sql string) (*Rows, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	binary := d.Binary
	if strings.TrimSpace(binary) == "" {
		binary = defaultDuckDBBinary
	}
	runner := d.Runner
	if runner == nil {
		runner = proc.ExecRunner{}
	}

	out, err := runner.Run(ctx, "", binary, "-readonly", "-json", "-cmd", lockdownSQL, dbPath, "-c", sql)
	if err != nil {
		return nil, fmt.Errorf("duckdb: %w", err)
	}
	rows, err := decodeRows([]byte(out.Stdout))
	if err != nil {
		return nil, fmt.Errorf("decode duckdb output: %w", err)
	}
	return rows, nil
}

// decodeRows reads a JSON array of objects, keeping the key order of the first
// object as the column order. Empty output means an empty result.
func decodeRows(data []byte) (*Rows, error) {
	rows := &Rows{Records: []Row{}}
	if len(bytes.TrimSpace(data)) == 0 {
		return rows, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}
	for dec.More() {
		row, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}
		if rows.Columns == nil {
			rows.Columns = row.Columns
		}
		rows.Records = append(rows.Records, row)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after result array")
	}
	return rows, nil
}

func decodeObject(dec *json.Decoder) (Row, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return Row{}, err
	}
	var row Row
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Row{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Row{}, fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return Row{}, fmt.Errorf("column %q: %w", key, err)
		}
		row.Columns = append(row.Columns, key)
		row.Values = append(row.Values, normalizeNumber(value))
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Row{}, err
	}
	return row, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

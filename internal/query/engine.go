// Package query runs read-only SQL against local database files.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind selects the engine used for a database file.
type Kind string

const (
	KindSQLite Kind = "sqlite"
	KindDuckDB Kind = "duckdb"
)

// ResolveKind picks the engine from the database file suffix. SQLite files are
// recognized by their usual extensions; everything else goes to DuckDB.
func ResolveKind(dbPath string) (Kind, error) {
	if strings.TrimSpace(dbPath) == "" {
		return "", fmt.Errorf("database path is empty")
	}
	switch strings.ToLower(filepath.Ext(dbPath)) {
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite, nil
	default:
		return KindDuckDB, nil
	}
}

// Engine executes one query against a database file.
type Engine interface {
	Query(ctx context.Context, dbPath, sql string) (*Rows, error)
}

// Rows is a fully materialized result set.
type Rows struct {
	Columns []string
	Records []Row
}

// Row is one result row. It marshals to a JSON object whose keys keep the
// column order of the result set.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of column, if present.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var v any
		if i < len(r.Values) {
			v = r.Values[i]
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIndent renders the records as a JSON array with a four-space indent.
// An empty result renders as [].
func (r *Rows) MarshalIndent() ([]byte, error) {
	records := r.Records
	if records == nil {
		records = []Row{}
	}
	return json.MarshalIndent(records, "", "    ")
}

// Engines maps each kind to its implementation.
type Engines map[Kind]Engine

// Run executes sql on the engine registered for kind. Callers resolve the kind
// from the name the database was requested by, before any symlink in the
// path is followed.
func (e Engines) Run(ctx context.Context, kind Kind, dbPath, sql string) (*Rows, error) {
	engine, ok := e[kind]
	if !ok || engine == nil {
		return nil, fmt.Errorf("no %s engine configured", kind)
	}
	return engine.Query(ctx, dbPath, sql)
}

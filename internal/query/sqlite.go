package query

import (
	"context"
	"fmt"
	"os"
	"strings"

	"zombiezen.com/go/sqlite"
)

// SQLite runs queries through an embedded SQLite connection opened read-only.
type SQLite struct{}

// Query opens dbPath read-only, runs a single statement and collects all rows.
func (SQLite) Query(ctx context.Context, dbPath, query string) (*Rows, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open database: %s is a directory", dbPath)
	}

	conn, err := sqlite.OpenConn(dbPath, sqlite.OpenReadOnly)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	if err := conn.SetAuthorizer(readOnlyAuthorizer); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetInterrupt(ctx.Done())

	stmt, trailing, err := conn.PrepareTransient(query)
	if err != nil {
		return nil, fmt.Errorf("prepare query: %w", err)
	}
	defer stmt.Finalize()
	if trailing > 0 && strings.TrimSpace(strings.TrimRight(query[len(query)-trailing:], "; \t\n")) != "" {
		return nil, fmt.Errorf("prepare query: only one statement is allowed")
	}
	if kw := leadingKeyword(query); !readKeywords[kw] {
		return nil, fmt.Errorf("prepare query: only read statements are allowed, got %q", kw)
	}

	n := stmt.ColumnCount()
	rows := &Rows{Columns: make([]string, n), Records: []Row{}}
	for i := 0; i < n; i++ {
		rows.Columns[i] = stmt.ColumnName(i)
	}

	for {
		hasRow, err := stmt.Step()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("execute query: %w", ctxErr)
			}
			return nil, fmt.Errorf("execute query: %w", err)
		}
		if !hasRow {
			break
		}
		values := make([]any, n)
		for i := 0; i < n; i++ {
			values[i] = columnValue(stmt, i)
		}
		rows.Records = append(rows.Records, Row{Columns: rows.Columns, Values: values})
	}
	return rows, nil
}

// readKeywords are the statement types that can only read.
var readKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"VALUES":  true,
	"EXPLAIN": true,
	"PRAGMA":  true,
}

// readPragmas may be queried; any other pragma is refused at prepare time.
var readPragmas = map[string]bool{
	"table_info":       true,
	"table_xinfo":      true,
	"table_list":       true,
	"index_list":       true,
	"index_info":       true,
	"index_xinfo":      true,
	"foreign_key_list": true,
	"database_list":    true,
	"collation_list":   true,
	"function_list":    true,
	"user_version":     true,
	"schema_version":   true,
	"page_count":       true,
	"page_size":        true,
}

// readOnlyAuthorizer refuses everything except reading tables of the opened
// database. ATTACH, DETACH, transactions and pragma writes fail to prepare.
var readOnlyAuthorizer = sqlite.AuthorizeFunc(func(action sqlite.Action) sqlite.AuthResult {
	switch action.Type() {
	case sqlite.OpSelect, sqlite.OpRead, sqlite.OpFunction, sqlite.OpRecursive:
		return sqlite.AuthResultOK
	case sqlite.OpPragma:
		if readPragmas[strings.ToLower(action.Pragma())] && !pragmaAssigns(action) {
			return sqlite.AuthResultOK
		}
	}
	return sqlite.AuthResultDeny
})

// pragmaAssigns reports whether a counter pragma is being set rather than read.
func pragmaAssigns(action sqlite.Action) bool {
	switch strings.ToLower(action.Pragma()) {
	case "user_version", "schema_version", "page_size":
		return action.PragmaArg() != ""
	}
	return false
}

// leadingKeyword returns the first word of sql in upper case, skipping
// whitespace and comments.
func leadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeft(s, " \t\r\n\f(")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

func columnValue(stmt *sqlite.Stmt, i int) any {
	switch stmt.ColumnType(i) {
	case sqlite.TypeInteger:
		return stmt.ColumnInt64(i)
	case sqlite.TypeFloat:
		return stmt.ColumnFloat(i)
	case sqlite.TypeText:
		return stmt.ColumnText(i)
	case sqlite.TypeBlob:
		buf := make([]byte, stmt.ColumnLen(i))
		stmt.ColumnBytes(i, buf)
		return buf
	default:
		return nil
	}
}

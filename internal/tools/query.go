package tools

import (
	"context"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/MEKXH/taskgate/internal/query"
	"github.com/cloudwego/eino/schema"
)

// QueryResult is the payload of run-sql-query.
type QueryResult struct {
	Path    string     `json:"path"`
	Engine  query.Kind `json:"engine"`
	Rows    int        `json:"rows"`
	Columns []string   `json:"columns"`
}

type queryImpl struct {
	engines query.Engines
}

// NewRunSQLQuery runs a read-only query against a sandboxed database file and
// writes the rows to a new JSON file.
func NewRunSQLQuery(engines query.Engines) *dispatch.Spec {
	impl := &queryImpl{engines: engines}
	return &dispatch.Spec{
		Name: RunSQLQuery,
		Desc: "Run a SQL query against a SQLite (.db, .sqlite, .sqlite3) or DuckDB file and save the rows as JSON",
		Params: map[string]*schema.ParameterInfo{
			"db_path":     requiredString("Database file to query"),
			"query":       requiredString("Single SQL statement"),
			"output_path": requiredString("Destination JSON file; must not exist"),
		},
		Paths: []dispatch.PathParam{
			{Param: "db_path", Intent: policy.IntentRead},
			{Param: "output_path", Intent: policy.IntentWriteNew},
		},
		Validate: func(p dispatch.Params) error {
			_, err := query.ResolveKind(p.String("db_path"))
			return err
		},
		Perform: impl.perform,
	}
}

func (q *queryImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	// The engine follows the requested name; the resolved path may be a symlink
	// target with a different suffix.
	kind, err := query.ResolveKind(call.Params.String("db_path"))
	if err != nil {
		return nil, dispatch.Failf(err, "resolve engine")
	}
	rows, err := q.engines.Run(ctx, kind, call.Path("db_path"), call.Params.String("query"))
	if err != nil {
		return nil, dispatch.Failf(err, "%s query failed", kind)
	}
	data, err := rows.MarshalIndent()
	if err != nil {
		return nil, dispatch.Failf(err, "encode rows")
	}

	out := call.Path("output_path")
	if err := writeNew(out, data); err != nil {
		return nil, err
	}
	columns := rows.Columns
	if columns == nil {
		columns = []string{}
	}
	return &QueryResult{Path: out, Engine: kind, Rows: len(rows.Records), Columns: columns}, nil
}

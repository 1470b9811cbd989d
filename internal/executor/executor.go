// Package executor implements pipeline semantics over the resource
// manager: baton handling, per-StreamRequest dispatch, and result
// materialization. Grounded on hiisi-server/src/executor.rs's
// execute_client_req / exec_close / exec_execute / make_execute_result,
// extended to also run Batch and Sequence (conditional multi-statement
// execution) instead of leaving them as todo!().
package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/hiisid/internal/hiisierr"
	"github.com/oriys/hiisid/internal/manager"
	"github.com/oriys/hiisid/internal/proto"
	"github.com/oriys/hiisid/internal/sqlengine"
)

// ExecuteClientReq runs every StreamRequest in req against namespace in
// order, pinning them all to one baton (the caller's, or a freshly minted
// one), and returns the aggregate pipeline response.
func ExecuteClientReq(ctx context.Context, mgr *manager.Manager, namespace string, req *proto.PipelineReqBody) (*proto.PipelineRespBody, error) {
	baton := effectiveBaton(req.Baton)
	results := make([]proto.StreamResult, 0, len(req.Requests))
	for _, r := range req.Requests {
		results = append(results, dispatch(ctx, mgr, namespace, baton, r))
	}
	return &proto.PipelineRespBody{Baton: &baton, BaseURL: nil, Results: results}, nil
}

func effectiveBaton(given *string) string {
	if given != nil && *given != "" {
		return *given
	}
	// A session token minted here must stay opaque to the client and carry
	// no database name or process-local state, so a server restart
	// invalidates every outstanding baton uniformly.
	return uuid.New().String()
}

func dispatch(ctx context.Context, mgr *manager.Manager, namespace, baton string, req proto.StreamRequest) proto.StreamResult {
	switch r := req.(type) {
	case proto.CloseStreamReq:
		mgr.DropConn(namespace, baton)
		return proto.OkResult(proto.CloseStreamResp{})
	case proto.ExecuteStreamReq:
		conn, err := mgr.GetConn(ctx, namespace, baton)
		if err != nil {
			return errResult(hiisierr.Internal("get connection: %v", err))
		}
		result, err := execStmt(ctx, conn, r.Stmt)
		if err != nil {
			return errResult(asHiisiErr(err))
		}
		return proto.OkResult(proto.ExecuteStreamResp{Result: *result})
	case proto.BatchStreamReq:
		conn, err := mgr.GetConn(ctx, namespace, baton)
		if err != nil {
			return errResult(hiisierr.Internal("get connection: %v", err))
		}
		result := execBatch(ctx, conn, r.Batch)
		return proto.OkResult(proto.BatchStreamResp{Result: result})
	case proto.SequenceStreamReq:
		conn, err := mgr.GetConn(ctx, namespace, baton)
		if err != nil {
			return errResult(hiisierr.Internal("get connection: %v", err))
		}
		if err := execSequence(ctx, conn, r); err != nil {
			return errResult(asHiisiErr(err))
		}
		return proto.OkResult(proto.SequenceStreamResp{})
	case proto.DescribeStreamReq:
		return errResult(hiisierr.NotImplemented("describe"))
	case proto.StoreSqlStreamReq:
		return errResult(hiisierr.NotImplemented("store_sql"))
	case proto.CloseSqlStreamReq:
		return errResult(hiisierr.NotImplemented("close_sql"))
	case proto.GetAutocommitStreamReq:
		return errResult(hiisierr.NotImplemented("get_autocommit"))
	default:
		return errResult(hiisierr.Internal("unhandled stream request variant"))
	}
}

func errResult(e *hiisierr.Error) proto.StreamResult {
	return proto.ErrResult(&proto.Error{Message: e.Message, Code: string(e.Code)})
}

func asHiisiErr(err error) *hiisierr.Error {
	if e, ok := hiisierr.As(err); ok {
		return e
	}
	return hiisierr.Internal("%v", err)
}

// execStmt runs a single statement and materializes its StmtResult,
// including the real affected-row-count and last-insert-rowid that
// hiisi-server/src/executor.rs's make_execute_result left hardcoded to
// zero/null.
func execStmt(ctx context.Context, conn *sqlengine.Connection, s proto.Stmt) (*proto.StmtResult, error) {
	if s.SQL == nil {
		return nil, hiisierr.Internal("no SQL statement found")
	}
	start := time.Now()
	stmt, err := conn.Prepare(ctx, *s.SQL)
	if err != nil {
		return nil, hiisierr.Engine(err)
	}
	defer stmt.Close()

	args, err := bindArgs(s)
	if err != nil {
		return nil, err
	}
	if err := stmt.Execute(ctx, args); err != nil {
		return nil, hiisierr.Engine(err)
	}

	wantRows := s.WantRows == nil || *s.WantRows
	cols := make([]proto.Col, stmt.ColumnCount())
	for i := range cols {
		name := stmt.ColumnName(i)
		decltype := stmt.ColumnDecltype(i)
		cols[i] = proto.Col{Name: &name}
		if decltype != "" {
			cols[i].Decltype = &decltype
		}
	}

	var rows []proto.Row
	for {
		ok, stepErr := stmt.Step()
		if stepErr != nil {
			return nil, hiisierr.Engine(stepErr)
		}
		if !ok {
			break
		}
		if !wantRows {
			continue
		}
		values := make([]proto.Value, stmt.ColumnCount())
		for i := range values {
			values[i] = columnValue(stmt, i)
		}
		rows = append(rows, proto.Row{Values: values})
	}

	changes, err := stmt.Changes(ctx)
	if err != nil {
		return nil, hiisierr.Engine(err)
	}
	rowid, err := stmt.LastInsertRowID(ctx)
	if err != nil {
		return nil, hiisierr.Engine(err)
	}
	var lastInsertRowid *int64
	if changes > 0 {
		lastInsertRowid = &rowid
	}

	return &proto.StmtResult{
		Cols:             cols,
		Rows:             rows,
		AffectedRowCount: uint64(changes),
		LastInsertRowid:  lastInsertRowid,
		RowsRead:         uint64(len(rows)),
		RowsWritten:      uint64(changes),
		QueryDurationMs:  float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

func bindArgs(s proto.Stmt) ([]any, error) {
	if len(s.NamedArgs) > 0 {
		args := make([]any, len(s.NamedArgs))
		for i, na := range s.NamedArgs {
			name := strings.TrimLeft(na.Name, ":@$")
			args[i] = sql.Named(name, valueToAny(na.Value))
		}
		return args, nil
	}
	args := make([]any, len(s.Args))
	for i, v := range s.Args {
		args[i] = valueToAny(v)
	}
	return args, nil
}

func valueToAny(v proto.Value) any {
	switch v.Kind {
	case proto.KindNull:
		return nil
	case proto.KindInteger:
		return v.Int
	case proto.KindFloat:
		return v.Float
	case proto.KindText:
		return v.Text
	case proto.KindBlob:
		return v.Blob
	default:
		return nil
	}
}

func columnValue(stmt *sqlengine.Statement, i int) proto.Value {
	switch stmt.ColumnType(i) {
	case sqlengine.TypeInteger:
		return proto.IntegerValue(stmt.ColumnInt64(i))
	case sqlengine.TypeFloat:
		return proto.FloatValue(stmt.ColumnDouble(i))
	case sqlengine.TypeText:
		return proto.TextValue(stmt.ColumnText(i))
	case sqlengine.TypeBlob:
		return proto.BlobValue(stmt.ColumnBlob(i))
	default:
		return proto.NullValue()
	}
}

// execBatch runs a Batch's steps in order, skipping any step whose
// condition evaluates false against the step results/errors accumulated
// so far, matching hiisi-server/src/proto.rs's BatchCond semantics.
func execBatch(ctx context.Context, conn *sqlengine.Connection, b proto.Batch) proto.BatchResult {
	results := make([]*proto.StmtResult, len(b.Steps))
	errs := make([]*proto.Error, len(b.Steps))
	autocommit := true

	for i, step := range b.Steps {
		if step.Condition != nil && !evalCond(*step.Condition, results, errs, autocommit) {
			continue
		}
		if sqlText := step.Stmt.SQL; sqlText != nil {
			switch strings.ToUpper(strings.TrimSpace(*sqlText)) {
			case "BEGIN", "BEGIN TRANSACTION":
				autocommit = false
			case "COMMIT", "ROLLBACK":
				autocommit = true
			}
		}
		result, err := execStmt(ctx, conn, step.Stmt)
		if err != nil {
			errs[i] = &proto.Error{Message: asHiisiErr(err).Message, Code: string(asHiisiErr(err).Code)}
			continue
		}
		results[i] = result
	}
	return proto.BatchResult{StepResults: results, StepErrors: errs}
}

func evalCond(c proto.BatchCond, results []*proto.StmtResult, errs []*proto.Error, autocommit bool) bool {
	switch c.Kind {
	case proto.CondOk:
		return int(c.Step) < len(results) && results[c.Step] != nil
	case proto.CondError:
		return int(c.Step) < len(errs) && errs[c.Step] != nil
	case proto.CondNot:
		if c.Not == nil {
			return true
		}
		return !evalCond(*c.Not, results, errs, autocommit)
	case proto.CondAnd:
		for _, inner := range c.Conds {
			if !evalCond(inner, results, errs, autocommit) {
				return false
			}
		}
		return true
	case proto.CondOr:
		for _, inner := range c.Conds {
			if evalCond(inner, results, errs, autocommit) {
				return true
			}
		}
		return false
	case proto.CondIsAutocommit:
		return autocommit
	default:
		return false
	}
}

// execSequence runs a semicolon-separated sequence of statements
// non-interactively, discarding any result rows — the role
// hiisi-server/src/proto.rs's Sequence variant plays for schema
// migrations and other scripts that don't need row-level results.
func execSequence(ctx context.Context, conn *sqlengine.Connection, req proto.SequenceStreamReq) error {
	if req.SQL == nil {
		return hiisierr.Internal("no SQL statement found")
	}
	for _, stmt := range splitStatements(*req.SQL) {
		if stmt == "" {
			continue
		}
		falseVal := false
		if _, err := execStmt(ctx, conn, proto.Stmt{SQL: &stmt, WantRows: &falseVal}); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements splits a script on top-level semicolons. It does not
// understand string-literal-embedded semicolons; scripts relying on
// those should be submitted one statement at a time via Execute instead.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

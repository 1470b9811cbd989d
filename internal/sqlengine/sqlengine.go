// Package sqlengine is the narrow SQL engine facade: it hides
// database/sql's general-purpose *sql.Rows surface behind the
// prepare/step/column_* shape the wire protocol and resource manager
// expect, grounded on hiisi-server/src/database.rs's Connection/Stmt API.
// The underlying engine is SQLite via github.com/mattn/go-sqlite3.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ValueType mirrors database.rs's Type enum for a result column.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeInteger
	TypeFloat
	TypeText
	TypeBlob
)

// Connection is a single SQLite connection. database.rs opens SQLite with
// SQLITE_OPEN_NOMUTEX because the engine driving it is single-threaded; Go
// mirrors that by capping the pool at one physical connection so a
// Connection never hands two goroutines the same underlying handle.
type Connection struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the SQLite database file at path.
func Open(path string) (*Connection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	return &Connection{db: db, path: path}, nil
}

func (c *Connection) Close() error {
	return c.db.Close()
}

// Pragma runs "PRAGMA name=value", matching database.rs's Connection::pragma.
func (c *Connection) Pragma(ctx context.Context, name, value string) error {
	_, err := c.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s=%s", name, value))
	if err != nil {
		return fmt.Errorf("pragma %s=%s: %w", name, value, err)
	}
	return nil
}

// Prepare compiles sqlText into a reusable Statement.
func (c *Connection) Prepare(ctx context.Context, sqlText string) (*Statement, error) {
	stmt, err := c.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	return &Statement{conn: c, sqlText: sqlText, stmt: stmt}, nil
}

// Statement is a prepared, bound, steppable SQL statement.
type Statement struct {
	conn    *Connection
	sqlText string
	stmt    *sql.Stmt

	rows     *sql.Rows
	cols     []string
	colTypes []*sql.ColumnType
	current  []any

	drained bool
}

// Execute binds args and runs the statement through the query path. This
// single path covers both row-producing statements (SELECT) and
// non-row-producing ones (INSERT/UPDATE/DDL): sqlite3_step already runs
// the statement on its first call regardless of whether it yields rows,
// so a plain Query works uniformly and Changes/LastInsertRowID remain
// available afterward via the engine's own changes()/last_insert_rowid()
// scalar functions rather than database/sql's separate Exec path.
func (s *Statement) Execute(ctx context.Context, args []any) error {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("query %q: %w", s.sqlText, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return fmt.Errorf("columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return fmt.Errorf("column types: %w", err)
	}
	s.rows = rows
	s.cols = cols
	s.colTypes = colTypes
	return nil
}

// Step advances to the next result row, mirroring database.rs's
// Stmt::step / StepResult::Row|Done. It is a no-op returning false until
// Execute has run; it steps through result rows whether or not the caller
// wants them.
func (s *Statement) Step() (bool, error) {
	if s.rows == nil {
		return false, nil
	}
	if !s.rows.Next() {
		s.drained = true
		return false, s.rows.Err()
	}
	dest := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return false, fmt.Errorf("scan: %w", err)
	}
	s.current = dest
	return true, nil
}

func (s *Statement) ColumnCount() int { return len(s.cols) }

func (s *Statement) ColumnName(i int) string { return s.cols[i] }

func (s *Statement) ColumnDecltype(i int) string {
	if i >= len(s.colTypes) {
		return ""
	}
	return s.colTypes[i].DatabaseTypeName()
}

func (s *Statement) ColumnType(i int) ValueType {
	if i >= len(s.current) {
		return TypeNull
	}
	switch s.current[i].(type) {
	case nil:
		return TypeNull
	case int64:
		return TypeInteger
	case float64:
		return TypeFloat
	case string:
		return TypeText
	case []byte:
		return TypeBlob
	default:
		return TypeNull
	}
}

func (s *Statement) ColumnInt64(i int) int64 {
	v, _ := s.current[i].(int64)
	return v
}

func (s *Statement) ColumnDouble(i int) float64 {
	v, _ := s.current[i].(float64)
	return v
}

func (s *Statement) ColumnText(i int) string {
	switch v := s.current[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (s *Statement) ColumnBlob(i int) []byte {
	switch v := s.current[i].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// drainRows finishes stepping through any remaining rows so the
// underlying connection is free for the changes()/last_insert_rowid()
// follow-up queries below.
func (s *Statement) drainRows(ctx context.Context) error {
	if s.rows == nil || s.drained {
		return nil
	}
	for s.rows.Next() {
	}
	s.drained = true
	return s.rows.Err()
}

// Changes returns sqlite3_changes()'s value after the last Execute: the
// number of rows modified by the most recently completed INSERT, UPDATE or
// DELETE on this connection. A statement that modifies no rows (a SELECT,
// for instance) leaves that value as the previous such statement set it.
// Any unread result rows are drained first.
func (s *Statement) Changes(ctx context.Context) (int64, error) {
	if err := s.drainRows(ctx); err != nil {
		return 0, err
	}
	var n int64
	if err := s.conn.db.QueryRowContext(ctx, "SELECT changes()").Scan(&n); err != nil {
		return 0, fmt.Errorf("changes: %w", err)
	}
	return n, nil
}

// LastInsertRowID returns sqlite3_last_insert_rowid()'s value after the
// last Execute. Any unread result rows are drained first.
func (s *Statement) LastInsertRowID(ctx context.Context) (int64, error) {
	if err := s.drainRows(ctx); err != nil {
		return 0, err
	}
	var n int64
	if err := s.conn.db.QueryRowContext(ctx, "SELECT last_insert_rowid()").Scan(&n); err != nil {
		return 0, fmt.Errorf("last_insert_rowid: %w", err)
	}
	return n, nil
}

func (s *Statement) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return s.stmt.Close()
}

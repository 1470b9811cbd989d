package proto

import "encoding/json"

// Stmt describes one SQL statement to execute, plus its bound arguments.
type Stmt struct {
	SQL               *string    `json:"sql,omitempty"`
	SQLID             *int32     `json:"sql_id,omitempty"`
	Args              []Value    `json:"args,omitempty"`
	NamedArgs         []NamedArg `json:"named_args,omitempty"`
	WantRows          *bool      `json:"want_rows,omitempty"`
	ReplicationIndex  *uint64    `json:"-"`
}

type stmtWire struct {
	SQL              *string         `json:"sql,omitempty"`
	SQLID            *int32          `json:"sql_id,omitempty"`
	Args             []Value         `json:"args,omitempty"`
	NamedArgs        []NamedArg      `json:"named_args,omitempty"`
	WantRows         *bool           `json:"want_rows,omitempty"`
	ReplicationIndex json.RawMessage `json:"replication_index,omitempty"`
}

func (s Stmt) MarshalJSON() ([]byte, error) {
	w := stmtWire{SQL: s.SQL, SQLID: s.SQLID, Args: s.Args, NamedArgs: s.NamedArgs, WantRows: s.WantRows}
	if s.ReplicationIndex != nil {
		b, err := optUint64String{v: s.ReplicationIndex}.MarshalJSON()
		if err != nil {
			return nil, err
		}
		w.ReplicationIndex = b
	}
	return json.Marshal(w)
}

func (s *Stmt) UnmarshalJSON(data []byte) error {
	var w stmtWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Stmt{SQL: w.SQL, SQLID: w.SQLID, Args: w.Args, NamedArgs: w.NamedArgs, WantRows: w.WantRows}
	if len(w.ReplicationIndex) > 0 {
		v, err := unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return err
		}
		s.ReplicationIndex = v
	}
	return nil
}

// NewStmt builds a Stmt for sql with want_rows set as given.
func NewStmt(sql string, wantRows bool) Stmt {
	return Stmt{SQL: &sql, WantRows: &wantRows}
}

// NamedArg binds a named SQL parameter.
type NamedArg struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// Col describes one result column.
type Col struct {
	Name     *string `json:"name"`
	Decltype *string `json:"decltype"`
}

// Row is a positional list of column values. It marshals/unmarshals as a
// bare JSON array (serde's #[serde(transparent)] on proto.rs's Row).
type Row struct {
	Values []Value
}

func (r Row) MarshalJSON() ([]byte, error) {
	if r.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Values)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Values)
}

// StmtResult is the result of executing a single statement.
type StmtResult struct {
	Cols              []Col
	Rows              []Row
	AffectedRowCount  uint64
	LastInsertRowid   *int64
	ReplicationIndex  *uint64
	RowsRead          uint64
	RowsWritten       uint64
	QueryDurationMs   float64
}

type stmtResultWire struct {
	Cols              []Col           `json:"cols"`
	Rows              []Row           `json:"rows"`
	AffectedRowCount  uint64          `json:"affected_row_count"`
	LastInsertRowid   json.RawMessage `json:"last_insert_rowid"`
	ReplicationIndex  json.RawMessage `json:"replication_index,omitempty"`
	RowsRead          uint64          `json:"rows_read"`
	RowsWritten       uint64          `json:"rows_written"`
	QueryDurationMs   float64         `json:"query_duration_ms"`
}

func (s StmtResult) MarshalJSON() ([]byte, error) {
	lastInsert, err := optInt64String{v: s.LastInsertRowid}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	replIdx, err := optUint64String{v: s.ReplicationIndex}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	cols := s.Cols
	if cols == nil {
		cols = []Col{}
	}
	rows := s.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(stmtResultWire{
		Cols:             cols,
		Rows:             rows,
		AffectedRowCount: s.AffectedRowCount,
		LastInsertRowid:  lastInsert,
		ReplicationIndex: replIdx,
		RowsRead:         s.RowsRead,
		RowsWritten:      s.RowsWritten,
		QueryDurationMs:  s.QueryDurationMs,
	})
}

func (s *StmtResult) UnmarshalJSON(data []byte) error {
	var w stmtResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	lastInsert, err := unmarshalOptInt64String(w.LastInsertRowid)
	if err != nil {
		return err
	}
	var replIdx *uint64
	if len(w.ReplicationIndex) > 0 {
		replIdx, err = unmarshalOptUint64String(w.ReplicationIndex)
		if err != nil {
			return err
		}
	}
	*s = StmtResult{
		Cols:             w.Cols,
		Rows:             w.Rows,
		AffectedRowCount: w.AffectedRowCount,
		LastInsertRowid:  lastInsert,
		ReplicationIndex: replIdx,
		RowsRead:         w.RowsRead,
		RowsWritten:      w.RowsWritten,
		QueryDurationMs:  w.QueryDurationMs,
	}
	return nil
}

package proto

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIntegerValueRoundTrip(t *testing.T) {
	cases := []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}
	for _, want := range cases {
		data, err := json.Marshal(IntegerValue(want))
		if err != nil {
			t.Fatalf("marshal %d: %v", want, err)
		}
		var v Value
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("unmarshal %d: %v", want, err)
		}
		if v.Kind != KindInteger || v.Int != want {
			t.Fatalf("round trip %d: got kind=%d int=%d", want, v.Kind, v.Int)
		}
	}
}

func TestBlobValueRoundTrip(t *testing.T) {
	want := []byte{0x00, 0x01, 0xff, 0xfe, 'h', 'i'}
	data, err := json.Marshal(BlobValue(want))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Kind != KindBlob || string(v.Blob) != string(want) {
		t.Fatalf("round trip mismatch: got %v want %v", v.Blob, want)
	}
}

func TestBlobValueTreatsPaddedBase64AsEquivalent(t *testing.T) {
	raw := []byte(`{"type":"blob","base64":"aGVsbG8="}`)
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal padded base64: %v", err)
	}
	if string(v.Blob) != "hello" {
		t.Fatalf("got %q, want %q", v.Blob, "hello")
	}
}

func TestNullAndTextAndFloatValues(t *testing.T) {
	for _, v := range []Value{NullValue(), TextValue("hiisi"), FloatValue(3.5)} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind != v.Kind || got.Text != v.Text || got.Float != v.Float {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
		}
	}
}

func TestStmtRoundTrip(t *testing.T) {
	want := NewStmt("select 1", true)
	want.Args = []Value{IntegerValue(7), TextValue("x")}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Stmt
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if *got.SQL != *want.SQL || len(got.Args) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPipelineRequestRoundTrip(t *testing.T) {
	baton := "b-1"
	body := PipelineReqBody{
		Baton: &baton,
		Requests: []StreamRequest{
			ExecuteStreamReq{Stmt: NewStmt("select 1", true)},
			CloseStreamReq{},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := ParseRequest(data)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if got.Baton == nil || *got.Baton != baton {
		t.Fatalf("baton mismatch: %+v", got.Baton)
	}
	if len(got.Requests) != 2 {
		t.Fatalf("want 2 requests, got %d", len(got.Requests))
	}
	if _, ok := got.Requests[0].(ExecuteStreamReq); !ok {
		t.Fatalf("requests[0] is %T, want ExecuteStreamReq", got.Requests[0])
	}
	if _, ok := got.Requests[1].(CloseStreamReq); !ok {
		t.Fatalf("requests[1] is %T, want CloseStreamReq", got.Requests[1])
	}
}

func TestParseRequestRejectsUnknownVariant(t *testing.T) {
	data := []byte(`{"requests":[{"type":"not_a_real_request"}]}`)
	if _, err := ParseRequest(data); err == nil {
		t.Fatal("expected error for unknown request type")
	}
}

func TestStreamResultRoundTrip(t *testing.T) {
	ok := OkResult(ExecuteStreamResp{Result: StmtResult{AffectedRowCount: 1}})
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal ok: %v", err)
	}
	var got StreamResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal ok: %v", err)
	}
	if got.Err != nil {
		t.Fatalf("expected no error, got %+v", got.Err)
	}
	resp, ok2 := got.Response.(ExecuteStreamResp)
	if !ok2 || resp.Result.AffectedRowCount != 1 {
		t.Fatalf("unexpected response: %+v", got.Response)
	}

	errResult := ErrResult(&Error{Message: "boom", Code: "PROTOCOL"})
	data, err = json.Marshal(errResult)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.Err == nil || got.Err.Message != "boom" || got.Err.Code != "PROTOCOL" {
		t.Fatalf("unexpected error result: %+v", got.Err)
	}
}

func TestBatchCondRoundTrip(t *testing.T) {
	cond := BatchCondNot(BatchCondOk(2))
	data, err := json.Marshal(cond)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got BatchCond
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != CondNot || got.Not == nil || got.Not.Kind != CondOk || got.Not.Step != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestTransactionalWrapsStatementsInBeginCommitRollback(t *testing.T) {
	stmts := []Stmt{NewStmt("insert into t values (1)", false)}
	b := Transactional(stmts)
	if len(b.Steps) != 4 {
		t.Fatalf("want 4 steps (begin, stmt, commit, rollback), got %d", len(b.Steps))
	}
	if *b.Steps[0].Stmt.SQL != "BEGIN TRANSACTION" {
		t.Fatalf("first step is %q", *b.Steps[0].Stmt.SQL)
	}
	last := b.Steps[len(b.Steps)-1]
	if *last.Stmt.SQL != "ROLLBACK" || last.Condition == nil || last.Condition.Kind != CondNot {
		t.Fatalf("last step is not a negated-commit rollback: %+v", last)
	}
}

func TestRowMarshalsAsBareArray(t *testing.T) {
	row := Row{Values: []Value{IntegerValue(1), NullValue()}}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if data[0] != '[' {
		t.Fatalf("expected bare array, got %s", data)
	}
}

package executor

import (
	"context"
	"testing"

	"github.com/oriys/hiisid/internal/manager"
	"github.com/oriys/hiisid/internal/proto"
)

func newTestManager(t *testing.T, maxConns int) *manager.Manager {
	t.Helper()
	m, err := manager.New(t.TempDir(), 10, maxConns, manager.MaxPageCacheSizeKB)
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}
	return m
}

func execOne(t *testing.T, mgr *manager.Manager, namespace string, baton *string, r proto.StreamRequest) *proto.PipelineRespBody {
	t.Helper()
	resp, err := ExecuteClientReq(context.Background(), mgr, namespace, &proto.PipelineReqBody{
		Baton:    baton,
		Requests: []proto.StreamRequest{r},
	})
	if err != nil {
		t.Fatalf("ExecuteClientReq: %v", err)
	}
	return resp
}

func TestSimpleSelectMintsBatonAndReturnsRow(t *testing.T) {
	mgr := newTestManager(t, 100)
	resp := execOne(t, mgr, "default", nil, proto.ExecuteStreamReq{Stmt: proto.NewStmt("SELECT 1", true)})
	if resp.Baton == nil || *resp.Baton == "" {
		t.Fatal("expected a non-empty minted baton")
	}
	if len(resp.Results) != 1 {
		t.Fatalf("want 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Err != nil {
		t.Fatalf("unexpected error: %+v", resp.Results[0].Err)
	}
	exec, ok := resp.Results[0].Response.(proto.ExecuteStreamResp)
	if !ok {
		t.Fatalf("response is %T, want ExecuteStreamResp", resp.Results[0].Response)
	}
	if len(exec.Result.Rows) != 1 || len(exec.Result.Rows[0].Values) != 1 {
		t.Fatalf("unexpected rows: %+v", exec.Result.Rows)
	}
	if exec.Result.Rows[0].Values[0].Kind != proto.KindInteger || exec.Result.Rows[0].Values[0].Int != 1 {
		t.Fatalf("unexpected value: %+v", exec.Result.Rows[0].Values[0])
	}
}

func TestCloseWithoutOpenIsNoop(t *testing.T) {
	mgr := newTestManager(t, 100)
	baton := "abcd"
	resp := execOne(t, mgr, "default", &baton, proto.CloseStreamReq{})
	if resp.Results[0].Err != nil {
		t.Fatalf("unexpected error: %+v", resp.Results[0].Err)
	}
	if _, ok := resp.Results[0].Response.(proto.CloseStreamResp); !ok {
		t.Fatalf("response is %T, want CloseStreamResp", resp.Results[0].Response)
	}
}

func TestSessionPersistsAcrossCallsWithSameBaton(t *testing.T) {
	mgr := newTestManager(t, 100)
	ctx := context.Background()

	resp1, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Requests: []proto.StreamRequest{
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("CREATE TABLE t (x INTEGER)", false)},
		},
	})
	if err != nil {
		t.Fatalf("call 1: %v", err)
	}
	baton := resp1.Baton

	_, err = ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Baton:    baton,
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("INSERT INTO t VALUES (1)", false)}},
	})
	if err != nil {
		t.Fatalf("call 2: %v", err)
	}

	resp3, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Baton:    baton,
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("SELECT count(*) FROM t", true)}},
	})
	if err != nil {
		t.Fatalf("call 3: %v", err)
	}
	exec := resp3.Results[0].Response.(proto.ExecuteStreamResp)
	if exec.Result.Rows[0].Values[0].Int != 1 {
		t.Fatalf("expected count 1, got %+v", exec.Result.Rows[0].Values[0])
	}
}

func TestTenantIsolationAcrossSharedBaton(t *testing.T) {
	mgr := newTestManager(t, 100)
	ctx := context.Background()
	sharedBaton := "shared"

	_, err := ExecuteClientReq(ctx, mgr, "foo", &proto.PipelineReqBody{
		Baton: &sharedBaton,
		Requests: []proto.StreamRequest{
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("CREATE TABLE t (x INTEGER)", false)},
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("INSERT INTO t VALUES (1)", false)},
		},
	})
	if err != nil {
		t.Fatalf("foo setup: %v", err)
	}

	resp, err := ExecuteClientReq(ctx, mgr, "bar", &proto.PipelineReqBody{
		Baton:    &sharedBaton,
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("SELECT name FROM sqlite_master WHERE type='table'", true)}},
	})
	if err != nil {
		t.Fatalf("bar query: %v", err)
	}
	exec := resp.Results[0].Response.(proto.ExecuteStreamResp)
	if len(exec.Result.Rows) != 0 {
		t.Fatalf("expected bar to see no tables from foo, got %+v", exec.Result.Rows)
	}
}

func TestInsertReportsAffectedRowCountAndLastInsertRowid(t *testing.T) {
	mgr := newTestManager(t, 100)
	ctx := context.Background()

	resp, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Requests: []proto.StreamRequest{
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)", false)},
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("INSERT INTO t (v) VALUES ('x')", false)},
		},
	})
	if err != nil {
		t.Fatalf("ExecuteClientReq: %v", err)
	}
	insert := resp.Results[1].Response.(proto.ExecuteStreamResp)
	if insert.Result.AffectedRowCount != 1 {
		t.Fatalf("AffectedRowCount = %d, want 1", insert.Result.AffectedRowCount)
	}
	if insert.Result.LastInsertRowid == nil || *insert.Result.LastInsertRowid != 1 {
		t.Fatalf("LastInsertRowid = %v, want 1", insert.Result.LastInsertRowid)
	}
}

func TestBatchTransactionalCommitsOnAllStepsOk(t *testing.T) {
	mgr := newTestManager(t, 100)
	ctx := context.Background()

	_, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("CREATE TABLE t (x INTEGER)", false)}},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	batch := proto.Transactional([]proto.Stmt{proto.NewStmt("INSERT INTO t VALUES (1)", false)})
	resp, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Requests: []proto.StreamRequest{proto.BatchStreamReq{Batch: batch}},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	bresp := resp.Results[0].Response.(proto.BatchStreamResp)
	for i, e := range bresp.Result.StepErrors {
		if e != nil {
			t.Fatalf("step %d unexpectedly errored: %+v", i, e)
		}
	}

	check, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Baton:    resp.Baton,
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("SELECT count(*) FROM t", true)}},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	exec := check.Results[0].Response.(proto.ExecuteStreamResp)
	if exec.Result.Rows[0].Values[0].Int != 1 {
		t.Fatalf("expected committed row, got %+v", exec.Result.Rows[0].Values[0])
	}
}

func TestDescribeIsNotImplemented(t *testing.T) {
	mgr := newTestManager(t, 100)
	resp := execOne(t, mgr, "default", nil, proto.DescribeStreamReq{})
	if resp.Results[0].Err == nil {
		t.Fatal("expected describe to return an error result")
	}
	if resp.Results[0].Err.Code != "NOT_IMPLEMENTED" {
		t.Fatalf("Code = %q, want NOT_IMPLEMENTED", resp.Results[0].Err.Code)
	}
}

func TestCacheEvictionLosesPinnedTransaction(t *testing.T) {
	mgr := newTestManager(t, 2)
	ctx := context.Background()

	b1 := "s1"
	_, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Baton: &b1,
		Requests: []proto.StreamRequest{
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("CREATE TABLE t (x INTEGER)", false)},
			proto.ExecuteStreamReq{Stmt: proto.NewStmt("BEGIN", false)},
		},
	})
	if err != nil {
		t.Fatalf("session 1 setup: %v", err)
	}

	// s1 was looked up twice above, so its visited bit is set and it
	// survives the first eviction pass; the third filler evicts it.
	for i := 0; i < 3; i++ {
		b := "filler" + string(rune('a'+i))
		_, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
			Baton:    &b,
			Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("SELECT 1", true)}},
		})
		if err != nil {
			t.Fatalf("filler session: %v", err)
		}
	}

	resp, err := ExecuteClientReq(ctx, mgr, "default", &proto.PipelineReqBody{
		Baton:    &b1,
		Requests: []proto.StreamRequest{proto.ExecuteStreamReq{Stmt: proto.NewStmt("COMMIT", false)}},
	})
	if err != nil {
		t.Fatalf("ExecuteClientReq: %v", err)
	}
	if resp.Results[0].Err == nil {
		t.Fatal("expected COMMIT on an evicted connection to fail")
	}
}

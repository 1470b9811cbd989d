// Package server binds ioengine.Engine callbacks to the HTTP framer, wire
// protocol, and executor: Accept -> Recv -> parse -> dispatch -> format
// -> Send -> Recv, one submission resolving exactly once per round trip.
// Grounded on _examples/original_source/hiisi-server/src/server.rs and
// admin.rs's on_accept/on_recv/on_send control flow, adapted from Rust
// function pointers to Go closures over *Context.
package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/oriys/hiisid/internal/executor"
	"github.com/oriys/hiisid/internal/hiisierr"
	"github.com/oriys/hiisid/internal/httpframe"
	"github.com/oriys/hiisid/internal/ioengine"
	"github.com/oriys/hiisid/internal/logging"
	"github.com/oriys/hiisid/internal/manager"
	"github.com/oriys/hiisid/internal/proto"
	"github.com/oriys/hiisid/internal/ratelimit"
	"github.com/oriys/hiisid/internal/tenant"
)

// Metrics is the subset of internal/metrics.Metrics the server touches,
// kept as an interface so tests can run without a Prometheus registry.
type Metrics interface {
	ObservePipelineRequest()
	ObservePipelineError(code string)
	ObserveIOCompletion(kind string)
	SetCacheSizes(dbCache, connCache int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePipelineRequest()     {}
func (noopMetrics) ObservePipelineError(string) {}
func (noopMetrics) ObserveIOCompletion(string)  {}
func (noopMetrics) SetCacheSizes(int, int)      {}

// Context is the per-loop state every engine callback closes over.
type Context struct {
	Manager *manager.Manager
	Limiter *ratelimit.Limiter // nil disables rate limiting
	Metrics Metrics
	DBPath  string

	conns map[int]*connState
}

type connState struct {
	buf []byte
}

// NewContext builds a Context. limiter may be nil to disable rate
// limiting; m may be nil to disable metrics observation.
func NewContext(mgr *manager.Manager, limiter *ratelimit.Limiter, m Metrics, dbPath string) *Context {
	if m == nil {
		m = noopMetrics{}
	}
	return &Context{Manager: mgr, Limiter: limiter, Metrics: m, DBPath: dbPath, conns: make(map[int]*connState)}
}

// Serve arms a one-shot Accept on listenFD, re-arming itself after every
// accepted connection so the listener never goes idle.
func Serve(eng ioengine.Engine[*Context], listenFD int) {
	eng.Accept(listenFD, onAccept)
}

func onAccept(eng ioengine.Engine[*Context], listenFD, connFD int) {
	eng.Context().Metrics.ObserveIOCompletion("accept")
	eng.Accept(listenFD, onAccept)
	if connFD < 0 {
		return
	}
	eng.Recv(connFD, onRecv)
}

func onRecv(eng ioengine.Engine[*Context], fd int, buf []byte, err error) {
	ctx := eng.Context()
	ctx.Metrics.ObserveIOCompletion("recv")
	if err != nil || len(buf) == 0 {
		delete(ctx.conns, fd)
		eng.Close(fd)
		return
	}

	st := ctx.conns[fd]
	if st == nil {
		st = &connState{}
		ctx.conns[fd] = st
	}
	st.buf = append(st.buf, buf...)

	req, perr := httpframe.ParseRequest(st.buf)
	if perr == httpframe.ErrIncomplete {
		eng.Recv(fd, onRecv)
		return
	}
	if perr != nil {
		replyAndKeepAlive(eng, fd, httpframe.PlainTextResponse(400, perr.Error()))
		ctx.conns[fd] = &connState{}
		return
	}
	if len(req.Body) < req.ContentLength() {
		eng.Recv(fd, onRecv)
		return
	}

	ctx.conns[fd] = &connState{}
	resp := handle(ctx, req)
	replyAndKeepAlive(eng, fd, resp)
}

func replyAndKeepAlive(eng ioengine.Engine[*Context], fd int, resp []byte) {
	eng.Send(fd, resp, func(eng ioengine.Engine[*Context], fd int, n int, err error) {
		eng.Context().Metrics.ObserveIOCompletion("send")
		if err != nil {
			delete(eng.Context().conns, fd)
			eng.Close(fd)
			return
		}
		eng.Recv(fd, onRecv)
	})
}

// handle routes a parsed request to its handler and always returns a
// formatted HTTP response; errors are reported as HTTP responses rather
// than propagated, matching admin.rs's execute_request/format_response
// error path.
func handle(ctx *Context, req *httpframe.Request) []byte {
	segments := httpframe.PathSegments(req.Path)

	switch {
	case req.Method == "POST" && req.Path == "/v2/pipeline":
		return handlePipeline(ctx, req)
	case req.Method == "POST" && len(segments) == 4 && segments[0] == "v1" && segments[1] == "namespaces" && segments[3] == "create":
		return handleCreateNamespace(ctx, segments[2])
	case req.Method == "GET" && len(segments) == 2 && segments[0] == "v1" && segments[1] == "namespaces":
		return handleListNamespaces(ctx)
	default:
		return httpframe.PlainTextResponse(404, "not found")
	}
}

func handlePipeline(ctx *Context, req *httpframe.Request) []byte {
	host, _ := req.Get("Host")
	namespace := tenant.FromHost(host)
	if !tenant.Valid(namespace) {
		return errorResponse(ctx, 400, namespace, hiisierr.Protocol("invalid namespace %q", namespace))
	}
	if ctx.Limiter != nil && !ctx.Limiter.Allow(namespace) {
		return httpframe.PlainTextResponse(429, "rate limit exceeded")
	}

	pipelineReq, err := proto.ParseRequest(req.Body)
	if err != nil {
		return errorResponse(ctx, 400, namespace, asHiisiErr(err))
	}

	ctx.Metrics.ObservePipelineRequest()
	resp, err := executor.ExecuteClientReq(context.Background(), ctx.Manager, namespace, pipelineReq)
	if err != nil {
		return errorResponse(ctx, 500, namespace, asHiisiErr(err))
	}
	for _, r := range resp.Results {
		if r.Err != nil {
			ctx.Metrics.ObservePipelineError(r.Err.Code)
		}
	}

	body, err := proto.FormatResponse(resp)
	if err != nil {
		return errorResponse(ctx, 500, namespace, hiisierr.Internal("encode response: %v", err))
	}
	ctx.Metrics.SetCacheSizes(ctx.Manager.DBCacheLen(), ctx.Manager.ConnCacheLen())
	return httpframe.JSONResponse(200, body)
}

func handleCreateNamespace(ctx *Context, name string) []byte {
	if !tenant.Valid(name) {
		return errorResponse(ctx, 400, name, hiisierr.Protocol("invalid namespace %q", name))
	}
	if err := ctx.Manager.CreateDatabase(name); err != nil {
		return errorResponse(ctx, 500, name, hiisierr.Internal("create database: %v", err))
	}
	return httpframe.PlainTextResponse(200, "")
}

func handleListNamespaces(ctx *Context) []byte {
	entries, err := os.ReadDir(ctx.DBPath)
	if err != nil {
		return errorResponse(ctx, 500, "", hiisierr.Internal("list namespaces: %v", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, filepath.Base(e.Name()))
		}
	}
	body, _ := json.Marshal(struct {
		Namespaces []string `json:"namespaces"`
	}{names})
	return httpframe.JSONResponse(200, body)
}

func errorResponse(ctx *Context, status int, namespace string, e *hiisierr.Error) []byte {
	logger := logging.Op()
	if namespace != "" {
		logger = logging.ForNamespace(namespace)
	}
	logger.Warn("request failed", "status", status, "code", string(e.Code), "error", e.Message)
	return httpframe.PlainTextResponse(status, e.Message)
}

func asHiisiErr(err error) *hiisierr.Error {
	if e, ok := hiisierr.As(err); ok {
		return e
	}
	return hiisierr.Internal("%v", err)
}

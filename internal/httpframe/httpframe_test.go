package httpframe

import (
	"strings"
	"testing"
)

func TestParseRequestParsesLineHeadersAndBody(t *testing.T) {
	raw := "POST /v2/pipeline HTTP/1.1\r\nHost: localhost\r\nContent-Length: 5\r\n\r\nhello"
	req, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Method != "POST" || req.Path != "/v2/pipeline" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %+v", req)
	}
	if v, ok := req.Get("host"); !ok || v != "localhost" {
		t.Fatalf("Get(host) = %q, %v", v, ok)
	}
	if req.ContentLength() != 5 {
		t.Fatalf("ContentLength() = %d, want 5", req.ContentLength())
	}
	if string(req.Body) != "hello" {
		t.Fatalf("Body = %q, want %q", req.Body, "hello")
	}
}

func TestParseRequestReturnsIncompleteWithoutTerminator(t *testing.T) {
	_, err := ParseRequest([]byte("POST /v2/pipeline HTTP/1.1\r\nHost: localhost\r\n"))
	if err != ErrIncomplete {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
}

func TestParseRequestRejectsMalformedRequestLine(t *testing.T) {
	_, err := ParseRequest([]byte("GARBAGE\r\n\r\n"))
	if err == nil {
		t.Fatal("expected an error for a malformed request line")
	}
}

func TestPathSegmentsSplitsAndStripsQuery(t *testing.T) {
	got := PathSegments("/v1/namespaces/foo/create?x=1")
	want := []string{"v1", "namespaces", "foo", "create"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFormatResponseIncludesContentLengthAndBody(t *testing.T) {
	out := string(JSONResponse(200, []byte(`{"ok":true}`)))
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 11\r\n") {
		t.Fatalf("missing Content-Length: %q", out)
	}
	if !strings.HasSuffix(out, `{"ok":true}`) {
		t.Fatalf("unexpected body: %q", out)
	}
}

func TestPlainTextResponseUsesTextContentType(t *testing.T) {
	out := string(PlainTextResponse(500, "boom"))
	if !strings.Contains(out, "Content-Type: text/plain") {
		t.Fatalf("missing content type: %q", out)
	}
	if !strings.HasSuffix(out, "boom") {
		t.Fatalf("unexpected body: %q", out)
	}
}

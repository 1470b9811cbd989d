package main

import (
	"strings"
	"testing"
)

func TestBodyRequestSetsContentLength(t *testing.T) {
	body := `{"a":1}`
	raw := bodyRequest(body)
	if !strings.HasPrefix(raw, "POST /v2/pipeline HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", raw)
	}
	if !strings.Contains(raw, "Content-Length: 7\r\n") {
		t.Fatalf("missing Content-Length: %q", raw)
	}
	if !strings.HasSuffix(raw, body) {
		t.Fatalf("missing body: %q", raw)
	}
}

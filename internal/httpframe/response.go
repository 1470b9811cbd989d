package httpframe

import (
	"bytes"
	"fmt"
	"net/http"
)

// FormatResponse renders an HTTP/1.1 response with a Content-Length
// header and the given extra headers, matching http.rs's
// format_response's wire shape (status line, headers, blank line, body).
func FormatResponse(status int, extraHeaders []Header, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	for _, h := range extraHeaders {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.Name, h.Value)
	}
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	return buf.Bytes()
}

// JSONResponse renders a response whose body is a JSON document.
func JSONResponse(status int, body []byte) []byte {
	return FormatResponse(status, []Header{{Name: "Content-Type", Value: "application/json"}}, body)
}

// PlainTextResponse renders a response whose body is plain text, used
// for admin-route errors and empty acknowledgements.
func PlainTextResponse(status int, body string) []byte {
	return FormatResponse(status, []Header{{Name: "Content-Type", Value: "text/plain; charset=utf-8"}}, []byte(body))
}

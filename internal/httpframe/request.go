// Package httpframe parses and formats HTTP/1.1 request/response framing
// on raw byte slices instead of net/http, since the server drives
// sockets itself through an ioengine.Engine rather than net.Listener.
// Grounded on hiisi-server/src/http.rs's format_response and
// src/server.rs / src/admin.rs's httparse-based parse_request, with the
// header-scanning loop written by hand in place of httparse (no
// equivalent zero-copy HTTP header scanner is wired elsewhere in this
// module's dependency surface).
package httpframe

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrIncomplete is returned when buf does not yet contain a full
// request head (the \r\n\r\n terminator hasn't arrived). Callers should
// keep buffering and retry once more bytes are available.
var ErrIncomplete = errors.New("httpframe: incomplete request")

// Request is a parsed request line plus headers. Body is whatever
// follows the blank line that terminated the head within buf; it is not
// guaranteed to be the full body if Content-Length exceeds len(Body).
type Request struct {
	Method  string
	Path    string
	Version string
	Headers []Header
	Body    []byte
}

// Header is one raw header field, name exactly as received.
type Header struct {
	Name  string
	Value string
}

// Get returns the first header matching name, case-insensitively.
func (r *Request) Get(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ContentLength returns the parsed Content-Length header, or 0 if absent
// or unparsable.
func (r *Request) ContentLength() int {
	v, ok := r.Get("Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseRequest scans buf for one HTTP/1.1 request head (request line +
// headers terminated by a blank line). It returns ErrIncomplete if buf
// doesn't yet hold a full head, so a caller reading from a socket
// incrementally can just keep appending and retrying.
func ParseRequest(buf []byte) (*Request, error) {
	headEnd := bytes.Index(buf, []byte("\r\n\r\n"))
	if headEnd < 0 {
		return nil, ErrIncomplete
	}
	head := buf[:headEnd]
	body := buf[headEnd+4:]

	lines := bytes.Split(head, []byte("\r\n"))
	if len(lines) == 0 {
		return nil, fmt.Errorf("httpframe: empty request head")
	}

	method, path, version, err := parseRequestLine(string(lines[0]))
	if err != nil {
		return nil, err
	}

	req := &Request{Method: method, Path: path, Version: version, Body: body}
	for _, line := range lines[1:] {
		if len(line) == 0 {
			continue
		}
		h, err := parseHeaderLine(string(line))
		if err != nil {
			return nil, err
		}
		req.Headers = append(req.Headers, h)
	}
	return req, nil
}

func parseRequestLine(line string) (method, path, version string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("httpframe: malformed request line %q", line)
	}
	return parts[0], parts[1], parts[2], nil
}

func parseHeaderLine(line string) (Header, error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return Header{}, fmt.Errorf("httpframe: malformed header line %q", line)
	}
	return Header{Name: strings.TrimSpace(line[:i]), Value: strings.TrimSpace(line[i+1:])}, nil
}

// PathSegments splits an absolute request path into its non-empty
// "/"-delimited segments, e.g. "/v1/namespaces/foo/create" ->
// ["v1","namespaces","foo","create"].
func PathSegments(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

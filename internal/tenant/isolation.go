// Package tenant identifies the namespace ("db_name") that an incoming
// request belongs to, and centralizes the sentinel errors that isolation
// violations are reported with. The resource manager keys its connection
// cache by (namespace, baton) precisely so that two tenants never observe
// each other's data even if their clients coincidentally reuse the same
// baton string.
package tenant

import (
	"errors"
	"strings"
)

// Standard sentinel errors for tenant isolation violations.
var (
	// ErrNamespaceNotFound is returned when a path-derived namespace is empty.
	ErrNamespaceNotFound = errors.New("tenant: namespace not found")

	// ErrInvalidNamespace is returned when a namespace name contains
	// characters that would escape its on-disk directory.
	ErrInvalidNamespace = errors.New("tenant: invalid namespace name")
)

// DefaultNamespace is used when the Host header carries no tenant label.
const DefaultNamespace = "default"

// Scope identifies the namespace an operation is bound to.
type Scope struct {
	Namespace string
}

// FromHost derives the effective namespace from an HTTP Host header: the
// first label of a multi-label host, else DefaultNamespace.
func FromHost(host string) string {
	host = stripPort(host)
	labels := strings.Split(host, ".")
	if len(labels) > 1 && labels[0] != "" {
		return labels[0]
	}
	return DefaultNamespace
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// Valid reports whether name is safe to use as a single path component
// under the database root (no separators, no "." / "..").
func Valid(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}

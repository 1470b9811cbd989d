// Package ioengine defines the single-threaded, callback-driven I/O
// interface the server glue drives its event loop through. Two backends
// implement it: ioengine/epoll, a real golang.org/x/sys/unix EPOLL
// reactor, and ioengine/sim, a deterministic in-process backend for
// tests. Grounded on hiisi-server/src/io/{generic,simulation}.rs's
// IO<C>: one poll-and-dispatch loop (RunOnce), one submission keyed by a
// monotonically increasing sequence number, and callbacks that receive
// the engine back so a handler can queue its next operation inline.
package ioengine

import "context"

// Engine is the reactor a server drives. C is caller-defined per-loop
// context (e.g. the resource manager and router), threaded through every
// callback so handlers need no package-level state.
type Engine[C any] interface {
	// Context returns the value RunOnce's callbacks close over.
	Context() C

	// RunOnce blocks for at most one polling interval, then dispatches
	// every completion that became ready. It returns ctx.Err() once ctx
	// is done and no further polling should occur.
	RunOnce(ctx context.Context) error

	// Accept arms a one-shot accept on the listening file descriptor
	// fd. cb fires with the newly accepted connection's descriptor.
	Accept(fd int, cb AcceptCallback[C])

	// Recv arms a one-shot read on fd. cb fires with whatever bytes
	// were available, or a zero-length slice on EOF.
	Recv(fd int, cb RecvCallback[C])

	// Send arms a one-shot write of buf on fd. cb fires with the
	// number of bytes actually written.
	Send(fd int, buf []byte, cb SendCallback[C])

	// Close releases fd and any submissions pending against it.
	Close(fd int)
}

// AcceptCallback runs when a listening descriptor accepts a connection.
type AcceptCallback[C any] func(eng Engine[C], listenFD, connFD int)

// RecvCallback runs when a read completes. err is non-nil only on a
// genuine I/O failure; a clean EOF reports a zero-length buf with a nil
// err, matching hiisi-server/src/io/generic.rs's recv completion.
type RecvCallback[C any] func(eng Engine[C], fd int, buf []byte, err error)

// SendCallback runs when a write completes.
type SendCallback[C any] func(eng Engine[C], fd int, n int, err error)

// Run drives eng's RunOnce loop until ctx is cancelled.
func Run[C any](ctx context.Context, eng Engine[C]) error {
	for {
		if err := eng.RunOnce(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Package sim implements ioengine.Engine as a deterministic, in-process
// backend with no real sockets: Send on one fd enqueues directly onto the
// matching peer fd's pending-recv queue, and RunOnce drains queued
// completions in an order shuffled by a seeded PRNG. Grounded on
// hiisi-server/src/io/simulation.rs's IO<C>, whose listener_sockets /
// conn_sockets / accept_listeners / recv_listeners maps and per-socket
// xmit_queue this mirrors with plain fd ints instead of socket2::Socket
// handles. Reordering across runs is driven by the SEED environment
// variable via math/rand/v2 so a failing run can be reproduced exactly.
package sim

import (
	"context"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/oriys/hiisid/internal/ioengine"
)

type pendingAccept[C any] struct {
	listenFD int
	cb       ioengine.AcceptCallback[C]
}

type pendingRecv[C any] struct {
	fd int
	cb ioengine.RecvCallback[C]
}

type completion[C any] func(e *Engine[C])

// Engine is a deterministic ioengine.Engine[C] for tests and simulation
// runs, with no real kernel sockets.
type Engine[C any] struct {
	context C
	rng     *rand.Rand

	nextFD int
	peer   map[int]int // fd -> the fd reads/writes on this fd are delivered to/from

	accepts map[int]pendingAccept[C]
	recvs   map[int]pendingRecv[C]
	// queued holds bytes written to a fd whose peer has no pending Recv
	// armed yet, delivered as soon as one is.
	queued map[int][][]byte

	completions []completion[C]
}

// New creates a simulation Engine seeded from the SEED environment
// variable (any integer), or an arbitrary fixed seed if SEED is unset or
// unparsable, so unset-SEED runs are still reproducible across restarts.
func New[C any](context C) *Engine[C] {
	seed := uint64(1)
	if s := os.Getenv("SEED"); s != "" {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			seed = v
		}
	}
	return &Engine[C]{
		context: context,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		nextFD:  1,
		peer:    make(map[int]int),
		accepts: make(map[int]pendingAccept[C]),
		recvs:   make(map[int]pendingRecv[C]),
		queued:  make(map[int][][]byte),
	}
}

func (e *Engine[C]) Context() C { return e.context }

// NewListener allocates a fresh listening fd with no peer.
func (e *Engine[C]) NewListener() int {
	fd := e.nextFD
	e.nextFD++
	return fd
}

// Connect simulates a client connecting to listenFD: it allocates a
// client/server fd pair, wires them as each other's peer, and schedules
// the listener's pending Accept (if armed) to fire with the server side.
func (e *Engine[C]) Connect(listenFD int) (clientFD int) {
	serverFD := e.nextFD
	e.nextFD++
	clientFD = e.nextFD
	e.nextFD++
	e.peer[serverFD] = clientFD
	e.peer[clientFD] = serverFD
	if acc, ok := e.accepts[listenFD]; ok {
		delete(e.accepts, listenFD)
		e.completions = append(e.completions, func(e *Engine[C]) {
			acc.cb(e, listenFD, serverFD)
		})
	}
	return clientFD
}

func (e *Engine[C]) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(e.completions) == 0 {
		return nil
	}
	// Shuffle so tests exercise out-of-order completion delivery, the
	// same property the reactor backend gives for free under real load.
	e.rng.Shuffle(len(e.completions), func(i, j int) {
		e.completions[i], e.completions[j] = e.completions[j], e.completions[i]
	})
	pending := e.completions
	e.completions = nil
	for _, c := range pending {
		c(e)
	}
	return nil
}

func (e *Engine[C]) Accept(fd int, cb ioengine.AcceptCallback[C]) {
	e.accepts[fd] = pendingAccept[C]{listenFD: fd, cb: cb}
}

func (e *Engine[C]) Recv(fd int, cb ioengine.RecvCallback[C]) {
	if bufs := e.queued[fd]; len(bufs) > 0 {
		buf := bufs[0]
		e.queued[fd] = bufs[1:]
		e.completions = append(e.completions, func(e *Engine[C]) {
			cb(e, fd, buf, nil)
		})
		return
	}
	e.recvs[fd] = pendingRecv[C]{fd: fd, cb: cb}
}

func (e *Engine[C]) Send(fd int, buf []byte, cb ioengine.SendCallback[C]) {
	peerFD, hasPeer := e.peer[fd]
	n := len(buf)
	if hasPeer {
		if pr, ok := e.recvs[peerFD]; ok {
			delete(e.recvs, peerFD)
			cpy := append([]byte(nil), buf...)
			e.completions = append(e.completions, func(e *Engine[C]) {
				pr.cb(e, peerFD, cpy, nil)
			})
		} else {
			e.queued[peerFD] = append(e.queued[peerFD], append([]byte(nil), buf...))
		}
	}
	e.completions = append(e.completions, func(e *Engine[C]) {
		cb(e, fd, n, nil)
	})
}

func (e *Engine[C]) Close(fd int) {
	delete(e.recvs, fd)
	delete(e.accepts, fd)
	delete(e.queued, fd)
	if peerFD, ok := e.peer[fd]; ok {
		delete(e.peer, fd)
		delete(e.peer, peerFD)
	}
}

var _ ioengine.Engine[struct{}] = (*Engine[struct{}])(nil)

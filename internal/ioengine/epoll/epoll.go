// Package epoll implements ioengine.Engine with a real
// golang.org/x/sys/unix EPOLL reactor: one epoll instance, one submission
// table keyed by a monotonically increasing sequence number (so a stale
// wakeup can never be mistaken for a newer submission on a reused fd),
// and a fixed scratch buffer that every read lands in, so each Recv
// allocates only the bytes actually read. Grounded on hiisi-server/src/io/generic.rs's IO<C> and on
// the submission/tag-state bookkeeping style of go-ublk's queue runner.
package epoll

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/oriys/hiisid/internal/ioengine"
)

const (
	pollTimeoutMs = 500
	recvBufSize   = 64 * 1024
	maxEvents     = 256
)

type opKind int

const (
	opAccept opKind = iota
	opRecv
	opSend
)

type submission[C any] struct {
	kind   opKind
	fd     int
	buf    []byte
	accept ioengine.AcceptCallback[C]
	recv   ioengine.RecvCallback[C]
	send   ioengine.SendCallback[C]
}

// Engine is an epoll-backed ioengine.Engine[C].
type Engine[C any] struct {
	epfd    int
	context C
	scratch [recvBufSize]byte

	keySeq      uint64
	submissions map[uint64]submission[C]
	// fdKeys tracks the live submission key registered against each fd's
	// epoll interest, so Close can unregister it even if it never fires.
	fdKeys map[int]uint64

	events [maxEvents]unix.EpollEvent
}

// New creates an Engine whose callbacks close over context.
func New[C any](context C) (*Engine[C], error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Engine[C]{
		epfd:        epfd,
		context:     context,
		submissions: make(map[uint64]submission[C]),
		fdKeys:      make(map[int]uint64),
	}, nil
}

func (e *Engine[C]) Context() C { return e.context }

// Shutdown releases the underlying epoll file descriptor. Call once the
// event loop has stopped.
func (e *Engine[C]) Shutdown() error {
	return unix.Close(e.epfd)
}

func (e *Engine[C]) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := unix.EpollWait(e.epfd, e.events[:], pollTimeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		key := e.events[i].Fd // packed key, see arm()
		sub, ok := e.submissions[uint64(key)]
		if !ok {
			continue
		}
		delete(e.submissions, uint64(key))
		delete(e.fdKeys, sub.fd)
		_ = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, sub.fd, nil)
		e.complete(sub)
	}
	return nil
}

func (e *Engine[C]) complete(sub submission[C]) {
	switch sub.kind {
	case opAccept:
		connFD, _, err := unix.Accept4(sub.fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		if err != nil {
			sub.accept(e, sub.fd, -1)
			return
		}
		sub.accept(e, sub.fd, connFD)
	case opRecv:
		n, err := unix.Read(sub.fd, e.scratch[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			sub.recv(e, sub.fd, nil, err)
			return
		}
		buf := make([]byte, n)
		copy(buf, e.scratch[:n])
		sub.recv(e, sub.fd, buf, nil)
	case opSend:
		n, err := unix.Write(sub.fd, sub.buf)
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			sub.send(e, sub.fd, n, err)
			return
		}
		sub.send(e, sub.fd, n, nil)
	}
}

func (e *Engine[C]) arm(fd int, events uint32, sub submission[C]) {
	key := e.keySeq
	e.keySeq++
	e.submissions[key] = sub
	e.fdKeys[fd] = key
	ev := unix.EpollEvent{Events: events, Fd: int32(key)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		delete(e.submissions, key)
		delete(e.fdKeys, fd)
	}
}

func (e *Engine[C]) Accept(fd int, cb ioengine.AcceptCallback[C]) {
	e.arm(fd, unix.EPOLLIN, submission[C]{kind: opAccept, fd: fd, accept: cb})
}

func (e *Engine[C]) Recv(fd int, cb ioengine.RecvCallback[C]) {
	e.arm(fd, unix.EPOLLIN, submission[C]{kind: opRecv, fd: fd, recv: cb})
}

func (e *Engine[C]) Send(fd int, buf []byte, cb ioengine.SendCallback[C]) {
	e.arm(fd, unix.EPOLLOUT, submission[C]{kind: opSend, fd: fd, buf: buf, send: cb})
}

func (e *Engine[C]) Close(fd int) {
	if key, ok := e.fdKeys[fd]; ok {
		delete(e.submissions, key)
		delete(e.fdKeys, fd)
		_ = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	_ = unix.Close(fd)
}

// Listen creates a non-blocking IPv4 TCP listening socket bound to addr
// ("host:port"), with SO_REUSEADDR set, matching main.rs's listen() (bind,
// set_reuse_port, listen(128)) but over a plain host:port string instead
// of a pre-parsed socket2::SockAddr.
func Listen(addr string) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, fmt.Errorf("split host:port: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("parse port: %w", err)
	}
	var ip [4]byte
	if host == "" {
		ip = [4]byte{0, 0, 0, 0}
	} else {
		addrs, err := net.LookupIP(host)
		if err != nil {
			return -1, fmt.Errorf("resolve %q: %w", host, err)
		}
		v4 := addrs[0].To4()
		if v4 == nil {
			return -1, fmt.Errorf("%q does not resolve to an IPv4 address", host)
		}
		copy(ip[:], v4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: ip}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

var _ ioengine.Engine[struct{}] = (*Engine[struct{}])(nil)

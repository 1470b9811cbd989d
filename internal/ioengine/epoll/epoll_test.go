package epoll

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/oriys/hiisid/internal/ioengine"
)

func newTestEngine(t *testing.T) *Engine[struct{}] {
	t.Helper()
	eng, err := New[struct{}](struct{}{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { eng.Shutdown() })
	return eng
}

func runUntil(t *testing.T, eng *Engine[struct{}], done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !done() {
		if err := eng.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestRecvDeliversWrittenBytes(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	eng := newTestEngine(t)

	var got []byte
	var recvErr error
	fired := false
	eng.Recv(fds[0], func(e ioengine.Engine[struct{}], fd int, buf []byte, err error) {
		got, recvErr, fired = buf, err, true
	})

	if _, err := unix.Write(fds[1], []byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	runUntil(t, eng, func() bool { return fired })

	if recvErr != nil {
		t.Fatalf("unexpected recv error: %v", recvErr)
	}
	if string(got) != "ping" {
		t.Fatalf("got %q, want %q", got, "ping")
	}
	unix.Close(fds[1])
	eng.Close(fds[0])
}

func TestAcceptDeliversConnectedPeer(t *testing.T) {
	listenFD, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	sockPath := t.TempDir() + "/s.sock"
	if err := unix.Bind(listenFD, &unix.SockaddrUnix{Name: sockPath}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := unix.Listen(listenFD, 1); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	eng := newTestEngine(t)
	var connFD int = -1
	fired := false
	eng.Accept(listenFD, func(e ioengine.Engine[struct{}], lfd, cfd int) {
		connFD, fired = cfd, true
	})

	clientFD, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("client Socket: %v", err)
	}
	_ = unix.Connect(clientFD, &unix.SockaddrUnix{Name: sockPath})
	runUntil(t, eng, func() bool { return fired })

	if connFD < 0 {
		t.Fatal("expected a non-negative accepted fd")
	}
	unix.Close(clientFD)
	unix.Close(listenFD)
	eng.Close(connFD)
}

func TestCloseUnregistersPendingSubmission(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	eng := newTestEngine(t)

	eng.Recv(fds[0], func(e ioengine.Engine[struct{}], fd int, buf []byte, err error) {
		t.Fatal("recv callback should never fire after Close")
	})
	eng.Close(fds[0])

	if _, err := unix.Write(fds[1], []byte("too late")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := eng.RunOnce(ctx); err != nil && ctx.Err() == nil {
		t.Fatalf("RunOnce: %v", err)
	}
	unix.Close(fds[1])
}

package socketpair

import (
	"net"
	"testing"
)

func TestNewCreatesConnectedPair(t *testing.T) {
	parentConn, childFile, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer parentConn.Close()
	defer childFile.Close()

	childConn, err := net.FileConn(childFile)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	defer childConn.Close()

	const msg = "ping"
	if _, err := parentConn.Write([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := childConn.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != msg {
		t.Fatalf("got %q, want %q", buf, msg)
	}
}

func TestCloseWriteHalfCloses(t *testing.T) {
	parentConn, childFile, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer parentConn.Close()
	defer childFile.Close()

	childConn, err := net.FileConn(childFile)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	defer childConn.Close()

	if err := parentConn.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	buf := make([]byte, 1)
	n, err := childConn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF on half-closed peer, got n=%d err=%v", n, err)
	}
}

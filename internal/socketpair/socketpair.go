// Package socketpair creates the bidirectional byte-stream a parent and a
// previously-forked child process share, backed by a real AF_UNIX
// SOCK_STREAM socketpair. Grounded on golang.org/x/sys/unix.Socketpair,
// the same dependency the pack's aghassemi-go.ref/lib/unixfd package
// builds its own hand-rolled socketpair helper on top of.
package socketpair

import (
	"fmt"
	"net"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Pair is one end of a socketpair-backed connection, wrapped as a
// *net.UnixConn so it satisfies both parent.Conn (Read/Write/CloseWrite/
// Close) and child.Conn (Read/Write/Close).
type Pair struct {
	*net.UnixConn
}

// New creates a connected AF_UNIX SOCK_STREAM pair. The returned child file
// is meant to be handed to exec.Cmd.ExtraFiles (see Spawn) so the forked
// process inherits its end across exec; the parent keeps parentConn.
func New() (parentConn *Pair, childFile *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	parentFile := os.NewFile(uintptr(fds[0]), "forkrpc-parent")
	childFile = os.NewFile(uintptr(fds[1]), "forkrpc-child")

	conn, err := net.FileConn(parentFile)
	if err != nil {
		parentFile.Close()
		childFile.Close()
		return nil, nil, fmt.Errorf("socketpair: wrapping parent fd: %w", err)
	}
	_ = parentFile.Close() // net.FileConn dup'd the fd; the original is no longer needed

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		childFile.Close()
		return nil, nil, fmt.Errorf("socketpair: unexpected conn type %T", conn)
	}

	return &Pair{UnixConn: unixConn}, childFile, nil
}

// Spawn starts command with childFile inherited as fd 3 (the first entry of
// ExtraFiles) and returns the running process. The caller must close
// childFile once the subprocess has started; the child process keeps its
// own duplicated copy of the descriptor.
func Spawn(name string, args []string, childFile *os.File) (*exec.Cmd, error) {
	cmd := exec.Command(name, args...)
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("socketpair: starting child: %w", err)
	}
	return cmd, nil
}

// ChildConn reconstructs the child's end of the pair from the inherited fd
// 3, for use inside the forked/exec'd process itself.
func ChildConn() (*Pair, error) {
	const inheritedFD = 3
	f := os.NewFile(uintptr(inheritedFD), "forkrpc-child")
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("socketpair: wrapping inherited fd %d: %w", inheritedFD, err)
	}
	_ = f.Close()
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("socketpair: unexpected conn type %T", conn)
	}
	return &Pair{UnixConn: unixConn}, nil
}


// Package parent implements the ParentEngine: the single-threaded
// event-loop-driven dispatcher that owns the socket, the pending-reply
// table, and the shutdown state machine.
package parent

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sadewadee/forkrpc/internal/rpcmode"
	"github.com/sadewadee/forkrpc/internal/wire"
)

// Conn is the bidirectional byte-stream the engine drives. A *net.UnixConn
// (as returned by the socketpair transport, see internal/socketpair)
// satisfies it; any stream socket with a half-close does.
type Conn interface {
	io.Reader
	io.Writer
	// CloseWrite half-closes the write direction without closing the
	// read direction, used during drain-and-close.
	CloseWrite() error
	Close() error
}

// state values for Engine.state.
const (
	stateRunning int32 = iota
	stateShuttingDown
	stateClosed
)

// Engine is the running ParentEngine for one connection. Construct one with
// Spawn.
type Engine struct {
	conn   Conn
	mode   rpcmode.Mode
	endian wire.Endianness
	opts   Options

	cmds    chan func(*ownerState)
	frameCh chan readerEvent
	outbox  chan []byte

	state    int32 // atomic, one of state* consts — best-effort precondition check for Invoke
	closedCh chan struct{}

	closeOnce       sync.Once
	outboxCloseOnce sync.Once
}

func (e *Engine) closeOutbox() {
	e.outboxCloseOnce.Do(func() { close(e.outbox) })
}

// readerEvent is what the reader goroutine posts to the owner goroutine.
type readerEvent struct {
	frame wire.Frame
	eof   bool
	err   error
}

// ownerState is mutated exclusively by the engine's owner goroutine, which
// serializes every pending-table and state-machine change instead of
// protecting them with a mutex.
type ownerState struct {
	pending     pendingSet
	released    bool
	eofSeen     bool
	terminal    bool // set once the owner loop should stop
	destroyed   bool
	errorFired  bool
}

// Spawn takes ownership of conn and starts the parent engine's reader,
// writer, and owner goroutines. It returns a Handle immediately; Spawn
// itself never blocks.
func Spawn(conn Conn, opts ...Option) *Handle {
	o := NewOptions(opts...)

	e := &Engine{
		conn:     conn,
		mode:     o.Mode,
		endian:   o.Endianness,
		opts:     o,
		cmds:     make(chan func(*ownerState), 64),
		frameCh:  make(chan readerEvent, 64),
		outbox:   make(chan []byte, 64),
		closedCh: make(chan struct{}),
	}

	go e.readerLoop()
	go e.writerLoop()
	go e.run()

	return &Handle{eng: e}
}

func newPendingSetFor(mode rpcmode.Mode) pendingSet {
	if mode == rpcmode.Blocking {
		return newBlockingPending()
	}
	return newCooperativePending()
}

func (e *Engine) readerLoop() {
	rb := wire.NewReadBuffer()
	for {
		tail := rb.Grow()
		n, err := e.conn.Read(tail)
		if n > 0 {
			rb.Produced(n)
			for {
				consumed, frame, ok, derr := wire.DecodeResponse(rb.Unread(), e.endian)
				if derr != nil {
					e.frameCh <- readerEvent{err: derr}
					return
				}
				if !ok {
					break
				}
				rb.Advance(consumed)
				// The owner decodes the payload later, after this loop has
				// read more bytes into rb, so detach it from the buffer.
				frame.Payload = append([]byte(nil), frame.Payload...)
				e.frameCh <- readerEvent{frame: frame}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.frameCh <- readerEvent{eof: true}
			} else {
				e.frameCh <- readerEvent{err: err}
			}
			return
		}
	}
}

func (e *Engine) writerLoop() {
	var wb wire.WriteBuffer
	for {
		p, ok := <-e.outbox
		if ok {
			wb.Enqueue(p)
		}
		for !wb.Empty() {
			if _, err := wb.Drain(e.conn); err != nil {
				e.frameCh <- readerEvent{err: fmt.Errorf("writing request: %w", err)}
				return
			}
		}
		if !ok {
			_ = e.conn.CloseWrite()
			return
		}
	}
}

func (e *Engine) run() {
	st := &ownerState{pending: newPendingSetFor(e.mode)}
	for !st.terminal {
		select {
		case cmd := <-e.cmds:
			cmd(st)
		case ev := <-e.frameCh:
			e.handleReaderEvent(st, ev)
		}
	}
	atomic.StoreInt32(&e.state, stateClosed)
	e.closeOutbox()
	_ = e.conn.Close()
	close(e.closedCh)
}

func (e *Engine) handleReaderEvent(st *ownerState, ev readerEvent) {
	switch {
	case ev.err != nil:
		e.fail(st, ev.err.Error())
	case ev.eof:
		st.eofSeen = true
		if st.pending.len() > 0 {
			e.fail(st, "unexpected eof")
			return
		}
		if st.released {
			e.fireDestroy(st)
		}
	default:
		e.dispatch(st, ev.frame)
	}
}

func (e *Engine) dispatch(st *ownerState, f wire.Frame) {
	if f.Kind == wire.KindEvent {
		if e.opts.OnEvent != nil {
			values, err := e.opts.Serializer.Decode(f.Payload)
			if err != nil {
				e.fail(st, fmt.Sprintf("decoding event payload: %v", err))
				return
			}
			e.opts.OnEvent(values)
		}
		return
	}

	cb, ok := st.pending.resolve(f.ID)
	if !ok {
		e.fail(st, "unexpected data from child")
		return
	}
	values, err := e.opts.Serializer.Decode(f.Payload)
	if err != nil {
		e.fail(st, fmt.Sprintf("decoding response payload: %v", err))
		return
	}
	cb(values)

	if st.released && st.pending.len() == 0 && st.eofSeen {
		e.fireDestroy(st)
	}
}

// fail transitions to Closed, fires on_error at most once, and drops every
// outstanding reply silently.
func (e *Engine) fail(st *ownerState, msg string) {
	if st.errorFired || st.destroyed {
		return
	}
	st.errorFired = true
	st.pending.drain() // orphaned; no per-call error delivery once the connection has failed
	e.closeOutbox()
	e.opts.reportError(msg)
	st.terminal = true
}

func (e *Engine) fireDestroy(st *ownerState) {
	if st.destroyed || st.errorFired {
		return
	}
	st.destroyed = true
	e.closeOutbox()
	if e.opts.OnDestroy != nil {
		e.opts.OnDestroy()
	}
	st.terminal = true
}

// Handle is the caller-facing call handle: its Invoke method submits
// requests and its Close method triggers drain-and-close.
type Handle struct {
	eng *Engine
}

// Invoke serializes args, assigns a request id, registers reply for the
// matching response, and enqueues the request frame. It never blocks on
// I/O. Calling Invoke after Close is a programmer error; it returns an
// error rather than panicking so callers can choose how to surface the
// mistake.
func (h *Handle) Invoke(args []interface{}, reply func(values []interface{})) error {
	e := h.eng
	if atomic.LoadInt32(&e.state) != stateRunning {
		return fmt.Errorf("forkrpc: invoke called on a %s engine", stateName(atomic.LoadInt32(&e.state)))
	}

	payload, err := e.opts.Serializer.Encode(args)
	if err != nil {
		return fmt.Errorf("forkrpc: encoding request: %w", err)
	}

	idInFrame := e.mode.IDInRequestFrame()
	e.cmds <- func(st *ownerState) {
		// Close may have been processed first if it raced Invoke's state
		// check above: re-check on the owner goroutine, where released and
		// the outbox close are both set, before ever touching the outbox.
		if st.released || st.terminal {
			return
		}
		id := st.pending.assign(reply)
		frame, err := wire.EncodeRequest(e.endian, id, idInFrame, payload)
		if err != nil {
			e.fail(st, fmt.Sprintf("encoding request frame: %v", err))
			return
		}
		e.outbox <- frame
	}
	return nil
}

// Close releases the handle: the engine transitions to ShuttingDown,
// refuses new Invoke calls, but keeps driving already-outstanding requests
// to completion. Once the outbound buffer drains, the write side is
// half-closed; on_destroy fires once the peer's EOF arrives with the
// pending set empty.
func (h *Handle) Close() {
	e := h.eng
	h.eng.closeOnce.Do(func() {
		atomic.CompareAndSwapInt32(&e.state, stateRunning, stateShuttingDown)
		e.cmds <- func(st *ownerState) {
			st.released = true
			e.closeOutbox()
			if st.pending.len() == 0 && st.eofSeen {
				e.fireDestroy(st)
			}
		}
	})
}

// Done returns a channel closed once the engine reaches the Closed state
// (after on_destroy or on_error has fired).
func (h *Handle) Done() <-chan struct{} {
	return h.eng.closedCh
}

func stateName(s int32) string {
	switch s {
	case stateRunning:
		return "running"
	case stateShuttingDown:
		return "shutting-down"
	default:
		return "closed"
	}
}

package child

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/sadewadee/forkrpc/internal/registry"
	"github.com/sadewadee/forkrpc/internal/serializer"
	"github.com/sadewadee/forkrpc/internal/wire"
)

// CooperativeOptions configures RunCooperative.
type CooperativeOptions struct {
	Endianness wire.Endianness
	Serializer serializer.Serializer
	Logger     *slog.Logger

	// ExitHook runs once the connection has fully drained (EOF seen, no
	// requests outstanding, outbox empty) instead of RunCooperative simply
	// returning. Demo processes use it to call os.Exit; tests leave it nil.
	ExitHook func()
}

type outboxItem struct {
	data   []byte
	onSent func()
}

// tryNotifyDrain wakes the writer when a busy decrement may have just
// brought it to zero after EOF, even if that decrement happened off the
// writer's own path (an encode/framing error in done, for instance).
func tryNotifyDrain(outbox chan outboxItem, busy *atomic.Int64, eofSeen *atomic.Bool) {
	if eofSeen.Load() && busy.Load() == 0 {
		select {
		case outbox <- outboxItem{}:
		default:
		}
	}
}

// RunCooperative drives the cooperative ChildEngine: every inbound request
// spawns its own goroutine so handlers may complete out of order; the
// done callback finalizes one request with its return tuple and emit
// sends an uncorrelated event frame at any time. Writes from every
// handler goroutine funnel through a single writer goroutine so wire
// order matches done/emit call order exactly.
func RunCooperative(conn Conn, reg *registry.Cooperative, opts CooperativeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outbox := make(chan outboxItem, 64)
	writerDone := make(chan error, 1)

	// busy starts at 1: a bias unit representing "the parent is still
	// attached", released only once EOF is observed. Without it the child
	// could decide it is idle and exit between startup and its first
	// request.
	var busy atomic.Int64
	busy.Store(1)
	var eofSeen atomic.Bool

	go func() {
		for item := range outbox {
			if len(item.data) > 0 {
				if _, err := conn.Write(item.data); err != nil {
					writerDone <- fmt.Errorf("forkrpc: cooperative child write: %w", err)
					return
				}
			}
			if item.onSent != nil {
				item.onSent()
			}
			if eofSeen.Load() && busy.Load() == 0 {
				writerDone <- nil
				return
			}
		}
		writerDone <- nil
	}()

	rb := wire.NewReadBuffer()
	for {
		consumed, frame, ok, err := wire.DecodeRequest(rb.Unread(), opts.Endianness, true)
		if err != nil {
			return fmt.Errorf("forkrpc: cooperative child decoding frame: %w", err)
		}
		if !ok {
			tail := rb.Grow()
			n, rerr := conn.Read(tail)
			if n > 0 {
				// A read can return n>0 together with io.EOF; decode
				// whatever was buffered before honoring the EOF, the same
				// way nextBlockingRequest does.
				rb.Produced(n)
				continue
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					break
				}
				return fmt.Errorf("forkrpc: cooperative child read: %w", rerr)
			}
			continue
		}
		rb.Advance(consumed)

		args, err := opts.Serializer.Decode(frame.Payload)
		if err != nil {
			return fmt.Errorf("forkrpc: cooperative child decoding request: %w", err)
		}
		name, rest, err := splitMethod(args)
		if err != nil {
			return err
		}
		handler, err := reg.Lookup(name)
		if err != nil {
			return err
		}

		busy.Add(1)
		id := frame.ID
		go dispatchCooperative(id, handler, rest, opts, outbox, &busy, &eofSeen, logger)
	}

	eofSeen.Store(true)
	busy.Add(-1)
	tryNotifyDrain(outbox, &busy, &eofSeen)

	err := <-writerDone
	if err != nil {
		return err
	}
	if opts.ExitHook != nil {
		opts.ExitHook()
	}
	return nil
}

func dispatchCooperative(id uint32, handler registry.CooperativeHandler, args []interface{}, opts CooperativeOptions, outbox chan outboxItem, busy *atomic.Int64, eofSeen *atomic.Bool, logger *slog.Logger) {
	done := func(values ...interface{}) {
		payload, err := opts.Serializer.Encode(values)
		if err != nil {
			logger.Error("forkrpc: cooperative child encoding response", "error", err)
			busy.Add(-1)
			tryNotifyDrain(outbox, busy, eofSeen)
			return
		}
		frame, err := wire.EncodeResponse(opts.Endianness, id, payload)
		if err != nil {
			logger.Error("forkrpc: cooperative child framing response", "error", err)
			busy.Add(-1)
			tryNotifyDrain(outbox, busy, eofSeen)
			return
		}
		outbox <- outboxItem{data: frame, onSent: func() { busy.Add(-1) }}
	}
	emit := func(values ...interface{}) {
		payload, err := opts.Serializer.Encode(values)
		if err != nil {
			logger.Error("forkrpc: cooperative child encoding event", "error", err)
			return
		}
		frame, err := wire.EncodeEvent(opts.Endianness, payload)
		if err != nil {
			logger.Error("forkrpc: cooperative child framing event", "error", err)
			return
		}
		outbox <- outboxItem{data: frame}
	}
	handler(done, emit, args)
}

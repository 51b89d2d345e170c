// Package child implements the two ChildEngine variants: Blocking (serial,
// one request at a time, FIFO response order) and Cooperative (concurrent,
// out-of-order responses via a done callback).
package child

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sadewadee/forkrpc/internal/idgen"
	"github.com/sadewadee/forkrpc/internal/registry"
	"github.com/sadewadee/forkrpc/internal/serializer"
	"github.com/sadewadee/forkrpc/internal/wire"
)

// Conn is the bidirectional byte-stream the child drives; the inherited
// socketpair fd satisfies it (see internal/socketpair).
type Conn interface {
	io.Reader
	io.Writer
	Close() error
}

// BlockingOptions configures RunBlocking.
type BlockingOptions struct {
	Endianness wire.Endianness
	Serializer serializer.Serializer
	Logger     *slog.Logger
}

// RunBlocking drives the blocking ChildEngine to completion on the calling
// goroutine: it reads one request, runs its handler to completion, writes
// the response, and repeats until EOF. A handler error is a user-handler
// failure: it is not turned into a structured wire error, it ends the
// loop and returns the error to the caller, who is expected to log it and
// exit the process.
func RunBlocking(conn Conn, reg *registry.Blocking, opts BlockingOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gen := idgen.New()
	rb := wire.NewReadBuffer()

	emit := func(values ...interface{}) {
		if err := writeEvent(conn, opts.Endianness, opts.Serializer, values); err != nil {
			logger.Error("forkrpc: blocking child failed to emit event", "error", err)
		}
	}

	for {
		frame, err := nextBlockingRequest(conn, rb, opts.Endianness)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("forkrpc: blocking child read: %w", err)
		}

		id := gen.Next(nil)

		args, err := opts.Serializer.Decode(frame.Payload)
		if err != nil {
			return fmt.Errorf("forkrpc: blocking child decoding request: %w", err)
		}
		name, rest, err := splitMethod(args)
		if err != nil {
			return err
		}
		handler, err := reg.Lookup(name)
		if err != nil {
			return err
		}

		values, herr := handler(emit, rest)
		if herr != nil {
			return fmt.Errorf("forkrpc: blocking child handler %q: %w", name, herr)
		}

		if err := writeResponse(conn, opts.Endianness, opts.Serializer, id, values); err != nil {
			return fmt.Errorf("forkrpc: blocking child write response: %w", err)
		}
	}
}

func nextBlockingRequest(conn Conn, rb *wire.ReadBuffer, endian wire.Endianness) (wire.Frame, error) {
	for {
		consumed, frame, ok, err := wire.DecodeRequest(rb.Unread(), endian, false)
		if err != nil {
			return wire.Frame{}, err
		}
		if ok {
			rb.Advance(consumed)
			return frame, nil
		}
		tail := rb.Grow()
		n, err := conn.Read(tail)
		if n > 0 {
			rb.Produced(n)
			continue
		}
		if err != nil {
			return wire.Frame{}, err
		}
	}
}

func writeResponse(conn Conn, endian wire.Endianness, ser serializer.Serializer, id uint32, values []interface{}) error {
	payload, err := ser.Encode(values)
	if err != nil {
		return err
	}
	frame, err := wire.EncodeResponse(endian, id, payload)
	if err != nil {
		return err
	}
	_, err = conn.Write(frame)
	return err
}

func writeEvent(conn Conn, endian wire.Endianness, ser serializer.Serializer, values []interface{}) error {
	payload, err := ser.Encode(values)
	if err != nil {
		return err
	}
	frame, err := wire.EncodeEvent(endian, payload)
	if err != nil {
		return err
	}
	_, err = conn.Write(frame)
	return err
}

// splitMethod interprets the decoded argument tuple as [methodName,
// args...]: handlers are chosen by name rather than by loading code. The
// method name arrives as a string under the json serializer but as []byte
// under length-prefixed (its Decode never produces a string), so both are
// accepted.
func splitMethod(args []interface{}) (name string, rest []interface{}, err error) {
	if len(args) == 0 {
		return "", nil, errors.New("forkrpc: request carries no method name")
	}
	switch v := args[0].(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return "", nil, fmt.Errorf("forkrpc: request method name must be a string or []byte, got %T", args[0])
	}
	return name, args[1:], nil
}

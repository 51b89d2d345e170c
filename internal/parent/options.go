package parent

import (
	"log/slog"

	"github.com/sadewadee/forkrpc/internal/rpcmode"
	"github.com/sadewadee/forkrpc/internal/serializer"
	"github.com/sadewadee/forkrpc/internal/wire"
)

// Options configures a Spawn call. The zero value is not valid; use
// NewOptions to get the documented defaults, then apply Option funcs.
type Options struct {
	Mode       rpcmode.Mode
	Endianness wire.Endianness
	Serializer serializer.Serializer

	OnEvent   func(values []interface{})
	OnError   func(msg string)
	OnDestroy func()

	// Init is an opaque value for the external forker collaborator that
	// prepares the child before the engine starts. The engine keeps it with
	// its options but never inspects it and does not forward it anywhere.
	Init interface{}

	Logger *slog.Logger
}

// Option mutates an Options value during Spawn; grounded on the pack's
// functional-options convention (see hayabusa-cloud-framer's Option type).
type Option func(*Options)

// NewOptions returns the documented defaults: cooperative mode, portable
// byte order, the length-prefixed serializer, and a discard logger.
func NewOptions(opts ...Option) Options {
	o := Options{
		Mode:       rpcmode.Cooperative,
		Endianness: wire.Portable,
		Serializer: serializer.LengthPrefixedStrings{},
		Logger:     slog.New(slog.NewTextHandler(discard{}, nil)),
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// WithMode selects blocking or cooperative mode. It must match whichever
// ChildEngine is running in the peer.
func WithMode(m rpcmode.Mode) Option {
	return func(o *Options) { o.Mode = m }
}

// WithEndianness selects the wire byte-order layout.
func WithEndianness(e wire.Endianness) Option {
	return func(o *Options) { o.Endianness = e }
}

// WithSerializer selects the argument/return-value codec.
func WithSerializer(s serializer.Serializer) Option {
	return func(o *Options) { o.Serializer = s }
}

// WithOnEvent registers the event callback.
func WithOnEvent(f func(values []interface{})) Option {
	return func(o *Options) { o.OnEvent = f }
}

// WithOnError registers the terminal-error callback. If this is absent and
// OnEvent is present, errors surface as an event ("error", msg); if both
// are absent they are logged at error level.
func WithOnError(f func(msg string)) Option {
	return func(o *Options) { o.OnError = f }
}

// WithOnDestroy registers the clean-shutdown callback.
func WithOnDestroy(f func()) Option {
	return func(o *Options) { o.OnDestroy = f }
}

// WithInit attaches an opaque init value for the external forker
// collaborator; the engine itself never reads it back.
func WithInit(v interface{}) Option {
	return func(o *Options) { o.Init = v }
}

// WithLogger overrides the default discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// reportError implements the fallback chain: on_error →
// on_event("error", msg) → log at error level.
func (o Options) reportError(msg string) {
	switch {
	case o.OnError != nil:
		o.OnError(msg)
	case o.OnEvent != nil:
		o.OnEvent([]interface{}{"error", msg})
	default:
		o.Logger.Error("forkrpc: unrecoverable parent engine error", "error", msg)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

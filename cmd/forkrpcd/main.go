// Command forkrpcd demonstrates the CORE RPC layer end to end: invoked
// normally it loads config, forks+execs itself with "-child", and drives a
// ParentEngine over the resulting socketpair; invoked with "-child" it
// instead runs a ChildEngine against its inherited fd 3, using the demo
// "echo" and "sum" handlers registered in internal/demo.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sadewadee/forkrpc/internal/child"
	"github.com/sadewadee/forkrpc/internal/config"
	"github.com/sadewadee/forkrpc/internal/demo"
	"github.com/sadewadee/forkrpc/internal/parent"
	"github.com/sadewadee/forkrpc/internal/rpcmode"
	"github.com/sadewadee/forkrpc/internal/serializer"
	"github.com/sadewadee/forkrpc/internal/socketpair"
	"github.com/sadewadee/forkrpc/internal/wire"
)

var version = "0.1.0-dev"

func main() {
	childMode := flag.Bool("child", false, "run as the forked child (internal use)")
	cfgPath := flag.String("config", "forkrpcd.yaml", "path to the YAML config file")
	flag.Parse()

	if *childMode {
		runChild(*cfgPath)
		return
	}
	runParent(*cfgPath)
}

func runParent(cfgPath string) {
	logger, closer := setupLogger("info", "text", "stderr")
	if closer != nil {
		defer closer.Close()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("forkrpcd: failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger, closer = setupLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if closer != nil {
		defer closer.Close()
	}
	logger.Info("forkrpcd starting", "version", version, "mode", cfg.RPC.Mode)

	pair, childFile, err := socketpair.New()
	if err != nil {
		logger.Error("forkrpcd: socketpair", "error", err)
		os.Exit(1)
	}

	self, err := os.Executable()
	if err != nil {
		logger.Error("forkrpcd: resolving executable", "error", err)
		os.Exit(1)
	}

	cmd, err := socketpair.Spawn(self, []string{"-child", "-config", cfgPath}, childFile)
	if err != nil {
		logger.Error("forkrpcd: spawning child", "error", err)
		os.Exit(1)
	}
	_ = childFile.Close()

	destroyed := make(chan struct{})
	h := parent.Spawn(pair,
		parent.WithMode(rpcModeOf(cfg.RPC.Mode)),
		parent.WithEndianness(endiannessOf(cfg.RPC.Endianness)),
		parent.WithSerializer(mustSerializer(cfg.RPC.Serializer)),
		parent.WithLogger(logger),
		parent.WithOnEvent(func(values []interface{}) {
			logger.Info("forkrpcd: event", "values", values)
		}),
		parent.WithOnError(func(msg string) {
			logger.Error("forkrpcd: engine error", "message", msg)
		}),
		parent.WithOnDestroy(func() { close(destroyed) }),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := h.Invoke([]interface{}{"echo", "hello from forkrpcd"}, func(values []interface{}) {
		logger.Info("forkrpcd: reply", "values", values)
	}); err != nil {
		logger.Error("forkrpcd: invoke", "error", err)
	}

	select {
	case <-quit:
		logger.Info("forkrpcd: shutdown signal received")
	case <-destroyed:
		logger.Info("forkrpcd: child released the connection")
	}

	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RPC.ShutdownGrace.Duration())
	defer cancel()
	select {
	case <-h.Done():
	case <-ctx.Done():
		logger.Warn("forkrpcd: shutdown grace period elapsed")
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	_, _ = cmd.Process.Wait()
	logger.Info("forkrpcd stopped")
}

func runChild(cfgPath string) {
	logger, closer := setupLogger("info", "text", "stderr")
	if closer != nil {
		defer closer.Close()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("forkrpcd child: failed to load config", "error", err)
		os.Exit(1)
	}

	conn, err := socketpair.ChildConn()
	if err != nil {
		logger.Error("forkrpcd child: reconstructing inherited connection", "error", err)
		os.Exit(1)
	}

	endian := endiannessOf(cfg.RPC.Endianness)
	ser := mustSerializer(cfg.RPC.Serializer)

	if rpcModeOf(cfg.RPC.Mode) == rpcmode.Blocking {
		reg := demo.BlockingHandlers()
		if err := child.RunBlocking(conn, reg, child.BlockingOptions{Endianness: endian, Serializer: ser, Logger: logger}); err != nil {
			logger.Error("forkrpcd child: blocking engine exited with error", "error", err)
			os.Exit(1)
		}
		return
	}

	reg := demo.CooperativeHandlers()
	if err := child.RunCooperative(conn, reg, child.CooperativeOptions{Endianness: endian, Serializer: ser, Logger: logger}); err != nil {
		logger.Error("forkrpcd child: cooperative engine exited with error", "error", err)
		os.Exit(1)
	}
}

func rpcModeOf(m config.Mode) rpcmode.Mode {
	if m == config.ModeBlocking {
		return rpcmode.Blocking
	}
	return rpcmode.Cooperative
}

func endiannessOf(e config.Endianness) wire.Endianness {
	if e == config.EndiannessLegacy {
		return wire.Legacy
	}
	return wire.Portable
}

func mustSerializer(name config.Serializer) serializer.Serializer {
	s, err := serializer.ByName(string(name))
	if err != nil {
		panic(err) // config.Validate already rejected unknown names
	}
	return s
}

func setupLogger(level, format, output string) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	writer, closer := resolveLogOutput(output)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler), closer
}

func resolveLogOutput(output string) (io.Writer, io.Closer) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stderr, nil
		}
		return f, f
	}
}


// Package demo registers the handful of handlers forkrpcd exercises:
// "echo" (a trivial round-trip) and "sum" (shows a handler using emit to
// report progress before completing). It exists purely to give the demo
// binary something to call through the registry.
package demo

import (
	"fmt"

	"github.com/sadewadee/forkrpc/internal/registry"
)

// BlockingHandlers returns the handler table for a blocking ChildEngine.
func BlockingHandlers() *registry.Blocking {
	reg := registry.NewBlocking()
	reg.Register("echo", func(emit registry.EmitFunc, args []interface{}) ([]interface{}, error) {
		return args, nil
	})
	reg.Register("sum", func(emit registry.EmitFunc, args []interface{}) ([]interface{}, error) {
		total := 0.0
		for i, a := range args {
			n, ok := toFloat(a)
			if !ok {
				return nil, fmt.Errorf("sum: argument %d is not numeric: %v", i, a)
			}
			total += n
			emit("partial", total)
		}
		return []interface{}{total}, nil
	})
	return reg
}

// CooperativeHandlers returns the handler table for a cooperative
// ChildEngine; "sum" completes immediately via done instead of returning.
func CooperativeHandlers() *registry.Cooperative {
	reg := registry.NewCooperative()
	reg.Register("echo", func(done registry.DoneFunc, emit registry.EmitFunc, args []interface{}) {
		done(args...)
	})
	reg.Register("sum", func(done registry.DoneFunc, emit registry.EmitFunc, args []interface{}) {
		total := 0.0
		for i, a := range args {
			n, ok := toFloat(a)
			if !ok {
				emit("error", fmt.Sprintf("sum: argument %d is not numeric", i))
				done(nil)
				return
			}
			total += n
			emit("partial", total)
		}
		done(total)
	})
	return reg
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

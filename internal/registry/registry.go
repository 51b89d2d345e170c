// Package registry provides a static, name-keyed handler table populated
// before either child engine starts, in place of loading handler code
// dynamically by name at call time.
package registry

import "fmt"

// BlockingHandler is a request handler run by the blocking child engine. It
// runs to completion on the engine's single goroutine; its return tuple
// becomes the response.
type BlockingHandler func(emit EmitFunc, args []interface{}) ([]interface{}, error)

// CooperativeHandler is a request handler run by the cooperative child
// engine. It must not block waiting for anything but the reactor, and
// must eventually call done with its return tuple.
type CooperativeHandler func(done DoneFunc, emit EmitFunc, args []interface{})

// EmitFunc is an explicit emit capability passed to handlers in place of
// a process-wide emit symbol: any handler may call it at any time to send
// an event frame.
type EmitFunc func(values ...interface{})

// DoneFunc completes one outstanding cooperative request with its return
// tuple.
type DoneFunc func(values ...interface{})

// Blocking is a name→handler table for the blocking child engine.
type Blocking struct {
	handlers map[string]BlockingHandler
}

// NewBlocking returns an empty blocking handler table.
func NewBlocking() *Blocking {
	return &Blocking{handlers: make(map[string]BlockingHandler)}
}

// Register adds a handler under name, replacing any existing registration.
func (r *Blocking) Register(name string, h BlockingHandler) {
	r.handlers[name] = h
}

// Lookup resolves a handler by name.
func (r *Blocking) Lookup(name string) (BlockingHandler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("registry: no blocking handler registered for %q", name)
	}
	return h, nil
}

// Cooperative is a name→handler table for the cooperative child engine.
type Cooperative struct {
	handlers map[string]CooperativeHandler
}

// NewCooperative returns an empty cooperative handler table.
func NewCooperative() *Cooperative {
	return &Cooperative{handlers: make(map[string]CooperativeHandler)}
}

// Register adds a handler under name, replacing any existing registration.
func (r *Cooperative) Register(name string, h CooperativeHandler) {
	r.handlers[name] = h
}

// Lookup resolves a handler by name.
func (r *Cooperative) Lookup(name string) (CooperativeHandler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("registry: no cooperative handler registered for %q", name)
	}
	return h, nil
}

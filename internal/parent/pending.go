package parent

import "github.com/sadewadee/forkrpc/internal/idgen"

// replyFunc is invoked with the decoded return tuple when a response frame
// arrives for the matching request.
type replyFunc func(values []interface{})

// pendingSet is the parent-side table of outstanding calls awaiting a
// response. The two implementations below give it the two shapes a
// connection can need: an ordered FIFO queue in blocking mode, an id-keyed
// map in cooperative mode.
type pendingSet interface {
	// assign reserves an id (and, in cooperative mode, stores cb under it
	// immediately so a second assign call never reuses it).
	assign(cb replyFunc) uint32
	// resolve pops the entry matching id. ok is false if id is not a valid
	// pending entry (protocol violation) or not the expected FIFO head.
	resolve(id uint32) (cb replyFunc, ok bool)
	// len reports the number of outstanding entries.
	len() int
	// drain removes and returns every outstanding callback, for dropping
	// them silently when the engine transitions to Closed via error.
	drain() []replyFunc
}

// blockingPending is the ordered FIFO queue used in blocking mode. The
// parent never writes a request id onto the wire in this mode (blocking
// requests carry no id field at all — see wire.EncodeRequest), but it still
// predicts the id the child's response will carry, because the blocking
// child engine independently runs the identical idgen.Generator sequence to
// stamp its responses (see DESIGN.md and internal/child). That lets the
// parent sanity-check strict FIFO delivery without a lookup map.
type blockingPending struct {
	gen   *idgen.Generator
	queue []blockingEntry
}

type blockingEntry struct {
	id uint32
	cb replyFunc
}

func newBlockingPending() *blockingPending {
	return &blockingPending{gen: idgen.New()}
}

func (p *blockingPending) assign(cb replyFunc) uint32 {
	id := p.gen.Next(nil)
	p.queue = append(p.queue, blockingEntry{id: id, cb: cb})
	return id
}

func (p *blockingPending) resolve(id uint32) (replyFunc, bool) {
	if len(p.queue) == 0 {
		return nil, false
	}
	front := p.queue[0]
	if front.id != id {
		return nil, false
	}
	p.queue = p.queue[1:]
	return front.cb, true
}

func (p *blockingPending) len() int { return len(p.queue) }

func (p *blockingPending) drain() []replyFunc {
	cbs := make([]replyFunc, len(p.queue))
	for i, e := range p.queue {
		cbs[i] = e.cb
	}
	p.queue = nil
	return cbs
}

// cooperativePending is the id-keyed map used when responses may complete
// out of submission order.
type cooperativePending struct {
	gen *idgen.Generator
	m   map[uint32]replyFunc
}

func newCooperativePending() *cooperativePending {
	return &cooperativePending{gen: idgen.New(), m: make(map[uint32]replyFunc)}
}

func (p *cooperativePending) assign(cb replyFunc) uint32 {
	id := p.gen.Next(func(candidate uint32) bool {
		_, taken := p.m[candidate]
		return taken
	})
	p.m[id] = cb
	return id
}

func (p *cooperativePending) resolve(id uint32) (replyFunc, bool) {
	cb, ok := p.m[id]
	if !ok {
		return nil, false
	}
	delete(p.m, id)
	return cb, true
}

func (p *cooperativePending) len() int { return len(p.m) }

func (p *cooperativePending) drain() []replyFunc {
	cbs := make([]replyFunc, 0, len(p.m))
	for _, cb := range p.m {
		cbs = append(cbs, cb)
	}
	p.m = make(map[uint32]replyFunc)
	return cbs
}

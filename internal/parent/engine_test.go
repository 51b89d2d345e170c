package parent

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sadewadee/forkrpc/internal/idgen"
	"github.com/sadewadee/forkrpc/internal/rpcmode"
	"github.com/sadewadee/forkrpc/internal/serializer"
	"github.com/sadewadee/forkrpc/internal/wire"
)

// halfDuplexConn adapts a pair of io.Pipe ends into the parent.Conn
// contract (Read/Write/CloseWrite/Close) for in-process tests; no real
// socket is needed to exercise the engine's framing and dispatch logic.
type halfDuplexConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c *halfDuplexConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *halfDuplexConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *halfDuplexConn) CloseWrite() error            { return c.w.Close() }
func (c *halfDuplexConn) Close() error {
	_ = c.w.Close()
	return c.r.Close()
}

func pipePair() (*halfDuplexConn, *halfDuplexConn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return &halfDuplexConn{r: r2, w: w1}, &halfDuplexConn{r: r1, w: w2}
}

const testTimeout = 2 * time.Second

// fakeChild is a minimal test stand-in for a real child engine: it reads
// request frames off its conn and replies however the test tells it to.
// Blocking-mode ids are reconstructed with the identical idgen sequence the
// real blocking child engine uses (see DESIGN.md).
type fakeChild struct {
	conn   *halfDuplexConn
	endian wire.Endianness
	mode   rpcmode.Mode
	ser    serializer.Serializer
	gen    *idgen.Generator
}

func newFakeChild(conn *halfDuplexConn, endian wire.Endianness, mode rpcmode.Mode, ser serializer.Serializer) *fakeChild {
	return &fakeChild{conn: conn, endian: endian, mode: mode, ser: ser, gen: idgen.New()}
}

// nextRequest blocks until one full request frame has arrived.
func (c *fakeChild) nextRequest(t *testing.T) (id uint32, values []interface{}) {
	t.Helper()
	rb := wire.NewReadBuffer()
	for {
		consumed, frame, ok, err := wire.DecodeRequest(rb.Unread(), c.endian, c.mode.IDInRequestFrame())
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if ok {
			rb.Advance(consumed)
			values, err := c.ser.Decode(frame.Payload)
			if err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			id := frame.ID
			if !c.mode.IDInRequestFrame() {
				id = c.gen.Next(nil)
			}
			return id, values
		}
		tail := rb.Grow()
		n, err := c.conn.Read(tail)
		if err != nil {
			t.Fatalf("reading request: %v", err)
		}
		rb.Produced(n)
	}
}

func (c *fakeChild) reply(t *testing.T, id uint32, values []interface{}) {
	t.Helper()
	payload, err := c.ser.Encode(values)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := wire.EncodeResponse(c.endian, id, payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		t.Fatalf("writing response: %v", err)
	}
}

func (c *fakeChild) emit(t *testing.T, values []interface{}) {
	t.Helper()
	payload, err := c.ser.Encode(values)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := wire.EncodeEvent(c.endian, payload)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		t.Fatalf("writing event: %v", err)
	}
}

func TestSimpleBlockingEcho(t *testing.T) {
	parentConn, childConn := pipePair()
	ser := serializer.JSONArray{}

	child := newFakeChild(childConn, wire.Portable, rpcmode.Blocking, ser)
	go func() {
		id, values := child.nextRequest(t)
		if len(values) != 1 || values[0] != "hello" {
			t.Errorf("child received %#v", values)
		}
		child.reply(t, id, []interface{}{"hello"})
	}()

	var mu sync.Mutex
	var got []interface{}
	replyCh := make(chan struct{})

	h := Spawn(parentConn,
		WithMode(rpcmode.Blocking),
		WithEndianness(wire.Portable),
		WithSerializer(ser),
	)

	if err := h.Invoke([]interface{}{"hello"}, func(values []interface{}) {
		mu.Lock()
		got = values
		mu.Unlock()
		close(replyCh)
	}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	select {
	case <-replyCh:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for reply")
	}

	mu.Lock()
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("reply = %#v", got)
	}
	mu.Unlock()

	h.Close()
	childConn.Close()

	select {
	case <-h.Done():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for on_destroy")
	}
}

func TestBlockingWithEventsBeforeResponse(t *testing.T) {
	parentConn, childConn := pipePair()
	ser := serializer.JSONArray{}
	child := newFakeChild(childConn, wire.Portable, rpcmode.Blocking, ser)

	go func() {
		id, _ := child.nextRequest(t)
		child.emit(t, []interface{}{"a"})
		child.emit(t, []interface{}{"b"})
		child.reply(t, id, []interface{}{"done"})
	}()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	h := Spawn(parentConn,
		WithMode(rpcmode.Blocking),
		WithEndianness(wire.Portable),
		WithSerializer(ser),
		WithOnEvent(func(values []interface{}) {
			mu.Lock()
			order = append(order, values[0].(string))
			mu.Unlock()
		}),
	)

	if err := h.Invoke([]interface{}{"go"}, func(values []interface{}) {
		mu.Lock()
		order = append(order, values[0].(string))
		mu.Unlock()
		close(done)
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "done"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestGracefulDrainSixCalls(t *testing.T) {
	parentConn, childConn := pipePair()
	ser := serializer.JSONArray{}
	child := newFakeChild(childConn, wire.Portable, rpcmode.Cooperative, ser)

	const n = 6
	go func() {
		for i := 0; i < n; i++ {
			id, values := child.nextRequest(t)
			child.reply(t, id, values)
		}
		childConn.Close()
	}()

	var mu sync.Mutex
	replies := 0
	var wg sync.WaitGroup
	wg.Add(n)

	h := Spawn(parentConn,
		WithMode(rpcmode.Cooperative),
		WithEndianness(wire.Portable),
		WithSerializer(ser),
	)

	for i := 0; i < n; i++ {
		i := i
		if err := h.Invoke([]interface{}{i}, func(values []interface{}) {
			mu.Lock()
			replies++
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatal(err)
		}
	}
	h.Close()

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(testTimeout):
		t.Fatal("not all replies arrived")
	}

	select {
	case <-h.Done():
	case <-time.After(testTimeout):
		t.Fatal("on_destroy did not fire")
	}

	mu.Lock()
	defer mu.Unlock()
	if replies != n {
		t.Errorf("replies = %d, want %d", replies, n)
	}
}

func TestUnexpectedChildExitReportsError(t *testing.T) {
	parentConn, childConn := pipePair()
	ser := serializer.JSONArray{}

	errCh := make(chan string, 1)
	h := Spawn(parentConn,
		WithMode(rpcmode.Cooperative),
		WithEndianness(wire.Portable),
		WithSerializer(ser),
		WithOnError(func(msg string) { errCh <- msg }),
	)

	if err := h.Invoke([]interface{}{"x"}, func(values []interface{}) {
		t.Error("reply_cb should never fire for a dropped call")
	}); err != nil {
		t.Fatal(err)
	}

	// Simulate the child process dying mid-request: close its end without
	// ever writing a response.
	childConn.Close()

	select {
	case msg := <-errCh:
		if msg != "unexpected eof" {
			t.Errorf("on_error message = %q, want %q", msg, "unexpected eof")
		}
	case <-time.After(testTimeout):
		t.Fatal("on_error did not fire")
	}

	select {
	case <-h.Done():
	case <-time.After(testTimeout):
		t.Fatal("engine did not reach Closed")
	}
}

func TestInvokeAfterCloseIsRejected(t *testing.T) {
	parentConn, childConn := pipePair()
	defer childConn.Close()
	ser := serializer.JSONArray{}

	h := Spawn(parentConn, WithMode(rpcmode.Cooperative), WithEndianness(wire.Portable), WithSerializer(ser))
	h.Close()

	// Give the owner goroutine a moment to process the close command.
	time.Sleep(20 * time.Millisecond)

	if err := h.Invoke([]interface{}{"late"}, func([]interface{}) {}); err == nil {
		t.Fatal("expected error invoking after Close")
	}
}

func TestLargePayloadRoundtrip(t *testing.T) {
	parentConn, childConn := pipePair()
	ser := serializer.LengthPrefixedStrings{}
	child := newFakeChild(childConn, wire.Portable, rpcmode.Blocking, ser)

	payload := bytes.Repeat([]byte("x"), 1<<20)

	go func() {
		id, values := child.nextRequest(t)
		child.reply(t, id, values)
	}()

	done := make(chan []byte, 1)
	h := Spawn(parentConn,
		WithMode(rpcmode.Blocking),
		WithEndianness(wire.Portable),
		WithSerializer(ser),
	)

	if err := h.Invoke([]interface{}{payload}, func(values []interface{}) {
		done <- values[0].([]byte)
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-done:
		if !bytes.Equal(got, payload) {
			t.Fatal("payload round-trip mismatch")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}

	h.Close()
	childConn.Close()
}

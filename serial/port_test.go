package serial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
	"github.com/jangala-dev/tinygo-stm32usart/usart/sim"
)

var testParams = usart.Params{
	Name:      "USART2",
	Base:      0x40004400,
	IRQ:       38,
	EnableReg: 0x40023840,
	EnableBit: 17,
	ResetReg:  0x40023820,
	ResetBit:  17,
	Clocks:    usart.Clocks{AHB: 84000000, APB1: 42000000, APB2: 84000000},
	Over8:     true,
}

type rig struct {
	chip *sim.Chip
	hw   *sim.USART
	port *Port
}

// newRig builds a port on a simulated USART2. With loop set the transmitter
// feeds its own receiver.
func newRig(t *testing.T, cfg Config, loop bool) *rig {
	t.Helper()
	chip := sim.NewChip()
	hw := chip.AddUSART(testParams)
	p, err := usart.NewPeripheral(chip, testParams)
	if err != nil {
		t.Fatal(err)
	}
	ll := usart.New(p)
	chip.Attach(testParams.IRQ, ll.HandleInterrupt)
	if loop {
		hw.Connect(hw)
	}
	port := New(ll, chip.Core, cfg)
	t.Cleanup(func() { port.Close() })
	return &rig{chip: chip, hw: hw, port: port}
}

// run steps the chip in the background until the test ends.
func (r *rig) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.chip.Run(ctx, 50*time.Microsecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (r *rig) open(t *testing.T, f usart.Format) {
	t.Helper()
	if _, err := r.port.Open(115200, f); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestOpen_Lifecycle(t *testing.T) {
	r := newRig(t, Config{}, false)
	if n := r.port.TryWrite([]byte("x")); n != 0 {
		t.Fatalf("TryWrite before Open = %d", n)
	}
	baud, err := r.port.Open(115200, usart.Format8N1)
	if err != nil {
		t.Fatal(err)
	}
	// 42 MHz / 365
	if baud != 115068 || r.port.Baud() != baud {
		t.Fatalf("baud %d / %d; want 115068", baud, r.port.Baud())
	}
	if _, err := r.port.Open(9600, usart.Format8N1); !errors.Is(err, ErrOpen) {
		t.Fatalf("second Open: err=%v", err)
	}
	if err := r.port.Close(); err != nil {
		t.Fatal(err)
	}
	if r.hw.Clocked() {
		t.Fatal("Close left the USART clocked")
	}
	if _, err := r.port.Open(115200, usart.Format8N1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Open after Close: err=%v", err)
	}
	if err := r.port.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpen_PropagatesEngineErrors(t *testing.T) {
	r := newRig(t, Config{}, false)
	if _, err := r.port.Open(0, usart.Format8N1); !errors.Is(err, usart.ErrInvalidBaudRate) {
		t.Fatalf("err=%v", err)
	}
	if _, err := r.port.Open(115200, usart.Format{DataBits: 5}); !errors.Is(err, usart.ErrInvalidFormat) {
		t.Fatalf("err=%v", err)
	}
	r.open(t, usart.Format8N1)
}

func TestRead_NonBlockingSemantics(t *testing.T) {
	r := newRig(t, Config{}, false)
	r.open(t, usart.Format8N1)
	buf := make([]byte, 8)

	if n := r.port.TryRead(buf); n != 0 {
		t.Fatalf("TryRead on empty: n=%d; want 0", n)
	}
	if _, err := r.port.ReadByte(); !errors.Is(err, ErrBufferEmpty) {
		t.Fatalf("ReadByte on empty: err=%v", err)
	}

	for _, c := range "ABC" {
		r.hw.Receive(uint16(c), usart.ErrorSet{})
	}
	if r.port.Buffered() != 3 {
		t.Fatalf("Buffered = %d; want 3", r.port.Buffered())
	}
	n := r.port.TryRead(buf)
	if n != 3 || string(buf[:n]) != "ABC" {
		t.Fatalf("got n=%d data=%q; want 3, \"ABC\"", n, string(buf[:n]))
	}
}

func TestReadContext_UnblocksOnReceive(t *testing.T) {
	r := newRig(t, Config{}, false)
	r.open(t, usart.Format8N1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	var n int
	var err error
	buf := make([]byte, 4)
	go func() {
		defer close(done)
		n, err = r.port.ReadContext(ctx, buf)
	}()

	time.Sleep(10 * time.Millisecond)
	r.chip.Core.Lock()
	r.hw.Receive('Z', usart.ErrorSet{})
	r.chip.Core.Unlock()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadContext")
	}
	if err != nil || n != 1 || buf[0] != 'Z' {
		t.Fatalf("got n=%d err=%v data=%q", n, err, buf[:n])
	}
}

func TestReadContext_Deadline(t *testing.T) {
	r := newRig(t, Config{}, false)
	r.open(t, usart.Format8N1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.port.ReadContext(ctx, make([]byte, 1)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v; want deadline exceeded", err)
	}
}

func TestWaitReadable_RespectsClose(t *testing.T) {
	r := newRig(t, Config{}, false)
	r.open(t, usart.Format8N1)

	done := make(chan error, 1)
	go func() { done <- r.port.WaitReadable(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	r.port.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err=%v; want %v", err, ErrClosed)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for WaitReadable to return after close")
	}
	if _, err := r.port.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Read after Close: err=%v", err)
	}
	if _, err := r.port.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after Close: err=%v", err)
	}
}

func TestReceive_OverflowAndErrors(t *testing.T) {
	r := newRig(t, Config{RxSize: 4}, false)
	r.open(t, usart.Format8N1)
	r.hw.Receive('a', usart.ErrorSet{Framing: true})
	r.hw.Receive('b', usart.ErrorSet{Noise: true, Parity: true})
	for _, c := range "cdef" {
		r.hw.Receive(uint16(c), usart.ErrorSet{})
	}
	got := r.port.Errors()
	want := ErrorCounts{
		Framing: 1,
		Noise:   1,
		Parity:  1,
		Dropped: 2,
		Last:    usart.ErrorSet{Noise: true, Parity: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	buf := make([]byte, 8)
	if n := r.port.TryRead(buf); string(buf[:n]) != "abcd" {
		t.Fatalf("got %q; want the oldest bytes kept", buf[:n])
	}
}

func TestWrite_LoopbackAndFlush(t *testing.T) {
	r := newRig(t, Config{TxSize: 8, Chunk: 4}, true)
	r.open(t, usart.Format8N1)
	r.run(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := []byte("the quick brown fox jumps over the lazy dog")
	readErr := make(chan error, 1)
	got := make([]byte, len(want))
	go func() {
		_, err := r.port.ReadFullContext(ctx, got)
		readErr <- err
	}()

	n, err := r.port.WriteContext(ctx, want)
	if err != nil || n != len(want) {
		t.Fatalf("WriteContext = %d, %v", n, err)
	}
	if err := r.port.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !r.hw.Idle() || r.hw.SR()&usart.SR_TC == 0 {
		t.Fatal("Flush returned before the line drained")
	}
	if err := <-readErr; err != nil {
		t.Fatalf("ReadFullContext: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("loopback mismatch (-want +got):\n%s", diff)
	}
	if e := r.port.Errors(); e != (ErrorCounts{}) {
		t.Fatalf("line errors on loopback: %+v", e)
	}
}

func TestWriteContext_Deadline(t *testing.T) {
	// Nothing steps the chip, so the ring never drains.
	r := newRig(t, Config{TxSize: 4, Chunk: 2}, false)
	r.open(t, usart.Format8N1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := r.port.WriteContext(ctx, make([]byte, 32))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v; want deadline exceeded", err)
	}
	// Two characters sit in the USART, two wait in the engine and four in
	// the ring.
	if n != 8 {
		t.Fatalf("queued %d; want 8", n)
	}
	if err := r.port.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Flush err=%v", err)
	}
}

func TestNineBit_WholeCharacters(t *testing.T) {
	r := newRig(t, Config{}, true)
	r.open(t, usart.Format{DataBits: 9})
	if n := r.port.TryWrite([]byte{0xFF, 0x01, 0x02}); n != 2 {
		t.Fatalf("TryWrite = %d; want 2", n)
	}
	r.hw.Drain(100)
	if diff := cmp.Diff([]uint16{0x1FF}, r.hw.Wire()); diff != "" {
		t.Fatalf("wire mismatch (-want +got):\n%s", diff)
	}
	buf := make([]byte, 4)
	if n := r.port.TryRead(buf); n != 2 || buf[0] != 0xFF || buf[1] != 0x01 {
		t.Fatalf("read back %x", buf[:n])
	}
}

func TestNineBit_OddWriteRejected(t *testing.T) {
	r := newRig(t, Config{}, true)
	r.open(t, usart.Format{DataBits: 9})
	r.run(t)

	done := make(chan error, 1)
	go func() {
		n, err := r.port.Write([]byte{1, 2, 3})
		if n != 0 {
			t.Errorf("queued %d; want 0", n)
		}
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, usart.ErrInvalidArgument) {
			t.Fatalf("err=%v; want %v", err, usart.ErrInvalidArgument)
		}
	case <-time.After(time.Second):
		t.Fatal("Write of a partial 9-bit character blocked")
	}
	if w := r.hw.Wire(); len(w) != 0 {
		t.Fatalf("wire %x; want nothing sent", w)
	}
	if err := r.port.WriteByte(0x01); !errors.Is(err, usart.ErrInvalidArgument) {
		t.Fatalf("WriteByte err=%v", err)
	}
}

func TestRead_BeforeOpen(t *testing.T) {
	r := newRig(t, Config{}, false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.port.ReadContext(ctx, make([]byte, 1)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("ReadContext err=%v; want %v", err, ErrNotOpen)
	}
	if err := r.port.WaitReadable(ctx); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("WaitReadable err=%v; want %v", err, ErrNotOpen)
	}
	if _, err := r.port.WriteContext(ctx, []byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("WriteContext err=%v; want %v", err, ErrNotOpen)
	}
}

func TestReadable_Coalesced(t *testing.T) {
	r := newRig(t, Config{}, false)
	r.open(t, usart.Format8N1)
	r.hw.Receive('1', usart.ErrorSet{})
	r.hw.Receive('2', usart.ErrorSet{})
	select {
	case <-r.port.Readable():
	default:
		t.Fatal("no readiness signal")
	}
	select {
	case <-r.port.Readable():
		t.Fatal("signal not coalesced")
	default:
	}
}

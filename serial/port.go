// Package serial is a buffered, blocking serial port built on a usart.LowLevel
// engine. Reads are non-blocking or context-bounded; Write blocks until data is
// accepted by the driver and Flush waits until it is on the wire.
package serial

import (
	"context"
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

var (
	ErrBufferEmpty = errors.New("serial: buffer empty")
	ErrClosed      = errors.New("serial: port closed")
	ErrOpen        = errors.New("serial: port already open")
	ErrNotOpen     = errors.New("serial: port not open")
)

var _ drivers.UART = (*Port)(nil)

var _ usart.Sink = (*Port)(nil)

// Config sizes the software buffers of a Port. Zero fields take defaults.
type Config struct {
	RxSize int // receive ring, bytes
	TxSize int // transmit ring, bytes
	Chunk  int // most bytes handed to the engine per write
}

const (
	defaultRxSize = 128
	defaultTxSize = 128
	defaultChunk  = 16
)

// ErrorCounts are the line errors seen since Open.
type ErrorCounts struct {
	Framing uint32
	Noise   uint32
	Overrun uint32
	Parity  uint32
	Dropped uint32 // received while the receive ring was full

	Last usart.ErrorSet
}

// Port is a serial port on one USART. It implements drivers.UART.
//
// One goroutine may read at a time; writes may come from several.
type Port struct {
	ll   *usart.LowLevel
	lock sync.Locker // masks the USART interrupt

	rx    *RingBuffer
	tx    *RingBuffer
	chunk []byte

	// Guarded by lock; also touched by the Sink methods, which run with the
	// interrupt already masked.
	rxChar [2]byte
	width  int // bytes per character, 2 in 9-bit format
	txBusy bool
	txIdle bool
	open   bool
	done   bool
	baud   uint32
	errs   ErrorCounts

	notify   chan struct{} // wake-up hint for blocking reads
	txNotify chan struct{} // wake-up hint for writers and Flush
	closed   chan struct{}
}

// New returns a closed port on ll. Task-side calls on ll are made while
// holding lock, which must mask the interrupt of ll's peripheral.
func New(ll *usart.LowLevel, lock sync.Locker, cfg Config) *Port {
	if cfg.RxSize <= 0 {
		cfg.RxSize = defaultRxSize
	}
	if cfg.TxSize <= 0 {
		cfg.TxSize = defaultTxSize
	}
	if cfg.Chunk <= 1 {
		cfg.Chunk = defaultChunk
	}
	cfg.Chunk &^= 1 // whole 9-bit characters
	return &Port{
		ll:       ll,
		lock:     lock,
		rx:       NewRingBuffer(cfg.RxSize),
		tx:       NewRingBuffer(cfg.TxSize),
		chunk:    make([]byte, cfg.Chunk),
		notify:   make(chan struct{}, 1),
		txNotify: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// Open starts the USART and arms reception. It returns the achieved baud
// rate. A port can be opened once.
func (p *Port) Open(baud uint32, f usart.Format) (uint32, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.done {
		return 0, ErrClosed
	}
	if p.open {
		return 0, ErrOpen
	}
	achieved, err := p.ll.Start(p, baud, f)
	if err != nil {
		return 0, err
	}
	p.width = 1
	if p.ll.Peripheral().Is9BitFormatEnabled() {
		p.width = 2
	}
	p.errs = ErrorCounts{}
	p.txIdle = true
	p.baud = achieved
	if err := p.ll.StartRead(p.rxChar[:p.width]); err != nil {
		p.ll.Close()
		return 0, err
	}
	p.open = true
	return achieved, nil
}

// Close stops the USART, dropping queued output, and wakes every waiter.
func (p *Port) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.done {
		return nil
	}
	p.ll.Close()
	p.open = false
	p.done = true
	close(p.closed)
	return nil
}

// Baud returns the achieved baud rate, 0 before Open.
func (p *Port) Baud() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.baud
}

// Errors returns the line error counters.
func (p *Port) Errors() ErrorCounts {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.errs
}

// Readable returns a coalesced notification for RX readiness. Callers must
// re-check state after waking.
func (p *Port) Readable() <-chan struct{} { return p.notify }

// Writable returns a coalesced notification for TX progress: ring space freed
// or the line drained. Callers must re-check state after waking.
func (p *Port) Writable() <-chan struct{} { return p.txNotify }

// Buffered returns the number of bytes waiting in the receive ring.
func (p *Port) Buffered() int { return p.rx.Used() }

// TxFree returns the remaining space in the transmit ring in bytes.
func (p *Port) TxFree() int { return p.tx.Free() }

// ---------------- interrupt side (usart.Sink) ----------------

func (p *Port) ReceiveErrorEvent(e usart.ErrorSet) {
	if e.Framing {
		p.errs.Framing++
	}
	if e.Noise {
		p.errs.Noise++
	}
	if e.Overrun {
		p.errs.Overrun++
	}
	if e.Parity {
		p.errs.Parity++
	}
	p.errs.Last = e
}

func (p *Port) ReadCompleteEvent(n int) {
	for _, b := range p.rxChar[:n] {
		if !p.rx.Put(b) {
			p.errs.Dropped++
		}
	}
	// The engine is idle again; the only failure would be a stopped engine.
	_ = p.ll.StartRead(p.rxChar[:p.width])
	signal(p.notify)
}

func (p *Port) WriteCompleteEvent(int) {
	p.txBusy = false
	p.kick()
	signal(p.txNotify)
}

func (p *Port) TransmitStartEvent() { p.txIdle = false }

func (p *Port) TransmitCompleteEvent() {
	p.txIdle = true
	signal(p.txNotify)
}

// kick hands the next chunk of the transmit ring to the engine when no write
// is in progress. It runs with the interrupt masked or from the handler.
func (p *Port) kick() {
	if p.txBusy || p.tx.Used() == 0 {
		return
	}
	n := 0
	for n < len(p.chunk) {
		b, ok := p.tx.Get()
		if !ok {
			break
		}
		p.chunk[n] = b
		n++
	}
	p.txBusy = true
	if err := p.ll.StartWrite(p.chunk[:n]); err != nil {
		p.txBusy = false
	}
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// ---------------- task side ----------------

// TryRead returns immediately with up to len(b) bytes copied from the receive
// ring. A return value of 0 means "no data now".
func (p *Port) TryRead(b []byte) int {
	n := 0
	for n < len(b) {
		c, ok := p.rx.Get()
		if !ok {
			break
		}
		b[n] = c
		n++
	}
	return n
}

// ReadByte reads a single byte from the receive ring. If there is no data
// available, it returns ErrBufferEmpty.
func (p *Port) ReadByte() (byte, error) {
	c, ok := p.rx.Get()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return c, nil
}

// Read implements io.Reader. It blocks until at least one byte is available
// or the port is closed.
func (p *Port) Read(b []byte) (int, error) {
	return p.ReadContext(context.Background(), b)
}

// WaitReadable blocks until data is available, ctx is done or the port is
// closed.
func (p *Port) WaitReadable(ctx context.Context) error {
	for {
		if p.Buffered() > 0 {
			return nil
		}
		if err := p.state(); err != nil {
			return err
		}
		select {
		case <-p.notify:
		case <-p.closed:
			if p.Buffered() > 0 {
				return nil
			}
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadContext blocks until at least one byte is available, then reads up to
// len(b).
func (p *Port) ReadContext(ctx context.Context, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if n := p.TryRead(b); n > 0 {
			return n, nil
		}
		if err := p.WaitReadable(ctx); err != nil {
			return 0, err
		}
	}
}

// ReadFullContext reads exactly len(b) bytes unless ctx ends first.
func (p *Port) ReadFullContext(ctx context.Context, b []byte) (int, error) {
	read := 0
	for read < len(b) {
		if n := p.TryRead(b[read:]); n > 0 {
			read += n
			continue
		}
		if err := p.WaitReadable(ctx); err != nil {
			return read, err
		}
	}
	return read, nil
}

// TryWrite queues up to len(b) bytes without blocking and returns how many
// were accepted. In 9-bit format only whole characters are taken.
func (p *Port) TryWrite(b []byte) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.open {
		return 0
	}
	n := min(len(b), p.tx.Free())
	if p.width == 2 {
		n &^= 1
	}
	for _, c := range b[:n] {
		p.tx.Put(c)
	}
	p.kick()
	return n
}

// Write implements io.Writer. It blocks until all of b is queued. It does not
// wait for the line to drain; use Flush for that.
func (p *Port) Write(b []byte) (int, error) {
	return p.WriteContext(context.Background(), b)
}

// WriteByte writes a single byte with the blocking behaviour of Write.
func (p *Port) WriteByte(c byte) error {
	_, err := p.Write([]byte{c})
	return err
}

// WriteContext is Write bounded by ctx. It returns the number of bytes queued
// before ctx ended. In 9-bit format len(b) must be even.
func (p *Port) WriteContext(ctx context.Context, b []byte) (int, error) {
	if err := p.state(); err != nil {
		return 0, err
	}
	if len(b)%p.charWidth() != 0 {
		return 0, usart.ErrInvalidArgument
	}
	sent := 0
	for sent < len(b) {
		if err := p.state(); err != nil {
			return sent, err
		}
		if n := p.TryWrite(b[sent:]); n > 0 {
			sent += n
			continue
		}
		if err := p.wait(ctx); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// Flush blocks until all queued bytes have left the shift register.
func (p *Port) Flush(ctx context.Context) error {
	for {
		if err := p.state(); err != nil {
			return err
		}
		p.lock.Lock()
		drained := p.tx.Used() == 0 && !p.txBusy && p.txIdle
		p.lock.Unlock()
		if drained {
			return nil
		}
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
}

func (p *Port) charWidth() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return max(p.width, 1)
}

func (p *Port) state() error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.open {
		return ErrNotOpen
	}
	return nil
}

// wait sleeps until TX progress, ctx end or close. Several writers share one
// coalesced channel, so it also wakes after a couple of character times.
func (p *Port) wait(ctx context.Context) error {
	t := time.NewTimer(p.drainTick())
	defer t.Stop()
	select {
	case <-p.txNotify:
	case <-t.C:
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// drainTick is about two character times at 8N1, with a lower bound.
func (p *Port) drainTick() time.Duration {
	baud := p.Baud()
	if baud == 0 {
		return 50 * time.Microsecond
	}
	perBit := time.Second / time.Duration(baud)
	t := 2 * 10 * perBit
	if t < 20*time.Microsecond {
		t = 20 * time.Microsecond
	}
	return t
}

package usart_test

import (
	"fmt"
	"testing"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
	"github.com/jangala-dev/tinygo-stm32usart/usart/sim"
)

// usart2 is USART2 of an STM32F401 with a 16 MHz APB1.
var usart2 = usart.Params{
	Name:      "USART2",
	Base:      0x40004400,
	IRQ:       38,
	EnableReg: 0x40023840,
	EnableBit: 17,
	ResetReg:  0x40023820,
	ResetBit:  17,
	Clocks:    usart.Clocks{AHB: 84000000, APB1: 16000000, APB2: 84000000},
	Over8:     true,
}

// event is one Sink notification, flattened for comparison.
type event struct {
	Kind string
	N    int
	Errs usart.ErrorSet
}

func (e event) String() string { return fmt.Sprintf("%s(%d,%v)", e.Kind, e.N, e.Errs) }

// recorder is a Sink that logs every event. onRead/onWrite run after the
// event is logged.
type recorder struct {
	events  []event
	onRead  func(n int)
	onWrite func(n int)
}

func (r *recorder) ReceiveErrorEvent(errs usart.ErrorSet) {
	r.events = append(r.events, event{Kind: "rxerr", Errs: errs})
}

func (r *recorder) ReadCompleteEvent(n int) {
	r.events = append(r.events, event{Kind: "read", N: n})
	if r.onRead != nil {
		r.onRead(n)
	}
}

func (r *recorder) WriteCompleteEvent(n int) {
	r.events = append(r.events, event{Kind: "write", N: n})
	if r.onWrite != nil {
		r.onWrite(n)
	}
}

func (r *recorder) TransmitStartEvent()    { r.events = append(r.events, event{Kind: "txstart"}) }
func (r *recorder) TransmitCompleteEvent() { r.events = append(r.events, event{Kind: "txdone"}) }

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	chip *sim.Chip
	hw   *sim.USART
	p    *usart.Peripheral
	ll   *usart.LowLevel
	sink *recorder
}

// newFixture builds a fresh chip with one USART wired to a LowLevel.
func newFixture(t *testing.T, params usart.Params) *fixture {
	t.Helper()
	chip := sim.NewChip()
	hw := chip.AddUSART(params)
	p, err := usart.NewPeripheral(chip, params)
	if err != nil {
		t.Fatalf("NewPeripheral: %v", err)
	}
	ll := usart.New(p)
	chip.Attach(params.IRQ, ll.HandleInterrupt)
	return &fixture{chip: chip, hw: hw, p: p, ll: ll, sink: &recorder{}}
}

// started is newFixture followed by a successful Start.
func started(t *testing.T, baud uint32, f usart.Format) *fixture {
	t.Helper()
	fx := newFixture(t, usart2)
	if _, err := fx.ll.Start(fx.sink, baud, f); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return fx
}

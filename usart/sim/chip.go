// Package sim is a software model of the STM32 parts the usart driver touches:
// USARTv1 register blocks, the RCC enable and reset bits, the bit-band alias
// region and NVIC lines. It implements usart.Platform so the driver runs
// unchanged on a host, and it dispatches interrupt handlers with the same
// masking rules as a single Cortex-M core.
package sim

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
	"github.com/jangala-dev/tinygo-stm32usart/usart/bitband"
)

// Chip is a simulated microcontroller.
type Chip struct {
	Core *Core

	mu     sync.Mutex // guards all register state below
	usarts map[uintptr]*USART
	words  map[uintptr]uint32 // RCC and other plain registers
	lines  map[int]*Line
}

// NewChip returns a chip with no peripherals.
func NewChip() *Chip {
	c := &Chip{
		usarts: map[uintptr]*USART{},
		words:  map[uintptr]uint32{},
		lines:  map[int]*Line{},
	}
	c.Core = newCore(c.dispatch)
	return c
}

// AddUSART creates the register block described by p. The block starts
// unclocked, as after power-on.
func (c *Chip) AddUSART(p usart.Params) *USART {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.usarts[p.Base]; ok {
		panic(fmt.Sprintf("sim: USART at %#x already exists", p.Base))
	}
	u := &USART{
		chip:      c,
		name:      p.Name,
		base:      p.Base,
		irq:       p.IRQ,
		enableReg: p.EnableReg,
		enableBit: p.EnableBit,
		resetReg:  p.ResetReg,
		resetBit:  p.ResetBit,
	}
	u.resetLocked()
	c.usarts[p.Base] = u
	c.lineLocked(p.IRQ)
	return u
}

// USART returns the block at base, or nil.
func (c *Chip) USART(base uintptr) *USART {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usarts[base]
}

// Attach installs handler on irq, like interrupt.New on a device.
func (c *Chip) Attach(irq int, handler func()) {
	c.mu.Lock()
	c.lineLocked(irq).handler = handler
	c.mu.Unlock()
}

// Registers implements usart.Platform.
func (c *Chip) Registers(base uintptr) usart.Registers {
	u := c.USART(base)
	if u == nil {
		panic(fmt.Sprintf("sim: no USART at %#x", base))
	}
	return u
}

// Bit implements usart.Platform. USART CR1 bits act on the block; any other
// register is a plain word, and RCC reset bits reset the USARTs they belong to.
func (c *Chip) Bit(alias uintptr) usart.Bit {
	reg, bit, err := bitband.Decode(alias)
	if err != nil {
		panic(fmt.Sprintf("sim: %#x: %v", alias, err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.usarts[reg-usart.OffsetCR1]; ok {
		return &cr1Bit{u: u, mask: 1 << bit}
	}
	return &wordBit{chip: c, reg: reg, mask: 1 << bit}
}

// Interrupt implements usart.Platform.
func (c *Chip) Interrupt(irq int) usart.Interrupt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineLocked(irq)
}

// Line returns the NVIC line irq.
func (c *Chip) Line(irq int) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lineLocked(irq)
}

func (c *Chip) lineLocked(irq int) *Line {
	l, ok := c.lines[irq]
	if !ok {
		l = &Line{chip: c, irq: irq}
		c.lines[irq] = l
	}
	return l
}

// Word reads a plain register, such as an RCC enable register.
func (c *Chip) Word(reg uintptr) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.words[reg]
}

// Step advances every USART transmitter by one character time.
func (c *Chip) Step() {
	for _, u := range c.blocks() {
		u.step()
	}
	c.Core.Raise()
}

// Run steps the chip every period until ctx is done. A step waits for the
// core, so a task holding it delays the line instead of overrunning the
// receiver.
func (c *Chip) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Core.Lock()
			c.Step()
			c.Core.Unlock()
		}
	}
}

func (c *Chip) blocks() []*USART {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*USART, 0, len(c.usarts))
	for _, u := range c.usarts {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *USART) int { return cmp.Compare(a.base, b.base) })
	return out
}

// dispatch runs handlers until no enabled line has a pending condition. It is
// only called by the Core while it owns the CPU.
func (c *Chip) dispatch() {
	for {
		ran := false
		for _, u := range c.blocks() {
			if h := c.pendingHandler(u); h != nil {
				h()
				ran = true
			}
		}
		if !ran {
			return
		}
	}
}

func (c *Chip) pendingHandler(u *USART) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lines[u.irq]
	if l == nil || !l.enabled || l.handler == nil {
		return nil
	}
	if u.sr&u.cr1&(usart.SR_RXNE|usart.SR_TXE|usart.SR_TC) == 0 {
		return nil
	}
	return l.handler
}

// setWordBit updates a plain register bit and applies RCC side effects.
func (c *Chip) setWordBit(reg uintptr, mask uint32, on bool) {
	c.mu.Lock()
	if on {
		c.words[reg] |= mask
	} else {
		c.words[reg] &^= mask
	}
	if on {
		for _, u := range c.usarts {
			if u.resetReg == reg && 1<<u.resetBit == mask {
				u.resetLocked()
				u.resets++
			}
		}
	}
	c.mu.Unlock()
	c.Core.Raise()
}

// Line is a simulated NVIC interrupt line.
type Line struct {
	chip     *Chip
	irq      int
	enabled  bool
	priority uint8
	handler  func()
}

func (l *Line) Enable() {
	l.chip.mu.Lock()
	l.enabled = true
	l.chip.mu.Unlock()
	l.chip.Core.Raise()
}

func (l *Line) Disable() {
	l.chip.mu.Lock()
	l.enabled = false
	l.chip.mu.Unlock()
}

func (l *Line) SetPriority(priority uint8) {
	l.chip.mu.Lock()
	l.priority = priority
	l.chip.mu.Unlock()
}

func (l *Line) Enabled() bool {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.enabled
}

func (l *Line) Priority() uint8 {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.priority
}

// wordBit is the alias of a bit in a plain register.
type wordBit struct {
	chip *Chip
	reg  uintptr
	mask uint32
}

func (b *wordBit) Set(on bool) { b.chip.setWordBit(b.reg, b.mask, on) }

func (b *wordBit) Get() bool { return b.chip.Word(b.reg)&b.mask != 0 }

// cr1Bit is the alias of a bit in a USART CR1.
type cr1Bit struct {
	u    *USART
	mask uint32
}

func (b *cr1Bit) Set(on bool) {
	c := b.u.chip
	c.mu.Lock()
	if b.u.clockedLocked() {
		if on {
			b.u.cr1 |= b.mask
		} else {
			b.u.cr1 &^= b.mask
		}
	}
	c.mu.Unlock()
	if on {
		c.Core.Raise()
	}
}

func (b *cr1Bit) Get() bool { return b.u.CR1()&b.mask != 0 }

//go:build usartdebug

package usart

import "sync/atomic"

// Stats holds counters since the last reset.
type Stats struct {
	// ISR-level
	ISRCount uint32 // number of ISR entries
	RxChars  uint32 // characters read from DR
	TxChars  uint32 // characters written to DR

	// Per-character error flags from SR
	ErrFraming uint32
	ErrNoise   uint32
	ErrOverrun uint32
	ErrParity  uint32

	// Events delivered to the sink
	ReadCompletes     uint32
	WriteCompletes    uint32
	TransmitCompletes uint32
}

func (l *LowLevel) DebugReset() {
	l.stats = Stats{}
}

func (l *LowLevel) DebugStats() Stats {
	return Stats{
		ISRCount: atomic.LoadUint32(&l.stats.ISRCount),
		RxChars:  atomic.LoadUint32(&l.stats.RxChars),
		TxChars:  atomic.LoadUint32(&l.stats.TxChars),

		ErrFraming: atomic.LoadUint32(&l.stats.ErrFraming),
		ErrNoise:   atomic.LoadUint32(&l.stats.ErrNoise),
		ErrOverrun: atomic.LoadUint32(&l.stats.ErrOverrun),
		ErrParity:  atomic.LoadUint32(&l.stats.ErrParity),

		ReadCompletes:     atomic.LoadUint32(&l.stats.ReadCompletes),
		WriteCompletes:    atomic.LoadUint32(&l.stats.WriteCompletes),
		TransmitCompletes: atomic.LoadUint32(&l.stats.TransmitCompletes),
	}
}

// Snapshot of the USARTv1 registers.
type Regs struct {
	SR  uint32
	BRR uint32
	CR1 uint32
	CR2 uint32
}

func (l *LowLevel) DebugRegs() Regs {
	r := l.p.regs
	return Regs{SR: r.SR(), BRR: r.BRR(), CR1: r.CR1(), CR2: r.CR2()}
}

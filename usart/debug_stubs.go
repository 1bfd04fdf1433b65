//go:build !usartdebug

package usart

type Stats struct{}

func (l *LowLevel) DebugReset()       {}
func (l *LowLevel) DebugStats() Stats { return Stats{} }

type Regs struct{}

func (l *LowLevel) DebugRegs() Regs { return Regs{} }

const (
	evReadComplete = iota
	evWriteComplete
	evTransmitComplete
)

func (l *LowLevel) dbgISR()      {}
func (l *LowLevel) dbgRx(uint32) {}
func (l *LowLevel) dbgTx()       {}
func (l *LowLevel) dbgEvent(int) {}

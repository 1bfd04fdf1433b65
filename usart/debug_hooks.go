//go:build usartdebug

package usart

import "sync/atomic"

const (
	evReadComplete = iota
	evWriteComplete
	evTransmitComplete
)

// Called at ISR entry.
func (l *LowLevel) dbgISR() {
	atomic.AddUint32(&l.stats.ISRCount, 1)
}

// Called per received character with the SR snapshot taken for it.
func (l *LowLevel) dbgRx(sr uint32) {
	atomic.AddUint32(&l.stats.RxChars, 1)
	if sr&SR_FE != 0 {
		atomic.AddUint32(&l.stats.ErrFraming, 1)
	}
	if sr&SR_NF != 0 {
		atomic.AddUint32(&l.stats.ErrNoise, 1)
	}
	if sr&SR_ORE != 0 {
		atomic.AddUint32(&l.stats.ErrOverrun, 1)
	}
	if sr&SR_PE != 0 {
		atomic.AddUint32(&l.stats.ErrParity, 1)
	}
}

func (l *LowLevel) dbgTx() {
	atomic.AddUint32(&l.stats.TxChars, 1)
}

func (l *LowLevel) dbgEvent(ev int) {
	switch ev {
	case evReadComplete:
		atomic.AddUint32(&l.stats.ReadCompletes, 1)
	case evWriteComplete:
		atomic.AddUint32(&l.stats.WriteCompletes, 1)
	case evTransmitComplete:
		atomic.AddUint32(&l.stats.TransmitCompletes, 1)
	}
}

//go:build nucleof401re

// Package hw binds the usart driver to the spare USARTs of a NUCLEO-F401RE.
// USART2 stays with the ST-LINK console that println uses.
//
//	USART1  TX PA9  RX PA10  (AF7)
//	USART6  TX PC6  RX PC7   (AF8)
package hw

import (
	"device/stm32"
	"machine"
	"runtime/interrupt"

	"github.com/jangala-dev/tinygo-stm32usart/serial"
	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

var clocks = usart.Clocks{AHB: 84000000, APB1: 42000000, APB2: 84000000}

var (
	USART1 = mustEngine(usart.Params{
		Name:      "USART1",
		Base:      0x40011000,
		IRQ:       stm32.IRQ_USART1,
		EnableReg: 0x40023844,
		EnableBit: 4,
		ResetReg:  0x40023824,
		ResetBit:  4,
		Clocks:    clocks,
		Over8:     true,
	})
	USART6 = mustEngine(usart.Params{
		Name:      "USART6",
		Base:      0x40011400,
		IRQ:       stm32.IRQ_USART6,
		EnableReg: 0x40023844,
		EnableBit: 5,
		ResetReg:  0x40023824,
		ResetBit:  5,
		Clocks:    clocks,
		Over8:     true,
	})
)

func init() {
	interrupt.New(stm32.IRQ_USART1, func(interrupt.Interrupt) { USART1.HandleInterrupt() })
	interrupt.New(stm32.IRQ_USART6, func(interrupt.Interrupt) { USART6.HandleInterrupt() })

	tx := machine.PinConfig{Mode: machine.PinModeUARTTX}
	rx := machine.PinConfig{Mode: machine.PinModeUARTRX}
	machine.PA9.ConfigureAltFunc(tx, 7)
	machine.PA10.ConfigureAltFunc(rx, 7)
	machine.PC6.ConfigureAltFunc(tx, 8)
	machine.PC7.ConfigureAltFunc(rx, 8)
}

func mustEngine(p usart.Params) *usart.LowLevel {
	per, err := usart.NewPeripheral(usart.MMIO, p)
	if err != nil {
		panic(err.Error())
	}
	return usart.New(per)
}

// Port wraps ll in a serial port guarded by an interrupt critical section.
func Port(ll *usart.LowLevel, cfg serial.Config) *serial.Port {
	return serial.New(ll, &usart.CriticalSection{}, cfg)
}

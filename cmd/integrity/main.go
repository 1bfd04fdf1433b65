//go:build nucleof401re

// Cross-USART integrity test for the NUCLEO-F401RE.
// Wiring:
//   USART1 TX=PA9 -> USART6 RX=PC7
//   USART6 TX=PC6 -> USART1 RX=PA10

package main

import (
	"context"
	"time"

	"machine"

	"github.com/jangala-dev/tinygo-stm32usart/internal/hw"
	"github.com/jangala-dev/tinygo-stm32usart/serial"
	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

/*** Tunables ***/
const (
	baud           = 460800
	totalBytes     = 32 * 1024 // bytes per direction
	fullDuplex     = true      // false: run each direction separately
	timeoutPerTest = 10 * time.Second
	warmupDelay    = 2 * time.Second

	sendChunk     = 192
	recvChunk     = 256
	contextRadius = 16 // bytes shown on each side of a mismatch
)

func patternA(i int) byte { return byte((i*31 + 0x55) & 0xFF) }
func patternB(i int) byte { return byte((i*17 + 0xA6) & 0xFF) }

func main() {
	time.Sleep(warmupDelay)
	println("usart integrity test (STM32F401)")
	println("baud =", baud, "  bytes/dir =", totalBytes, "  duplex =", boolToStr(fullDuplex))

	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	cfg := serial.Config{RxSize: 1024, TxSize: 512, Chunk: 64}
	u1 := hw.Port(hw.USART1, cfg)
	u6 := hw.Port(hw.USART6, cfg)
	for _, u := range []*serial.Port{u1, u6} {
		got, err := u.Open(baud, usart.Format8N1)
		if err != nil {
			println("open failed:", err.Error())
			halt()
		}
		println("achieved baud =", got)
	}

	pass, fail := 0, 0
	report := func(name, err string) {
		if err == "" {
			println("[PASS]", name)
			pass++
		} else {
			println("[FAIL]", name, ":", err)
			fail++
		}
	}

	if fullDuplex {
		report("Full-duplex integrity", runFullDuplex(totalBytes, u1, u6))
	} else {
		report("USART1 -> USART6 integrity", runOneWay(u1, u6, patternA, totalBytes))
		report("USART6 -> USART1 integrity", runOneWay(u6, u1, patternB, totalBytes))
	}
	printErrors("USART1", u1)
	printErrors("USART6", u6)

	println("")
	println("Summary")
	println("  passed =", pass)
	println("  failed =", fail)
	if fail == 0 {
		blink(machine.LED, 3, 120*time.Millisecond)
		return
	}
	halt()
}

func runOneWay(tx, rx *serial.Port, gen func(int) byte, n int) string {
	drain(tx)
	drain(rx)

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPerTest)
	defer cancel()

	errCh := make(chan string, 1)
	go func() { errCh <- recvAndCheck(ctx, rx, gen, n) }()
	_ = sendPattern(ctx, tx, gen, n)
	return <-errCh
}

func runFullDuplex(n int, a, b *serial.Port) string {
	drain(a)
	drain(b)

	ctx, cancel := context.WithTimeout(context.Background(), timeoutPerTest)
	defer cancel()

	errCh := make(chan string, 2)
	go func() { errCh <- recvAndCheck(ctx, b, patternA, n) }()
	go func() { errCh <- recvAndCheck(ctx, a, patternB, n) }()
	go func() { _ = sendPattern(ctx, a, patternA, n) }()
	go func() { _ = sendPattern(ctx, b, patternB, n) }()

	e1, e2 := <-errCh, <-errCh
	if e1 != "" {
		return e1
	}
	return e2
}

func drain(u *serial.Port) {
	var tmp [64]byte
	for u.TryRead(tmp[:]) > 0 {
	}
}

func sendPattern(ctx context.Context, u *serial.Port, gen func(int) byte, n int) error {
	var buf [sendChunk]byte
	for i := 0; i < n; {
		k := min(sendChunk, n-i)
		for j := 0; j < k; j++ {
			buf[j] = gen(i + j)
		}
		if _, err := u.WriteContext(ctx, buf[:k]); err != nil {
			return err
		}
		i += k
	}
	return u.Flush(ctx)
}

// recvAndCheck reads n bytes and compares each against gen(i). On the first
// mismatch it dumps the surrounding window.
func recvAndCheck(ctx context.Context, u *serial.Port, gen func(int) byte, n int) string {
	var buf [recvChunk]byte
	for received := 0; received < n; {
		m, err := u.ReadContext(ctx, buf[:min(len(buf), n-received)])
		if err != nil {
			return "timeout"
		}
		for i := 0; i < m; i++ {
			if buf[i] != gen(received+i) {
				off := received + i
				println("First mismatch at offset", off)
				printContext(gen, off, buf[:m], i)
				return "integrity mismatch"
			}
		}
		received += m
	}
	return ""
}

func printContext(gen func(int) byte, off int, got []byte, rel int) {
	start := max(off-contextRadius, 0)
	end := off + contextRadius + 1
	base := off - rel

	exp := make([]byte, end-start)
	act := make([]byte, end-start)
	for i := range exp {
		exp[i] = gen(start + i)
		if idx := start + i - base; idx >= 0 && idx < len(got) {
			act[i] = got[idx]
		}
	}

	println("Context (hex): bytes", start, "to", end-1)
	print(" exp: ")
	printHex(exp, -1)
	print(" act: ")
	printHex(act, off-start)
}

func printHex(b []byte, pivot int) {
	for i, v := range b {
		if i == pivot {
			print("[", byteToHex(v), "]")
		} else {
			print(" ", byteToHex(v))
		}
	}
	println("")
}

func printErrors(name string, u *serial.Port) {
	e := u.Errors()
	println(name, "framing", e.Framing, "noise", e.Noise, "overrun", e.Overrun,
		"parity", e.Parity, "dropped", e.Dropped)
}

func byteToHex(v byte) string {
	const hexdigits = "0123456789ABCDEF"
	return string([]byte{hexdigits[v>>4], hexdigits[v&0xF]})
}

func blink(pin machine.Pin, times int, on time.Duration) {
	for i := 0; i < times; i++ {
		pin.High()
		time.Sleep(on)
		pin.Low()
		time.Sleep(on)
	}
}

func halt() {
	for {
		blink(machine.LED, 1, 600*time.Millisecond)
		time.Sleep(800 * time.Millisecond)
	}
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

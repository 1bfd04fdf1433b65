//go:build nucleof401re

// Single-port self-test on USART1. Jumper PA9 (TX) to PA10 (RX).
package main

import (
	"context"
	"crypto/sha1"
	"time"

	"machine"

	"github.com/jangala-dev/tinygo-stm32usart/internal/hw"
	"github.com/jangala-dev/tinygo-stm32usart/serial"
	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

const (
	baud       = 921600
	lineEnding = "\r\n"
)

var u = hw.Port(hw.USART1, serial.Config{RxSize: 512, TxSize: 256, Chunk: 32})

func drain() {
	var tmp [64]byte
	for u.TryRead(tmp[:]) > 0 {
	}
}

// recvExact reads exactly n bytes or fails when ctx ends.
func recvExact(ctx context.Context, n int) ([]byte, error) {
	out := make([]byte, n)
	k, err := u.ReadFullContext(ctx, out)
	return out[:k], err
}

func ledBlink(times int, on time.Duration) {
	for i := 0; i < times; i++ {
		machine.LED.High()
		time.Sleep(on)
		machine.LED.Low()
		time.Sleep(on)
	}
}

func main() {
	time.Sleep(3 * time.Second)
	println("usart self-test starting")

	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	achieved, err := u.Open(baud, usart.Format8N1)
	if err != nil {
		println("Open failed:", err.Error())
		for {
			ledBlink(1, 500*time.Millisecond)
		}
	}
	println("achieved baud =", achieved)
	drain()

	pass, fail := 0, 0
	defer func() {
		println("")
		println("Summary")
		println("  passed =", pass)
		println("  failed =", fail)
		if fail == 0 {
			ledBlink(3, 120*time.Millisecond)
		} else {
			for {
				ledBlink(1, 600*time.Millisecond)
				time.Sleep(800 * time.Millisecond)
			}
		}
	}()

	run := func(name string, f func() string) {
		println("")
		println("[Test]", name)
		if msg := f(); msg == "" {
			println("  PASS")
			pass++
		} else {
			println("  FAIL:", msg)
			fail++
		}
	}

	run("sanity: short loopback", func() string {
		drain()
		msg := []byte("hello, usart" + lineEnding)
		if _, err := u.Write(msg); err != nil {
			return "write failed"
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		got, err := recvExact(ctx, len(msg))
		if err != nil {
			return "timeout"
		}
		if string(got) != string(msg) {
			return "mismatch"
		}
		return ""
	})

	run("timeout: no data within 200ms", func() string {
		drain()
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := u.WaitReadable(ctx); err == nil {
			return "unexpected data"
		}
		return ""
	})

	run("notify: Readable channel", func() string {
		drain()
		u.Write([]byte("AB"))
		select {
		case <-u.Readable():
		case <-time.After(time.Second):
			return "no notification"
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		got, err := recvExact(ctx, 2)
		if err != nil || string(got) != "AB" {
			return "wrong data"
		}
		return ""
	})

	run("flush: line idle after Flush", func() string {
		drain()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := u.WriteContext(ctx, []byte("flush"+lineEnding)); err != nil {
			return "write failed"
		}
		if err := u.Flush(ctx); err != nil {
			return "flush timeout"
		}
		if hw.USART1.WriteState() != usart.WriteIdle {
			return "transmitter not idle"
		}
		return ""
	})

	run("binary: 4 KiB integrity (SHA-1)", func() string {
		drain()
		n := 4 * 1024
		src := make([]byte, n)
		var x uint32 = 0x12345678
		for i := range src {
			x = 1664525*x + 1013904223
			src[i] = byte(x >> 24)
		}
		want := sha1.Sum(src)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		go func() { _, _ = u.WriteContext(ctx, src) }()
		got, err := recvExact(ctx, n)
		if err != nil {
			return "timeout/short read"
		}
		if sha1.Sum(got) != want {
			return "hash mismatch"
		}
		return ""
	})

	run("throughput: 32 KiB", func() string {
		drain()
		n := 32 * 1024
		src := make([]byte, n)
		for i := range src {
			src[i] = byte(i * 31)
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go func() { _, _ = u.WriteContext(ctx, src) }()
		if _, err := recvExact(ctx, n); err != nil {
			return "timeout"
		}

		ms := max(int(time.Since(start)/time.Millisecond), 1)
		kbpsX100 := (n*8*100 + ms/2) / ms
		println("  speed =", formatFixed2(kbpsX100), "kbps")
		return ""
	})

	run("errors: no line errors on loopback", func() string {
		e := u.Errors()
		if e.Framing+e.Noise+e.Parity > 0 {
			return "line errors: " + e.Last.String()
		}
		if e.Dropped > 0 {
			println("  dropped =", e.Dropped)
		}
		return ""
	})

	println("")
	println("All tests completed")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func formatFixed2(x int) string {
	frac := x % 100
	s := itoa(x/100) + "."
	if frac < 10 {
		s += "0"
	}
	return s + itoa(frac)
}

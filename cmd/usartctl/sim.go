package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
	"github.com/jangala-dev/tinygo-stm32usart/usart/sim"
)

var (
	simOpts = struct {
		board    string
		usart    string
		baud     uint32
		format   string
		loopback bool
	}{}

	simCmd = &cobra.Command{
		Use:   "sim [flags] [SCRIPT]",
		Short: "Drive a simulated USART from a script",
		Long: `Run a script against a LowLevel engine on a simulated chip and print
every event. The script is read from SCRIPT or standard input, one command per
line; # starts a comment.

  write TEXT...        start a write of TEXT
  write9 WORD...       start a 9-bit write of hexadecimal characters
  inject TEXT [ERRS]   deliver TEXT to the receiver, ERRS like framing,parity
  read N               start a read of N bytes
  step [N]             advance the transmitter N character times
  drain                step until the transmitter is idle
  stopread | stopwrite | stop | start
  state | regs | wire`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			f, err := usart.ParseFormat(simOpts.format)
			if err != nil {
				return err
			}
			p, err := boardParams(simOpts.board, simOpts.usart)
			if err != nil {
				return err
			}
			s, err := newSimulator(cmd.OutOrStdout(), p, simOpts.baud, f, simOpts.loopback)
			if err != nil {
				return err
			}
			return s.run(in)
		},
	}
)

func init() {
	simCmd.Flags().StringVarP(&simOpts.board, "board", "b", "ST_NUCLEO-F401RE", "board")
	simCmd.Flags().StringVarP(&simOpts.usart, "usart", "u", "USART2", "USART of the board")
	simCmd.Flags().Uint32Var(&simOpts.baud, "baud", 115200, "baud rate")
	simCmd.Flags().StringVar(&simOpts.format, "format", "8N1", "character format")
	simCmd.Flags().BoolVar(&simOpts.loopback, "loopback", false, "connect TX to RX")
}

// simulator runs script commands on one engine. It is also the engine's Sink
// and prints every event.
type simulator struct {
	out    io.Writer
	chip   *sim.Chip
	hw     *sim.USART
	ll     *usart.LowLevel
	baud   uint32
	format usart.Format
	rxBuf  []byte
}

func newSimulator(out io.Writer, p usart.Params, baud uint32, f usart.Format, loopback bool) (*simulator, error) {
	chip := sim.NewChip()
	hw := chip.AddUSART(p)
	per, err := usart.NewPeripheral(chip, p)
	if err != nil {
		return nil, err
	}
	ll := usart.New(per)
	chip.Attach(p.IRQ, ll.HandleInterrupt)
	if loopback {
		hw.Connect(hw)
	}
	s := &simulator{out: out, chip: chip, hw: hw, ll: ll, baud: baud, format: f}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *simulator) start() error {
	achieved, err := s.ll.Start(s, s.baud, s.format)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "started %s %s at %d Bd (requested %d)\n", s.ll.Peripheral().Name(), s.format, achieved, s.baud)
	return nil
}

func (s *simulator) ReceiveErrorEvent(e usart.ErrorSet) {
	fmt.Fprintf(s.out, "event receive_error %s\n", e)
}

func (s *simulator) ReadCompleteEvent(n int) {
	fmt.Fprintf(s.out, "event read_complete %d %q\n", n, s.rxBuf[:n])
}

func (s *simulator) WriteCompleteEvent(n int) {
	fmt.Fprintf(s.out, "event write_complete %d\n", n)
}

func (s *simulator) TransmitStartEvent()    { fmt.Fprintln(s.out, "event transmit_start") }
func (s *simulator) TransmitCompleteEvent() { fmt.Fprintln(s.out, "event transmit_complete") }

// run executes a script. Engine errors are printed and the script goes on;
// malformed commands stop it.
func (s *simulator) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields, err := shlex.Split(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintf(s.out, "> %s\n", strings.Join(fields, " "))
		if err := s.exec(fields[0], fields[1:]); err != nil {
			if usart.CodeOf(err) == "" {
				return fmt.Errorf("line %d: %w", line, err)
			}
			fmt.Fprintf(s.out, "error %v\n", err)
		}
	}
	return sc.Err()
}

func (s *simulator) exec(cmd string, args []string) error {
	switch cmd {
	case "write":
		return s.ll.StartWrite([]byte(strings.Join(args, " ")))
	case "write9":
		buf := make([]byte, 0, 2*len(args))
		for _, a := range args {
			w, err := strconv.ParseUint(a, 16, 9)
			if err != nil {
				return err
			}
			buf = append(buf, byte(w), byte(w>>8))
		}
		return s.ll.StartWrite(buf)
	case "inject":
		if len(args) == 0 || len(args) > 2 {
			return fmt.Errorf("inject TEXT [ERRS]")
		}
		var errs usart.ErrorSet
		if len(args) == 2 {
			var err error
			if errs, err = parseErrors(args[1]); err != nil {
				return err
			}
		}
		for _, c := range []byte(args[0]) {
			s.hw.Receive(uint16(c), errs)
		}
		return nil
	case "read":
		n, err := intArg(args, 0)
		if err != nil {
			return err
		}
		s.rxBuf = make([]byte, n)
		return s.ll.StartRead(s.rxBuf)
	case "step":
		n, err := intArg(args, 1)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			s.chip.Step()
		}
		return nil
	case "drain":
		fmt.Fprintf(s.out, "drained after %d steps\n", s.hw.Drain(1<<16))
		return nil
	case "stopread":
		fmt.Fprintf(s.out, "stopread %d\n", s.ll.StopRead())
		return nil
	case "stopwrite":
		fmt.Fprintf(s.out, "stopwrite %d\n", s.ll.StopWrite())
		return nil
	case "stop":
		return s.ll.Stop()
	case "start":
		return s.start()
	case "state":
		fmt.Fprintf(s.out, "started=%v read=%s write=%s\n", s.ll.Started(), s.ll.ReadState(), s.ll.WriteState())
		return nil
	case "regs":
		fmt.Fprintf(s.out, "SR=%#04x BRR=%#04x CR1=%#04x CR2=%#04x\n", s.hw.SR(), s.hw.BRR(), s.hw.CR1(), s.hw.CR2())
		return nil
	case "wire":
		fmt.Fprintf(s.out, "wire %s\n", formatWire(s.hw.Wire()))
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// intArg parses the only argument, or returns def when there is none.
func intArg(args []string, def int) (int, error) {
	switch len(args) {
	case 0:
		if def == 0 {
			return 0, fmt.Errorf("missing count")
		}
		return def, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("negative count %d", n)
		}
		return n, nil
	}
	return 0, fmt.Errorf("too many arguments")
}

func parseErrors(s string) (usart.ErrorSet, error) {
	var e usart.ErrorSet
	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "framing":
			e.Framing = true
		case "noise":
			e.Noise = true
		case "overrun":
			e.Overrun = true
		case "parity":
			e.Parity = true
		default:
			return e, fmt.Errorf("unknown error %q", name)
		}
	}
	return e, nil
}

func formatWire(w []uint16) string {
	parts := make([]string, len(w))
	for i, c := range w {
		if c < 0x100 && strconv.IsPrint(rune(c)) {
			parts[i] = strconv.QuoteRune(rune(c))
		} else {
			parts[i] = fmt.Sprintf("%#03x", c)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

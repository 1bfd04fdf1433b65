// Package board describes the STM32 chips and boards the usart driver knows
// about and turns them into usart.Params. The built-in tables are embedded
// from boards.yaml; Load reads a table of the same shape.
package board

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/jangala-dev/tinygo-stm32usart/usart"
)

//go:embed boards.yaml
var rawBoards []byte

var (
	ErrUnknownBoard  = errors.New("unknown board")
	ErrUnknownChip   = errors.New("unknown chip")
	ErrUnknownUSART  = errors.New("unknown USART")
	ErrDisabledUSART = errors.New("USART not enabled on board")
	ErrInvalidTable  = errors.New("invalid board table")
)

// RCC register offsets.
const (
	offAPB1RSTR = 0x20
	offAPB2RSTR = 0x24
	offAPB1ENR  = 0x40
	offAPB2ENR  = 0x44
)

type Table struct {
	Chips  []Chip  `yaml:"chips"`
	Boards []Board `yaml:"boards"`
}

type Chip struct {
	Name   string     `yaml:"name"`
	RCC    uintptr    `yaml:"rcc"`
	Over8  bool       `yaml:"over8"`
	USARTs []Instance `yaml:"usarts"`
}

// Instance is one USART of a chip.
type Instance struct {
	Name string  `yaml:"name"`
	Base uintptr `yaml:"base"`
	IRQ  int     `yaml:"irq"`
	Bus  string  `yaml:"bus"`
	Bit  uint8   `yaml:"bit"`
}

type Clocks struct {
	AHB  uint32 `yaml:"ahb"`
	APB1 uint32 `yaml:"apb1"`
	APB2 uint32 `yaml:"apb2"`
}

type Board struct {
	Name   string   `yaml:"name"`
	Chip   string   `yaml:"chip"`
	Clocks Clocks   `yaml:"clocks"`
	Enable []string `yaml:"usarts"`

	chip *Chip
}

var builtin *Table

func init() {
	t, err := parse(rawBoards)
	if err != nil {
		panic(err)
	}
	builtin = t
}

// Default returns the built-in table.
func Default() *Table { return builtin }

// All returns the built-in boards.
func All() []Board { return slices.Clone(builtin.Boards) }

// Lookup finds a built-in board by name. Case is ignored.
func Lookup(name string) (*Board, error) { return builtin.Lookup(name) }

// Load reads and validates a table.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := t.link(); err != nil {
		return nil, err
	}
	return &t, nil
}

// link resolves every board's chip and checks the enabled USARTs exist.
func (t *Table) link() error {
	for i := range t.Chips {
		c := &t.Chips[i]
		for _, u := range c.USARTs {
			if u.Bit > 31 {
				return fmt.Errorf("%w: %s %s: bit %d", ErrInvalidTable, c.Name, u.Name, u.Bit)
			}
			if _, _, err := c.rccRegs(u); err != nil {
				return err
			}
		}
	}
	for i := range t.Boards {
		b := &t.Boards[i]
		c, err := t.FindChip(b.Chip)
		if err != nil {
			return fmt.Errorf("%w: board %s: %w", ErrInvalidTable, b.Name, err)
		}
		for _, name := range b.Enable {
			if _, ok := c.instance(name); !ok {
				return fmt.Errorf("%w: board %s: %w %s on %s", ErrInvalidTable, b.Name, ErrUnknownUSART, name, c.Name)
			}
		}
		b.chip = c
	}
	return nil
}

// Lookup finds a board by name. Case is ignored.
func (t *Table) Lookup(name string) (*Board, error) {
	i := slices.IndexFunc(t.Boards, func(b Board) bool { return strings.EqualFold(b.Name, name) })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, name)
	}
	return &t.Boards[i], nil
}

// FindChip finds a chip by name. Case is ignored.
func (t *Table) FindChip(name string) (*Chip, error) {
	i := slices.IndexFunc(t.Chips, func(c Chip) bool { return strings.EqualFold(c.Name, name) })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChip, name)
	}
	return &t.Chips[i], nil
}

func (c *Chip) instance(name string) (Instance, bool) {
	i := slices.IndexFunc(c.USARTs, func(u Instance) bool { return strings.EqualFold(u.Name, name) })
	if i < 0 {
		return Instance{}, false
	}
	return c.USARTs[i], true
}

// rccRegs returns the enable and reset registers of the bus u sits on.
func (c *Chip) rccRegs(u Instance) (enable, reset uintptr, err error) {
	switch strings.ToLower(u.Bus) {
	case "apb1":
		return c.RCC + offAPB1ENR, c.RCC + offAPB1RSTR, nil
	case "apb2":
		return c.RCC + offAPB2ENR, c.RCC + offAPB2RSTR, nil
	}
	return 0, 0, fmt.Errorf("%w: %s %s: bus %q", ErrInvalidTable, c.Name, u.Name, u.Bus)
}

// ChipInfo returns the chip the board carries.
func (b *Board) ChipInfo() *Chip { return b.chip }

// USARTs returns the names of the instances the board enables.
func (b *Board) USARTs() []string { return slices.Clone(b.Enable) }

// Params builds the construction facts of one enabled USART.
func (b *Board) Params(name string) (usart.Params, error) {
	u, ok := b.chip.instance(name)
	if !ok {
		return usart.Params{}, fmt.Errorf("%w: %s on %s", ErrUnknownUSART, name, b.chip.Name)
	}
	if !slices.ContainsFunc(b.Enable, func(s string) bool { return strings.EqualFold(s, name) }) {
		return usart.Params{}, fmt.Errorf("%w: %s on %s", ErrDisabledUSART, u.Name, b.Name)
	}
	enable, reset, err := b.chip.rccRegs(u)
	if err != nil {
		return usart.Params{}, err
	}
	return usart.Params{
		Name:      u.Name,
		Base:      u.Base,
		IRQ:       u.IRQ,
		EnableReg: enable,
		EnableBit: u.Bit,
		ResetReg:  reset,
		ResetBit:  u.Bit,
		Clocks:    usart.Clocks{AHB: b.Clocks.AHB, APB1: b.Clocks.APB1, APB2: b.Clocks.APB2},
		Over8:     b.chip.Over8,
	}, nil
}

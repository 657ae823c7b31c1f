// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package z80host is a minimal MSX-like host around a Z80 core. It maps the
// Nextor driver bank at page 1 and raises extension calls for the ED xx
// instructions planted by the kernel patcher.
package z80host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/koron-go/z80"

	"github.com/siderolabs/msx-diskbridge/internal/kernelpatch"
	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

const (
	opExtension = 0xed
	opHalt      = 0x76

	// Call returns to haltAddr, which holds a HALT instruction.
	haltAddr   = 0xfffe
	stackTop   = 0xfff0
	kernelBank = kernelpatch.DriverBank / kernelpatch.PageSize
)

var (
	// ErrKernelTooSmall is returned when the kernel image does not contain the driver bank.
	ErrKernelTooSmall = errors.New("kernel image does not contain the driver bank")
	// ErrNotExtension is returned when a trap address does not hold an extension instruction.
	ErrNotExtension = errors.New("trap address does not hold an extension instruction")
	// ErrCPU wraps failures of the CPU core.
	ErrCPU = errors.New("cpu error")
)

// Machine runs guest code on a Z80 core and hands extension calls to a handler.
type Machine struct {
	logger  *slog.Logger
	mem     *Memory
	cpu     z80.CPU
	handler trap.ExtensionHandler
}

// New creates a machine with empty RAM and no traps.
func New(logger *slog.Logger) *Machine {
	mem := &Memory{}

	m := &Machine{
		logger: logger,
		mem:    mem,
		cpu: z80.CPU{
			States: z80.States{SPR: z80.SPR{SP: stackTop}},
			Memory: mem,
		},
	}
	m.cpu.BreakPoints = map[uint16]struct{}{}

	return m
}

// Memory returns the machine address space.
func (m *Machine) Memory() *Memory {
	return m.mem
}

// Read implements drive.Bus.
func (m *Machine) Read(addr uint16) uint8 {
	return m.mem.Read(addr)
}

// Write implements drive.Bus.
func (m *Machine) Write(addr uint16, value uint8) {
	m.mem.Write(addr, value)
}

// SetExtensionHandler installs h, or detaches the current handler when h is nil.
func (m *Machine) SetExtensionHandler(h trap.ExtensionHandler) {
	m.handler = h
}

// LoadKernel maps the driver bank of a (patched) Nextor kernel as read-only
// page 1 and arms a trap on every driver thunk.
func (m *Machine) LoadKernel(kernel []byte) error {
	start := kernelBank * kernelpatch.PageSize
	end := start + kernelpatch.PageSize

	if len(kernel) < end {
		return fmt.Errorf("%w: %d bytes, need %d", ErrKernelTooSmall, len(kernel), end)
	}

	m.mem.load(kernelpatch.PageBase, kernel[start:end])
	m.mem.rom[page(kernelpatch.PageBase)] = true

	for _, t := range kernelpatch.Thunks() {
		m.SetTrap(t.Addr)
	}

	m.logger.Debug("kernel driver bank mapped", "page", util.Hex16(kernelpatch.PageBase))

	return nil
}

// SetTrap makes the machine stop and raise an extension call when the CPU
// reaches addr.
func (m *Machine) SetTrap(addr uint16) {
	m.cpu.BreakPoints[addr] = struct{}{}
}

// Traps lists the armed trap addresses in ascending order.
func (m *Machine) Traps() []uint16 {
	addrs := make([]uint16, 0, len(m.cpu.BreakPoints))
	for addr := range m.cpu.BreakPoints {
		addrs = append(addrs, addr)
	}

	slices.Sort(addrs)

	return addrs
}

func (m *Machine) registers() trap.Registers {
	s := &m.cpu.States

	return trap.Registers{
		AF: trap.Pair{High: s.AF.Hi, Low: s.AF.Lo},
		BC: trap.Pair{High: s.BC.Hi, Low: s.BC.Lo},
		DE: trap.Pair{High: s.DE.Hi, Low: s.DE.Lo},
		HL: trap.Pair{High: s.HL.Hi, Low: s.HL.Lo},
		IX: s.IX,
		IY: s.IY,
	}
}

func (m *Machine) setRegisters(regs trap.Registers) {
	s := &m.cpu.States

	s.AF.Hi, s.AF.Lo = regs.AF.High, regs.AF.Low
	s.BC.Hi, s.BC.Lo = regs.BC.High, regs.BC.Low
	s.DE.Hi, s.DE.Lo = regs.DE.High, regs.DE.Low
	s.HL.Hi, s.HL.Lo = regs.HL.High, regs.HL.Low
	s.IX = regs.IX
	s.IY = regs.IY
}

// Call runs the routine at addr with regs loaded, as if the guest executed a
// CALL, until the routine returns. It returns the registers left by the routine.
func (m *Machine) Call(ctx context.Context, addr uint16, regs trap.Registers) (trap.Registers, error) {
	m.mem.Set(haltAddr, opHalt)

	sp := uint16(stackTop - 2)
	m.mem.Set(sp, uint8(haltAddr&0xff))
	m.mem.Set(sp+1, uint8(haltAddr>>8))

	m.setRegisters(regs)
	m.cpu.SP = sp
	m.cpu.PC = addr
	m.cpu.HALT = false

	l := m.logger.With("addr", util.Hex16(addr))
	util.TraceLog(l, "calling guest routine", "regs", regs.String())

	// the core steps once before looking at breakpoints, so a trap at the
	// entry point has to be serviced before the first run
	if _, armed := m.cpu.BreakPoints[addr]; armed {
		if err := m.extension(); err != nil {
			return m.registers(), err
		}
	}

	for {
		err := m.cpu.Run(ctx)

		switch {
		case err == nil:
			// HALT reached, the routine returned
			out := m.registers()
			util.TraceLog(l, "guest routine returned", "regs", out.String())

			return out, nil
		case errors.Is(err, z80.ErrBreakPoint):
			if err := m.extension(); err != nil {
				return m.registers(), err
			}
		default:
			return m.registers(), fmt.Errorf("%w: %w", ErrCPU, err)
		}
	}
}

// extension services the ED xx instruction at PC and steps over it.
func (m *Machine) extension() error {
	pc := m.cpu.PC

	if m.mem.Get(pc) != opExtension {
		return fmt.Errorf("%w: %s", ErrNotExtension, util.Hex16(pc))
	}

	call := trap.Call{Code: trap.Code(m.mem.Get(pc + 1)), Regs: m.registers()}

	if m.handler == nil {
		m.logger.Debug("no extension handler installed", "code", call.Code.String())
	} else if res, ok := m.handler.HandleExtension(call); ok {
		res.Apply(&call.Regs)
		m.setRegisters(call.Regs)
	}

	m.cpu.PC = pc + 2

	return nil
}

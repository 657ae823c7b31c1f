// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package z80host

import (
	"github.com/koron-go/z80"

	"github.com/siderolabs/msx-diskbridge/internal/drive"
)

var (
	_ z80.Memory = (*Memory)(nil)
	_ drive.Bus  = (*Memory)(nil)
)

// Memory is a flat 64 KiB address space with optional read-only pages.
// It serves both the CPU core and the disk handlers, so a handler can never
// write over ROM either.
type Memory struct {
	data [0x10000]uint8
	rom  [4]bool
}

func page(addr uint16) int {
	return int(addr >> 14)
}

// Get implements z80.Memory.
func (m *Memory) Get(addr uint16) uint8 {
	return m.data[addr]
}

// Set implements z80.Memory. Writes to read-only pages are dropped.
func (m *Memory) Set(addr uint16, value uint8) {
	if m.rom[page(addr)] {
		return
	}

	m.data[addr] = value
}

// Read implements drive.Bus.
func (m *Memory) Read(addr uint16) uint8 {
	return m.Get(addr)
}

// Write implements drive.Bus.
func (m *Memory) Write(addr uint16, value uint8) {
	m.Set(addr, value)
}

// load copies data at addr, bypassing write protection.
func (m *Memory) load(addr uint16, data []byte) {
	copy(m.data[addr:], data)
}

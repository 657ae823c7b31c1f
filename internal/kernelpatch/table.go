// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package kernelpatch

import (
	"bytes"
	"strings"

	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

// Z80 opcodes used by the patch.
const (
	opED  = uint8(0xed) // extension prefix trapped by the host
	opRET = uint8(0xc9)
	opSCF = uint8(0x37)
)

const (
	// DriverBank is the absolute offset of the driver bank inside the Nextor kernel ROM.
	DriverBank = 0x1c000
	// PageSize is the size of a kernel bank as mapped by the guest.
	PageSize = 0x4000
	// PageBase is the CPU address the driver bank is mapped at.
	PageBase = uint16(0x4000)
)

// DriverName is installed into DRV_NAME, space padded to 32 bytes.
const DriverName = "WebMSX Nextor Device Driver"

const driverNameLen = 32

// Entry is one region of the kernel the patch overwrites.
type Entry struct {
	Label  string
	Offset int
	Bytes  []byte

	// Code is only meaningful for thunks.
	Code  trap.Code
	Thunk bool
}

// End returns the offset right after the entry.
func (e Entry) End() int {
	return e.Offset + len(e.Bytes)
}

// Thunk is a patched entry point raising an extension call.
type Thunk struct {
	Label  string
	Offset int
	Addr   uint16
	Code   trap.Code
}

// CPUAddress converts an absolute kernel offset into the address the guest
// sees once the owning bank is mapped at PageBase.
func CPUAddress(offset int) uint16 {
	return PageBase + uint16(offset%PageSize)
}

func thunk(label string, offset int, code trap.Code) Entry {
	return Entry{Label: label, Offset: offset, Bytes: []byte{opED, uint8(code), opRET}, Code: code, Thunk: true}
}

// setCarry installs SCF; RET, meaning "not supported" to the kernel.
func setCarry(label string, offset int) Entry {
	return Entry{Label: label, Offset: offset, Bytes: []byte{opSCF, opRET, opRET}}
}

func ret(label string, offset, n int) Entry {
	return Entry{Label: label, Offset: offset, Bytes: bytes.Repeat([]byte{opRET}, n)}
}

func name(label string, offset int, s string) Entry {
	b := []byte(s + strings.Repeat(" ", driverNameLen))

	return Entry{Label: label, Offset: offset, Bytes: b[:driverNameLen]}
}

// the signature (DRV_SIGN) is already correct on the base kernel.
var table = []Entry{
	// driver header
	{Label: "DRV_FLAGS", Offset: 0x1c10e, Bytes: []byte{0x01}}, // device-based driver
	name("DRV_NAME", 0x1c110, DriverName),

	// common routines
	ret("DRV_TIMI", 0x1c130, 3),
	thunk("DRV_VERSION", 0x1c133, trap.NextorVersion),
	thunk("DRV_INIT", 0x1c136, trap.NextorInit),
	setCarry("DRV_BASSTAT", 0x1c139),
	setCarry("DRV_BASDEV", 0x1c13c),
	ret("DRV_EXTBIO", 0x1c13f, 3),
	ret("DRV_DIRECT0", 0x1c142, 3),
	ret("DRV_DIRECT1", 0x1c145, 3),
	ret("DRV_DIRECT2", 0x1c148, 3),
	ret("DRV_DIRECT3", 0x1c14b, 3),
	ret("DRV_DIRECT4", 0x1c14e, 4), // runs up to the reserved area

	// routines for device-based drivers
	thunk("DEV_RW", 0x1c160, trap.NextorRW),
	thunk("DEV_INFO", 0x1c163, trap.NextorInfo),
	thunk("DEV_STATUS", 0x1c166, trap.NextorStatus),
	thunk("LUN_INFO", 0x1c169, trap.NextorLUNInfo),
}

// Table returns a copy of the patch table.
func Table() []Entry {
	out := make([]Entry, len(table))
	for i, e := range table {
		e.Bytes = append([]byte(nil), e.Bytes...)
		out[i] = e
	}

	return out
}

// Thunks returns the entries raising extension calls.
func Thunks() []Thunk {
	var out []Thunk

	for _, e := range table {
		if !e.Thunk {
			continue
		}

		out = append(out, Thunk{Label: e.Label, Offset: e.Offset, Addr: CPUAddress(e.Offset), Code: e.Code})
	}

	return out
}

// RequiredSize is the smallest image the table fits into.
func RequiredSize() int {
	size := 0

	for _, e := range table {
		if e.End() > size {
			size = e.End()
		}
	}

	return size
}

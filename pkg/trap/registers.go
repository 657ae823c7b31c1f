// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package trap

import "fmt"

// FlagCarry is the carry bit of the F register.
const FlagCarry = uint8(0x01)

// Registers is the part of the guest register file an extension call can see.
type Registers struct {
	AF, BC, DE, HL Pair
	IX, IY         uint16
}

// A returns the accumulator.
func (r *Registers) A() uint8 { return r.AF.High }

// F returns the flags register.
func (r *Registers) F() uint8 { return r.AF.Low }

// B returns register B.
func (r *Registers) B() uint8 { return r.BC.High }

// C returns register C.
func (r *Registers) C() uint8 { return r.BC.Low }

// Carry reports whether the carry flag is set.
func (r *Registers) Carry() bool { return r.F()&FlagCarry != 0 }

// String converts the registers to string, useful for debugging.
func (r *Registers) String() string {
	return fmt.Sprintf("af=%04x bc=%04x de=%04x hl=%04x ix=%04x iy=%04x",
		r.AF.Word(), r.BC.Word(), r.DE.Word(), r.HL.Word(), r.IX, r.IY)
}

// Call is a single trapped extension call.
type Call struct {
	Code Code
	Regs Registers
}

// ExtensionHandler consumes the calls raised by extension instructions.
// The bool reports whether the code was handled at all; when it is false the
// guest registers must be left untouched.
type ExtensionHandler interface {
	HandleExtension(call Call) (Result, bool)
}

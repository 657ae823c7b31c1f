// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package trap

import (
	"fmt"
	"strings"
)

// Field identifies a register a Result may set.
type Field uint8

// Fields a handler can write back.
const (
	FieldA Field = 1 << iota
	FieldF
	FieldB
	FieldC
	FieldDE
	FieldHL
)

// Result is a sparse register overlay. The zero value sets nothing.
type Result struct {
	set  Field
	a, f uint8
	b, c uint8
	de   uint16
	hl   uint16
}

// WithA sets the accumulator.
func (r Result) WithA(v uint8) Result {
	r.a = v
	r.set |= FieldA

	return r
}

// WithF sets the flags register.
func (r Result) WithF(v uint8) Result {
	r.f = v
	r.set |= FieldF

	return r
}

// WithB sets register B.
func (r Result) WithB(v uint8) Result {
	r.b = v
	r.set |= FieldB

	return r
}

// WithC sets register C.
func (r Result) WithC(v uint8) Result {
	r.c = v
	r.set |= FieldC

	return r
}

// WithDE sets register pair DE.
func (r Result) WithDE(v uint16) Result {
	r.de = v
	r.set |= FieldDE

	return r
}

// WithHL sets register pair HL.
func (r Result) WithHL(v uint16) Result {
	r.hl = v
	r.set |= FieldHL

	return r
}

// Has reports whether field f is part of the overlay.
func (r Result) Has(f Field) bool {
	return r.set&f == f
}

// Empty reports whether the overlay sets no register at all.
func (r Result) Empty() bool {
	return r.set == 0
}

// A returns the accumulator value and whether it is set.
func (r Result) A() (uint8, bool) { return r.a, r.Has(FieldA) }

// F returns the flags value and whether it is set.
func (r Result) F() (uint8, bool) { return r.f, r.Has(FieldF) }

// B returns the B value and whether it is set.
func (r Result) B() (uint8, bool) { return r.b, r.Has(FieldB) }

// C returns the C value and whether it is set.
func (r Result) C() (uint8, bool) { return r.c, r.Has(FieldC) }

// DE returns the DE value and whether it is set.
func (r Result) DE() (uint16, bool) { return r.de, r.Has(FieldDE) }

// HL returns the HL value and whether it is set.
func (r Result) HL() (uint16, bool) { return r.hl, r.Has(FieldHL) }

// Apply writes the set fields into regs and leaves everything else alone.
func (r Result) Apply(regs *Registers) {
	if r.Has(FieldA) {
		regs.AF.High = r.a
	}

	if r.Has(FieldF) {
		regs.AF.Low = r.f
	}

	if r.Has(FieldB) {
		regs.BC.High = r.b
	}

	if r.Has(FieldC) {
		regs.BC.Low = r.c
	}

	if r.Has(FieldDE) {
		regs.DE.SetWord(r.de)
	}

	if r.Has(FieldHL) {
		regs.HL.SetWord(r.hl)
	}
}

// String lists the set fields, useful for debugging.
func (r Result) String() string {
	if r.Empty() {
		return "{}"
	}

	var parts []string

	if v, ok := r.A(); ok {
		parts = append(parts, fmt.Sprintf("a=%02x", v))
	}

	if v, ok := r.F(); ok {
		parts = append(parts, fmt.Sprintf("f=%02x", v))
	}

	if v, ok := r.B(); ok {
		parts = append(parts, fmt.Sprintf("b=%02x", v))
	}

	if v, ok := r.C(); ok {
		parts = append(parts, fmt.Sprintf("c=%02x", v))
	}

	if v, ok := r.DE(); ok {
		parts = append(parts, fmt.Sprintf("de=%04x", v))
	}

	if v, ok := r.HL(); ok {
		parts = append(parts, fmt.Sprintf("hl=%04x", v))
	}

	return "{" + strings.Join(parts, " ") + "}"
}

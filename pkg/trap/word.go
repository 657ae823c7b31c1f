// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package trap

// Pair is a Z80 register pair such as BC or HL.
type Pair struct {
	High uint8
	Low  uint8
}

// NewPair builds a pair from a 16-bit word.
func NewPair(w uint16) Pair {
	var p Pair

	p.SetWord(w)

	return p
}

// Word returns the pair as a single 16-bit word.
func (p Pair) Word() uint16 {
	return uint16(p.High)<<8 | uint16(p.Low)
}

// SetWord sets the pair using a single word.
func (p *Pair) SetWord(w uint16) {
	p.High = uint8(w >> 8)
	p.Low = uint8(w)
}

// Join assembles a 32-bit value out of a high and a low word, e.g. IY:IX.
func Join(high, low uint16) uint32 {
	return uint32(high)<<16 | uint32(low)
}

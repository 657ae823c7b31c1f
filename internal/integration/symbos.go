// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"log/slog"

	"github.com/siderolabs/msx-diskbridge/internal/diskerr"
	"github.com/siderolabs/msx-diskbridge/internal/drive"
	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/pkg/dispatch"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

// Offsets into the SymbOS device information block pointed to by HL.
const (
	devStatus  = 0  // stodatsta
	devType    = 1  // stodattyp
	devStart   = 12 // stodatbeg, 32-bit starting sector
	devChannel = 26
	devFlags   = 31 // stodatflg
)

const (
	devStatusReady = 1
	devTypeSDCard  = 17
)

// SymbOS represents the legacy SymbOS mass storage driver ABI.
//
// Every call reports its outcome through carry: clear on success, set with
// an error code in A on failure.
type SymbOS struct {
	logger  *slog.Logger
	drive   drive.Drive
	bus     drive.Bus
	service *dispatch.Dispatcher
	slot    drive.Slot
}

// NewSymbOS initializes the SymbOS integration.
func NewSymbOS(logger *slog.Logger, drv drive.Drive, bus drive.Bus, service *dispatch.Dispatcher) *SymbOS {
	logger.Debug("initializing")

	return &SymbOS{
		logger:  logger,
		drive:   drv,
		bus:     bus,
		service: service,
		slot:    drive.DefaultSlot,
	}
}

// Register registers the driver routines into the dispatcher.
func (s *SymbOS) Register() {
	s.logger.Debug("registering")
	s.service.Register(trap.SymbOSInput, "DRVINP", s.Input)
	s.service.Register(trap.SymbOSOutput, "DRVOUT", s.Output)
	s.service.Register(trap.SymbOSActivate, "DRVACT", s.Activate)
}

func carryClear(regs trap.Registers) trap.Result {
	return trap.Result{}.WithF(regs.F() &^ trap.FlagCarry)
}

func carrySet(regs trap.Registers, o diskerr.Outcome) trap.Result {
	return trap.Result{}.WithF(regs.F() | trap.FlagCarry).WithA(diskerr.SymbOS(o))
}

// Activate handles DRVACT: A device, HL device information block.
func (s *SymbOS) Activate(regs trap.Registers) trap.Result {
	info := regs.HL.Word()
	s.logger.Debug("DRVACT", "a", util.Hex8(regs.A()), "hl", util.Hex16(info))

	if regs.A() > 0 {
		return carrySet(regs, diskerr.InvalidDevice)
	}

	if channel := s.bus.Read(info + devChannel); channel > 0 {
		s.logger.Debug("channel not available", "channel", channel)

		return carrySet(regs, diskerr.InvalidChannel)
	}

	s.drive.SignalActivity(s.slot)

	s.bus.Write(info+devStatus, devStatusReady)
	s.bus.Write(info+devType, devTypeSDCard)

	for i := range uint16(4) {
		s.bus.Write(info+devStart+i, 0)
	}

	// SD slot, not SDHC
	s.bus.Write(info+devFlags, 0)

	return carryClear(regs)
}

// Input handles DRVINP: B sector count, HL transfer address, IY:IX sector number.
func (s *SymbOS) Input(regs trap.Registers) trap.Result {
	return s.transfer("DRVINP", regs, s.drive.ReadSectors)
}

// Output handles DRVOUT with the same registers as Input.
func (s *SymbOS) Output(regs trap.Registers) trap.Result {
	return s.transfer("DRVOUT", regs, s.drive.WriteSectors)
}

type transferFunc func(slot drive.Slot, lba uint32, count uint8, bus drive.Bus, addr uint16) error

func (s *SymbOS) transfer(name string, regs trap.Registers, fn transferFunc) trap.Result {
	lba := trap.Join(regs.IY, regs.IX)
	s.logger.Debug(name,
		"a", util.Hex8(regs.A()),
		"b", util.Hex8(regs.B()),
		"hl", util.Hex16(regs.HL.Word()),
		"ix", util.Hex16(regs.IX),
		"iy", util.Hex16(regs.IY),
	)

	if !s.drive.IsDiskInserted(s.slot) {
		return carrySet(regs, diskerr.NotReady)
	}

	s.drive.SignalActivity(s.slot)

	if err := fn(s.slot, lba, regs.B(), s.bus, regs.HL.Word()); err != nil {
		s.logger.Warn("sector transfer failed", "op", name, "lba", lba, "count", regs.B(), "err", err)

		return carrySet(regs, diskerr.TransferFailed)
	}

	return carryClear(regs)
}

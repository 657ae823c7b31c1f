// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package integration

import (
	"log/slog"
	"strings"

	"github.com/siderolabs/msx-diskbridge/internal/diskerr"
	"github.com/siderolabs/msx-diskbridge/internal/drive"
	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/pkg/dispatch"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

// Nextor driver version reported by DRV_VERSION.
const (
	nextorVersionMain = 5
	nextorVersionSec  = 0
	nextorVersionRev  = 0
)

// The only device and logical unit the controller has.
const (
	nextorDevice = 1
	nextorLUN    = 1
)

// DEV_INFO selectors.
const (
	infoBasic        = 0
	infoManufacturer = 1
	infoDeviceName   = 2
)

// DEV_STATUS results.
const (
	statusInvalid   = 0
	statusUnchanged = 1
	statusChanged   = 2
	statusUnknown   = 3
)

const infoStringLen = 64

// LUN_INFO structure fields.
const (
	lunBlockDevice = 0x00
	lunRemovable   = 0x01
	lunInfoLen     = 12
)

const (
	manufacturerName = "WebMSX"
	deviceName       = "WebMSX Removable Hard Disk"
)

func padded(s string) []byte {
	return []byte((s + strings.Repeat(" ", infoStringLen))[:infoStringLen])
}

// Nextor represents the Nextor device-based driver ABI.
type Nextor struct {
	logger  *slog.Logger
	drive   drive.Drive
	bus     drive.Bus
	service *dispatch.Dispatcher
	slot    drive.Slot
}

// NewNextor initializes the Nextor integration.
func NewNextor(logger *slog.Logger, drv drive.Drive, bus drive.Bus, service *dispatch.Dispatcher) *Nextor {
	logger.Debug("initializing")

	return &Nextor{
		logger:  logger,
		drive:   drv,
		bus:     bus,
		service: service,
		slot:    drive.DefaultSlot,
	}
}

// Register registers the driver routines into the dispatcher.
func (n *Nextor) Register() {
	n.logger.Debug("registering")
	n.service.Register(trap.NextorVersion, "DRV_VERSION", n.Version)
	n.service.Register(trap.NextorInit, "DRV_INIT", n.Init)
	n.service.Register(trap.NextorRW, "DEV_RW", n.ReadWrite)
	n.service.Register(trap.NextorInfo, "DEV_INFO", n.Info)
	n.service.Register(trap.NextorStatus, "DEV_STATUS", n.Status)
	n.service.Register(trap.NextorLUNInfo, "LUN_INFO", n.LUNInfo)
}

func (n *Nextor) validUnit(device, lun uint8) bool {
	return device == nextorDevice && lun == nextorLUN
}

func (n *Nextor) writeBytes(addr uint16, data []byte) {
	for i, b := range data {
		n.bus.Write(addr+uint16(i), b)
	}
}

func (n *Nextor) readLBA(addr uint16) uint32 {
	return uint32(n.bus.Read(addr)) |
		uint32(n.bus.Read(addr+1))<<8 |
		uint32(n.bus.Read(addr+2))<<16 |
		uint32(n.bus.Read(addr+3))<<24
}

// rwError is the DEV_RW error result; no sectors were transferred.
func rwError(o diskerr.Outcome) trap.Result {
	return trap.Result{}.WithA(diskerr.Nextor(o)).WithB(0)
}

// Version handles DRV_VERSION.
func (n *Nextor) Version(trap.Registers) trap.Result {
	return trap.Result{}.WithA(nextorVersionMain).WithB(nextorVersionSec).WithC(nextorVersionRev)
}

// Init handles DRV_INIT. There is a single fixed device, nothing to enumerate.
func (n *Nextor) Init(regs trap.Registers) trap.Result {
	util.TraceLog(n.logger, "DRV_INIT", "a", regs.A(), "b", regs.B(), "hl", util.Hex16(regs.HL.Word()))

	return trap.Result{}.WithF(0).WithA(0).WithHL(0)
}

// ReadWrite handles DEV_RW: A device, C logical unit, B sector count,
// DE pointer to the 32-bit sector number, HL transfer address, carry set for writes.
//
// On success only A is set. The number of sectors transferred is not
// reported back in B.
func (n *Nextor) ReadWrite(regs trap.Registers) trap.Result {
	write := regs.Carry()
	l := n.logger.With("write", write)

	if regs.A() != nextorDevice {
		l.Debug("invalid device", "device", regs.A())

		return rwError(diskerr.InvalidDevice)
	}

	if regs.C() != nextorLUN {
		l.Debug("invalid logical unit", "lun", regs.C())

		return rwError(diskerr.InvalidLUN)
	}

	n.drive.SignalActivity(n.slot)

	if !n.drive.IsDiskInserted(n.slot) {
		l.Debug("no disk inserted")

		return rwError(diskerr.NotReady)
	}

	lba := n.readLBA(regs.DE.Word())
	count := regs.B()
	addr := regs.HL.Word()

	util.TraceLog(l, "DEV_RW", "lba", lba, "count", count, "addr", util.Hex16(addr))

	transfer := n.drive.ReadSectors
	if write {
		transfer = n.drive.WriteSectors
	}

	if err := transfer(n.slot, lba, count, n.bus, addr); err != nil {
		l.Warn("sector transfer failed", "lba", lba, "count", count, "err", err)

		return rwError(diskerr.TransferFailed)
	}

	return trap.Result{}.WithA(diskerr.Nextor(diskerr.OK))
}

// Info handles DEV_INFO: A device, B info selector, HL buffer.
func (n *Nextor) Info(regs trap.Registers) trap.Result {
	if regs.A() != nextorDevice {
		return trap.Result{}.WithA(diskerr.NextorInvalidDevice)
	}

	addr := regs.HL.Word()

	switch regs.B() {
	case infoBasic:
		// one logical unit, no flags
		n.writeBytes(addr, []byte{0x01, 0x00})
	case infoManufacturer:
		n.writeBytes(addr, padded(manufacturerName))
	case infoDeviceName:
		n.writeBytes(addr, padded(deviceName))
	default:
		n.logger.Debug("info not available", "selector", regs.B())

		return trap.Result{}.WithA(diskerr.Nextor(diskerr.InfoUnavailable))
	}

	return trap.Result{}.WithA(diskerr.NextorOK)
}

// Status handles DEV_STATUS: A device, B logical unit.
//
// An invalid device or logical unit answers 0, which the Nextor guide
// documents as an error code of its own only for some kernel versions.
func (n *Nextor) Status(regs trap.Registers) trap.Result {
	if !n.validUnit(regs.A(), regs.B()) {
		return trap.Result{}.WithA(statusInvalid)
	}

	status := uint8(statusUnknown)

	switch n.drive.DiskHasChanged(n.slot) {
	case drive.MediaChanged:
		status = statusChanged
	case drive.MediaUnchanged:
		status = statusUnchanged
	case drive.MediaChangeUnknown:
	}

	return trap.Result{}.WithA(status)
}

// LUNInfo handles LUN_INFO: A device, B logical unit, HL buffer for the 12 byte structure.
func (n *Nextor) LUNInfo(regs trap.Registers) trap.Result {
	if !n.validUnit(regs.A(), regs.B()) {
		return trap.Result{}.WithA(diskerr.NextorInvalidDevice)
	}

	total := n.drive.TotalSectors(n.slot)

	// block device, sector size, total sectors, removable, no CHS info
	info := [lunInfoLen]byte{
		lunBlockDevice,
		uint8(drive.SectorSize & 0xff), uint8(drive.SectorSize >> 8),
		uint8(total), uint8(total >> 8), uint8(total >> 16), uint8(total >> 24),
		lunRemovable,
		0x00, 0x00, 0x00, 0x00,
	}
	n.writeBytes(regs.HL.Word(), info[:])

	return trap.Result{}.WithA(diskerr.NextorOK)
}

// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"errors"
	"io"
	"log/slog"

	"github.com/siderolabs/msx-diskbridge/internal/drive"
)

type flatBus [0x10000]uint8

func (b *flatBus) Read(addr uint16) uint8         { return b[addr] }
func (b *flatBus) Write(addr uint16, value uint8) { b[addr] = value }

type transfer struct {
	write bool
	slot  drive.Slot
	lba   uint32
	count uint8
	addr  uint16
}

var errTransfer = errors.New("transfer failed")

// fakeDrive records every transfer and fills reads with the low byte of the sector number.
type fakeDrive struct {
	inserted  bool
	change    drive.MediaChange
	total     uint32
	fail      bool
	activity  []drive.Slot
	transfers []transfer
}

func (d *fakeDrive) IsDiskInserted(drive.Slot) bool             { return d.inserted }
func (d *fakeDrive) DiskHasChanged(drive.Slot) drive.MediaChange { return d.change }
func (d *fakeDrive) TotalSectors(drive.Slot) uint32              { return d.total }
func (d *fakeDrive) SignalActivity(slot drive.Slot)              { d.activity = append(d.activity, slot) }

func (d *fakeDrive) ReadSectors(slot drive.Slot, lba uint32, count uint8, bus drive.Bus, addr uint16) error {
	d.transfers = append(d.transfers, transfer{slot: slot, lba: lba, count: count, addr: addr})

	if d.fail {
		return errTransfer
	}

	for i := range int(count) * drive.SectorSize {
		bus.Write(addr+uint16(i), uint8(lba)+uint8(i/drive.SectorSize))
	}

	return nil
}

func (d *fakeDrive) WriteSectors(slot drive.Slot, lba uint32, count uint8, _ drive.Bus, addr uint16) error {
	d.transfers = append(d.transfers, transfer{write: true, slot: slot, lba: lba, count: count, addr: addr})

	if d.fail {
		return errTransfer
	}

	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package drive defines what the driver integrations need from the host: guest memory and a block device.
package drive

// SectorSize is the only sector size either ABI knows about.
const SectorSize = 512

// Slot selects a drive of the host disk subsystem.
type Slot int

// DefaultSlot is the slot the virtual hard disk lives in.
const DefaultSlot Slot = 2

// MediaChange is the answer to "was the disk swapped since the last time I asked".
type MediaChange int

// MediaChange values.
const (
	MediaChangeUnknown MediaChange = iota
	MediaUnchanged
	MediaChanged
)

// String returns the name of the media change state.
func (m MediaChange) String() string {
	switch m {
	case MediaUnchanged:
		return "unchanged"
	case MediaChanged:
		return "changed"
	case MediaChangeUnknown:
	}

	return "unknown"
}

// Bus gives access to guest memory.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)
}

// Drive is the block device behind the virtual controller.
//
// Transfers copy count sectors between the medium and guest memory starting
// at addr. Any error counts as a failed transfer, the guest only learns that
// the drive was not ready.
type Drive interface {
	IsDiskInserted(slot Slot) bool
	DiskHasChanged(slot Slot) MediaChange
	ReadSectors(slot Slot, lba uint32, count uint8, bus Bus, addr uint16) error
	WriteSectors(slot Slot, lba uint32, count uint8, bus Bus, addr uint16) error
	TotalSectors(slot Slot) uint32

	// SignalActivity is purely cosmetic (the drive LED).
	SignalActivity(slot Slot)
}

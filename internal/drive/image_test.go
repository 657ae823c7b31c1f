// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package drive_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/spf13/afero"

	"github.com/siderolabs/msx-diskbridge/internal/drive"
)

type flatBus [0x10000]uint8

func (b *flatBus) Read(addr uint16) uint8         { return b[addr] }
func (b *flatBus) Write(addr uint16, value uint8) { b[addr] = value }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeImage writes an image whose sector n is filled with byte n.
func makeImage(t *testing.T, fs afero.Fs, path string, sectors int) {
	t.Helper()

	data := make([]byte, sectors*drive.SectorSize)
	for i := range data {
		data[i] = uint8(i / drive.SectorSize)
	}

	assert.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func TestImageDriveReadWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	makeImage(t, fs, "hd.dsk", 8)

	d := drive.NewImageDrive(quietLogger(), fs)
	assert.NoError(t, d.Insert(drive.DefaultSlot, "hd.dsk"))

	defer d.Close() //nolint:errcheck

	assert.True(t, d.IsDiskInserted(drive.DefaultSlot))
	assert.Equal(t, uint32(8), d.TotalSectors(drive.DefaultSlot))

	var bus flatBus

	assert.NoError(t, d.ReadSectors(drive.DefaultSlot, 3, 2, &bus, 0xc000))
	assert.Equal(t, uint8(3), bus[0xc000])
	assert.Equal(t, uint8(3), bus[0xc1ff])
	assert.Equal(t, uint8(4), bus[0xc200])
	assert.Equal(t, uint8(4), bus[0xc3ff])
	assert.Equal(t, uint8(0), bus[0xc400])

	for i := 0; i < drive.SectorSize; i++ {
		bus[0x8000+i] = 0x5a
	}

	assert.NoError(t, d.WriteSectors(drive.DefaultSlot, 7, 1, &bus, 0x8000))

	data, err := afero.ReadFile(fs, "hd.dsk")
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x5a), data[7*drive.SectorSize])
	assert.Equal(t, uint8(0x5a), data[8*drive.SectorSize-1])
	assert.Equal(t, uint8(6), data[7*drive.SectorSize-1])
}

func TestImageDriveBusAddressWraps(t *testing.T) {
	fs := afero.NewMemMapFs()
	makeImage(t, fs, "hd.dsk", 2)

	d := drive.NewImageDrive(quietLogger(), fs)
	assert.NoError(t, d.Insert(drive.DefaultSlot, "hd.dsk"))

	var bus flatBus

	assert.NoError(t, d.ReadSectors(drive.DefaultSlot, 1, 1, &bus, 0xff00))
	assert.Equal(t, uint8(1), bus[0xffff])
	assert.Equal(t, uint8(1), bus[0x00ff])
	assert.Equal(t, uint8(0), bus[0x0100])
}

func TestImageDriveErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	makeImage(t, fs, "hd.dsk", 4)
	assert.NoError(t, afero.WriteFile(fs, "odd.dsk", make([]byte, 1000), 0o644))

	d := drive.NewImageDrive(quietLogger(), fs)

	var bus flatBus

	err := d.ReadSectors(drive.DefaultSlot, 0, 1, &bus, 0)
	assert.True(t, errors.Is(err, drive.ErrNoDisk))
	assert.Equal(t, uint32(0), d.TotalSectors(drive.DefaultSlot))

	err = d.Insert(drive.DefaultSlot, "odd.dsk")
	assert.True(t, errors.Is(err, drive.ErrBadImage))
	assert.False(t, d.IsDiskInserted(drive.DefaultSlot))

	assert.True(t, d.Insert(drive.DefaultSlot, "missing.dsk") != nil)

	assert.NoError(t, d.Insert(drive.DefaultSlot, "hd.dsk"))

	err = d.ReadSectors(drive.DefaultSlot, 3, 2, &bus, 0)
	assert.True(t, errors.Is(err, drive.ErrOutOfRange))

	err = d.WriteSectors(drive.DefaultSlot, 0xffffffff, 1, &bus, 0)
	assert.True(t, errors.Is(err, drive.ErrOutOfRange))
}

func TestImageDriveReadOnlyImage(t *testing.T) {
	mem := afero.NewMemMapFs()
	makeImage(t, mem, "ro.dsk", 2)

	d := drive.NewImageDrive(quietLogger(), afero.NewReadOnlyFs(mem))
	assert.NoError(t, d.Insert(drive.DefaultSlot, "ro.dsk"))

	var bus flatBus

	assert.NoError(t, d.ReadSectors(drive.DefaultSlot, 1, 1, &bus, 0))
	assert.Equal(t, uint8(1), bus[0])
	err := d.WriteSectors(drive.DefaultSlot, 1, 1, &bus, 0)
	assert.True(t, errors.Is(err, drive.ErrReadOnly))
}

func TestImageDriveMediaChange(t *testing.T) {
	fs := afero.NewMemMapFs()
	makeImage(t, fs, "a.dsk", 1)
	makeImage(t, fs, "b.dsk", 2)

	d := drive.NewImageDrive(quietLogger(), fs)
	assert.Equal(t, drive.MediaChangeUnknown, d.DiskHasChanged(drive.DefaultSlot))

	assert.NoError(t, d.Insert(drive.DefaultSlot, "a.dsk"))
	assert.Equal(t, drive.MediaChanged, d.DiskHasChanged(drive.DefaultSlot))
	assert.Equal(t, drive.MediaUnchanged, d.DiskHasChanged(drive.DefaultSlot))

	assert.NoError(t, d.Insert(drive.DefaultSlot, "b.dsk"))
	assert.Equal(t, drive.MediaChanged, d.DiskHasChanged(drive.DefaultSlot))
	assert.Equal(t, uint32(2), d.TotalSectors(drive.DefaultSlot))

	assert.NoError(t, d.Eject(drive.DefaultSlot))
	assert.False(t, d.IsDiskInserted(drive.DefaultSlot))
	assert.Equal(t, drive.MediaChanged, d.DiskHasChanged(drive.DefaultSlot))
	assert.NoError(t, d.Eject(drive.DefaultSlot))
}

func TestImageDriveActivity(t *testing.T) {
	d := drive.NewImageDrive(quietLogger(), afero.NewMemMapFs())

	var flashed []drive.Slot

	d.OnActivity = func(s drive.Slot) { flashed = append(flashed, s) }

	d.SignalActivity(drive.DefaultSlot)
	d.SignalActivity(drive.DefaultSlot)

	assert.Equal(t, 2, d.Activity(drive.DefaultSlot))
	assert.Equal(t, 0, d.Activity(1))
	assert.Equal(t, []drive.Slot{drive.DefaultSlot, drive.DefaultSlot}, flashed)
	assert.Equal(t, "changed", drive.MediaChanged.String())
}

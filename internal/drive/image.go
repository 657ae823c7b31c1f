// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package drive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/siderolabs/msx-diskbridge/internal/util"
)

var (
	// ErrNoDisk is returned for transfers on an empty slot.
	ErrNoDisk = errors.New("no disk in slot")

	// ErrOutOfRange is returned for transfers past the end of the medium.
	ErrOutOfRange = errors.New("sector out of range")

	// ErrBadImage is returned when an image is not made of whole sectors.
	ErrBadImage = errors.New("image size is not a multiple of the sector size")

	// ErrReadOnly is returned for writes to an image that could only be opened read-only.
	ErrReadOnly = errors.New("disk is read-only")
)

type disk struct {
	path     string
	file     afero.File
	sectors  uint32
	readOnly bool
}

// ImageDrive serves disk image files as drives.
// It is not safe for concurrent use; the guest only ever issues one call at a time.
type ImageDrive struct {
	logger *slog.Logger
	fs     afero.Fs

	disks    map[Slot]*disk
	changed  map[Slot]MediaChange
	activity map[Slot]int

	// OnActivity is called on every SignalActivity, e.g. to flash an LED.
	OnActivity func(Slot)
}

// NewImageDrive creates an ImageDrive opening images from fs.
func NewImageDrive(logger *slog.Logger, fs afero.Fs) *ImageDrive {
	return &ImageDrive{
		logger:   logger,
		fs:       fs,
		disks:    make(map[Slot]*disk),
		changed:  make(map[Slot]MediaChange),
		activity: make(map[Slot]int),
	}
}

// Insert opens the image at path and puts it into slot, ejecting whatever was there.
func (d *ImageDrive) Insert(slot Slot, path string) error {
	l := d.logger.With("slot", int(slot), "path", path)

	readOnly := false

	f, err := d.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		l.Debug("cannot open image read-write, retrying read-only", "err", err)

		readOnly = true

		f, err = d.fs.Open(path)
		if err != nil {
			return fmt.Errorf("error opening image %q: %w", path, err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck

		return fmt.Errorf("error reading image %q: %w", path, err)
	}

	if info.Size()%SectorSize != 0 {
		f.Close() //nolint:errcheck

		return fmt.Errorf("%w: %q has %d bytes", ErrBadImage, path, info.Size())
	}

	if err = d.Eject(slot); err != nil {
		l.Warn("error ejecting previous image", "err", err)
	}

	d.disks[slot] = &disk{
		path:     path,
		file:     f,
		sectors:  uint32(info.Size() / SectorSize),
		readOnly: readOnly,
	}
	d.changed[slot] = MediaChanged

	l.Info("image inserted", "sectors", d.disks[slot].sectors, "read_only", readOnly)

	return nil
}

// Eject removes the disk from slot. Ejecting an empty slot is a no-op.
func (d *ImageDrive) Eject(slot Slot) error {
	dsk, ok := d.disks[slot]
	if !ok {
		return nil
	}

	delete(d.disks, slot)
	d.changed[slot] = MediaChanged

	d.logger.Debug("image ejected", "slot", int(slot), "path", dsk.path)

	return dsk.file.Close()
}

// Close ejects every disk.
func (d *ImageDrive) Close() error {
	var errs []error

	for slot := range d.disks {
		errs = append(errs, d.Eject(slot))
	}

	return errors.Join(errs...)
}

// Activity returns how often the activity indicator was signalled for slot.
func (d *ImageDrive) Activity(slot Slot) int {
	return d.activity[slot]
}

// IsDiskInserted implements Drive.
func (d *ImageDrive) IsDiskInserted(slot Slot) bool {
	_, ok := d.disks[slot]

	return ok
}

// DiskHasChanged implements Drive. A change is reported once, slots that
// never held a disk report MediaChangeUnknown.
func (d *ImageDrive) DiskHasChanged(slot Slot) MediaChange {
	state, ok := d.changed[slot]
	if !ok {
		return MediaChangeUnknown
	}

	if state == MediaChanged {
		d.changed[slot] = MediaUnchanged
	}

	return state
}

// TotalSectors implements Drive.
func (d *ImageDrive) TotalSectors(slot Slot) uint32 {
	if dsk, ok := d.disks[slot]; ok {
		return dsk.sectors
	}

	return 0
}

// SignalActivity implements Drive.
func (d *ImageDrive) SignalActivity(slot Slot) {
	d.activity[slot]++
	util.TraceLog(d.logger, "activity", "slot", int(slot))

	if d.OnActivity != nil {
		d.OnActivity(slot)
	}
}

func (d *ImageDrive) locate(slot Slot, lba uint32, count uint8) (*disk, int64, error) {
	dsk, ok := d.disks[slot]
	if !ok {
		return nil, 0, fmt.Errorf("%w %d", ErrNoDisk, slot)
	}

	if uint64(lba)+uint64(count) > uint64(dsk.sectors) {
		return nil, 0, fmt.Errorf("%w: %d+%d of %d", ErrOutOfRange, lba, count, dsk.sectors)
	}

	return dsk, int64(lba) * SectorSize, nil
}

// ReadSectors implements Drive.
func (d *ImageDrive) ReadSectors(slot Slot, lba uint32, count uint8, bus Bus, addr uint16) error {
	dsk, off, err := d.locate(slot, lba, count)
	if err != nil {
		return err
	}

	buf := make([]byte, int(count)*SectorSize)

	if _, err = dsk.file.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading sector %d: %w", lba, err)
	}

	for i, b := range buf {
		bus.Write(addr+uint16(i), b)
	}

	util.TraceLog(d.logger, "read sectors", "slot", int(slot), "lba", lba, "count", count, "addr", util.Hex16(addr))

	return nil
}

// WriteSectors implements Drive.
func (d *ImageDrive) WriteSectors(slot Slot, lba uint32, count uint8, bus Bus, addr uint16) error {
	dsk, off, err := d.locate(slot, lba, count)
	if err != nil {
		return err
	}

	if dsk.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, dsk.path)
	}

	buf := make([]byte, int(count)*SectorSize)
	for i := range buf {
		buf[i] = bus.Read(addr + uint16(i))
	}

	if _, err = dsk.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("error writing sector %d: %w", lba, err)
	}

	util.TraceLog(d.logger, "wrote sectors", "slot", int(slot), "lba", lba, "count", count, "addr", util.Hex16(addr))

	return nil
}

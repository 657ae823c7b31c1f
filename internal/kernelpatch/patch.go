// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package kernelpatch turns a stock Nextor kernel into one whose driver entry points trap into the host.
//
// The patch is a fixed table of (offset, bytes) entries. Applying it touches
// nothing outside the table and applying it twice yields the same image.
package kernelpatch

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siderolabs/msx-diskbridge/internal/util"
)

var (
	// ErrImageTooSmall is returned when the kernel image ends before the highest patched offset.
	ErrImageTooSmall = errors.New("kernel image too small")

	// ErrNotPatched is returned by Verify when a region does not hold the patch bytes.
	ErrNotPatched = errors.New("kernel image not patched")
)

// Patcher applies the patch table to kernel images.
type Patcher struct {
	logger *slog.Logger
}

// New creates a Patcher.
func New(logger *slog.Logger) *Patcher {
	return &Patcher{logger: logger}
}

func checkSize(image []byte) error {
	if need := RequiredSize(); len(image) < need {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrImageTooSmall, len(image), need)
	}

	return nil
}

// Apply writes the patch table into image. Nothing is written if the image is too small.
func (p *Patcher) Apply(image []byte) error {
	if err := checkSize(image); err != nil {
		p.logger.Error("cannot patch kernel", "err", err)

		return err
	}

	for _, e := range table {
		util.TraceLog(p.logger, "patching", "label", e.Label, "offset", fmt.Sprintf("%#05x", e.Offset), "len", len(e.Bytes))
		copy(image[e.Offset:], e.Bytes)
	}

	p.logger.Debug("kernel patched", "entries", len(table), "driver", DriverName)

	return nil
}

// Verify checks that every region of the table holds its patch bytes.
func (p *Patcher) Verify(image []byte) error {
	if err := checkSize(image); err != nil {
		return err
	}

	for _, e := range table {
		if !bytes.Equal(image[e.Offset:e.End()], e.Bytes) {
			p.logger.Debug("region mismatch", "label", e.Label, "offset", fmt.Sprintf("%#05x", e.Offset))

			return fmt.Errorf("%w: %s at %#05x", ErrNotPatched, e.Label, e.Offset)
		}
	}

	return nil
}

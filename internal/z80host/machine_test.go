// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package z80host_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/retroenv/retrogolib/assert"
	"github.com/spf13/afero"

	"github.com/siderolabs/msx-diskbridge/internal/bridge"
	"github.com/siderolabs/msx-diskbridge/internal/drive"
	"github.com/siderolabs/msx-diskbridge/internal/kernelpatch"
	"github.com/siderolabs/msx-diskbridge/internal/z80host"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// thunkAddr looks up the CPU address of the thunk raising code.
func thunkAddr(t *testing.T, code trap.Code) uint16 {
	t.Helper()

	for _, th := range kernelpatch.Thunks() {
		if th.Code == code {
			return th.Addr
		}
	}

	t.Fatalf("no thunk for %s", code)

	return 0
}

// installed returns a machine running a patched kernel, with a 16 sector
// image whose sector n is filled with byte n.
func installed(t *testing.T) (*z80host.Machine, *drive.ImageDrive) {
	t.Helper()

	fs := afero.NewMemMapFs()

	data := make([]byte, 16*drive.SectorSize)
	for i := range data {
		data[i] = uint8(i / drive.SectorSize)
	}

	assert.NoError(t, afero.WriteFile(fs, "disk.dsk", data, 0o644))

	drv := drive.NewImageDrive(quietLogger(), fs)
	assert.NoError(t, drv.Insert(drive.DefaultSlot, "disk.dsk"))
	t.Cleanup(func() { drv.Close() }) //nolint:errcheck

	kernel := make([]byte, 8*kernelpatch.PageSize)
	m := z80host.New(quietLogger())

	assert.NoError(t, bridge.New(quietLogger(), drv).Install(kernel, m))
	assert.NoError(t, m.LoadKernel(kernel))

	return m, drv
}

func TestVersionThunk(t *testing.T) {
	m, _ := installed(t)

	regs, err := m.Call(context.Background(), thunkAddr(t, trap.NextorVersion), trap.Registers{})
	assert.NoError(t, err)
	assert.Equal(t, uint8(5), regs.A())
	assert.Equal(t, uint8(0), regs.B())
	assert.Equal(t, uint8(0), regs.C())
}

func TestLUNInfoThunk(t *testing.T) {
	m, _ := installed(t)

	regs, err := m.Call(context.Background(), thunkAddr(t, trap.NextorLUNInfo), trap.Registers{
		AF: trap.Pair{High: 1},
		BC: trap.Pair{High: 1},
		HL: trap.NewPair(0xc000),
	})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), regs.A())

	want := []byte{0x00, 0x00, 0x02, 0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}

	got := make([]byte, len(want))
	for i := range got {
		got[i] = m.Read(0xc000 + uint16(i))
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LUN info mismatch (-want +got):\n%s", diff)
	}
}

func TestReadWriteThunk(t *testing.T) {
	m, drv := installed(t)
	rw := thunkAddr(t, trap.NextorRW)

	// sector 3 to 0x8000
	m.Write(0xc100, 3)

	regs, err := m.Call(context.Background(), rw, trap.Registers{
		AF: trap.Pair{High: 1},
		BC: trap.Pair{High: 1, Low: 1},
		DE: trap.NewPair(0xc100),
		HL: trap.NewPair(0x8000),
	})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), regs.A())
	assert.Equal(t, uint8(3), m.Read(0x8000))
	assert.Equal(t, uint8(3), m.Read(0x81ff))
	assert.Equal(t, 1, drv.Activity(drive.DefaultSlot))

	// write it back as sector 5, then read sector 5
	m.Write(0xc100, 5)

	regs, err = m.Call(context.Background(), rw, trap.Registers{
		AF: trap.Pair{High: 1, Low: trap.FlagCarry},
		BC: trap.Pair{High: 1, Low: 1},
		DE: trap.NewPair(0xc100),
		HL: trap.NewPair(0x8000),
	})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), regs.A())

	buf := &flat{}
	assert.NoError(t, drv.ReadSectors(drive.DefaultSlot, 5, 1, buf, 0))
	assert.Equal(t, uint8(3), buf[0])
	assert.Equal(t, uint8(3), buf[0x1ff])
}

func TestReadIntoROMIsDropped(t *testing.T) {
	m, _ := installed(t)

	before := m.Read(kernelpatch.PageBase)

	m.Write(0xc100, 7)

	regs, err := m.Call(context.Background(), thunkAddr(t, trap.NextorRW), trap.Registers{
		AF: trap.Pair{High: 1},
		BC: trap.Pair{High: 1, Low: 1},
		DE: trap.NewPair(0xc100),
		HL: trap.NewPair(kernelpatch.PageBase),
	})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), regs.A())
	assert.Equal(t, before, m.Read(kernelpatch.PageBase))
}

func TestErrorResultThunk(t *testing.T) {
	m, _ := installed(t)

	regs, err := m.Call(context.Background(), thunkAddr(t, trap.NextorRW), trap.Registers{
		AF: trap.Pair{High: 2},
		BC: trap.Pair{High: 1, Low: 1},
	})
	assert.NoError(t, err)
	assert.Equal(t, uint8(0xb5), regs.A())
	assert.Equal(t, uint8(0), regs.B())
}

type recorder struct {
	calls []trap.Call
}

func (r *recorder) HandleExtension(call trap.Call) (trap.Result, bool) {
	r.calls = append(r.calls, call)

	return trap.Result{}, false
}

func TestUnhandledCodeLeavesRegisters(t *testing.T) {
	m := z80host.New(quietLogger())
	rec := &recorder{}
	m.SetExtensionHandler(rec)

	// ED 55 ; RET
	for i, b := range []byte{0xed, 0x55, 0xc9} {
		m.Write(0x9000+uint16(i), b)
	}

	m.SetTrap(0x9000)

	in := trap.Registers{
		AF: trap.Pair{High: 0x12, Low: 0x00},
		BC: trap.NewPair(0x3456),
		DE: trap.NewPair(0x789a),
		HL: trap.NewPair(0xbcde),
		IX: 0x1111,
		IY: 0x2222,
	}

	out, err := m.Call(context.Background(), 0x9000, in)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(rec.calls))
	assert.Equal(t, trap.Code(0x55), rec.calls[0].Code)

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("registers changed (-want +got):\n%s", diff)
	}
}

type versionHandler struct {
	calls int
}

func (h *versionHandler) HandleExtension(call trap.Call) (trap.Result, bool) {
	if call.Code != trap.NextorVersion {
		return trap.Result{}, false
	}

	h.calls++

	return trap.Result{}.WithA(5), true
}

func TestTrapAtEntryPoint(t *testing.T) {
	m := z80host.New(quietLogger())
	h := &versionHandler{}
	m.SetExtensionHandler(h)

	// ED E0 ; RET
	for i, b := range []byte{0xed, 0xe0, 0xc9} {
		m.Write(0x9000+uint16(i), b)
	}

	m.SetTrap(0x9000)

	regs, err := m.Call(context.Background(), 0x9000, trap.Registers{})
	assert.NoError(t, err)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, uint8(5), regs.A())
}

func TestTrapReachedThroughCall(t *testing.T) {
	m := z80host.New(quietLogger())
	h := &versionHandler{}
	m.SetExtensionHandler(h)

	// ED E0 ; RET
	for i, b := range []byte{0xed, 0xe0, 0xc9} {
		m.Write(0x9000+uint16(i), b)
	}

	// CALL 9000h ; INC A ; RET
	for i, b := range []byte{0xcd, 0x00, 0x90, 0x3c, 0xc9} {
		m.Write(0x9100+uint16(i), b)
	}

	m.SetTrap(0x9000)

	regs, err := m.Call(context.Background(), 0x9100, trap.Registers{})
	assert.NoError(t, err)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, uint8(6), regs.A())
}

func TestTrapWithoutExtension(t *testing.T) {
	m := z80host.New(quietLogger())
	m.SetTrap(0x9000)

	_, err := m.Call(context.Background(), 0x9000, trap.Registers{})
	assert.True(t, errors.Is(err, z80host.ErrNotExtension))
}

func TestLoadKernelTooSmall(t *testing.T) {
	m := z80host.New(quietLogger())

	err := m.LoadKernel(make([]byte, kernelpatch.DriverBank))
	assert.True(t, errors.Is(err, z80host.ErrKernelTooSmall))
	assert.Equal(t, 0, len(m.Traps()))
}

func TestLoadKernelArmsThunks(t *testing.T) {
	m := z80host.New(quietLogger())

	assert.NoError(t, m.LoadKernel(make([]byte, 8*kernelpatch.PageSize)))
	assert.Equal(t, len(kernelpatch.Thunks()), len(m.Traps()))
	assert.Equal(t, uint16(0x4133), m.Traps()[0])
}

func TestCallCanceled(t *testing.T) {
	m := z80host.New(quietLogger())

	// JR -2
	m.Write(0x9000, 0x18)
	m.Write(0x9001, 0xfe)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Call(ctx, 0x9000, trap.Registers{})
	assert.True(t, errors.Is(err, z80host.ErrCPU))
}

type flat [0x10000]uint8

func (b *flat) Read(addr uint16) uint8         { return b[addr] }
func (b *flat) Write(addr uint16, value uint8) { b[addr] = value }

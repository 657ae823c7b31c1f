// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siderolabs/msx-diskbridge/internal/bridge"
	"github.com/siderolabs/msx-diskbridge/internal/kernelpatch"
	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/internal/z80host"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

var probeCmd = &cobra.Command{
	Use:   "probe --kernel [rom] --image [disk]",
	Short: "run the driver routines on an emulated Z80",
	Long:  "this installs the driver on a Z80 host and calls DRV_VERSION, LUN_INFO and a DEV_RW read of sector 0 through the patched kernel",
	Args:  cobra.NoArgs,
	RunE:  probe,
}

// Scratch addresses in page 3 used by the probe.
const (
	probeInfoAddr   = uint16(0xc000)
	probeLBAAddr    = uint16(0xc100)
	probeBufferAddr = uint16(0x8000)
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

// probeKernel loads the configured kernel, or a blank one large enough to
// hold the driver bank.
func probeKernel() ([]byte, error) {
	if viper.GetString(flagKernel) == "" {
		logger.Info("no kernel given, using a blank one")

		return make([]byte, kernelpatch.DriverBank+kernelpatch.PageSize), nil
	}

	return loadKernel()
}

func probe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kernel, err := probeKernel()
	if err != nil {
		return err
	}

	drv, err := openDrive()
	if err != nil {
		return err
	}

	defer func() {
		if err = drv.Close(); err != nil {
			logger.Warn("failed to close disk image", "err", err)
		}
	}()

	machine := z80host.New(logger.With("module", "z80host"))

	b := bridge.New(logger.With("module", "bridge"), drv)
	if err = b.Install(kernel, machine); err != nil {
		return err
	}

	defer b.Uninstall()

	if err = machine.LoadKernel(kernel); err != nil {
		return err
	}

	thunks := map[trap.Code]uint16{}
	for _, t := range kernelpatch.Thunks() {
		thunks[t.Code] = t.Addr
	}

	regs, err := machine.Call(ctx, thunks[trap.NextorVersion], trap.Registers{})
	if err != nil {
		return err
	}

	logger.Info("driver version", "main", regs.A(), "sec", regs.B(), "rev", regs.C())

	regs, err = machine.Call(ctx, thunks[trap.NextorLUNInfo], trap.Registers{
		AF: trap.Pair{High: 1},
		BC: trap.Pair{High: 1},
		HL: trap.NewPair(probeInfoAddr),
	})
	if err != nil {
		return err
	}

	total := uint32(machine.Read(probeInfoAddr+3)) |
		uint32(machine.Read(probeInfoAddr+4))<<8 |
		uint32(machine.Read(probeInfoAddr+5))<<16 |
		uint32(machine.Read(probeInfoAddr+6))<<24
	logger.Info("logical unit", "status", util.Hex8(regs.A()), "sectors", total, "removable", machine.Read(probeInfoAddr+7) == 1)

	for i := range uint16(4) {
		machine.Write(probeLBAAddr+i, 0)
	}

	regs, err = machine.Call(ctx, thunks[trap.NextorRW], trap.Registers{
		AF: trap.Pair{High: 1},
		BC: trap.Pair{High: 1, Low: 1},
		DE: trap.NewPair(probeLBAAddr),
		HL: trap.NewPair(probeBufferAddr),
	})
	if err != nil {
		return err
	}

	if regs.A() != 0 {
		logger.Warn("sector 0 read failed", "status", util.Hex8(regs.A()))

		return nil
	}

	// the boot sector carries the OEM name at offset 3
	oem := make([]byte, 8)
	for i := range oem {
		oem[i] = machine.Read(probeBufferAddr + 3 + uint16(i))
	}

	logger.Info("sector 0", "oem", string(oem), "signature", util.Hex16(uint16(machine.Read(probeBufferAddr+0x1fe))<<8|uint16(machine.Read(probeBufferAddr+0x1ff))))

	return nil
}

// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siderolabs/msx-diskbridge/internal/bridge"
	"github.com/siderolabs/msx-diskbridge/internal/drive"
	"github.com/siderolabs/msx-diskbridge/internal/z80host"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

var trapCmd = &cobra.Command{
	Use:   "trap --code [code]",
	Short: "dispatch a single extension call",
	Long:  "can be used to exercise a driver routine directly, e.g. 'trap --code 0xeb --a 1 --b 1 --hl 0xc000 --dump 12'",
	Args:  cobra.NoArgs,
	RunE:  trapCommand,
}

var errUnknownCode = errors.New("no handler for extension code")

var trapFlags struct {
	code           uint8
	a, f, b, c     uint8
	de, hl, ix, iy uint16
	dump           uint16
	lba            uint32
}

func init() {
	f := trapCmd.Flags()
	f.Uint8Var(&trapFlags.code, "code", 0, "extension code")
	f.Uint8Var(&trapFlags.a, "a", 0, "register A")
	f.Uint8Var(&trapFlags.f, "f", 0, "register F")
	f.Uint8Var(&trapFlags.b, "b", 0, "register B")
	f.Uint8Var(&trapFlags.c, "c", 0, "register C")
	f.Uint16Var(&trapFlags.de, "de", 0, "register DE")
	f.Uint16Var(&trapFlags.hl, "hl", 0, "register HL")
	f.Uint16Var(&trapFlags.ix, "ix", 0, "register IX")
	f.Uint16Var(&trapFlags.iy, "iy", 0, "register IY")
	f.Uint32Var(&trapFlags.lba, "lba", 0, "sector number stored little endian at DE before the call")
	f.Uint16Var(&trapFlags.dump, "dump", 0, "number of bytes at HL to print after the call")

	if err := trapCmd.MarkFlagRequired("code"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(trapCmd)
}

// openDrive returns an image drive, with the configured image inserted in the driver slot.
func openDrive() (*drive.ImageDrive, error) {
	drv := drive.NewImageDrive(logger.With("module", "drive"), fs)

	if image := viper.GetString(flagImage); image != "" {
		if err := drv.Insert(drive.DefaultSlot, image); err != nil {
			return nil, err
		}
	}

	return drv, nil
}

func trapCommand(cmd *cobra.Command, _ []string) error {
	drv, err := openDrive()
	if err != nil {
		return err
	}

	defer func() {
		if err = drv.Close(); err != nil {
			logger.Warn("failed to close disk image", "err", err)
		}
	}()

	host := z80host.New(logger.With("module", "z80host"))

	b := bridge.New(logger.With("module", "bridge"), drv)
	if err = b.Install(nil, host); err != nil {
		return err
	}

	defer b.Uninstall()

	regs := trap.Registers{
		AF: trap.Pair{High: trapFlags.a, Low: trapFlags.f},
		BC: trap.Pair{High: trapFlags.b, Low: trapFlags.c},
		DE: trap.NewPair(trapFlags.de),
		HL: trap.NewPair(trapFlags.hl),
		IX: trapFlags.ix,
		IY: trapFlags.iy,
	}

	if cmd.Flags().Changed("lba") {
		for i := range uint16(4) {
			host.Write(trapFlags.de+i, uint8(trapFlags.lba>>(8*i)))
		}
	}

	call := trap.Call{Code: trap.Code(trapFlags.code), Regs: regs}

	result, ok := b.Dispatcher().Dispatch(call)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownCode, call.Code)
	}

	result.Apply(&regs)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", call.Code, result)
	fmt.Fprintf(out, "%s\n", regs.String())

	if trapFlags.dump > 0 {
		data := make([]byte, trapFlags.dump)
		for i := range data {
			data[i] = host.Read(trapFlags.hl + uint16(i))
		}

		fmt.Fprint(out, hex.Dump(data))
	}

	return nil
}

// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siderolabs/msx-diskbridge/internal/kernelpatch"
	"github.com/siderolabs/msx-diskbridge/internal/util"
)

var patchCmd = &cobra.Command{
	Use:   "patch --kernel [rom] --output [rom]",
	Short: "install the trap driver into a Nextor kernel",
	Long:  "rewrites the driver bank of a Nextor kernel ROM so that every driver routine raises an extension call",
	Args:  cobra.NoArgs,
	RunE:  patchCommand,
}

var verifyCmd = &cobra.Command{
	Use:   "verify --kernel [rom]",
	Short: "check that a Nextor kernel carries the trap driver",
	Args:  cobra.NoArgs,
	RunE:  verifyCommand,
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "print the kernel patch table",
	Args:  cobra.NoArgs,
	RunE:  tableCommand,
}

func init() {
	rootCmd.AddCommand(patchCmd, verifyCmd, tableCmd)
}

func loadKernel() ([]byte, error) {
	path, err := required(flagKernel)
	if err != nil {
		return nil, err
	}

	kernel, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error reading kernel: %w", err)
	}

	logger.Debug("kernel loaded", "path", path, "size", len(kernel))

	return kernel, nil
}

func patchCommand(_ *cobra.Command, _ []string) error {
	kernel, err := loadKernel()
	if err != nil {
		return err
	}

	output, err := required(flagOutput)
	if err != nil {
		return err
	}

	if err = kernelpatch.New(logger.With("module", "kernelpatch")).Apply(kernel); err != nil {
		return err
	}

	if err = afero.WriteFile(fs, output, kernel, 0o644); err != nil {
		return fmt.Errorf("error writing kernel: %w", err)
	}

	logger.Info("kernel patched", "output", output, "entries", len(kernelpatch.Table()))

	return nil
}

func verifyCommand(_ *cobra.Command, _ []string) error {
	kernel, err := loadKernel()
	if err != nil {
		return err
	}

	if err = kernelpatch.New(logger.With("module", "kernelpatch")).Verify(kernel); err != nil {
		logger.Error("kernel is not patched", "kernel", viper.GetString(flagKernel), "err", err)

		return err
	}

	logger.Info("kernel is patched", "kernel", viper.GetString(flagKernel))

	return nil
}

func tableCommand(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "LABEL\tOFFSET\tADDR\tCODE\tBYTES")

	for _, e := range kernelpatch.Table() {
		code := "-"
		if e.Thunk {
			code = util.Hex8(uint8(e.Code))
		}

		bytes := fmt.Sprintf("% X", e.Bytes)
		if len(e.Bytes) > 8 {
			bytes = fmt.Sprintf("% X ... (%d)", e.Bytes[:8], len(e.Bytes))
		}

		fmt.Fprintf(w, "%s\t%05Xh\t%s\t%s\t%s\n", e.Label, e.Offset, util.Hex16(kernelpatch.CPUAddress(e.Offset)), code, bytes)
	}

	return w.Flush()
}

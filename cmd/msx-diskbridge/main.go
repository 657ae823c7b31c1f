// SPDX-FileCopyrightText: Copyright (c) 2020 Oliver Kuckertz, Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package main is the main package invoking the tool
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/internal/version"
)

const (
	flagLogLevel = "log-level"
	flagConfig   = "config"
	flagKernel   = "kernel"
	flagImage    = "image"
	flagOutput   = "output"
)

var rootCmd = &cobra.Command{
	Use:               "msx-diskbridge",
	Short:             "virtual disk controller for MSX Nextor and SymbOS drivers",
	Long:              "patches Nextor kernels with a trap based device driver and serves its calls from disk images",
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	Version:           version.String(),
}

var (
	errSetupFailed  = errors.New("error setting up")
	errMissingValue = errors.New("missing required value")
)

var (
	logger *slog.Logger
	fs     = afero.NewOsFs()
)

func setup(cmd *cobra.Command, _ []string) error {
	level, err := util.ParseLevel(viper.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("%w: %w", errSetupFailed, err)
	}

	logOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts)).With("command", cmd.Name())

	if path := viper.GetString(flagConfig); path != "" {
		viper.SetFs(fs)
		viper.SetConfigFile(path)

		if err := viper.ReadInConfig(); err != nil {
			logger.Error("could not read config file", "path", path, "err", err)

			return errSetupFailed
		}

		logger.Debug("config file loaded", "path", viper.ConfigFileUsed())
	}

	util.TraceLog(logger, "starting", "version", version.String())

	return nil
}

// required fetches a configuration value that must be set.
func required(key string) (string, error) {
	v := viper.GetString(key)
	if v == "" {
		return "", fmt.Errorf("%w: --%s", errMissingValue, key)
	}

	return v, nil
}

func init() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`))
	viper.SetEnvPrefix("diskbridge")

	pf := rootCmd.PersistentFlags()
	pf.String(flagLogLevel, "info", "log level (error, warning, info, debug, trace)")
	pf.String(flagConfig, "", "path to a configuration file")
	pf.String(flagKernel, "", "path to a Nextor kernel ROM")
	pf.String(flagImage, "", "path to a disk image")
	pf.StringP(flagOutput, "o", "", "output path")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

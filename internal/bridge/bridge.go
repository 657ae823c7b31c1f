// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package bridge connects the disk drivers to a host machine: it patches the
// Nextor kernel and plugs the trap dispatcher into the host CPU.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/siderolabs/msx-diskbridge/internal/drive"
	"github.com/siderolabs/msx-diskbridge/internal/integration"
	"github.com/siderolabs/msx-diskbridge/internal/kernelpatch"
	"github.com/siderolabs/msx-diskbridge/pkg/dispatch"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

// Host is the machine the bridge is installed on: a memory bus the handlers
// transfer through, plus a CPU accepting an extension handler.
type Host interface {
	drive.Bus
	SetExtensionHandler(h trap.ExtensionHandler)
}

// ErrAlreadyInstalled is returned when installing on top of a previous install.
var ErrAlreadyInstalled = errors.New("bridge already installed")

// Bridge owns the lifecycle of one driver installation.
type Bridge struct {
	logger     *slog.Logger
	drive      drive.Drive
	patcher    *kernelpatch.Patcher
	host       Host
	dispatcher *dispatch.Dispatcher
}

// New creates a bridge serving drv.
func New(logger *slog.Logger, drv drive.Drive) *Bridge {
	return &Bridge{
		logger:  logger,
		drive:   drv,
		patcher: kernelpatch.New(logger.With("module", "kernelpatch")),
	}
}

// Install patches kernel in place and registers the driver handlers on host.
// A nil kernel skips patching, for hosts running SymbOS only.
func (b *Bridge) Install(kernel []byte, host Host) error {
	if b.host != nil {
		return ErrAlreadyInstalled
	}

	if kernel != nil {
		if err := b.patcher.Apply(kernel); err != nil {
			return fmt.Errorf("error patching kernel: %w", err)
		}
	}

	svc := dispatch.New(b.logger.With("module", "dispatch"))

	integrations := []integration.Integration{
		integration.NewNextor(b.logger.With("integration", "nextor"), b.drive, host, svc),
		integration.NewSymbOS(b.logger.With("integration", "symbos"), b.drive, host, svc),
	}

	for _, i := range integrations {
		i.Register()
	}

	host.SetExtensionHandler(svc)

	b.host = host
	b.dispatcher = svc
	b.logger.Info("installed", "codes", len(svc.Codes()))

	return nil
}

// Uninstall detaches the handlers from the host. The kernel stays patched.
func (b *Bridge) Uninstall() {
	if b.host == nil {
		return
	}

	b.host.SetExtensionHandler(nil)
	b.host = nil
	b.dispatcher = nil
	b.logger.Info("uninstalled")
}

// Installed reports whether the bridge is currently installed.
func (b *Bridge) Installed() bool {
	return b.host != nil
}

// Dispatcher returns the active dispatcher, nil when not installed.
func (b *Bridge) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

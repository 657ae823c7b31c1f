// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/siderolabs/msx-diskbridge/internal/util"
	"github.com/siderolabs/msx-diskbridge/pkg/trap"
)

// Handler is given the register snapshot of a call and returns the registers to write back.
type Handler func(regs trap.Registers) trap.Result

type entry struct {
	name    string
	handler Handler
}

// Dispatcher receives trapped extension calls and dispatches them to a Handler.
type Dispatcher struct {
	logger   *slog.Logger
	registry map[trap.Code]entry
}

// New initializes an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		registry: make(map[trap.Code]entry),
	}
}

// Register adds a Handler for code. Registering the same code twice panics,
// the extension codes of the supported ABIs never overlap.
func (d *Dispatcher) Register(code trap.Code, name string, handler Handler) {
	if handler == nil {
		panic("dispatch: Register handler is nil")
	}

	if prev, dup := d.registry[code]; dup {
		panic(fmt.Sprintf("dispatch: code %#02x registered twice (%s, %s)", uint8(code), prev.name, name))
	}

	d.logger.Debug("registering extension handler", "code", fmt.Sprintf("%#02x", uint8(code)), "name", name)
	d.registry[code] = entry{name: name, handler: handler}
}

// Codes returns the registered codes in ascending order.
func (d *Dispatcher) Codes() []trap.Code {
	codes := make([]trap.Code, 0, len(d.registry))
	for code := range d.registry {
		codes = append(codes, code)
	}

	slices.Sort(codes)

	return codes
}

// Name returns the name a code was registered with.
func (d *Dispatcher) Name(code trap.Code) (string, bool) {
	e, ok := d.registry[code]

	return e.name, ok
}

// Dispatch an extension call to its Handler. Unknown codes yield no result
// at all, the guest registers must then stay as they are.
func (d *Dispatcher) Dispatch(call trap.Call) (trap.Result, bool) {
	l := d.logger.With("code", fmt.Sprintf("%#02x", uint8(call.Code)))

	e, ok := d.registry[call.Code]
	if !ok {
		l.Debug("unknown extension code")

		return trap.Result{}, false
	}

	l = l.With("handler", e.name)
	l.Debug("dispatching")
	util.TraceLog(l, "registers before dispatch", "regs", call.Regs.String())

	result := e.handler(call.Regs)
	util.TraceLog(l, "result from dispatch", "result", result.String())

	return result, true
}

// HandleExtension makes the Dispatcher usable as the host's extension handler.
func (d *Dispatcher) HandleExtension(call trap.Call) (trap.Result, bool) {
	return d.Dispatch(call)
}

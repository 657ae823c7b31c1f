// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package trap models the extension calls a guest raises from a patched kernel.
//
// The guest executes a short thunk (ED xx C9). The host CPU traps the ED xx
// pair, hands the extension number together with a snapshot of the Z80
// register file to a handler and writes back whatever registers the handler
// chose to set. Registers the handler did not set keep their value, so a
// Result is a sparse overlay and never a full register file.
//
// See also:
//
// - https://github.com/Konamiman/Nextor/blob/v2.1/docs/Nextor%202.1%20Driver%20Development%20Guide.md
// - http://www.symbos.de/files/dev/SymbOS-Devices.pdf
package trap

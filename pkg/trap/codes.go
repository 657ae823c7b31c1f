// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

package trap

import "fmt"

// Code is the extension number following the ED prefix of a thunk.
type Code uint8

// Nextor device-based driver entry points.
const (
	NextorVersion Code = 0xe0 // DRV_VERSION
	NextorInit    Code = 0xe1 // DRV_INIT
	NextorRW      Code = 0xe8 // DEV_RW
	NextorInfo    Code = 0xe9 // DEV_INFO
	NextorStatus  Code = 0xea // DEV_STATUS
	NextorLUNInfo Code = 0xeb // LUN_INFO
)

// SymbOS mass storage driver entry points.
const (
	SymbOSInput    Code = 0xf0 // DRVINP
	SymbOSOutput   Code = 0xf1 // DRVOUT
	SymbOSActivate Code = 0xf2 // DRVACT
)

var codeNames = map[Code]string{
	NextorVersion:  "DRV_VERSION",
	NextorInit:     "DRV_INIT",
	NextorRW:       "DEV_RW",
	NextorInfo:     "DEV_INFO",
	NextorStatus:   "DEV_STATUS",
	NextorLUNInfo:  "LUN_INFO",
	SymbOSInput:    "DRVINP",
	SymbOSOutput:   "DRVOUT",
	SymbOSActivate: "DRVACT",
}

// String returns the driver routine name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("EXT_%02X", uint8(c))
}

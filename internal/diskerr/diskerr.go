// SPDX-FileCopyrightText: Copyright (c) 2025 Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package diskerr translates the outcome of a driver call into the status vocabulary of each guest ABI.
package diskerr

// Outcome is what happened to a driver call, independent of the ABI reporting it.
type Outcome int

// Outcomes shared by both ABIs.
const (
	OK Outcome = iota
	InvalidDevice
	InvalidLUN
	InvalidChannel
	InfoUnavailable
	NotReady
	TransferFailed
	WriteProtected
)

var outcomeNames = map[Outcome]string{
	OK:              "ok",
	InvalidDevice:   "invalid device",
	InvalidLUN:      "invalid logical unit",
	InvalidChannel:  "invalid channel",
	InfoUnavailable: "info not available",
	NotReady:        "not ready",
	TransferFailed:  "transfer failed",
	WriteProtected:  "write protected",
}

// String returns a human readable name of the outcome.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}

	return "unknown"
}

// Nextor driver error codes, see the Nextor Driver Development Guide.
const (
	NextorOK            = uint8(0x00)
	NextorNRDY          = uint8(0xfc) // not ready
	NextorWPROT         = uint8(0xf8) // write protected, never raised since protection is not enforced
	NextorIDEVL         = uint8(0xb5) // invalid device or logical unit
	NextorInvalidDevice = uint8(0x01) // DEV_INFO and LUN_INFO: device or info not available
)

// SymbOS mass storage error codes, returned in A with carry set.
const (
	SymbOSOK                  = uint8(0)
	SymbOSDeviceNotAvailable  = uint8(0)
	SymbOSDeviceNotReady      = uint8(26)
	SymbOSUnknownDisk         = uint8(9)
	SymbOSChannelNotAvailable = uint8(32)
)

// Nextor maps an outcome to the code DEV_RW reports in A.
// INFO and LUN_INFO do not use this table, they only know NextorInvalidDevice.
func Nextor(o Outcome) uint8 {
	switch o {
	case OK:
		return NextorOK
	case InvalidDevice, InvalidLUN:
		return NextorIDEVL
	case NotReady, TransferFailed:
		return NextorNRDY
	case WriteProtected:
		return NextorWPROT
	case InfoUnavailable, InvalidChannel:
		return NextorInvalidDevice
	}

	return NextorNRDY
}

// SymbOS maps an outcome to the code reported in A with carry set.
func SymbOS(o Outcome) uint8 {
	switch o {
	case OK:
		return SymbOSOK
	case InvalidDevice, InvalidLUN:
		return SymbOSDeviceNotAvailable
	case InvalidChannel:
		return SymbOSChannelNotAvailable
	case NotReady, WriteProtected:
		return SymbOSDeviceNotReady
	case TransferFailed, InfoUnavailable:
		return SymbOSUnknownDisk
	}

	return SymbOSUnknownDisk
}

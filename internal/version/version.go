// SPDX-FileCopyrightText: Copyright (c) 2020 Oliver Kuckertz, Siderolabs and Equinix
// SPDX-License-Identifier: Apache-2.0

// Package version contains variables such as project name, tag and sha. It's a proper alternative to using
// -ldflags '-X ...'.
package version

import (
	_ "embed"
	"fmt"
	"runtime/debug"
	"strings"
)

const fallbackName = "msx-diskbridge"

var (
	// Tag declares project git tag.
	//go:embed data/tag
	Tag string
	// SHA declares project git SHA.
	//go:embed data/sha
	SHA string
	// Name declares project name.
	Name = name()
)

func name() string {
	// test binaries and `go run` have no usable module path
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fallbackName
	}

	prefix := "github.com/siderolabs/"
	if tail, found := strings.CutPrefix(info.Path, prefix); found {
		before, _, _ := strings.Cut(tail, "/")

		return before
	}

	return fallbackName
}

// String renders the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("%s %s (%s)", Name, strings.TrimSpace(Tag), strings.TrimSpace(SHA))
}

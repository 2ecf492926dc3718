// Copyright 2025 The Fieldex Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jcodagnone/fieldex/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}

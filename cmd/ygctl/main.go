// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the ygctl command.
package main

import (
	"os"

	"github.com/replikativ/yggdrasil-go/cmd/ygctl/app"
	"github.com/replikativ/yggdrasil-go/pkg/ygl"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		ygl.Errorf("%v", err)
		os.Exit(1)
	}
}

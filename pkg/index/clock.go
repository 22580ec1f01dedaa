// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package index

import "github.com/replikativ/yggdrasil-go/pkg/hlc"

// nowMillis is the default free-marking timestamp source, shared with
// pkg/hlc so tests that freeze the wall clock for HLC also freeze it
// here.
func nowMillis() int64 {
	return int64(hlc.WallClockMillis())
}

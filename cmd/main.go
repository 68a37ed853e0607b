// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command clrtrim is the CLI wrapper around the clrtrim library: it runs
// the S0 (class-level) or S1 (method-level) trim against a managed PE image
// given an invocation-statistics JSON document, and writes the trimmed
// image next to the input using the input.s0/input.s0.d/input.s1/input.s1.d
// naming convention when --out is not given.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

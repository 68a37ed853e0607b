// Copyright (c) clrtrim contributors.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clrtrim "github.com/chexiongsheng/clrtrim"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clrtrim",
		Short: "Trim unreachable CLI metadata and IL from a managed PE image",
	}

	root.AddCommand(newTrimCmd("s0", "class-level (S0) trim: whole classes are kept or zeroed", false))
	root.AddCommand(newTrimCmd("s1", "method-level (S1) trim: individual unreachable methods are zeroed", true))

	return root
}

func newTrimCmd(use, short string, methodLevel bool) *cobra.Command {
	var deep bool
	var out string

	cmd := &cobra.Command{
		Use:   use + " <image> <invocations.json>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrim(args[0], args[1], out, use, deep, methodLevel)
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "expand reachability through the transitive reference closure")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: input.<level>, plus input.<level>.d when --deep)")

	return cmd
}

func runTrim(imagePath, invocationsPath, out, level string, deep, methodLevel bool) error {
	invFile, err := os.Open(invocationsPath)
	if err != nil {
		return err
	}
	defer invFile.Close()

	stats, err := clrtrim.LoadInvocationStats(invFile)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", invocationsPath, err)
	}

	f, err := clrtrim.New(imagePath, nil)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Parse(); err != nil {
		return fmt.Errorf("parsing %s: %w", imagePath, err)
	}

	names := stats.InvokedMethodNames()

	var trimmed []byte
	var runStats clrtrim.Stats
	if methodLevel {
		trimmed, runStats, err = f.TrimMethodLevel(names, deep)
	} else {
		trimmed, runStats, err = f.TrimClassLevel(names, deep)
	}
	if err != nil {
		return err
	}

	if out == "" {
		out = defaultOutPath(imagePath, level, deep)
	}

	if err := os.WriteFile(out, trimmed, 0o644); err != nil {
		return err
	}

	fmt.Printf("%s -> %s (%s)\n", imagePath, out, runStats)
	return nil
}

// defaultOutPath implements the input.s0/input.s0.d/input.s1/input.s1.d
// naming convention from spec.md §6: the trim level is appended as a new
// extension, with an extra ".d" suffix when the deep (transitive closure)
// pass was used.
func defaultOutPath(imagePath, level string, deep bool) string {
	suffix := "." + level
	if deep {
		suffix += ".d"
	}
	return imagePath + suffix
}

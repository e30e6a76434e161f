/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/codetran/internal/orchestrator"
	"github.com/valpere/codetran/internal/retry"
)

var (
	inputFile string
	outputDir string
	functions []string
	noCache   bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate one C file to Rust",
	Long: `Translate a single C file into a Cargo project under the output directory.

The translation is checked with the configured checker (cargo check by
default) and retried with the diagnostics until it builds or the attempt
bound is reached. Files longer than chunking.chunk_threshold_lines are
translated chunk by chunk.

A previously validated translation of the same source is reused unless
--no-cache is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		unit, err := readUnit(inputFile)
		if err != nil {
			return err
		}

		s, err := newSession(ctx, sessionOptions{targetFunctions: functions, noCache: noCache, outputDir: outputDir})
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Fprintf(os.Stderr, "Translating %s (%d lines)\n", unit.Path, unit.LineCount())
		res, err := s.coord.TranslateUnit(ctx, unit)
		if res != nil {
			printUnitResult(res)
		}
		if err != nil {
			var ex *retry.ExhaustedRetriesError
			if errors.As(err, &ex) && res != nil && len(res.FailedChunkIDs) > 0 {
				fmt.Fprintf(os.Stderr, "Resume with: codetran resume -i %s --chunks %s\n", inputFile, joinInts(res.FailedChunkIDs))
			}
			return err
		}
		return nil
	},
}

func printUnitResult(res *orchestrator.UnitResult) {
	switch {
	case res.Cached:
		fmt.Printf("Successfully translated %s (from cache)\n", res.Unit.Path)
	case res.Succeeded():
		fmt.Printf("Successfully translated %s in %d attempt(s)\n", res.Unit.Path, res.Attempts)
	default:
		fmt.Printf("Failed to translate %s after %d attempt(s)\n", res.Unit.Path, res.Attempts)
	}
	if res.Mode == orchestrator.ModeChunked {
		fmt.Printf("Chunks: %d, failed: %d\n", res.Chunks, len(res.FailedChunkIDs))
	}
	fmt.Printf("Confidence: %.2f\n", res.Confidence)
	for _, w := range res.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Printf("Output: %s\n", res.ArtifactPath)
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "C file to translate (required)")
	translateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for the Cargo project (default: output.dir)")
	translateCmd.Flags().StringSliceVar(&functions, "functions", nil, "Translate only these functions (comma-separated)")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable translation memory cache")

	translateCmd.MarkFlagRequired("input")
}

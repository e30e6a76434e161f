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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/placeholder"
	"github.com/valpere/codetran/internal/skeleton"
	"github.com/valpere/codetran/internal/store"
)

var resumeChunks []int

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Re-translate the failed chunks of a file",
	Long: `Re-translate only the failed chunks of a previously chunked file and
merge them with the chunks that already succeeded.

Chunk ids come from --chunks when given, otherwise from the persisted
progress of the file, otherwise from the placeholders left in its artifact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		unit, err := readUnit(inputFile)
		if err != nil {
			return err
		}
		s, err := newSession(ctx, sessionOptions{outputDir: outputDir, noCache: true})
		if err != nil {
			return err
		}
		defer s.Close()

		ids := resumeChunks
		source := "--chunks"
		if len(ids) == 0 {
			ids, source, err = failedChunks(ctx, s.db, unit)
			if err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			fmt.Fprintf(os.Stderr, "No failed chunks recorded for %s\n", unit.Path)
			return nil
		}

		fmt.Fprintf(os.Stderr, "Resuming chunks %s of %s (from %s)\n", joinInts(ids), unit.Path, source)
		res, err := s.coord.Resume(ctx, unit, ids)
		if res != nil {
			printUnitResult(res)
		}
		return err
	},
}

// failedChunks looks up the failed ids in persisted progress, then in the
// artifact's placeholders.
func failedChunks(ctx context.Context, db *store.Store, unit internal.Unit) ([]int, string, error) {
	rec, found, err := db.LoadProgress(ctx, unit.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load progress: %w", err)
	}
	if found && len(rec.FailedChunkIDs) > 0 {
		return rec.FailedChunkIDs, "progress", nil
	}

	dir := cfg.Output.Dir
	if outputDir != "" {
		dir = outputDir
	}
	layout, err := skeleton.Create(dir, unit)
	if err != nil {
		return nil, "", err
	}
	code, err := layout.ReadArtifact()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return placeholder.FailedChunks(code), "artifact placeholders", nil
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "C file to resume (required)")
	resumeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory of the Cargo project (default: output.dir)")
	resumeCmd.Flags().IntSliceVar(&resumeChunks, "chunks", nil, "Chunk ids to re-translate (comma-separated)")

	resumeCmd.MarkFlagRequired("input")
}

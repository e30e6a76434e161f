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
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/codetran/internal/orchestrator"
)

var (
	batchDir         string
	batchConcurrency int
	batchNoColor     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Translate every C file under a directory",
	Long: `Discover .c files under a directory and translate them concurrently.

Each file becomes its own Cargo project under the output directory. A file
that fails never stops the others; the summary lists every file with its
status, attempt count and last diagnostic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchNoColor {
			color.NoColor = true
		}
		ctx, cancel := signalContext()
		defer cancel()

		paths, err := discoverUnits(batchDir)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", batchDir, err)
		}
		if len(paths) == 0 {
			fmt.Fprintf(os.Stderr, "No .c files found under %s\n", batchDir)
			return nil
		}

		units, unreadable := orchestrator.LoadUnits(paths, cfg.Output.TargetLang)
		var totalBytes uint64
		for _, u := range units {
			totalBytes += uint64(len(u.SourceText))
		}
		for _, f := range unreadable {
			logger.Warn("unreadable file", zap.String("path", f.Result.Unit.Path), zap.Error(f.Err))
		}

		if batchConcurrency > 0 {
			cfg.Batch.Concurrency = batchConcurrency
		}
		s, err := newSession(ctx, sessionOptions{outputDir: outputDir, noCache: noCache})
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Fprintf(os.Stderr, "Translating %d files (%s) with concurrency %d\n",
			len(units), humanize.Bytes(totalBytes), cfg.Batch.Concurrency)
		report := s.coord.Run(ctx, units)
		report.Merge(unreadable)

		printReport(report)
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d files failed", len(report.Failed), len(paths))
		}
		return nil
	},
}

func printReport(report *orchestrator.Report) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	cached := color.New(color.FgCyan).SprintFunc()

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"File", "Status", "Mode", "Attempts", "Chunks", "Elapsed", "Diagnostic"})

	for _, r := range report.Succeeded {
		status := ok("ok")
		if r.Cached {
			status = cached("cached")
		}
		tbl.AppendRow(table.Row{r.Unit.Path, status, r.Mode, r.Attempts, r.Chunks, r.Elapsed.Round(time.Millisecond), ""})
	}
	for _, f := range report.Failed {
		r := f.Result
		diag := r.LastDiagnostic
		if diag == "" && f.Err != nil {
			diag = f.Err.Error()
		}
		tbl.AppendRow(table.Row{r.Unit.Path, bad("failed"), r.Mode, r.Attempts, r.Chunks, r.Elapsed.Round(time.Millisecond), truncate(firstLine(diag), 60)})
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d", len(report.Succeeded)+len(report.Failed)),
		fmt.Sprintf("%s / %s", ok(len(report.Succeeded)), bad(len(report.Failed))),
		"", "", "",
		report.Elapsed.Round(time.Millisecond),
		"",
	})
	fmt.Println(tbl.Render())
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchDir, "dir", "d", ".", "Directory to scan for .c files")
	batchCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for the Cargo projects (default: output.dir)")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Files translated at once (default: batch.concurrency)")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable translation memory cache")
	batchCmd.Flags().BoolVar(&batchNoColor, "no-color", false, "Disable colored output")
}

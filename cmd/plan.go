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
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var planMaxLines int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the chunk plan of a C file",
	Long: `Split a C file the way chunked translation would and print every chunk
with its line range, size, functions and cross-chunk calls. Nothing is
translated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		unit, err := readUnit(inputFile)
		if err != nil {
			return err
		}
		maxLines := cfg.Chunking.MaxLines
		if planMaxLines > 0 {
			maxLines = planMaxLines
		}

		chunks, err := newPlanner().Split(unit.SourceText, maxLines)
		if err != nil {
			return err
		}

		mode := "single"
		if unit.LineCount() > cfg.Chunking.ChunkThresholdLines {
			mode = "chunked"
		}
		fmt.Printf("%s: %d lines, %s, translated in %s mode\n",
			unit.Path, unit.LineCount(), humanize.Bytes(uint64(len(unit.SourceText))), mode)

		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"ID", "Lines", "Size", "Functions", "Calls"})
		for _, c := range chunks {
			tbl.AppendRow(table.Row{
				c.ID,
				fmt.Sprintf("%d-%d", c.StartLine+1, c.EndLine),
				humanize.Bytes(uint64(len(c.Content))),
				strings.Join(c.Functions, ", "),
				strings.Join(c.Dependencies, ", "),
			})
		}
		tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(chunks))})
		fmt.Println(tbl.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&inputFile, "input", "i", "", "C file to plan (required)")
	planCmd.Flags().IntVar(&planMaxLines, "max-lines", 0, "Maximum lines per chunk (default: chunking.max_lines)")

	planCmd.MarkFlagRequired("input")
}

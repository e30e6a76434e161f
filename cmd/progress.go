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
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/orchestrator"
	"github.com/valpere/codetran/internal/progress"
	"github.com/valpere/codetran/internal/store"
)

var progressClearAll bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and clear persisted chunk progress",
	Long:  `List, inspect, and clear the per-file chunk progress kept in the SQLite database.`,
}

var progressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every translated file with its chunk progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		units, err := db.ListUnits(ctx)
		if err != nil {
			return fmt.Errorf("failed to list units: %w", err)
		}
		records, err := db.ListProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to list progress: %w", err)
		}
		if len(units) == 0 && len(records) == 0 {
			fmt.Println("No progress recorded.")
			return nil
		}

		chunks := make(map[string]progress.Record, len(records))
		for _, r := range records {
			chunks[r.UnitID] = r
		}

		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"Unit", "Status", "Mode", "Attempts", "Chunks", "Failed chunks", "Updated"})
		listed := make(map[string]struct{}, len(units))
		for _, u := range units {
			listed[u.ID] = struct{}{}
			status := color.GreenString(u.Status)
			if u.Status != string(internal.StatusSucceeded) {
				status = color.RedString(u.Status)
			}
			done, failed := chunkColumns(chunks, u.ID)
			tbl.AppendRow(table.Row{u.ID, status, u.Mode, u.Attempts, done, failed, humanize.Time(u.UpdatedAt)})
		}
		for _, r := range records {
			if _, ok := listed[r.UnitID]; ok {
				continue
			}
			done, failed := chunkColumns(chunks, r.UnitID)
			tbl.AppendRow(table.Row{r.UnitID, "", orchestrator.ModeChunked, "", done, failed, ""})
		}
		fmt.Println(tbl.Render())
		return nil
	},
}

func chunkColumns(chunks map[string]progress.Record, id string) (string, string) {
	r, ok := chunks[id]
	if !ok {
		return "", ""
	}
	failed := joinInts(r.FailedChunkIDs)
	if failed != "" {
		failed = color.RedString(failed)
	}
	return fmt.Sprintf("%d/%d", r.CompletedChunks, r.TotalChunks), failed
}

var progressShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Show the progress and attempt history of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		id := internal.NewUnit(args[0], "", "", "").ID

		if u, err := db.GetUnit(ctx, id); err == nil {
			fmt.Printf("Unit:     %s\n", u.ID)
			fmt.Printf("Status:   %s (%s mode, %d attempt(s))\n", u.Status, u.Mode, u.Attempts)
			fmt.Printf("Artifact: %s\n", u.ArtifactPath)
			if u.LastDiagnostic != "" {
				fmt.Printf("Last diagnostic:\n%s\n", u.LastDiagnostic)
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load unit: %w", err)
		}

		rec, found, err := db.LoadProgress(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load progress: %w", err)
		}
		if !found {
			fmt.Printf("No progress recorded for %s\n", id)
			return nil
		}
		fmt.Printf("Chunks: %d/%d completed", rec.CompletedChunks, rec.TotalChunks)
		if len(rec.FailedChunkIDs) > 0 {
			fmt.Printf(", failed: %s", color.RedString(joinInts(rec.FailedChunkIDs)))
		}
		fmt.Println()

		attempts, err := db.ListAttempts(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list attempts: %w", err)
		}
		if len(attempts) == 0 {
			return nil
		}
		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.AppendHeader(table.Row{"Chunk", "Attempt", "Status", "Confidence", "Latency", "Reason"})
		for _, a := range attempts {
			chunk := fmt.Sprint(a.ChunkID)
			if a.ChunkID == internal.WholeUnit {
				chunk = "unit"
			}
			tbl.AppendRow(table.Row{chunk, a.Number, a.Status, fmt.Sprintf("%.2f", a.Confidence), a.Latency, truncate(firstLine(a.Reason), 60)})
		}
		fmt.Println(tbl.Render())
		return nil
	},
}

var progressClearCmd = &cobra.Command{
	Use:   "clear [file]",
	Short: "Remove the progress and attempt history of a file, or of all files with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !progressClearAll {
			return errors.New("give a file or --all")
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		var id string
		if len(args) == 1 {
			id = internal.NewUnit(args[0], "", "", "").ID
		}
		n, err := db.DeleteProgress(context.Background(), id)
		if err != nil {
			return fmt.Errorf("failed to clear progress: %w", err)
		}
		fmt.Printf("Cleared %d progress record(s).\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)

	progressClearCmd.Flags().BoolVar(&progressClearAll, "all", false, "Clear the progress of every file")

	progressCmd.AddCommand(progressListCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressClearCmd)
}

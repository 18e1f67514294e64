package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Process many census files in parallel",
		Long: `Batch runs the inference pipeline over every file, with at most
pipeline.batch_concurrency files in flight, and prints one summary line per
file. A failing file never stops the others.

Examples:
  censusctl batch ~/clientes/*/plantilla.*
  censusctl batch *.csv --out results/`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatch,
	}
	cmd.Flags().String("out", "", "write each result as <file>.json into this directory")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")

	_, pl, _, err := setup(cmd)
	if err != nil {
		return err
	}
	files, err := expandArgs(args)
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", outDir, err)
		}
	}

	inputs := make([]pipeline.FileInput, 0, len(files))
	for _, path := range files {
		in, err := readInput(path)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	progress := cmd.ErrOrStderr()
	results := pl.ProcessBatch(cmd.Context(), inputs, func(completed, total int) {
		fmt.Fprintf(progress, "\rProcessed %d/%d", completed, total)
	})
	fmt.Fprintln(progress)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tTABLES\tRECORDS\tQUESTIONS\tCRITICAL\tSTATUS")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", r.FileName, r.Err)
			continue
		}
		critical := 0
		for _, q := range r.Data.Questions {
			if q.IsCritical() {
				critical++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\tok\n",
			r.FileName, r.Data.Detection.Kind, len(r.Data.Structure.Tables),
			r.Data.FormatAnalysis.Characteristics.EstimatedRecords, len(r.Data.Questions), critical)

		if outDir != "" {
			if err := writeResult(outDir, r); err != nil {
				return err
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func writeResult(dir string, r pipeline.BatchResult) error {
	name := strings.TrimSuffix(r.FileName, filepath.Ext(r.FileName)) + ".json"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create result for %s: %w", r.FileName, err)
	}
	defer f.Close()
	return writeJSON(f, r.Data)
}

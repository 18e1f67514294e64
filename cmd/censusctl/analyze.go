package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/census-engine/pkg/models"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Run the full inference pipeline on one file",
		Long: `Analyze detects the format, finds tables, infers column types, maps columns
to standard fields and lists the questions a session would start with.

Examples:
  censusctl analyze plantilla.xlsx
  censusctl analyze nomina.csv --json > result.json`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	_, pl, _, err := setup(cmd)
	if err != nil {
		return err
	}
	in, err := readInput(args[0])
	if err != nil {
		return err
	}
	data, err := pl.Process(cmd.Context(), in)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), data)
	}
	printAnalysis(cmd.OutOrStdout(), data)
	return nil
}

func printAnalysis(w io.Writer, data *models.ProcessedFileData) {
	md := data.Metadata
	fmt.Fprintf(w, "%s: %s (%.2f via %s), extracted with %s in %s\n",
		md.FileName, data.Detection.Kind, data.Detection.Confidence, data.Detection.Signal,
		md.ExtractionMethod, md.Duration.Round(1e6))
	if md.LowFidelity {
		fmt.Fprintln(w, "  low fidelity extraction: confidences are capped")
	}
	fa := data.FormatAnalysis
	fmt.Fprintf(w, "  %s, %s data quality, ~%d records, strategy %s\n",
		fa.Refinement, fa.Characteristics.DataQuality, fa.Characteristics.EstimatedRecords, fa.Strategy.Method)

	for _, t := range data.Structure.Tables {
		header := "none"
		if t.HeaderRow >= 0 {
			header = fmt.Sprint(t.HeaderRow + 1)
		}
		fmt.Fprintf(w, "\nTable %s (%s, data rows %d-%d, header row %s)\n",
			t.ID, t.Purpose, t.DataStart+1, t.DataEnd, header)
		m := data.Mapping(t.ID)
		for _, c := range t.Columns {
			field := "-"
			if m != nil {
				if f := m.FieldForColumn(c.Index); f != "" {
					field = f
				}
			}
			fmt.Fprintf(w, "  %-28s %-12s %.2f  -> %s\n", c.Label(), c.DataType, c.Confidence, field)
		}
	}

	if len(data.Questions) == 0 {
		fmt.Fprintln(w, "\nNo questions.")
		return
	}
	fmt.Fprintf(w, "\n%d questions:\n", len(data.Questions))
	for _, q := range data.Questions {
		fmt.Fprintf(w, "  [%s] %s\n", strings.ToUpper(string(q.Severity)), q.Prompt)
	}
}

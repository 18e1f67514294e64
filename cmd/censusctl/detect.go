package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [files...]",
		Short: "Detect the source format of census files",
		Long: `Detect reports the source kind, confidence and deciding signal for each file.
Only the first bytes of each file are inspected.

Examples:
  censusctl detect plantilla.xlsx
  censusctl detect ~/Downloads/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDetect,
	}
}

func runDetect(cmd *cobra.Command, args []string) error {
	_, pl, _, err := setup(cmd)
	if err != nil {
		return err
	}
	files, err := expandArgs(args)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKIND\tCONFIDENCE\tSIGNAL\tDELIMITER")
	for _, path := range files {
		in, err := readInput(path)
		if err != nil {
			return err
		}
		d := pl.Detect(in)
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%q\n", in.Identity.Name, d.Kind, d.Confidence, d.Signal, d.Delimiter)
	}
	return tw.Flush()
}

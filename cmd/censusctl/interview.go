package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

func interviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interview <file>",
		Short: "Answer clarification questions and export the normalized dataset",
		Long: `Interview processes a file, then asks its clarification questions one at a
time on the terminal. Answer with the option number or id; type q to stop.
When no critical question is left the normalized dataset is written as JSON.

Examples:
  censusctl interview plantilla.xlsx
  censusctl interview nomina.csv --out dataset.json`,
		Args: cobra.ExactArgs(1),
		RunE: runInterview,
	}
	cmd.Flags().StringP("out", "o", "", "write the dataset to this file instead of stdout")
	return cmd
}

func runInterview(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("out")
	ctx := cmd.Context()

	_, pl, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	in, err := readInput(args[0])
	if err != nil {
		return err
	}
	data, err := pl.Process(ctx, in)
	if err != nil {
		return err
	}

	svc := conversation.NewConversationService(conversation.NewSessionStore(logger), pl.Generator(), pl.Mapper(), pl.Analyzer(), logger)
	view, err := svc.StartSession(ctx, "censusctl", data)
	if err != nil {
		return err
	}

	dataset, err := interview(cmd, svc, view)
	if err != nil {
		return err
	}

	if outPath == "" {
		return writeJSON(cmd.OutOrStdout(), dataset)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()
	if err := writeJSON(f, dataset); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s\nDataset written to %s\n", dataset.ValidationSummary, outPath)
	return nil
}

// interview drives the question loop until the session finalizes or input
// ends. Prompts go to stderr so stdout carries only the dataset.
func interview(cmd *cobra.Command, svc conversation.ConversationService, view *conversation.SessionView) (*models.NormalizedDataset, error) {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.ErrOrStderr()
	pending := view.Pending

	for len(pending) > 0 {
		q := pending[0]
		printQuestion(out, q, len(pending))

		answer, ok := readAnswer(scanner, out, q)
		if !ok {
			break
		}

		result, err := svc.ProcessAnswer(ctx, view.ID, q.ID, answer)
		if err != nil {
			return nil, err
		}
		if !result.Accepted {
			fmt.Fprintf(out, "Not accepted: %s\n", result.Reason)
			continue
		}
		if result.FinalizedDataset != nil {
			return result.FinalizedDataset, nil
		}
		if pending, err = svc.PendingQuestions(ctx, view.ID); err != nil {
			return nil, err
		}
	}

	dataset, err := svc.Finalize(ctx, view.ID)
	if errors.Is(err, apperrors.ErrCriticalPending) {
		return nil, fmt.Errorf("interview stopped before all critical questions were answered: %w", err)
	}
	return dataset, err
}

func printQuestion(w io.Writer, q *models.ConversationalQuestion, remaining int) {
	fmt.Fprintf(w, "\n[%s, %d pending] %s\n", strings.ToUpper(string(q.Severity)), remaining, q.Prompt)
	if q.Rationale != "" {
		fmt.Fprintf(w, "  %s\n", q.Rationale)
	}
	for _, s := range q.SampleData {
		fmt.Fprintf(w, "    | %s\n", s)
	}
	for i, opt := range q.Options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt.Label)
	}
}

// readAnswer reads an option by number or id, plus a typed value for
// manual override options without one. ok is false on q or end of input.
func readAnswer(scanner *bufio.Scanner, w io.Writer, q *models.ConversationalQuestion) (models.Answer, bool) {
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			return models.Answer{}, false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "q" || line == "quit" {
			return models.Answer{}, false
		}

		opt := q.Option(line)
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(q.Options) {
			opt = &q.Options[n-1]
		}
		if opt == nil {
			fmt.Fprintf(w, "Choose 1-%d.\n", len(q.Options))
			continue
		}

		answer := models.Answer{OptionID: opt.ID}
		if opt.Action == models.ActionManualOverride && opt.Value == "" {
			fmt.Fprint(w, "value> ")
			if !scanner.Scan() {
				return models.Answer{}, false
			}
			answer.Value = strings.TrimSpace(scanner.Text())
		}
		return answer, true
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

// newLogger logs to stderr so stdout stays machine readable. Without
// --verbose only warnings and errors are shown.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// setup loads configuration and wires a pipeline.
func setup(cmd *cobra.Command) (*config.Config, *pipeline.Pipeline, *zap.Logger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	cfg, err := config.Load(version)
	if err != nil {
		return nil, nil, nil, err
	}
	pl, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, pl, logger, nil
}

// expandArgs resolves glob patterns, keeping plain paths that exist.
func expandArgs(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("no files match %s", pattern)
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	return files, nil
}

// readInput loads a file and guesses its media type from the extension.
func readInput(path string) (pipeline.FileInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return pipeline.FileInput{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return pipeline.FileInput{
		Identity: models.FileIdentity{
			Name:      filepath.Base(path),
			MediaType: mime.TypeByExtension(filepath.Ext(path)),
			Size:      int64(len(content)),
		},
		Content: content,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensimfi/daybook/internal/scenario"
)

// ValidationResult holds validation results for one scenario file.
type ValidationResult struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario YAML against the embedded CUE schema.

Checks structure, operation names, agent kinds, and amount formats
without touching the ledger. Faster feedback than a full run.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		formatter.VerboseLog("validating %s", path)
		res := ValidationResult{File: path, Valid: true}
		if _, err := scenario.Load(path); err != nil {
			res.Valid = false
			res.Error = err.Error()
			failed++

			var vErr *scenario.ValidationError
			if !errors.As(err, &vErr) {
				// Not a schema violation: unreadable file or broken YAML.
				_ = formatter.Error("E002", err.Error(), nil)
				return WrapExitError(ExitCommandError, "cannot validate "+path, err)
			}
		}
		results = append(results, res)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s\n", res.File)
			} else {
				fmt.Fprintf(formatter.Writer, "✗ %s\n%s\n", res.File, res.Error)
			}
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario file(s) invalid", failed))
	}
	return nil
}

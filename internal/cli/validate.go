package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/musicbox/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool           `json:"valid"`
	Config *config.Config `json:"config,omitempty"`
	Error  *ConfigProblem `json:"error,omitempty"`
}

// ConfigProblem is a config error with its source position.
type ConfigProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a session config",
		Long: `Validate a CUE session config against the session schema and print the
resolved settings, defaults included. Secrets are redacted.

Exit codes:
  0 - Config is valid
  1 - Config violates the schema or does not parse
  2 - Config file not found`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], envFiles, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&envFiles, "env", nil, ".env files to apply before validating")

	return cmd
}

func runValidate(opts *RootOptions, path string, envFiles []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	f.VerboseLog("Validating %s", path)

	cfg, err := config.Load(path)
	if err == nil && len(envFiles) > 0 {
		err = cfg.ApplyEnv(envFiles...)
	}
	if err != nil {
		return outputValidateError(f, err)
	}

	redacted := *cfg
	if redacted.APIKey != "" {
		redacted.APIKey = "***"
	}
	if redacted.Password != "" {
		redacted.Password = "***"
	}

	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Config: &redacted})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	fmt.Fprintf(w, "  Session: %s (app %s)\n", redacted.Name, redacted.AppID)
	fmt.Fprintf(w, "  Field: %dx%d\n", redacted.Width, redacted.Height)
	fmt.Fprintf(w, "  Wrap ticks: %g/s (period %s)\n", redacted.TPS, redacted.Period())
	fmt.Fprintf(w, "  Event rate limit: %d/s\n", redacted.EventRateLimit)
	if redacted.LeaseTicks > 0 {
		fmt.Fprintf(w, "  Grab lease: %d ticks\n", redacted.LeaseTicks)
	}
	fmt.Fprintf(w, "  Listen: %s\n", redacted.Listen)
	fmt.Fprintf(w, "  Journal: %s\n", redacted.DB)
	return nil
}

func outputValidateError(f *OutputFormatter, err error) error {
	problem := &ConfigProblem{Code: "E_CONFIG", Message: err.Error()}
	exit := ExitFailure

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		problem.Code = cfgErr.Code
		problem.Message = cfgErr.Message
		if cfgErr.Pos.IsValid() {
			problem.File = cfgErr.Pos.Filename()
			problem.Line = cfgErr.Pos.Line()
			problem.Column = cfgErr.Pos.Column()
		}
		if cfgErr.Code == config.CodeNotFound {
			exit = ExitCommandError
		}
	}

	if f.JSON() {
		if err := f.Failure(CodeConfig, problem.Message, ValidationResult{Valid: false, Error: problem}); err != nil {
			return err
		}
	} else if problem.Line > 0 {
		f.Error(problem.Code, fmt.Sprintf("%s:%d:%d: %s", problem.File, problem.Line, problem.Column, problem.Message), nil)
	} else {
		f.Error(problem.Code, problem.Message, nil)
	}
	return WrapExitError(exit, "config invalid", err)
}

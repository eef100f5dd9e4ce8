package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/nucleus/internal/harness"
	"github.com/roach88/nucleus/internal/persist"
	"github.com/roach88/nucleus/internal/reactor"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script        string
	Database      string
	Config        string
	Prod          bool
	SnapshotEvery int

	// IDGenerator allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator persist.IDGenerator
}

// RunResult is the outcome of a run.
type RunResult struct {
	Pass       bool           `json:"pass"`
	Errors     []string       `json:"errors,omitempty"`
	DispatchID uint64         `json:"dispatch_id"`
	State      map[string]any `json:"state"`
	Session    string         `json:"session,omitempty"`
	Events     int            `json:"events"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program-dir>",
		Short: "Run a script against a program",
		Long: `Run a script of dispatches against a program and print the final state.

A script uses the scenario format without the program field; name and
description are optional. With --db every commit is journaled to a SQLite
database under a new session, and a snapshot is taken at the end, so the
run can later be verified with replay.

Reactor options start from the development preset (or --prod), then the
--config file, then NUCLEUS_* environment variables.

Example:
  nucleus run ./cart --script checkout.yaml
  nucleus run ./cart --script checkout.yaml --db ./nucleus.db --snapshot-every 100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "path to the script YAML (required)")
	_ = cmd.MarkFlagRequired("script")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the run to this SQLite database")
	cmd.Flags().StringVar(&opts.Config, "config", "", "reactor options YAML file")
	cmd.Flags().BoolVar(&opts.Prod, "prod", false, "start from the production options preset")
	cmd.Flags().IntVar(&opts.SnapshotEvery, "snapshot-every", 0, "also snapshot every N journaled commits")

	return cmd
}

func runScript(opts *RunOptions, programDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(formatter)

	loaded, verrs, err := loadProgram(programDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}
	if len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	script, err := harness.LoadScript(opts.Script, programDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}

	base := reactor.DevOptions()
	if opts.Prod {
		base = reactor.ProdOptions()
	}
	if script.Options != nil {
		base = *script.Options
	}
	ropts, err := resolveOptions(base, opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid reactor options", err)
	}
	script.Options = &ropts
	logger.Debug("reactor options", "options", ropts)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []harness.Option{harness.WithLogger(logger)}
	var session string
	if opts.Database != "" {
		st, err := persist.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		jopts := []persist.JournalOption{
			persist.WithProgramHash(loaded.Hash),
			persist.WithSnapshotEvery(opts.SnapshotEvery),
			persist.WithJournalLogger(logger),
		}
		if opts.IDGenerator != nil {
			jopts = append(jopts, persist.WithIDGenerator(opts.IDGenerator))
		}
		journal, err := persist.NewJournal(ctx, st, programDir, ropts, jopts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create session", err)
		}
		session = journal.Session().ID
		runOpts = append(runOpts, harness.WithJournal(journal))
		logger.Info("session started", "session", session, "db", opts.Database)
	}

	result, err := harness.Run(script, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	out := RunResult{
		Pass:       result.Pass,
		Errors:     result.Errors,
		DispatchID: result.DispatchID,
		State:      result.State,
		Session:    session,
		Events:     len(result.Trace),
	}
	return outputRunResult(formatter, out)
}

// resolveOptions overlays the config file and the environment on base.
func resolveOptions(base reactor.Options, configPath string) (reactor.Options, error) {
	opts := base
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return reactor.Options{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&opts); err != nil {
			return reactor.Options{}, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}
	return reactor.OptionsFromEnv(opts)
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	var exitErr error
	if !result.Pass {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("run failed with %d error(s)", len(result.Errors)))
	}

	if formatter.JSON() {
		if result.Pass {
			return formatter.Success(result)
		}
		if err := formatter.Failure(ErrCodeRunFailed, result.Errors[0], result); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	for _, e := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", e)
	}
	if result.Session != "" {
		fmt.Fprintf(w, "Session: %s\n", result.Session)
	}
	fmt.Fprintf(w, "Dispatch id: %d\n", result.DispatchID)
	fmt.Fprintln(w, "State:")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result.State); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return exitErr
}

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nucleus/internal/compiler"
	"github.com/roach88/nucleus/internal/immutable"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// StoreInfo describes one compiled store.
type StoreInfo struct {
	ID      string   `json:"id"`
	Actions []string `json:"actions"`
	Persist bool     `json:"persist"`
	Lang    string   `json:"lang,omitempty"`
}

// GetterInfo describes one compiled getter.
type GetterInfo struct {
	Name string   `json:"name"`
	Deps []string `json:"deps"`
	Lang string   `json:"lang,omitempty"`
}

// CompilationResult summarizes a compiled program.
type CompilationResult struct {
	Hash        string       `json:"hash"`
	Files       int          `json:"files"`
	Lang        string       `json:"lang,omitempty"`
	Stores      []StoreInfo  `json:"stores"`
	Getters     []GetterInfo `json:"getters"`
	StoreOrder  []string     `json:"store_order"`
	GetterOrder []string     `json:"getter_order"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <program-dir>",
		Short: "Compile a program and print its summary",
		Long: `Compile the CUE program in a directory: parse, validate, and build
every reducer and compute function.

Prints the stores, getters and the program hash. With --output, writes the
canonical JSON summary that the hash is computed from.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, verrs, err := loadProgram(dir)
	if err != nil {
		return outputCompileError(formatter, loadErrorCode(err), err.Error())
	}
	if len(verrs) > 0 {
		return outputCompileErrors(formatter, verrs)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)
	for _, id := range loaded.Program.StoreOrder {
		formatter.VerboseLog("Compiled store: %s", id)
	}
	for _, name := range loaded.Program.GetterOrder {
		formatter.VerboseLog("Compiled getter: %s", name)
	}

	result := summarize(loaded)

	if opts.Output != "" {
		data, err := immutable.MarshalCanonical(loaded.Spec.Summary())
		if err == nil {
			err = os.WriteFile(opts.Output, data, 0644)
		}
		if err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// summarize builds the compile output for a loaded program.
func summarize(loaded *loadedProgram) *CompilationResult {
	spec := loaded.Spec
	result := &CompilationResult{
		Hash:        loaded.Hash,
		Files:       loaded.FileCount,
		Lang:        spec.Lang,
		Stores:      make([]StoreInfo, len(spec.Stores)),
		Getters:     make([]GetterInfo, len(spec.Getters)),
		StoreOrder:  loaded.Program.StoreOrder,
		GetterOrder: loaded.Program.GetterOrder,
	}
	for i, s := range spec.Stores {
		actions := make([]string, len(s.Handlers))
		for j, h := range s.Handlers {
			actions[j] = h.Action
		}
		result.Stores[i] = StoreInfo{ID: s.ID, Actions: actions, Persist: s.Persist, Lang: s.Lang}
	}
	for i, g := range spec.Getters {
		deps := make([]string, len(g.Deps))
		for j, d := range g.Deps {
			deps[j] = d.String()
		}
		result.Getters[i] = GetterInfo{Name: g.Name, Deps: deps, Lang: g.Lang}
	}
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d store(s), %d getter(s)\n\n", len(result.Stores), len(result.Getters))

	if len(result.Stores) > 0 {
		fmt.Fprintln(w, "Stores:")
		for _, s := range result.Stores {
			suffix := ""
			if !s.Persist {
				suffix = " (transient)"
			}
			fmt.Fprintf(w, "  %s: %s%s\n", s.ID, strings.Join(s.Actions, ", "), suffix)
		}
		fmt.Fprintln(w)
	}

	if len(result.Getters) > 0 {
		fmt.Fprintln(w, "Getters:")
		for _, g := range result.Getters {
			fmt.Fprintf(w, "  %s ← %s\n", g.Name, strings.Join(g.Deps, ", "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Hash: %s\n", result.Hash)
	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical summary to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs every compilation error.
func outputCompileErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, errs); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", e.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nucleus/internal/persist"
)

const (
	cartDir        = "../../testdata/cart"
	scenariosDir   = "../../testdata/scenarios"
	checkoutScript = "../../testdata/scripts/checkout.yaml"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// copyCart copies the cart program into a fresh directory.
func copyCart(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cartDir, "cart.cue"))
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "cart")
	writeFile(t, dir, "cart.cue", string(data))
	return dir
}

// journalRun runs the checkout script against programDir, journaling to
// db under session id.
func journalRun(t *testing.T, db, programDir, id string) {
	t.Helper()
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Script:      checkoutScript,
		Database:    db,
		IDGenerator: persist.NewFixedGenerator(id),
	}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, runScript(opts, programDir, cmd))
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/testutil"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// shopSchemaDir returns a directory holding the shop CUE schema.
func shopSchemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "shop.cue", testutil.ShopCUE)
	return dir
}

// seededDB returns a database seeded with the shop fixture and its schema dir.
func seededDB(t *testing.T) (db, schemaDir string) {
	t.Helper()
	schemaDir = shopSchemaDir(t)
	fixturePath := writeFile(t, t.TempDir(), "shop.yaml", testutil.ShopFixture)
	db = filepath.Join(t.TempDir(), "shop.db")

	_, _, err := execute(t, "seed", "--db", db, schemaDir, fixturePath)
	require.NoError(t, err)
	return db, schemaDir
}

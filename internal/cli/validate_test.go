package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ghostSchema = `package bad

table: orders: columns: {
	total:       "float"
	customer_id: {kind: "uuid", nullable: true, references: "customers"}
}
table: customers: columns: name: "string"

type: Order: {
	table: "orders"
	bindings: {
		total:    {}
		customer: {ref: "Ghost", column: "customer_id", nullable: true}
	}
}
`

func TestValidateShopSchema(t *testing.T) {
	out, _, err := execute(t, "validate", shopSchemaDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid: 3 type(s), 4 table(s)")
}

func TestValidateShopSchemaJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", shopSchemaDir(t))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"Customer", "Order", "LineItem"}, resp.Data.Types)
	assert.Equal(t, []string{"customers", "orders", "line_items", "reviews"}, resp.Data.Tables)
}

func TestValidateVerbose(t *testing.T) {
	out, errOut, err := execute(t, "--verbose", "validate", shopSchemaDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid")
	assert.Contains(t, errOut, "Type Order: table orders, 4 binding(s), 1 join(s)")
}

func TestValidateUnknownTarget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", ghostSchema)

	out, _, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E006: Order.customer:")
	assert.Contains(t, out, `"Ghost"`)
}

func TestValidateUnknownTargetJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", ghostSchema)

	out, _, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "UNKNOWN_TARGET", resp.Data.Errors[0].Reason)
	assert.Equal(t, "Order", resp.Data.Errors[0].Type)
	assert.Equal(t, "customer", resp.Data.Errors[0].Property)
	assert.Equal(t, ErrCodeBinding, resp.Error.Code)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.Contains(t, out, "schema directory not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, _, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestValidateSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.cue", "package broken\n\ntable: {\n")

	out, _, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E004")
}

func TestValidateSchemaFromConfig(t *testing.T) {
	schemaDir := shopSchemaDir(t)
	cfgPath := writeFile(t, t.TempDir(), "strata.yaml", "schema: "+schemaDir+"\n")

	out, _, err := execute(t, "--config", cfgPath, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid")
}

func TestValidateNoSchemaDirectory(t *testing.T) {
	out, _, err := execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no schema directory given")
}

func TestValidateBadConfig(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "strata.yaml", "max_concurency: 2\n")

	out, _, err := execute(t, "--config", cfgPath, "validate", shopSchemaDir(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E008]")
}

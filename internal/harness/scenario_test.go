package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content next to a schema directory and a fixture
// file so relative paths resolve.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schema"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.yaml"), []byte("name: x\ntables: []\n"), 0644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: lookup
description: "Load one order"
schema: schema
fixtures: [shop.yaml]
steps:
  - get: Order
    id: 00000000-0000-7000-8000-000000000010
    expect:
      record: {total: 42}
  - get: Order
    limit: 2
    expect:
      count: 1
assertions:
  - type: materialized
    step: 0
    count: 4
  - type: row_count
    table: orders
    count: 2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "lookup", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "schema"), scenario.Schema)
	assert.Equal(t, []string{filepath.Join(dir, "shop.yaml")}, scenario.Fixtures)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, 42, scenario.Steps[0].Expect.Record["total"])
	require.NotNil(t, scenario.Steps[1].Expect.Count)
	assert.Equal(t, 1, *scenario.Steps[1].Expect.Count)
	assert.Equal(t, 2, scenario.Steps[1].Limit)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, AssertRowCount, scenario.Assertions[1].Type)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Catches typos"
schema: schema
step:
  - get: Order
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nschema: schema\nsteps: [{get: Order}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nschema: schema\nsteps: [{get: Order}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing schema",
			content: "name: n\ndescription: d\nsteps: [{get: Order}]\n",
			wantErr: "schema is required",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nschema: schema\n",
			wantErr: "steps list is required",
		},
		{
			name:    "schema directory missing",
			content: "name: n\ndescription: d\nschema: nowhere\nsteps: [{get: Order}]\n",
			wantErr: "schema directory not found",
		},
		{
			name:    "fixture missing",
			content: "name: n\ndescription: d\nschema: schema\nfixtures: [gone.yaml]\nsteps: [{get: Order}]\n",
			wantErr: "fixture file not found",
		},
		{
			name:    "step without type",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{id: 00000000-0000-7000-8000-000000000010}]\n",
			wantErr: "steps[0]: get is required",
		},
		{
			name:    "invalid id",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order, id: nope}]\n",
			wantErr: `steps[0]: invalid id "nope"`,
		},
		{
			name:    "negative limit",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order, limit: -1}]\n",
			wantErr: "limit must be non-negative",
		},
		{
			name:    "unknown error kind",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order, expect: {error: boom}}]\n",
			wantErr: `unknown error kind "boom"`,
		},
		{
			name:    "assertion step out of range",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order}]\nassertions: [{type: materialized, step: 3, count: 1}]\n",
			wantErr: "assertions[0]: step 3 out of range",
		},
		{
			name:    "row count without table",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order}]\nassertions: [{type: row_count, count: 1}]\n",
			wantErr: "table is required for row_count",
		},
		{
			name:    "unknown assertion type",
			content: "name: n\ndescription: d\nschema: schema\nsteps: [{get: Order}]\nassertions: [{type: trace_contains, count: 1}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	matches, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, path := range matches {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

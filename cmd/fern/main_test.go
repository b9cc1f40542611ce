package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/processor"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLinkCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "court-filing.json"), []byte(`{
		"case_numbers": {"court": "2590/2025"},
		"parties": [{"name_en": "Ahmed Ali", "personal_id": "784-1990-1234567-1", "role": "defendant"}]
	}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hearing.yaml"), []byte(`
document_id: hearing-minutes
entity_bag:
  case_numbers:
    court: "2590/2025"
`), 0o600))

	out, err := run(t, "--store", "memory", "link", "--workers", "1", dir)
	require.NoError(t, err)

	var report processor.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Results, 2)
	assert.Equal(t, report.Results[0].CaseID, report.Results[1].CaseID)
}

func TestLinkCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"case_numbers":`), 0o600))

	out, err := run(t, "--store", "memory", "link", "--summary", dir)
	require.Error(t, err)

	var report processor.BatchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Failures, 1)
	assert.Nil(t, report.Results)
}

func TestCommands_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "link without paths", args: []string{"--store", "memory", "link"}},
		{name: "unknown store", args: []string{"--store", "mongo", "duplicates", "analyze"}},
		{name: "merge without cases", args: []string{"--store", "memory", "duplicates", "merge"}},
		{name: "merge with both forms", args: []string{"--store", "memory", "duplicates", "merge", "--candidate", "c1", "--primary", "p1"}},
		{name: "merge without absorbed", args: []string{"--store", "memory", "duplicates", "merge", "--primary", "p1"}},
		{name: "missing config file", args: []string{"--config", "missing.toml", "duplicates", "analyze"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestDuplicatesAnalyze_Empty(t *testing.T) {
	out, err := run(t, "--store", "memory", "duplicates", "analyze")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

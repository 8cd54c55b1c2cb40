package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/siteplan/internal/ingest"
	"github.com/stwalsh4118/siteplan/internal/models"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "sync", "rules", "history"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestSyncCommand_Flags(t *testing.T) {
	cmd := newSyncCmd()
	for _, name := range []string{"layer", "region", "file", "region-field", "confirm", "workers"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}

	cmd.SetArgs([]string{})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layer")
}

func TestParseLayers(t *testing.T) {
	layers, err := parseLayers([]string{"parcel", "Zone"})
	require.NoError(t, err)
	assert.Equal(t, []models.Layer{models.LayerParcel, models.LayerZone}, layers)

	_, err = parseLayers([]string{"roads"})
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	a, b, c := errors.New("a"), errors.New("b"), errors.New("c")
	nested := errors.Join(errors.Join(a, b), c)
	assert.Equal(t, []error{a, b, c}, flatten(nested))
	assert.Nil(t, flatten(nil))

	wrapped := fmt.Errorf("reconcile: %w", ingest.ErrSyncAnomaly)
	assert.Equal(t, []error{wrapped}, flatten(wrapped))
}

func TestPrintOutput(t *testing.T) {
	report := &ingest.CycleReport{
		CycleID: "c1",
		Scope:   models.Scope{Region: "NOOSA", Layer: models.LayerParcel},
		Status:  ingest.StatusPromoted,
	}

	var buf bytes.Buffer
	require.NoError(t, printOutput(&buf, "json", report))
	assert.Contains(t, buf.String(), `"cycle_id": "c1"`)

	buf.Reset()
	require.NoError(t, printOutput(&buf, "yaml", report))
	assert.Contains(t, buf.String(), "cycle_id: c1")
	assert.Contains(t, buf.String(), "status: promoted")

	assert.Error(t, printOutput(&buf, "xml", report))
}

const seed = `lga: NOOSA
planning_scheme: Noosa Plan 2020
confidence: 0.8
rules:
  - zone_code: Low Density Residential Zone
    max_site_cover_pct: 40
    dwelling_density: 1 per lot
  - zone_code: Rural Zone
    dwelling_density: caretaker only
`

func TestRulesImport_DryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	cmd := newRulesImportCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--file", path, "--dry-run"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"rules": 2`)
	assert.Contains(t, out.String(), "Rural Zone")
	assert.Contains(t, out.String(), `"dry_run": true`)
}

func TestRulesImport_InvalidSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lga: NOOSA\nrules:\n  - zone_code: X\n    dwelling_density: lots\n"), 0o600))

	cmd := newRulesImportCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--file", path, "--dry-run"})

	assert.Error(t, cmd.Execute())
}

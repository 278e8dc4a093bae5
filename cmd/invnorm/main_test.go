package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invnorm/internal/domain"
)

const rawCSV = "ip,hostname,fqdn,owner,device_type,site,notes\n" +
	"10.0.0.5,web-01,web-01.corp.example.com,Jane Doe (ops) jane@corp.example.com,server,DC1,\n" +
	"10.0.0.300,printer-2,,,,,HP LaserJet\n"

// writeWorkspace lays out an input file, static answers and a config in a
// temp dir and returns the config path
func writeWorkspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()

	input := filepath.Join(dir, "inventory_raw.csv")
	require.NoError(t, os.WriteFile(input, []byte(rawCSV), 0644))

	answers := filepath.Join(dir, "answers.json")
	require.NoError(t, os.WriteFile(answers, []byte(`{"2": {"status": "no_update"}}`), 0644))

	cfg := strings.Join([]string{
		"input:",
		"  path: " + input,
		"output:",
		"  dir: " + filepath.Join(dir, "out"),
		"  yaml: inventory_clean.yaml",
		"database:",
		"  path: " + filepath.Join(dir, "runs.db"),
		"logging:",
		"  level: error",
		"enrichment:",
		"  enabled: true",
		"  provider: static",
		"  static_path: " + answers,
	}, "\n")
	configPath = filepath.Join(dir, "invnorm.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0644))
	return dir, configPath
}

func TestCmdRunWritesArtifacts(t *testing.T) {
	dir, configPath := writeWorkspace(t)

	require.NoError(t, cmdRun(context.Background(), []string{"-config", configPath}))

	out := filepath.Join(dir, "out")
	for _, name := range []string{"inventory_clean.csv", "anomalies.json", "prompts.md", "inventory_clean.yaml"} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	clean, err := os.ReadFile(filepath.Join(out, "inventory_clean.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(clean)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "row_id,source_id,ip,"))

	data, err := os.ReadFile(filepath.Join(out, "anomalies.json"))
	require.NoError(t, err)
	var anomalies []domain.AnomalyEntry
	require.NoError(t, json.Unmarshal(data, &anomalies))

	var badIP bool
	for _, a := range anomalies {
		if a.RowID == 2 && a.Field == domain.FieldIP && a.Severity == domain.SeverityError {
			badIP = true
		}
	}
	assert.True(t, badIP, "expected an ip error for row 2")

	audit, err := os.ReadFile(filepath.Join(out, "prompts.md"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "# Enrichment Audit Log")
	assert.Contains(t, string(audit), "static")
}

func TestCmdRunHeaderOnlyInput(t *testing.T) {
	dir, configPath := writeWorkspace(t)
	input := filepath.Join(dir, "inventory_raw.csv")
	require.NoError(t, os.WriteFile(input, []byte("ip,hostname,fqdn,owner,device_type,site,notes\n"), 0644))

	require.NoError(t, cmdRun(context.Background(), []string{"-config", configPath}))

	out := filepath.Join(dir, "out")
	clean, err := os.ReadFile(filepath.Join(out, "inventory_clean.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(clean)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "row_id,"))

	anomalies, err := os.ReadFile(filepath.Join(out, "anomalies.json"))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(anomalies))

	audit, err := os.ReadFile(filepath.Join(out, "prompts.md"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "- Attempts: 0")
}

func TestCmdRunsListsHistory(t *testing.T) {
	_, configPath := writeWorkspace(t)
	ctx := context.Background()

	require.NoError(t, cmdRun(ctx, []string{"-config", configPath}))
	require.NoError(t, cmdRun(ctx, []string{"-config", configPath}))

	var buf bytes.Buffer
	require.NoError(t, cmdRuns(ctx, []string{"-config", configPath, "-n", "5"}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// header, separator, two runs
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "status")
	assert.Contains(t, lines[2], string(domain.RunCompleted))
}

func TestCmdRunsWithoutDatabase(t *testing.T) {
	_, configPath := writeWorkspace(t)

	var buf bytes.Buffer
	err := cmdRuns(context.Background(), []string{"-config", configPath, "-db", "none"}, &buf)
	assert.ErrorContains(t, err, "disabled")
}

func TestCmdCheck(t *testing.T) {
	dir, configPath := writeWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, cmdCheck(context.Background(), []string{"-config", configPath}, &buf))
	assert.Contains(t, buf.String(), "Enrichment: static")
	assert.Contains(t, buf.String(), "Input OK: 2 rows (0 unparseable)")

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("ip,hostname\n10.0.0.1,a\n"), 0644))
	err := cmdCheck(context.Background(), []string{"-config", configPath, "-input", bad}, &buf)
	assert.Error(t, err)
}

func TestCmdCheckSingleRecord(t *testing.T) {
	_, configPath := writeWorkspace(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, cmdCheck(ctx, []string{
		"-config", configPath, "-enrich", "false",
		"ip=10.0.0.5", "hostname=WEB-01", "device_type=srv", "site=  DC1 ",
	}, &buf))

	out := buf.String()
	assert.Contains(t, out, "reverse_ptr: 5.0.0.10.in-addr.arpa")
	assert.Contains(t, out, "subnet_cidr: 10.0.0.0/8")
	assert.Contains(t, out, "hostname: web-01")
	assert.Contains(t, out, "device_type: server")
	assert.Contains(t, out, "site: DC1")

	buf.Reset()
	require.NoError(t, cmdCheck(ctx, []string{"-config", configPath, "-enrich", "false", "ip=10.0.0.300"}, &buf))
	assert.Contains(t, buf.String(), "ip: null")
	assert.Contains(t, buf.String(), "| error")

	err := cmdCheck(ctx, []string{"-config", configPath, "not-a-pair"}, &buf)
	assert.ErrorContains(t, err, "field=value")

	buf.Reset()
	require.NoError(t, cmdCheck(ctx, []string{"-config", configPath, "-enrich", "false", "-format", "json", "ip=192.168.1.20"}, &buf))
	assert.Contains(t, buf.String(), `"subnet_cidr": "192.168.1.0/24"`)

	err = cmdCheck(ctx, []string{"-config", configPath, "-format", "xml", "ip=192.168.1.20"}, &buf)
	assert.ErrorContains(t, err, "unknown record format")
}

func TestFlagOverrides(t *testing.T) {
	_, configPath := writeWorkspace(t)

	flags, err := parseFlags("run", []string{
		"-config", configPath,
		"-workers", "7",
		"-db", "none",
		"-enrich", "false",
		"-out", "elsewhere",
	}, nil)
	require.NoError(t, err)

	cfg, err := flags.load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Normalizer.Workers)
	assert.Empty(t, cfg.Database.Path)
	assert.False(t, cfg.Enrichment.Enabled)
	assert.Equal(t, "elsewhere", cfg.Output.Dir)

	flags, err = parseFlags("run", []string{"-config", configPath, "-enrich", "maybe"}, nil)
	require.NoError(t, err)
	_, err = flags.load()
	assert.Error(t, err)
}

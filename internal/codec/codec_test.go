package codec

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"invnorm/internal/domain"
)

const rawHeader = "id,ip,hostname,fqdn,owner,device_type,site,notes,rack\n"

func TestCSVCodec_Parse(t *testing.T) {
	t.Run("maps columns and extras", func(t *testing.T) {
		input := rawHeader +
			"a-1,10.0.1.5,web-01,web-01.corp.example.com,Priya (platform),server,DC1,primary,R4\n" +
			",192.168.1.300,,,,,,,\n"

		batch, err := NewCSVCodec().Parse(strings.NewReader(input), "inline")
		require.NoError(t, err)
		assert.Equal(t, "inline", batch.Source)
		require.Len(t, batch.Records, 2)
		assert.Empty(t, batch.Rejected)

		first := batch.Records[0]
		assert.Equal(t, 1, first.RowID)
		assert.Equal(t, "a-1", first.SourceID)
		assert.Equal(t, "10.0.1.5", first.Get(domain.FieldIP))
		assert.Equal(t, "Priya (platform)", first.Get(domain.FieldOwner))
		assert.Equal(t, map[string]string{"rack": "R4"}, first.Extra)

		second := batch.Records[1]
		assert.Equal(t, 2, second.RowID)
		assert.Empty(t, second.SourceID)
		assert.Equal(t, "192.168.1.300", second.Get(domain.FieldIP))
		assert.Nil(t, second.Extra)
	})

	t.Run("strips BOM and resolves aliases", func(t *testing.T) {
		input := "\ufeffIP Address,Host,DNS Name,Contact,Type,Location,Comments,MAC Address\n" +
			"10.0.0.1,gw,gw.example.com,ops,router,HQ,edge,AA-BB-CC-DD-EE-FF\n"

		batch, err := NewCSVCodec().Parse(strings.NewReader(input), "aliases")
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		rec := batch.Records[0]
		assert.Equal(t, "10.0.0.1", rec.Get(domain.FieldIP))
		assert.Equal(t, "gw", rec.Get(domain.FieldHostname))
		assert.Equal(t, "gw.example.com", rec.Get(domain.FieldFQDN))
		assert.Equal(t, "router", rec.Get(domain.FieldDeviceType))
		assert.Equal(t, "HQ", rec.Get(domain.FieldSite))
		assert.Equal(t, "edge", rec.Get(domain.FieldNotes))
		assert.Equal(t, "AA-BB-CC-DD-EE-FF", rec.Get(domain.FieldMAC))
	})

	t.Run("first non-empty alias wins", func(t *testing.T) {
		input := "ip,hostname,fqdn,owner,device_type,type,site,notes\n" +
			"10.0.0.1,h,,,,switch,,\n"

		batch, err := NewCSVCodec().Parse(strings.NewReader(input), "")
		require.NoError(t, err)
		assert.Equal(t, "switch", batch.Records[0].Get(domain.FieldDeviceType))
	})

	t.Run("unparseable rows are rejected and numbering continues", func(t *testing.T) {
		input := rawHeader +
			"1,10.0.0.1,a,,,,,,\n" +
			"2,10.0.0.2,b\n" +
			"3,10.0.0.3,c\"d,,,,,,\n" +
			"4,10.0.0.4,d,,,,,,\n"

		batch, err := NewCSVCodec().Parse(strings.NewReader(input), "")
		require.NoError(t, err)
		assert.Equal(t, 4, batch.Rows())
		require.Len(t, batch.Records, 2)
		assert.Equal(t, 1, batch.Records[0].RowID)
		assert.Equal(t, 4, batch.Records[1].RowID)

		require.Len(t, batch.Rejected, 2)
		for i, want := range []int{2, 3} {
			a := batch.Rejected[i]
			assert.Equal(t, want, a.RowID)
			assert.Equal(t, domain.FieldRow, a.Field)
			assert.Equal(t, domain.KindRowUnparseable, a.Kind)
			assert.Equal(t, domain.SeverityError, a.Severity)
		}
	})

	t.Run("missing header is fatal", func(t *testing.T) {
		_, err := NewCSVCodec().Parse(strings.NewReader("ip,hostname,owner\n1.2.3.4,a,b\n"), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingHeader)
		assert.Contains(t, err.Error(), "fqdn")
		assert.Contains(t, err.Error(), "device_type")
	})

	t.Run("empty input is fatal", func(t *testing.T) {
		_, err := NewCSVCodec().Parse(strings.NewReader(""), "")
		assert.ErrorIs(t, err, ErrMissingHeader)
	})
}

func sampleRecord() *domain.NormalizedRecord {
	rec := domain.NewNormalizedRecord(3)
	rec.SourceID = "x-3"
	rec.IP = domain.StringPtr("10.0.1.5")
	v := 4
	rec.IPVersion = &v
	rec.SubnetCIDR = domain.StringPtr("10.0.0.0/8")
	rec.ReversePTR = domain.StringPtr("5.1.0.10.in-addr.arpa")
	rec.Hostname = domain.StringPtr("web-01")
	rec.OwnerTeam = domain.StringPtr("platform")
	rec.SetSource(domain.FieldOwnerTeam, domain.SourceRule)
	rec.DeviceType = domain.DeviceTypeServer
	rec.DeviceTypeConfidence = 1
	rec.Notes = "has, comma"
	rec.Steps = []string{"ip_valid", "hostname_valid"}
	rec.Extra = map[string]string{"rack": "R4", "bay": "2"}
	return rec
}

func TestCSVCodec_ExportRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVCodec().ExportRecords([]*domain.NormalizedRecord{sampleRecord()}, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CleanColumns, rows[0])

	got := make(map[string]string)
	for i, col := range CleanColumns {
		got[col] = rows[1][i]
	}
	assert.Equal(t, "3", got["row_id"])
	assert.Equal(t, "x-3", got["source_id"])
	assert.Equal(t, "4", got["ip_version"])
	assert.Equal(t, "", got["mac"])
	assert.Equal(t, "false", got["fqdn_consistent"])
	assert.Equal(t, "server", got["device_type"])
	assert.Equal(t, "1.00", got["device_type_confidence"])
	assert.Equal(t, "has, comma", got["notes"])
	assert.Equal(t, "ip_valid|hostname_valid", got["normalization_steps"])
	assert.Equal(t, "bay=2; rack=R4", got["extra"])
	assert.Contains(t, got["source"], "owner_team=rule")
	assert.Contains(t, got["source"], "device_type=unresolved")
}

func TestJSONCodec_Anomalies(t *testing.T) {
	c := NewJSONCodec()

	var empty bytes.Buffer
	require.NoError(t, c.ExportAnomalies(nil, &empty))
	assert.Equal(t, "[]\n", empty.String())

	in := []domain.AnomalyEntry{
		domain.NewAnomaly(1, domain.FieldIP, domain.SeverityError, domain.KindFieldInvalid, "octet out of range", "fix it", "10.0.0.300"),
	}
	var buf bytes.Buffer
	require.NoError(t, c.ExportAnomalies(in, &buf))
	assert.Contains(t, buf.String(), `"severity": "error"`)
	assert.Contains(t, buf.String(), `"kind": "FieldInvalid"`)

	var out []domain.AnomalyEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, in, out)
}

func TestYAMLCodec_Records(t *testing.T) {
	c := NewYAMLCodec()
	var buf bytes.Buffer
	require.NoError(t, c.ExportRecords([]*domain.NormalizedRecord{sampleRecord()}, &buf))
	assert.Contains(t, buf.String(), "records:")
	assert.Contains(t, buf.String(), "mac: null")

	var doc yamlDocument
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	out := doc.Records
	require.Len(t, out, 1)
	assert.Equal(t, "web-01", domain.Deref(out[0].Hostname))
	assert.Nil(t, out[0].MAC)
	assert.Equal(t, domain.DeviceTypeServer, out[0].DeviceType)
}

func TestAuditWriter(t *testing.T) {
	entries := []domain.AuditEntry{
		{
			RowID:           4,
			Provider:        "static",
			AmbiguousFields: []string{domain.FieldDeviceType},
			Glimpse:         map[string]string{"notes": "ラック A3", "ip": "10.0.0.4"},
			AllowedTypes:    []string{"router", "server"},
			Temperature:     0.1,
			Instruction:     domain.ConservativeFillInstruction,
			Outcome:         domain.EnrichmentOK,
			Applied:         map[string]string{"device_type": "server"},
			AttemptedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			RowID:       9,
			Provider:    "static",
			Outcome:     domain.EnrichmentNoUpdate,
			Reason:      "no static answer for row 9",
			Instruction: domain.ConservativeFillInstruction,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewAuditWriter(AuditMeta{Provider: "static", Temperature: 0.1}).Write(entries, &buf))
	out := buf.String()

	assert.Contains(t, out, "# Enrichment Audit Log")
	assert.Contains(t, out, "- Attempts: 2")
	assert.Contains(t, out, "## 1. Row 4")
	assert.Contains(t, out, "## 2. Row 9")
	assert.Contains(t, out, "Outcome: ok")
	assert.Contains(t, out, "Outcome: no_update")
	assert.Contains(t, out, "- Ambiguous fields: none")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, domain.ConservativeFillInstruction)

	// Wide runes are padded by display width
	assert.Contains(t, out, "| notes | ラック A3 |")
	assert.Contains(t, out, "| ip    | 10.0.0.4  |")
}

func TestRenderTable(t *testing.T) {
	lines := RenderTable([][]string{{"a", "bb"}, {"ccc", "d"}})
	assert.Equal(t, []string{
		"| a   | bb  |",
		"| --- | --- |",
		"| ccc | d   |",
	}, lines)
	assert.Nil(t, RenderTable(nil))
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths := ArtifactPaths{
		CleanCSV:  filepath.Join(dir, "out", "inventory_clean.csv"),
		Anomalies: filepath.Join(dir, "out", "anomalies.json"),
		AuditLog:  filepath.Join(dir, "out", "prompts.md"),
	}

	err := WriteArtifacts(paths, Artifacts{
		Records:   []*domain.NormalizedRecord{sampleRecord()},
		AuditMeta: AuditMeta{Provider: "none"},
	})
	require.NoError(t, err)

	for _, p := range []string{paths.CleanCSV, paths.Anomalies, paths.AuditLog} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size())
	}
	_, err = os.Stat(filepath.Join(dir, "out", "inventory_clean.yaml"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temporary files left behind")
}

func TestWriteArtifactsRecordCopies(t *testing.T) {
	dir := t.TempDir()
	paths := ArtifactPaths{
		YAML: filepath.Join(dir, "inventory_clean.yaml"),
		JSON: filepath.Join(dir, "inventory_clean.json"),
	}
	require.NoError(t, WriteArtifacts(paths, Artifacts{Records: []*domain.NormalizedRecord{sampleRecord()}}))

	data, err := os.ReadFile(paths.JSON)
	require.NoError(t, err)
	var records []*domain.NormalizedRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "web-01", domain.Deref(records[0].Hostname))

	data, err = os.ReadFile(paths.YAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "records:")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExporterFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"csv", "csv"},
		{"json", "json"},
		{"yaml", "yaml"},
		{"yml", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := ExporterFor(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exp.Format())
		})
	}

	_, err := ExporterFor("xml")
	assert.Error(t, err)
}

func TestParseMaps(t *testing.T) {
	rows := []map[string]string{
		{"ip_address": "10.0.0.1", "host": "a", "rack": "R1"},
		{"ip": "10.0.0.2", "row_id": "src-2"},
	}

	batch, err := ParseMaps(rows, "api")
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, 1, batch.Records[0].RowID)
	assert.Equal(t, "10.0.0.1", batch.Records[0].Get(domain.FieldIP))
	assert.Equal(t, "a", batch.Records[0].Get(domain.FieldHostname))
	assert.Equal(t, map[string]string{"rack": "R1"}, batch.Records[0].Extra)

	assert.Equal(t, 2, batch.Records[1].RowID)
	assert.Equal(t, "src-2", batch.Records[1].SourceID)
	assert.Equal(t, "10.0.0.2", batch.Records[1].Get(domain.FieldIP))
	assert.Empty(t, batch.Records[1].Get(domain.FieldOwner))
}

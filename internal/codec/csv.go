package codec

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"invnorm/internal/domain"
)

// HeaderAliases maps each canonical field to the column names accepted for
// it, in priority order. Per row the first non-empty candidate wins.
var HeaderAliases = map[string][]string{
	domain.FieldIP:         {"ip", "ip_address", "address"},
	domain.FieldMAC:        {"mac", "mac_address", "ethernet"},
	domain.FieldHostname:   {"hostname", "host", "name"},
	domain.FieldFQDN:       {"fqdn", "dns_name"},
	domain.FieldOwner:      {"owner", "contact", "assigned_to"},
	domain.FieldDeviceType: {"device_type", "type"},
	domain.FieldSite:       {"site", "location", "dc", "datacenter"},
	domain.FieldNotes:      {"notes", "note", "comment", "comments", "description", "desc", "remarks", "memo"},
}

// idColumns carry the source's own row identifier
var idColumns = []string{"id", "row_id"}

// CleanColumns is the stable column order of the clean CSV
var CleanColumns = []string{
	"row_id",
	"source_id",
	"ip",
	"ip_version",
	"subnet_cidr",
	"reverse_ptr",
	"mac",
	"hostname",
	"fqdn",
	"fqdn_consistent",
	"owner_name",
	"owner_email",
	"owner_team",
	"device_type",
	"device_type_confidence",
	"site",
	"notes",
	"source",
	"normalization_steps",
	"extra",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVCodec reads raw inventory CSV and writes the clean CSV
type CSVCodec struct{}

// NewCSVCodec creates a new CSV codec
func NewCSVCodec() *CSVCodec {
	return &CSVCodec{}
}

// Format returns the codec format identifier
func (c *CSVCodec) Format() string {
	return "csv"
}

// normalizeHeader folds a column name to its lookup key
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, "-", "_")
}

// headerLayout resolves column positions once per file
type headerLayout struct {
	columns []string
	fields  map[string][]int // canonical field -> candidate column indexes
	ids     []int
	extra   []int
}

func newHeaderLayout(header []string, strict bool) (*headerLayout, error) {
	l := &headerLayout{
		columns: make([]string, len(header)),
		fields:  make(map[string][]int),
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		l.columns[i] = name
		if _, dup := index[name]; !dup && name != "" {
			index[name] = i
		}
	}

	used := make(map[int]bool)
	for field, aliases := range HeaderAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				l.fields[field] = append(l.fields[field], i)
				used[i] = true
			}
		}
	}
	for _, id := range idColumns {
		if i, ok := index[id]; ok {
			l.ids = append(l.ids, i)
			used[i] = true
		}
	}
	for i, name := range l.columns {
		if !used[i] && name != "" {
			l.extra = append(l.extra, i)
		}
	}

	if !strict {
		return l, nil
	}
	var missing []string
	for _, field := range domain.RequiredFields {
		if len(l.fields[field]) == 0 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
	}
	return l, nil
}

func (l *headerLayout) record(rowID int, row []string) domain.RawRecord {
	rec := domain.RawRecord{
		RowID:  rowID,
		Fields: make(map[string]string, len(l.fields)),
	}
	for field, candidates := range l.fields {
		for _, i := range candidates {
			if v := strings.TrimSpace(row[i]); v != "" {
				rec.Fields[field] = row[i]
				break
			}
		}
	}
	for _, i := range l.ids {
		if v := strings.TrimSpace(row[i]); v != "" {
			rec.SourceID = v
			break
		}
	}
	for _, i := range l.extra {
		if row[i] == "" {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[l.columns[i]] = row[i]
	}
	return rec
}

// Parse reads a raw inventory. Row ids are 1-based positions among the data
// rows, counting rows that could not be parsed.
func (c *CSVCodec) Parse(r io.Reader, source string) (*domain.Batch, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: input is empty", ErrMissingHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	layout, err := newHeaderLayout(header, true)
	if err != nil {
		return nil, err
	}

	batch := &domain.Batch{Source: source}
	rowID := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowID++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			batch.Rejected = append(batch.Rejected, unparseable(rowID,
				fmt.Sprintf("row could not be split into fields: %v", parseErr.Err),
				strings.Join(row, ",")))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowID, err)
		}

		if len(row) != len(header) {
			batch.Rejected = append(batch.Rejected, unparseable(rowID,
				fmt.Sprintf("row has %d fields, header has %d", len(row), len(header)),
				strings.Join(row, ",")))
			continue
		}

		batch.Records = append(batch.Records, layout.record(rowID, row))
	}

	return batch, nil
}

func unparseable(rowID int, reason, value string) domain.AnomalyEntry {
	return domain.NewAnomaly(rowID, domain.FieldRow, domain.SeverityError, domain.KindRowUnparseable,
		reason, "fix quoting or delimiter count on this line and re-run", value)
}

// ExportRecords writes the clean CSV with CleanColumns as header
func (c *CSVCodec) ExportRecords(records []*domain.NormalizedRecord, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CleanColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(cleanRow(rec)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rec.RowID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cleanRow(rec *domain.NormalizedRecord) []string {
	ipVersion := ""
	if rec.IPVersion != nil {
		ipVersion = strconv.Itoa(*rec.IPVersion)
	}
	return []string{
		strconv.Itoa(rec.RowID),
		rec.SourceID,
		domain.Deref(rec.IP),
		ipVersion,
		domain.Deref(rec.SubnetCIDR),
		domain.Deref(rec.ReversePTR),
		domain.Deref(rec.MAC),
		domain.Deref(rec.Hostname),
		domain.Deref(rec.FQDN),
		strconv.FormatBool(rec.FQDNConsistent),
		domain.Deref(rec.OwnerName),
		domain.Deref(rec.OwnerEmail),
		domain.Deref(rec.OwnerTeam),
		rec.DeviceType.String(),
		strconv.FormatFloat(rec.DeviceTypeConfidence, 'f', 2, 64),
		domain.Deref(rec.Site),
		rec.Notes,
		formatSources(rec.Source),
		strings.Join(rec.Steps, "|"),
		formatPairs(rec.Extra),
	}
}

func formatSources(src map[string]domain.FieldSource) string {
	pairs := make(map[string]string, len(src))
	for k, v := range src {
		pairs[k] = string(v)
	}
	return formatPairs(pairs)
}

// formatPairs renders a map as "k=v; k=v" in key order
func formatPairs(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "; ")
}

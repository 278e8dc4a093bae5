package codec

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"invnorm/internal/domain"
)

// AuditMeta is the header information of the audit log
type AuditMeta struct {
	Provider    string
	Temperature float64
	GeneratedAt time.Time
}

// AuditWriter renders enrichment attempts as a readable markdown log. It
// records context and outcome only, never raw prompt or response bytes.
type AuditWriter struct {
	meta AuditMeta
}

// NewAuditWriter creates an audit writer
func NewAuditWriter(meta AuditMeta) *AuditWriter {
	return &AuditWriter{meta: meta}
}

// Format returns the codec format identifier
func (a *AuditWriter) Format() string {
	return "markdown"
}

// Write renders the header followed by one numbered section per entry
func (a *AuditWriter) Write(entries []domain.AuditEntry, w io.Writer) error {
	bw := bufio.NewWriter(w)

	provider := a.meta.Provider
	if provider == "" {
		provider = "none"
	}
	fmt.Fprintf(bw, "# Enrichment Audit Log\n\n")
	if !a.meta.GeneratedAt.IsZero() {
		fmt.Fprintf(bw, "- Generated: %s\n", a.meta.GeneratedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(bw, "- Provider: %s\n", provider)
	fmt.Fprintf(bw, "- Temperature: %.2f\n", a.meta.Temperature)
	fmt.Fprintf(bw, "- Attempts: %d\n\n", len(entries))
	fmt.Fprintf(bw, "This log records the context and outcome of each attempt. Raw prompts and responses are not stored.\n")

	for i, e := range entries {
		fmt.Fprintf(bw, "\n## %d. Row %d\n\n", i+1, e.RowID)
		if !e.AttemptedAt.IsZero() {
			fmt.Fprintf(bw, "Timestamp: %s (%s)\n\n", e.AttemptedAt.UTC().Format(time.RFC3339), e.Duration.Round(time.Millisecond))
		}

		fmt.Fprintf(bw, "Context:\n")
		fmt.Fprintf(bw, "- Provider: %s\n", e.Provider)
		fmt.Fprintf(bw, "- Ambiguous fields: %s\n", joinOrNone(e.AmbiguousFields))
		if len(e.Glimpse) > 0 {
			fmt.Fprintf(bw, "- Row glimpse:\n\n")
			for _, line := range RenderTable(pairRows(e.Glimpse)) {
				fmt.Fprintf(bw, "  %s\n", line)
			}
			fmt.Fprintf(bw, "\n")
		}

		fmt.Fprintf(bw, "Instruction:\n- %s\n\n", e.Instruction)

		fmt.Fprintf(bw, "Constraints:\n")
		fmt.Fprintf(bw, "- Temperature: %.2f\n", e.Temperature)
		fmt.Fprintf(bw, "- Allowed device types: %s\n", joinOrNone(e.AllowedTypes))
		fmt.Fprintf(bw, "- Output: single JSON object validated against the answer schema\n\n")

		fmt.Fprintf(bw, "Outcome: %s\n", e.Outcome)
		if e.Reason != "" {
			fmt.Fprintf(bw, "- Reason: %s\n", domain.Clip(e.Reason, 220))
		}
		if len(e.Applied) > 0 {
			fmt.Fprintf(bw, "- Applied:\n\n")
			for _, line := range RenderTable(pairRows(e.Applied)) {
				fmt.Fprintf(bw, "  %s\n", line)
			}
		}
	}

	return bw.Flush()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// pairRows turns a map into a sorted two-column table with header
func pairRows(m map[string]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := [][]string{{"field", "value"}}
	for _, k := range keys {
		rows = append(rows, []string{k, escapeCell(m[k])})
	}
	return rows
}

func escapeCell(s string) string {
	return strings.ReplaceAll(domain.Clip(s, 200), "|", "\\|")
}

// RenderTable renders rows as a markdown table padded by display width. The
// first row is the header.
func RenderTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	colCount := 0
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	colWidths := make([]int, colCount)
	for _, row := range rows {
		for i, cell := range row {
			if width := runewidth.StringWidth(cell); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	render := func(row []string) string {
		var sb strings.Builder
		sb.WriteString("|")
		for j := 0; j < colCount; j++ {
			content := ""
			if j < len(row) {
				content = row[j]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, colWidths[j]))
			sb.WriteString(" |")
		}
		return sb.String()
	}

	result := make([]string, 0, len(rows)+1)
	result = append(result, render(rows[0]))
	sep := make([]string, colCount)
	for j := range sep {
		sep[j] = strings.Repeat("-", colWidths[j])
	}
	result = append(result, render(sep))
	for _, row := range rows[1:] {
		result = append(result, render(row))
	}
	return result
}

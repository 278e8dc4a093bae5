package codec

import (
	"sort"

	"invnorm/internal/domain"
)

// ParseMaps builds a batch from key/value rows such as a decoded JSON
// request. Keys go through the same alias resolution as CSV headers, but
// absent fields are tolerated and simply read as empty.
func ParseMaps(rows []map[string]string, source string) (*domain.Batch, error) {
	keySet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keySet))
	for k := range keySet {
		header = append(header, k)
	}
	sort.Strings(header)

	layout, err := newHeaderLayout(header, false)
	if err != nil {
		return nil, err
	}

	batch := &domain.Batch{Source: source}
	for i, row := range rows {
		values := make([]string, len(header))
		for j, k := range header {
			values[j] = row[k]
		}
		batch.Records = append(batch.Records, layout.record(i+1, values))
	}
	return batch, nil
}

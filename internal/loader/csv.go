package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// LoadCSV emits one document per data row as "column: value" lines.
// The first record is the header; Loc.Line is the 1-based data row.
func LoadCSV(_ context.Context, path string) ([]document.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	docs := make([]document.Document, 0, len(records)-1)
	for i, row := range records[1:] {
		lines := make([]string, 0, len(row))
		for j, v := range row {
			col := fmt.Sprintf("column%d", j)
			if j < len(header) {
				col = strings.TrimSpace(header[j])
			}
			lines = append(lines, col+": "+strings.TrimSpace(v))
		}
		docs = append(docs, document.Document{
			PageContent: strings.Join(lines, "\n"),
			Metadata: document.Metadata{
				Source: path,
				Loc:    document.Location{Line: i + 1},
			},
		})
	}
	return docs, nil
}

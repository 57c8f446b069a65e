package ingest

import (
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// Record pairs a source row with the response validated from it.
type Record struct {
	Raw      models.RawRecord
	Response models.NormalizedResponse
}

// Normalized is the outcome of reading one upload. Identifiers are left zero;
// the writer assigns them when it persists the records.
type Normalized struct {
	Table      *Table
	Mapping    HeaderMapping
	Records    []Record
	RowErrors  []*RowError
	Collisions map[string][]string
}

// Normalize reads an upload and validates every data row.
func Normalize(filename string, data []byte) (*Normalized, error) {
	table, err := ReadTable(filename, data)
	if err != nil {
		return nil, err
	}

	mapping := MapHeaders(table.Headers)
	out := &Normalized{
		Table:      table,
		Mapping:    mapping,
		Records:    make([]Record, 0, len(table.Rows)),
		Collisions: mapping.Collisions(),
	}

	for i, values := range table.Rows {
		rowNum := i + 1
		resp, rowErr := ValidateRow(rowNum, mapping.Fields(values))
		if rowErr != nil {
			out.RowErrors = append(out.RowErrors, rowErr)
			continue
		}
		out.Records = append(out.Records, Record{
			Raw: models.RawRecord{
				SourceFilename: filename,
				RowNumber:      rowNum,
				FileType:       table.FileType,
				Encoding:       table.Encoding,
				Delimiter:      table.Delimiter,
				Payload:        mapping.Payload(values),
			},
			Response: *resp,
		})
	}
	return out, nil
}

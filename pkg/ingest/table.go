package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// Table is a decoded upload: one header row followed by data rows.
type Table struct {
	FileType  models.FileType
	Encoding  string
	Delimiter string
	Headers   []string
	Rows      [][]string
}

// ReadTable detects the file type and reads data into a Table. It fails with
// apperrors.ErrUnreadableFile when the bytes cannot be decoded or parsed, or
// when there are no data rows.
func ReadTable(filename string, data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", apperrors.ErrUnreadableFile, filename)
	}

	var (
		table *Table
		err   error
	)
	switch fileType := DetectFileType(filename, data); fileType {
	case models.FileTypeSpreadsheet:
		table, err = readSpreadsheet(data)
	case models.FileTypeLegacySpreadsheet:
		return nil, fmt.Errorf("%w: %s is a legacy .xls workbook; save it as .xlsx or .csv", apperrors.ErrUnreadableFile, filename)
	default:
		table, err = readDelimited(data)
	}
	if err != nil {
		return nil, err
	}

	table.Rows = dropBlankRows(table.Rows)
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no data rows", apperrors.ErrUnreadableFile, filename)
	}
	return table, nil
}

func readDelimited(data []byte) (*Table, error) {
	text, encodingName, ok := DecodeText(data)
	if !ok {
		return nil, fmt.Errorf("%w: no supported text encoding decodes the file", apperrors.ErrUnreadableFile)
	}

	delim := DetectDelimiter(text)

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse delimited text: %v", apperrors.ErrUnreadableFile, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", apperrors.ErrUnreadableFile)
	}

	return &Table{
		FileType:  models.FileTypeDelimited,
		Encoding:  encodingName,
		Delimiter: string(delim),
		Headers:   records[0],
		Rows:      records[1:],
	}, nil
}

// readSpreadsheet reads the first worksheet. Cells are read raw so date cells
// arrive as serial numbers and go through the same date parser as text.
func readSpreadsheet(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", apperrors.ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrUnreadableFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", apperrors.ErrUnreadableFile, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet %q is empty", apperrors.ErrUnreadableFile, sheets[0])
	}

	return &Table{
		FileType: models.FileTypeSpreadsheet,
		Encoding: "utf-8",
		Headers:  rows[0],
		Rows:     rows[1:],
	}, nil
}

func dropBlankRows(rows [][]string) [][]string {
	kept := rows[:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				kept = append(kept, row)
				break
			}
		}
	}
	return kept
}

// IsUnreadable reports whether err marks an upload that could not be read at all.
func IsUnreadable(err error) bool {
	return errors.Is(err, apperrors.ErrUnreadableFile)
}

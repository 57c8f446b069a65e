// Package ingest turns uploaded survey files into canonical response records.
// Everything here is pure: bytes in, typed rows and row-level errors out.
package ingest

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/ekaya-inc/nps-engine/pkg/models"
)

const delimiterSampleSize = 4096

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// DetectFileType decides how to read an upload: extension first, then magic bytes.
// Anything unrecognized is treated as delimited text.
func DetectFileType(filename string, data []byte) models.FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return models.FileTypeSpreadsheet
	case ".xls":
		return models.FileTypeLegacySpreadsheet
	case ".csv", ".txt", ".tsv":
		return models.FileTypeDelimited
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return models.FileTypeSpreadsheet
	case bytes.HasPrefix(data, oleMagic):
		return models.FileTypeLegacySpreadsheet
	default:
		return models.FileTypeDelimited
	}
}

type textEncoding struct {
	name string
	enc  encoding.Encoding // nil for UTF-8
}

// Tried in order. Valid UTF-8 always wins; among the 8-bit candidates the
// first clean decode wins and ISO-8859-1, which maps every byte, is the
// catch-all.
var textEncodings = []textEncoding{
	{name: "utf-8"},
	{name: "windows-1252", enc: charmap.Windows1252},
	{name: "iso-8859-15", enc: charmap.ISO8859_15},
	{name: "iso-8859-1", enc: charmap.ISO8859_1},
}

// DecodeText returns data as a UTF-8 string and the name of the encoding that
// produced it. ok is false only when no candidate decodes without error.
func DecodeText(data []byte) (text string, encodingName string, ok bool) {
	last := len(textEncodings) - 1
	for i, candidate := range textEncodings {
		if candidate.enc == nil {
			trimmed := bytes.TrimPrefix(data, utf8BOM)
			if utf8.Valid(trimmed) {
				return string(trimmed), candidate.name, true
			}
			continue
		}

		decoded, err := candidate.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		s := string(decoded)
		if i == last || isCleanText(s) {
			return s, candidate.name, true
		}
	}
	return "", "", false
}

// isCleanText picks between 8-bit candidates. Replacement runes mark bytes
// the charmap leaves undefined, and C1 controls never come out of a correct
// decode of real text.
func isCleanText(s string) bool {
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			return false
		case r >= 0x80 && r <= 0x9F:
			return false
		}
	}
	return true
}

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// DetectDelimiter picks the field separator from the start of the text.
// A candidate that splits every sampled line into the same number of fields
// beats one that does not; ties go to the higher per-line count, then to the
// candidate order. Falls back to comma.
func DetectDelimiter(text string) rune {
	sample := text
	truncated := false
	if len(sample) > delimiterSampleSize {
		sample = sample[:delimiterSampleSize]
		truncated = true
	}

	lines := splitSampleLines(sample, truncated)
	if len(lines) == 0 {
		return ','
	}

	best := ','
	bestConsistent := false
	bestCount := 0
	for _, delim := range delimiterCandidates {
		counts := make([]int, len(lines))
		for i, line := range lines {
			counts[i] = countOutsideQuotes(line, delim)
		}
		if counts[0] == 0 {
			continue
		}

		consistent := true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
				break
			}
		}

		if (consistent && !bestConsistent) ||
			(consistent == bestConsistent && counts[0] > bestCount) {
			best = delim
			bestConsistent = consistent
			bestCount = counts[0]
		}
	}
	return best
}

// splitSampleLines returns the non-blank lines of the sample, dropping the last
// one when the sample cut it short.
func splitSampleLines(sample string, truncated bool) []string {
	raw := strings.Split(strings.ReplaceAll(sample, "\r\n", "\n"), "\n")
	if truncated && len(raw) > 1 {
		raw = raw[:len(raw)-1]
	}

	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func countOutsideQuotes(line string, delim rune) int {
	inQuotes := false
	n := 0
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}

package drivers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"insight-gateway/internal/model"
)

// CSVOptions holds CSV reading configuration
type CSVOptions struct {
	Delimiter  rune     // Field delimiter, detected from the header line when zero
	NullTokens []string // Extra values to treat as null, rewritten to ""
}

var candidateDelimiters = []rune{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV parses CSV bytes into a raw table. The first record is the header;
// an empty input yields a table with a nil header. Ragged rows are kept as-is
// and left for the schema validator to judge.
func ReadCSV(data []byte, opts CSVOptions) (*model.RawTable, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = DetectDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	nulls := make(map[string]struct{}, len(opts.NullTokens))
	for _, t := range opts.NullTokens {
		nulls[t] = struct{}{}
	}

	raw := &model.RawTable{Records: [][]string{}}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if raw.Header == nil {
			raw.Header = record
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		if len(nulls) > 0 {
			for i, cell := range record {
				if _, ok := nulls[strings.TrimSpace(cell)]; ok {
					record[i] = ""
				}
			}
		}
		raw.Records = append(raw.Records, record)
	}
	return raw, nil
}

// DetectDelimiter picks the candidate delimiter occurring most often in the
// first line, defaulting to a comma.
func DetectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

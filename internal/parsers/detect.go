package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"statement-engine/pkg/errors"
)

const (
	// SniffBytes bounds the prefix decoded for format detection
	SniffBytes = 64 * 1024
	// SniffLines is the number of non-empty lines inspected
	SniffLines = 20
)

// DelimiterPreference lists delimiter candidates in tie-break order
var DelimiterPreference = []rune{';', ',', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format describes the physical layout of a statement export
type Format struct {
	Encoding  string   `json:"encoding"`
	Delimiter rune     `json:"delimiter"`
	SkipLines int      `json:"skipLines"`
	Headers   []string `json:"headers"`
}

// DelimiterName renders the delimiter for humans
func (f *Format) DelimiterName() string {
	switch f.Delimiter {
	case '\t':
		return "tab"
	case 0:
		return "none"
	default:
		return string(f.Delimiter)
	}
}

// DetectEncoding guesses the text encoding of data from its byte order mark
// and UTF-8 validity. Anything that is not valid UTF-8 is assumed to be
// windows-1252, the usual encoding of legacy bank exports.
func DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return "utf-8-sig"
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return "utf-16"
	}

	sample := data
	if len(sample) > SniffBytes {
		sample = sample[:SniffBytes]
		// do not penalize a rune cut by the prefix boundary
		for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if utf8.Valid(sample) {
		return "utf-8"
	}
	return "windows-1252"
}

func lookupEncoding(name string) (encoding.Encoding, bool) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-") {
	case "", "utf-8", "utf8", "utf-8-sig":
		return nil, true
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, true
	case "latin-9", "iso-8859-15", "iso8859-15":
		return charmap.ISO8859_15, true
	case "cp1252", "windows-1252":
		return charmap.Windows1252, true
	case "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), true
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), true
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), true
	default:
		return nil, false
	}
}

func unsupportedEncoding(name string) error {
	return errors.ParseError(errors.CodeEncodingError, "input", 0, "", name,
		fmt.Errorf("unsupported encoding %q", name))
}

// Decode converts data in the named encoding to a UTF-8 string. A UTF-8 byte
// order mark is dropped and invalid UTF-8 sequences are replaced.
func Decode(data []byte, encodingName string) (string, error) {
	enc, ok := lookupEncoding(encodingName)
	if !ok {
		return "", unsupportedEncoding(encodingName)
	}

	if enc == nil {
		data = bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(data) {
			return string(data), nil
		}
		return strings.ToValidUTF8(string(data), "\ufffd"), nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.ParseError(errors.CodeEncodingError, "input", 0, "", encodingName, err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

// DetectDelimiter infers the field delimiter of a CSV byte stream. Each
// candidate is counted per line outside double quotes over the first
// SniffLines non-empty lines of a bounded prefix; the candidate whose most
// common non-zero count is shared by the most lines wins. Ties, including a
// stream where no candidate occurs, resolve in DelimiterPreference order.
func DetectDelimiter(data []byte, encodingName string) rune {
	return detectDelimiterText(sniffText(data, encodingName))
}

// DetectFormat infers encoding (when encodingName is empty), delimiter,
// preamble length and header row of a statement export
func DetectFormat(data []byte, encodingName string) (*Format, error) {
	if encodingName == "" {
		encodingName = DetectEncoding(data)
	}
	if _, ok := lookupEncoding(encodingName); !ok {
		return nil, unsupportedEncoding(encodingName)
	}

	text := sniffText(data, encodingName)
	format := &Format{Encoding: encodingName, Delimiter: detectDelimiterText(text)}
	format.SkipLines, format.Headers = locateHeader(text, format.Delimiter)
	return format, nil
}

func sniffText(data []byte, encodingName string) string {
	prefix := data
	if len(prefix) > SniffBytes {
		prefix = prefix[:SniffBytes]
	}
	text, err := Decode(prefix, encodingName)
	if err != nil {
		return strings.ToValidUTF8(string(bytes.TrimPrefix(prefix, utf8BOM)), "")
	}
	return text
}

func sampleLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == SniffLines {
			break
		}
	}
	return lines
}

func detectDelimiterText(text string) rune {
	lines := sampleLines(text)

	best := DelimiterPreference[0]
	bestScore := 0
	for _, candidate := range DelimiterPreference {
		counts := make([]int, len(lines))
		for i, line := range lines {
			counts[i] = countOutsideQuotes(line, candidate)
		}
		_, agreement := modalCount(counts)
		if agreement > bestScore {
			best, bestScore = candidate, agreement
		}
	}
	return best
}

// countOutsideQuotes counts delim in line, ignoring double-quoted sections
func countOutsideQuotes(line string, delim rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			n++
		}
	}
	return n
}

// modalCount returns the most common non-zero value of counts and how many
// entries share it. Equal frequencies prefer the larger value.
func modalCount(counts []int) (value, agreement int) {
	freq := make(map[int]int)
	for _, c := range counts {
		if c > 0 {
			freq[c]++
		}
	}
	for v, f := range freq {
		if f > agreement || (f == agreement && v > value) {
			value, agreement = v, f
		}
	}
	return value, agreement
}

// locateHeader finds the header row below any metadata preamble: the first
// line whose field count matches the dominant field count. It returns the
// number of physical lines before the header and the trimmed header cells.
func locateHeader(text string, delim rune) (int, []string) {
	lines := sampleLines(text)
	counts := make([]int, len(lines))
	for i, line := range lines {
		counts[i] = countOutsideQuotes(line, delim)
	}
	modal, _ := modalCount(counts)

	headerLine := ""
	for i, line := range lines {
		if counts[i] == modal {
			headerLine = line
			break
		}
	}
	if headerLine == "" {
		return 0, nil
	}

	skip := 0
	for _, raw := range strings.Split(text, "\n") {
		if strings.TrimRight(raw, "\r") == headerLine {
			break
		}
		skip++
	}

	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	cells, err := reader.Read()
	if err != nil {
		return skip, nil
	}
	return skip, cleanHeaders(cells)
}

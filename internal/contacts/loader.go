// Package contacts turns uploaded contact lists into normalized rows and maps their columns
// to canonical contact fields.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

// Delimiters are the separators auto-detection chooses from, in tie-break order.
var Delimiters = []rune{',', '\t', '|', ';'}

const sampleLines = 10

var whitespace = regexp.MustCompile(`\s+`)

// Row is one data row keyed by normalized header.
type Row struct {
	Line   int               `json:"line"`
	Values map[string]string `json:"values"`
}

// List is a parsed contact list.
type List struct {
	Headers   []string `json:"headers"`
	Rows      []Row    `json:"rows"`
	Delimiter string   `json:"delimiter"`
	Warnings  []string `json:"warnings,omitempty"`
}

func (l *List) HasHeader(h string) bool {
	for _, x := range l.Headers {
		if x == h {
			return true
		}
	}
	return false
}

// Load parses delimited text with a header row.
func Load(text string) (*List, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, appErrors.NewParseError("file is empty")
	}

	delim := DetectDelimiter(text)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = 0

	var records [][]string
	var lines []int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, appErrors.NewParseErrorAt(pe.Line, "malformed row", pe.Err)
			}
			return nil, appErrors.NewParseErrorAt(0, "read failed", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}

	list, err := build(records, lines)
	if err != nil {
		return nil, err
	}
	list.Delimiter = string(delim)
	return list, nil
}

// DetectDelimiter picks the candidate that splits the leading lines into the widest
// consistent column count. Comma wins when nothing splits.
func DetectDelimiter(text string) rune {
	sample := leadingLines(text, sampleLines)

	best, bestWidth := ',', 1
	for _, d := range Delimiters {
		r := csv.NewReader(strings.NewReader(sample))
		r.Comma = d
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		width, consistent := 0, true
		for {
			rec, err := r.Read()
			if err != nil {
				break
			}
			if width == 0 {
				width = len(rec)
				continue
			}
			if len(rec) != width {
				consistent = false
				break
			}
		}
		if consistent && width > bestWidth {
			best, bestWidth = d, width
		}
	}
	return best
}

func leadingLines(text string, n int) string {
	idx := 0
	for i := 0; i < n; i++ {
		next := strings.IndexByte(text[idx:], '\n')
		if next < 0 {
			return text
		}
		idx += next + 1
	}
	return text[:idx]
}

// NormalizeHeader trims, lowercases and replaces whitespace runs with underscores.
func NormalizeHeader(h string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_")
}

func build(records [][]string, lines []int) (*List, error) {
	if len(records) == 0 {
		return nil, appErrors.NewParseError("file is empty")
	}

	headers := make([]string, len(records[0]))
	seen := make(map[string]int, len(headers))
	for i, raw := range records[0] {
		h := NormalizeHeader(raw)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if prev, dup := seen[h]; dup {
			return nil, appErrors.NewParseErrorAt(lines[0],
				fmt.Sprintf("columns %d and %d both normalize to %q", prev+1, i+1, h), nil)
		}
		seen[h] = i
		headers[i] = h
	}

	list := &List{Headers: headers}
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if len(rec) != len(headers) {
			return nil, appErrors.NewParseErrorAt(lines[i+1],
				fmt.Sprintf("expected %d fields, found %d", len(headers), len(rec)), nil)
		}
		values := make(map[string]string, len(headers))
		for j, h := range headers {
			values[h] = strings.TrimSpace(rec[j])
		}
		list.Rows = append(list.Rows, Row{Line: lines[i+1], Values: values})
	}

	if len(list.Rows) == 0 {
		return nil, appErrors.NewParseError("file has no data rows")
	}

	if !hasEmailHeader(headers) {
		list.Warnings = append(list.Warnings,
			fmt.Sprintf("no email column detected; available headers: %s", strings.Join(headers, ", ")))
	}
	return list, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func hasEmailHeader(headers []string) bool {
	for _, h := range headers {
		if strings.Contains(h, "email") || strings.Contains(h, "mail") {
			return true
		}
	}
	return false
}

package contacts

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

// LoadWorkbook parses the first sheet of an xlsx workbook. The first row is the header.
func LoadWorkbook(r io.Reader) (*List, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, appErrors.NewParseErrorAt(0, "not a readable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, appErrors.NewParseError("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, appErrors.NewParseErrorAt(0, "read sheet "+sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, appErrors.NewParseError("file is empty")
	}

	// GetRows trims trailing empty cells, so pad every row to the header width.
	width := len(rows[0])
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
	}

	return build(rows, lines)
}

// LoadNamed parses data as a workbook when name has an .xlsx extension and as delimited
// text otherwise.
func LoadNamed(name string, data []byte) (*List, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return LoadWorkbook(bytes.NewReader(data))
	}
	return Load(string(data))
}

package contacts

import (
	"strings"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
)

// FieldMapping maps a canonical field to the source header it is read from.
type FieldMapping map[model.Field]string

// Validate checks that email is mapped and that every mapped header exists.
func (m FieldMapping) Validate(headers []string) error {
	if strings.TrimSpace(m[model.FieldEmail]) == "" {
		return appErrors.NewMappingError(string(model.FieldEmail), "required field is not mapped")
	}
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	for field, header := range m {
		if !field.IsValid() {
			return appErrors.NewMappingError(string(field), "unknown field")
		}
		if header != "" && !known[header] {
			return appErrors.NewMappingError(string(field), "column "+header+" is not in the file")
		}
	}
	return nil
}

// Resolve validates the mapping and builds one contact record per row.
func (m FieldMapping) Resolve(list *List) ([]model.ContactRecord, error) {
	if err := m.Validate(list.Headers); err != nil {
		return nil, err
	}

	out := make([]model.ContactRecord, 0, len(list.Rows))
	for _, row := range list.Rows {
		raw := make(map[string]string, len(row.Values))
		for k, v := range row.Values {
			raw[k] = v
		}
		out = append(out, model.ContactRecord{
			Line:           row.Line,
			Columns:        append([]string(nil), list.Headers...),
			Raw:            raw,
			Email:          m.lookup(row, model.FieldEmail),
			Name:           m.lookup(row, model.FieldName),
			Company:        m.lookup(row, model.FieldCompany),
			Role:           m.lookup(row, model.FieldRole),
			Industry:       m.lookup(row, model.FieldIndustry),
			AdditionalInfo: m.lookup(row, model.FieldAdditionalInfo),
		})
	}
	return out, nil
}

func (m FieldMapping) lookup(row Row, f model.Field) string {
	header, ok := m[f]
	if !ok || header == "" {
		return ""
	}
	return row.Values[header]
}

var suggestions = []struct {
	field model.Field
	hints []string
}{
	{model.FieldEmail, []string{"email", "mail"}},
	{model.FieldName, []string{"name"}},
	{model.FieldCompany, []string{"company", "organization", "organisation", "employer"}},
	{model.FieldRole, []string{"role", "title", "position"}},
	{model.FieldIndustry, []string{"industry", "sector"}},
	{model.FieldAdditionalInfo, []string{"additional_info", "notes", "info", "bio"}},
}

// Suggest proposes a mapping from header names. A header is used for at most one field.
func Suggest(headers []string) FieldMapping {
	m := FieldMapping{}
	used := map[string]bool{}
	for _, s := range suggestions {
		for _, hint := range s.hints {
			h := firstContaining(headers, hint, used)
			if h != "" {
				m[s.field] = h
				used[h] = true
				break
			}
		}
	}
	return m
}

func firstContaining(headers []string, hint string, used map[string]bool) string {
	for _, h := range headers {
		if h == hint && !used[h] {
			return h
		}
	}
	for _, h := range headers {
		if strings.Contains(h, hint) && !used[h] {
			return h
		}
	}
	return ""
}

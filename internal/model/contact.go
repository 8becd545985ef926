// internal/model/contact.go
package model

// Field is a canonical contact field a source column can be mapped to.
type Field string

const (
	FieldEmail          Field = "email"
	FieldName           Field = "name"
	FieldCompany        Field = "company"
	FieldRole           Field = "role"
	FieldIndustry       Field = "industry"
	FieldAdditionalInfo Field = "additional_info"
)

// CanonicalFields lists every mappable field in display order.
var CanonicalFields = []Field{
	FieldEmail,
	FieldName,
	FieldCompany,
	FieldRole,
	FieldIndustry,
	FieldAdditionalInfo,
}

func (f Field) IsValid() bool {
	for _, c := range CanonicalFields {
		if c == f {
			return true
		}
	}
	return false
}

// ContactRecord is one parsed row plus the canonical fields resolved from it.
type ContactRecord struct {
	Line           int               `json:"line"`
	Columns        []string          `json:"columns"`
	Raw            map[string]string `json:"raw"`
	Email          string            `json:"email"`
	Name           string            `json:"name,omitempty"`
	Company        string            `json:"company,omitempty"`
	Role           string            `json:"role,omitempty"`
	Industry       string            `json:"industry,omitempty"`
	AdditionalInfo string            `json:"additional_info,omitempty"`
}

// Value returns the resolved value of a canonical field.
func (c ContactRecord) Value(f Field) string {
	switch f {
	case FieldEmail:
		return c.Email
	case FieldName:
		return c.Name
	case FieldCompany:
		return c.Company
	case FieldRole:
		return c.Role
	case FieldIndustry:
		return c.Industry
	case FieldAdditionalInfo:
		return c.AdditionalInfo
	}
	return ""
}

package contacts

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

func TestLoadDetectsDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		delim string
	}{
		{"comma", "email,name\na@x.io,Ann\nb@x.io,Bob\n", ","},
		{"tab", "email\tname\na@x.io\tAnn\nb@x.io\tBob\n", "\t"},
		{"pipe", "email|name\na@x.io|Ann\n", "|"},
		{"semicolon", "email;name;company\na@x.io;Ann;Acme, Inc\n", ";"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := Load(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.delim, list.Delimiter)
			assert.Equal(t, "a@x.io", list.Rows[0].Values["email"])
			assert.Equal(t, "Ann", list.Rows[0].Values["name"])
		})
	}
}

func TestLoadNormalizesHeaders(t *testing.T) {
	list, err := Load("\ufeff  Email Address ,First   Name,COMPANY\na@x.io,Ann,Acme\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"email_address", "first_name", "company"}, list.Headers)
	assert.Empty(t, list.Warnings)
	assert.Equal(t, 2, list.Rows[0].Line)
}

func TestLoadBlankHeaderGetsPositionalName(t *testing.T) {
	list, err := Load("email,,name\na@x.io,x,Ann\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "column_2", "name"}, list.Headers)
}

func TestLoadSkipsBlankRows(t *testing.T) {
	list, err := Load("email,name\na@x.io,Ann\n\n,\nb@x.io,Bob\n")
	require.NoError(t, err)
	require.Len(t, list.Rows, 2)
	assert.Equal(t, 5, list.Rows[1].Line)
}

func TestLoadWarnsWithoutEmailColumn(t *testing.T) {
	list, err := Load("contact,name\na@x.io,Ann\n")
	require.NoError(t, err)
	require.Len(t, list.Warnings, 1)
	assert.Contains(t, list.Warnings[0], "no email column")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "  \n\n"},
		{"header only", "email,name\n"},
		{"duplicate headers", "Email,email\na@x.io,b@x.io\n"},
		{"duplicate after whitespace", "first name,First_Name\na,b\n"},
		{"ragged row", "email,name\na@x.io,Ann,extra\n"},
		{"bare quote", "email,name\na@x.io,An\"n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.text)
			require.Error(t, err)
			var pe *appErrors.ParseError
			assert.True(t, errors.As(err, &pe), "expected ParseError, got %T", err)
		})
	}
}

func TestLoadRaggedRowReportsLine(t *testing.T) {
	_, err := Load("email,name\na@x.io,Ann\nb@x.io\n")
	var pe *appErrors.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Line)
}

func TestDetectDelimiterFallsBackToComma(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter("email\na@x.io\n"))
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "additional_info", NormalizeHeader(" Additional \t Info "))
	assert.Equal(t, "email", NormalizeHeader("EMAIL"))
}

func TestLoadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Email", "Name", "Company"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"a@x.io", "Ann", "Acme"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"b@x.io", "Bob"}))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	list, err := LoadWorkbook(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "name", "company"}, list.Headers)
	require.Len(t, list.Rows, 2)
	assert.Equal(t, "", list.Rows[1].Values["company"])
	assert.Equal(t, 3, list.Rows[1].Line)
}

func TestLoadWorkbookRejectsGarbage(t *testing.T) {
	_, err := LoadWorkbook(bytes.NewReader([]byte("not a zip")))
	var pe *appErrors.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestLoadNamed(t *testing.T) {
	list, err := LoadNamed("people.csv", []byte("email;name\na@x.io;Ann\n"))
	require.NoError(t, err)
	assert.Equal(t, ";", list.Delimiter)

	_, err = LoadNamed("people.XLSX", []byte("email,name\n"))
	var pe *appErrors.ParseError
	assert.True(t, errors.As(err, &pe))
}

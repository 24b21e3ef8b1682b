package biz

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeDocx(t *testing.T, dir, name, documentXML string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const sampleDocumentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Incident</w:t></w:r><w:r><w:tab/><w:t>Response</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Notify the CISO </w:t></w:r><w:r><w:t>within one hour.</w:t></w:r></w:p>
</w:body>
</w:document>`

type stubPDF struct {
	text string
	path string
}

func (s *stubPDF) ExtractPDF(_ context.Context, path string) (string, error) {
	s.path = path
	return s.text, nil
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	pdf := &stubPDF{text: "pdf body"}
	e := NewExtractor(pdf)
	ctx := context.Background()

	text, err := e.ExtractText(ctx, writeFile(t, dir, "notes.TXT", "plain **text**"))
	require.NoError(t, err)
	assert.Equal(t, "plain **text**", text)

	text, err = e.ExtractText(ctx, writeFile(t, dir, "policy.md", "# Access Policy\n\nUse **least privilege** for [admins](http://x).\n"))
	require.NoError(t, err)
	assert.Contains(t, text, "Access Policy")
	assert.Contains(t, text, "least privilege")
	assert.Contains(t, text, "admins")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "http://x")

	text, err = e.ExtractText(ctx, writeDocx(t, dir, "plan.docx", sampleDocumentXML))
	require.NoError(t, err)
	assert.Equal(t, "Incident\tResponse\nNotify the CISO within one hour.", text)

	pdfPath := filepath.Join(dir, "report.pdf")
	text, err = e.ExtractText(ctx, pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "pdf body", text)
	assert.Equal(t, pdfPath, pdf.path)
}

func TestExtractTextErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := NewExtractor(nil).ExtractText(ctx, filepath.Join(dir, "report.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "pdf", extErr.Ext)

	_, err = NewExtractor(nil).ExtractText(ctx, writeFile(t, dir, "data.csv", "a,b"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = NewExtractor(nil).ExtractText(ctx, filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)

	_, err = NewExtractor(nil).ExtractText(ctx, writeFile(t, dir, "broken.docx", "not a zip"))
	assert.Error(t, err)
}

func TestExt(t *testing.T) {
	assert.Equal(t, "pdf", Ext("/a/b/Report.PDF"))
	assert.Equal(t, "markdown", Ext("readme.markdown"))
	assert.Equal(t, "", Ext("Makefile"))
}

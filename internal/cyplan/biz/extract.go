package biz

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kart-io/cyplan/internal/pkg/docutil"
	"github.com/kart-io/cyplan/internal/pkg/textutil"
)

// ErrUnsupportedFormat is wrapped by ExtractionError for extensions no
// extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedExtensions lists the extensions ExtractText understands, without
// the leading dot.
var SupportedExtensions = []string{"pdf", "txt", "md", "markdown", "docx"}

// ExtractionError reports a failure to read text from a file.
type ExtractionError struct {
	Path string
	Ext  string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PDFExtractor reads the plain text of a PDF file.
type PDFExtractor interface {
	ExtractPDF(ctx context.Context, path string) (string, error)
}

// PlainTextPDF extracts page text with github.com/ledongthuc/pdf. Pages are
// joined by blank lines and empty pages are skipped.
type PlainTextPDF struct{}

func (PlainTextPDF) ExtractPDF(ctx context.Context, path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// Extractor dispatches text extraction by file extension.
type Extractor struct {
	pdf PDFExtractor
}

// NewExtractor creates an extractor. A nil pdf reader makes pdf files fail
// with ErrUnsupportedFormat.
func NewExtractor(pdf PDFExtractor) *Extractor {
	return &Extractor{pdf: pdf}
}

// Ext returns the lowercased extension of path without the dot.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// ExtractText returns the text content of the file at path.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	ext := Ext(path)
	text, err := e.extract(ctx, path, ext)
	if err != nil {
		return "", &ExtractionError{Path: path, Ext: ext, Err: err}
	}
	return text, nil
}

func (e *Extractor) extract(ctx context.Context, path, ext string) (string, error) {
	switch ext {
	case "txt":
		return docutil.ReadText(path)
	case "md", "markdown":
		content, err := docutil.ReadText(path)
		if err != nil {
			return "", err
		}
		return textutil.StripMarkdown(content), nil
	case "docx":
		return extractDocx(path)
	case "pdf":
		if e.pdf == nil {
			return "", fmt.Errorf("%w: no pdf reader configured", ErrUnsupportedFormat)
		}
		return e.pdf.ExtractPDF(ctx, path)
	default:
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
}

// extractDocx concatenates the paragraphs of word/document.xml, one per line.
func extractDocx(path string) (string, error) {
	data, err := docutil.ReadZipEntry(path, "word/document.xml")
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	return strings.Join(paragraphs, "\n"), nil
}

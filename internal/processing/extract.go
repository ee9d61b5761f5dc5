package processing

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/ledongthuc/pdf"

	"parcel/internal/fileutil"
)

// maxPlainText caps how much of a text document is copied into the text
// artifact.
const maxPlainText = 16 << 20

// BuiltinExtractor pulls text out of PDF, DOCX, and plain text documents.
type BuiltinExtractor struct{}

// ExtractText implements services.TextExtractor.
func (BuiltinExtractor) ExtractText(ctx context.Context, path, mimeType string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mimeType == "application/pdf":
		return extractPDF(ctx, path)
	case strings.Contains(mimeType, "wordprocessingml"):
		return extractDOCX(ctx, path)
	case strings.HasPrefix(mimeType, "text/"):
		return extractPlain(ctx, path)
	default:
		return "", fmt.Errorf("text extraction not supported for %q", mimeType)
	}
}

func extractPlain(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(fileutil.Reader(ctx, f), maxPlainText))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractPDF(ctx context.Context, path string) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	totalPages := r.NumPage()
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract text from page %d: %w", pageIndex, err)
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

const docxBody = "word/document.xml"

func extractDOCX(ctx context.Context, path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer archive.Close()

	for _, entry := range archive.File {
		if entry.Name != docxBody {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer rc.Close()
		return wordText(fileutil.Reader(ctx, rc))
	}
	return "", errors.New("docx has no " + docxBody)
}

// wordText collects <w:t> runs, turning paragraph ends and <w:tab/> into
// whitespace.
func wordText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		b      bytes.Buffer
		inText bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

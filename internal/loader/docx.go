package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

const docxBody = "word/document.xml"

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

// LoadDOCX extracts paragraph text from a Word document.
func LoadDOCX(_ context.Context, path string) ([]document.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	text, err := docxText(data)
	if err != nil {
		return nil, fmt.Errorf("docx %s: %w", path, err)
	}
	return []document.Document{{
		PageContent: text,
		Metadata:    document.Metadata{Source: path},
	}}, nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", docxBody, err)
		}

		var doc docxDocument
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}
		var b strings.Builder
		for i, p := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteByte('\n')
			}
			for _, r := range p.Runs {
				for _, t := range r.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(b.String()), nil
	}
	return "", fmt.Errorf("%s missing", docxBody)
}

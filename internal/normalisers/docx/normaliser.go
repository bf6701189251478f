// Package docx provides a Normaliser for Office Open XML word documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/custodia-labs/lorastudio/internal/core/domain"
	"github.com/custodia-labs/lorastudio/internal/core/ports/driven"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// bodyPart is the main story of a word document.
const bodyPart = "word/document.xml"

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeDOCX}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise extracts paragraph text, one paragraph per line. Tabs and
// manual line breaks inside a paragraph are kept. A package without a
// body part yields empty text.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	archive, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, domain.NewValidationError("file", "not a valid docx archive")
	}

	body, err := archive.Open(bodyPart)
	if errors.Is(err, fs.ErrNotExist) {
		return &driven.NormaliseResult{Extraction: domain.Extraction{OCRConfidence: 1.0}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", bodyPart, err)
	}
	defer body.Close()

	text, err := paragraphs(body)
	if err != nil {
		return nil, domain.NewValidationError("file", "malformed docx body")
	}

	return &driven.NormaliseResult{
		Text:       text,
		Extraction: domain.Extraction{OCRConfidence: 1.0},
	}, nil
}

// paragraphs walks the WordprocessingML token stream. Only text inside
// <w:t> is kept; <w:p> ends a line.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		line   strings.Builder
		inText bool
		inPara bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				line.Reset()
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				line.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inPara {
					lines = append(lines, line.String())
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

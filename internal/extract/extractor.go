// Package extract turns uploaded blobs and video captions into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// MinTextLength is the floor below which office formats count as unreadable.
const MinTextLength = 50

// PDFParser returns the plain text of each page in a PDF.
type PDFParser interface {
	Pages(data []byte) ([]string, error)
}

// Converter turns an office document into text.
type Converter func(r io.Reader) (string, error)

// Extractor dispatches on document type. It is safe for concurrent use.
type Extractor struct {
	pdf         PDFParser
	word        Converter
	slides      Converter
	transcripts TranscriptFetcher
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithPDFParser replaces the PDF page parser.
func WithPDFParser(p PDFParser) Option {
	return func(e *Extractor) { e.pdf = p }
}

// WithWordConverter replaces the structured Word conversion.
func WithWordConverter(c Converter) Option {
	return func(e *Extractor) { e.word = c }
}

// WithSlidesConverter replaces the structured presentation conversion.
func WithSlidesConverter(c Converter) Option {
	return func(e *Extractor) { e.slides = c }
}

// New creates an Extractor. transcripts may be nil when video ingestion is disabled.
func New(transcripts TranscriptFetcher, opts ...Option) *Extractor {
	e := &Extractor{
		pdf:         ledongthucParser{},
		word:        convertDocx,
		slides:      convertPptx,
		transcripts: transcripts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the text of a blob of the declared type.
func (e *Extractor) Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch docType {
	case domain.DocumentTypePDF:
		return e.extractPDF(data)
	case domain.DocumentTypeDoc:
		return e.extractWord(data)
	case domain.DocumentTypeSheet:
		return extractSheet(data)
	case domain.DocumentTypeSlides:
		return e.extractSlides(data)
	default:
		return "", unsupported(docType)
	}
}

func unsupported(docType domain.DocumentType) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrUnsupportedType.Message,
		fmt.Errorf("cannot extract text from %q", docType))
}

func (e *Extractor) extractWord(data []byte) (string, error) {
	var text string
	if e.word != nil && len(data) > 0 {
		if converted, err := e.word(bytes.NewReader(data)); err == nil {
			text = strings.TrimSpace(converted)
		}
	}
	if runeLen(text) < MinTextLength {
		text = collapseWhitespace(stripControl(string(data)))
	}
	if runeLen(text) < MinTextLength {
		return "", domain.ErrUnreadableWord
	}
	return text, nil
}

func (e *Extractor) extractSlides(data []byte) (string, error) {
	var text string
	if e.slides != nil && len(data) > 0 {
		if converted, err := e.slides(bytes.NewReader(data)); err == nil {
			text = keepAlnumLines(converted)
		}
	}
	if runeLen(text) < MinTextLength {
		text = keepAlnumLines(stripTags(stripControl(string(data))))
	}
	if runeLen(text) < MinTextLength {
		return "", domain.ErrUnreadableSlides
	}
	return text, nil
}

package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/ledongthuc/pdf"
)

type ledongthucParser struct{}

// Pages reads every page's plain text. The parser panics on some malformed
// inputs, so panics are turned into errors.
func (ledongthucParser) Pages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func (e *Extractor) extractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyPDF
	}

	pages, err := e.pdf.Pages(data)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
			"Could not read this PDF. The file may be corrupt or password protected.", err)
	}

	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", domain.ErrEmptyPDF
	}
	return strings.Join(parts, "\n\n"), nil
}

package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/xuri/excelize/v2"
)

func convertDocx(r io.Reader) (string, error) {
	text, _, err := docconv.ConvertDocx(r)
	if err != nil {
		return "", fmt.Errorf("convert docx: %w", err)
	}
	return text, nil
}

func convertPptx(r io.Reader) (string, error) {
	text, _, err := docconv.ConvertPptx(r)
	if err != nil {
		return "", fmt.Errorf("convert pptx: %w", err)
	}
	return text, nil
}

// extractSheet renders each row's non-empty cells joined by " | ", one row per line.
func extractSheet(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrUnreadableSheet
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrUnreadableSheet.Message, err)
	}
	defer f.Close()

	var lines []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrUnreadableSheet.Message, err)
		}
		lines = append(lines, sheetRows(rows)...)
	}

	text := strings.Join(lines, "\n")
	if runeLen(text) < MinTextLength {
		return "", domain.ErrUnreadableSheet
	}
	return text, nil
}

func sheetRows(rows [][]string) []string {
	var lines []string
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return lines
}

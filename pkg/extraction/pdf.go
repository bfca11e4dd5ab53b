package extraction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	maxPDFPages = 10
	// Horizontal gap, in points, that separates two table cells on one row.
	cellGap = 12.0
)

// extractPDF concatenates, page by page, the table-like rows of the page
// (cells joined by " | ") followed by the page's plain text.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		if rows, rowErr := page.GetTextByRow(); rowErr == nil {
			for _, row := range rows {
				if cells := rowCells(row.Content); len(cells) > 1 {
					b.WriteString(strings.Join(cells, " | "))
					b.WriteByte('\n')
				}
			}
		}

		plain, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			return "", fmt.Errorf("page %d: %w", i, plainErr)
		}
		if strings.TrimSpace(plain) != "" {
			b.WriteString(plain)
			b.WriteByte('\n')
		}

		// Enough material for the excerpt; later pages would be cut anyway.
		if b.Len() > MaxTextLength*4 {
			break
		}
	}

	return b.String(), nil
}

func rowCells(fragments pdf.TextHorizontal) []string {
	if len(fragments) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var (
		cells   []string
		current strings.Builder
		end     = sorted[0].X
	)
	for i, t := range sorted {
		if i > 0 && t.X-end > cellGap {
			if cell := strings.TrimSpace(current.String()); cell != "" {
				cells = append(cells, cell)
			}
			current.Reset()
		}
		current.WriteString(t.S)
		if e := t.X + t.W; e > end || i == 0 {
			end = e
		}
	}
	if cell := strings.TrimSpace(current.String()); cell != "" {
		cells = append(cells, cell)
	}
	return cells
}

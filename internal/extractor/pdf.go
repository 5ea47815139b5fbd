package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrInvalidPDF is returned when the document cannot be opened as a PDF.
	ErrInvalidPDF = errors.New("invalid PDF document")
	// ErrNoText is returned when the PDF has no readable text layer, for
	// example a scanned image.
	ErrNoText = errors.New("no readable text in PDF")
)

// ExtractFile reads the PDF at path and returns its text, one page after another.
func ExtractFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return Extract(f, info.Size())
}

// ExtractBytes returns the text of an in-memory PDF.
func ExtractBytes(data []byte) (string, error) {
	return Extract(bytes.NewReader(data), int64(len(data)))
}

// Extract returns the text layer of a PDF. Each page contributes its rows in
// reading order; pages are separated by a blank line.
func Extract(r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: reader crashed: %v", ErrInvalidPDF, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}

	pages := extractByRow(reader, numPages)
	if !isReadableText(pages) {
		pages = extractByContent(reader, numPages)
	}
	if !isReadableText(pages) {
		if plain := extractByReaderPlainText(reader); plain != "" {
			pages = []string{plain}
		}
	}
	if !isReadableText(pages) {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n\n"), nil
}

// statementWords appear in virtually every card statement. Text containing
// none of them is treated as undecodable.
var statementWords = []string{
	"statement", "account", "balance", "payment", "amount", "date",
	"credit", "purchase", "period", "total", "transaction", "card",
}

func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range statementWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// textQuality is the share of ASCII letters, digits, whitespace and common
// punctuation. Identity-encoded fonts decode to accented garbage, so only
// ASCII counts.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(".,-/:;()'\"$%&@#!?+=*", r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent groups positioned text runs into rows by Y coordinate and
// orders each row left to right.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type run struct {
		x float64
		s string
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		rows := make(map[int][]run)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], run{x: t.X, s: t.S})
		}

		// PDF Y grows upward
		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			runs := rows[y]
			sort.Slice(runs, func(a, b int) bool { return runs[a].x < runs[b].x })

			var b strings.Builder
			for _, rn := range runs {
				b.WriteString(rn.s)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func extractByReaderPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

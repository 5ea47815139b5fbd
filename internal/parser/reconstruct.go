package parser

import (
	"regexp"
	"strings"
)

// Reconstructor repairs extraction artifacts and re-joins wrapped physical
// lines into one logical line per transaction.
type Reconstructor struct {
	filler      []string
	regionGlued *regexp.Regexp
}

// NewReconstructor builds a Reconstructor for the given vocabulary.
func NewReconstructor(cfg Config) *Reconstructor {
	r := &Reconstructor{filler: cfg.Filler}
	regions := alternation(cfg.Regions)
	categories := alternation(cfg.Categories)
	if regions != "" && categories != "" {
		// "UBERTRIPONTransportation" -> "UBERTRIP ON Transportation"
		r.regionGlued = regexp.MustCompile(`(` + regions + `)(` + categories + `)`)
	}
	return r
}

// Clean normalizes a single physical line.
func (r *Reconstructor) Clean(line string) string {
	for _, f := range r.filler {
		line = strings.ReplaceAll(line, f, "")
	}
	line = gluedDates.ReplaceAllString(line, "$1 $2")
	if r.regionGlued != nil {
		line = r.regionGlued.ReplaceAllString(line, " $1 $2")
	}
	return collapseSpaces(line)
}

// Lines splits raw text into logical lines. A logical line is complete once
// it ends with a two-decimal amount. An unterminated buffer is flushed on its
// own when a new date pair starts, and a non-empty leftover buffer is emitted
// last even though it never completed.
func (r *Reconstructor) Lines(text string) []string {
	var lines []string
	var buf strings.Builder

	for _, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		line := r.Clean(raw)
		if line == "" {
			continue
		}
		if buf.Len() > 0 && datePairStart.MatchString(line) {
			lines = append(lines, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if trailingAmount.MatchString(buf.String()) {
			lines = append(lines, buf.String())
			buf.Reset()
		}
	}
	if buf.Len() > 0 {
		lines = append(lines, buf.String())
	}
	return lines
}

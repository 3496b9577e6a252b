// Package benchmark turns the server's console output into progress and rate
// samples and reduces the rates into a score.
package benchmark

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Bibi40k/subchunker/internal/failure"
)

const DefaultMarker = "[Chunky]"

type SampleKind int

const (
	// SampleProgress carries a completion fraction in [0,1]; 1.0 is terminal.
	SampleProgress SampleKind = iota + 1
	// SampleRate carries one rate observation.
	SampleRate
)

func (k SampleKind) String() string {
	switch k {
	case SampleProgress:
		return "progress"
	case SampleRate:
		return "rate"
	}
	return fmt.Sprintf("SampleKind(%d)", int(k))
}

type Sample struct {
	Kind  SampleKind
	Value float64
}

func (s Sample) Terminal() bool { return s.Kind == SampleProgress && s.Value == 1.0 }

// Parser recognizes progress lines such as
//
//	[Chunky] Task running for overworld. Processed: 512 chunks (45.2%: 12.3 cps)
//
// which yields Progress(0.452) and Rate(12.3). Only the last parenthesized
// segment is read; text after its ')' is ignored. A line reporting 100% yields
// only the terminal Progress(1.0).
type Parser struct {
	Marker string
}

// Parse returns no samples for lines that are not progress lines. A progress
// line whose numbers cannot be read yields a parse failure; callers decide
// whether that is fatal.
func (p Parser) Parse(line string) ([]Sample, error) {
	marker := p.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	if !strings.Contains(line, marker) || !strings.Contains(line, "%") {
		return nil, nil
	}

	seg := line
	if i := strings.LastIndexByte(line, '('); i >= 0 {
		seg = line[i+1:]
	}
	if i := strings.IndexByte(seg, ')'); i >= 0 {
		seg = seg[:i]
	}
	pctText, _, ok := strings.Cut(seg, "%")
	if !ok {
		return nil, failure.Newf(failure.KindParse, "no percentage after last '(' in %q", line)
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(pctText), 64)
	if err != nil {
		return nil, failure.Wrap(failure.KindParse, fmt.Sprintf("parse percentage %q", pctText), err)
	}
	fraction := pct / 100
	out := []Sample{{Kind: SampleProgress, Value: fraction}}
	if fraction == 1.0 {
		return out, nil
	}

	_, rest, ok := strings.Cut(seg, ":")
	if !ok {
		return out, nil
	}
	rateText := strings.TrimLeft(rest, " \t")
	if i := strings.IndexByte(rateText, ' '); i >= 0 {
		rateText = rateText[:i]
	}
	rate, err := strconv.ParseFloat(rateText, 64)
	if err != nil {
		return nil, failure.Wrap(failure.KindParse, fmt.Sprintf("parse rate %q", rateText), err)
	}
	return append(out, Sample{Kind: SampleRate, Value: rate}), nil
}

package biz

import (
	"regexp"
	"strings"
)

const (
	// minAnalyzableLen is the smallest trimmed span that gets scheduled for
	// analysis. Shorter spans are stored for index continuity only.
	minAnalyzableLen = 50

	// maxSegmentLen is the span size above which a paragraph is re-split on
	// sentence boundaries.
	maxSegmentLen = 2000

	// targetChunkLen is the size cap for chunks produced by re-splitting.
	targetChunkLen = 1500
)

var (
	blankLineRe = regexp.MustCompile(`\r?\n\s*\r?\n`)
	sentenceRe  = regexp.MustCompile(`[^.!?]*[.!?]+[\s"')\]]*|[^.!?]+$`)
)

// Segment is one span of the source document.
type Segment struct {
	Content string
	// Analyzable marks spans long enough to be worth classifying.
	Analyzable bool
}

// SegmentDocument splits a document into paragraphs on blank lines. Oversized
// paragraphs are re-split on sentence boundaries so no unit overwhelms the
// model context. Empty spans are dropped; short spans are kept but marked
// non-analyzable.
func SegmentDocument(text string) []Segment {
	var segments []Segment

	for _, raw := range blankLineRe.Split(text, -1) {
		span := strings.TrimSpace(raw)
		if span == "" {
			continue
		}

		if len(span) <= maxSegmentLen {
			segments = append(segments, newSegment(span))
			continue
		}

		for _, chunk := range splitBySentence(span) {
			segments = append(segments, newSegment(chunk))
		}
	}

	return segments
}

// CountAnalyzable returns how many segments qualify for analysis.
func CountAnalyzable(segments []Segment) int {
	n := 0
	for _, s := range segments {
		if s.Analyzable {
			n++
		}
	}
	return n
}

func newSegment(span string) Segment {
	return Segment{
		Content:    span,
		Analyzable: len(span) >= minAnalyzableLen,
	}
}

// splitBySentence packs sentences into chunks no longer than targetChunkLen.
// A single sentence longer than the cap becomes its own chunk rather than
// being cut mid-sentence.
func splitBySentence(span string) []string {
	sentences := sentenceRe.FindAllString(span, -1)
	if len(sentences) == 0 {
		return []string{span}
	}

	var chunks []string
	var b strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(b.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		b.Reset()
	}

	for _, sentence := range sentences {
		if b.Len() > 0 && b.Len()+len(sentence) > targetChunkLen {
			flush()
		}
		b.WriteString(sentence)
	}
	flush()

	if len(chunks) == 0 {
		return []string{span}
	}
	return chunks
}

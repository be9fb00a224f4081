package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentDocument(t *testing.T) {
	long := strings.Repeat("All reporting entities shall retain records. ", 3)

	tests := []struct {
		name           string
		text           string
		wantSegments   int
		wantAnalyzable int
	}{
		{
			name:           "empty document",
			text:           "",
			wantSegments:   0,
			wantAnalyzable: 0,
		},
		{
			name:           "single paragraph",
			text:           long,
			wantSegments:   1,
			wantAnalyzable: 1,
		},
		{
			name:           "blank line split",
			text:           long + "\n\n" + long,
			wantSegments:   2,
			wantAnalyzable: 2,
		},
		{
			name:           "windows line endings",
			text:           long + "\r\n\r\n" + long,
			wantSegments:   2,
			wantAnalyzable: 2,
		},
		{
			name:           "blank line with spaces",
			text:           long + "\n   \n" + long,
			wantSegments:   2,
			wantAnalyzable: 2,
		},
		{
			name:           "short span kept but not analyzable",
			text:           long + "\n\nSection 2.",
			wantSegments:   2,
			wantAnalyzable: 1,
		},
		{
			name:           "whitespace-only spans dropped",
			text:           "\n\n   \n\n" + long + "\n\n",
			wantSegments:   1,
			wantAnalyzable: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := SegmentDocument(tt.text)
			assert.Len(t, segments, tt.wantSegments)
			assert.Equal(t, tt.wantAnalyzable, CountAnalyzable(segments))
		})
	}
}

func TestSegmentDocumentResplitsOversizedParagraphs(t *testing.T) {
	sentence := "The operator shall maintain a current register of all controlled substances on site. "
	oversized := strings.TrimSpace(strings.Repeat(sentence, 30))
	require.Greater(t, len(oversized), maxSegmentLen)

	segments := SegmentDocument(oversized)
	require.Greater(t, len(segments), 1)

	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg.Content), maxSegmentLen)
		assert.True(t, seg.Analyzable)
	}

	// No sentence gets cut in half.
	for _, seg := range segments {
		assert.True(t, strings.HasSuffix(strings.TrimSpace(seg.Content), "."),
			"chunk should end on a sentence boundary: %q", seg.Content)
	}
}

func TestSegmentDocumentKeepsOrder(t *testing.T) {
	long := strings.Repeat("Each licensee shall notify the authority without delay. ", 2)
	text := "First: " + long + "\n\nSecond: " + long + "\n\nThird: " + long

	segments := SegmentDocument(text)
	require.Len(t, segments, 3)
	assert.True(t, strings.HasPrefix(segments[0].Content, "First:"))
	assert.True(t, strings.HasPrefix(segments[1].Content, "Second:"))
	assert.True(t, strings.HasPrefix(segments[2].Content, "Third:"))
}

func TestSplitBySentenceOversizedSentence(t *testing.T) {
	// A single sentence above the chunk cap becomes its own chunk.
	giant := strings.Repeat("x", targetChunkLen+200) + "."
	chunks := splitBySentence(giant)
	require.Len(t, chunks, 1)
	assert.Equal(t, giant, chunks[0])
}

package citation

import (
	"regexp"
	"strconv"

	"resumerag/internal/domain"
)

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Escape rewrites marker-shaped text such as "[2]" to "(2)" so that source text quoted in an
// answer or a prompt cannot be mistaken for a citation.
func Escape(text string) string {
	return markerPattern.ReplaceAllString(text, "($1)")
}

// Linked is an answer with its markers resolved against the retrieval result that produced it.
type Linked struct {
	Answer     string            `json:"answer"`
	Segments   []domain.Segment  `json:"segments"`
	Citations  []domain.Citation `json:"citations"`
	Unresolved []int             `json:"unresolved,omitempty"`
}

// Link parses bracketed markers in answer and resolves each one against result.
// Every distinct chunk gets one citation, numbered by its first marker and listed in
// first-occurrence order. Markers that match no retrieved chunk stay in the text as
// literal segments and are reported in Unresolved.
func Link(answer string, result domain.RetrievalResult) Linked {
	byID := make(map[int]domain.Chunk, len(result))
	for _, sc := range result {
		byID[sc.Chunk.ID] = sc.Chunk
	}

	out := Linked{Answer: answer, Segments: []domain.Segment{}, Citations: []domain.Citation{}}
	cited := make(map[int]int)
	unresolved := make(map[int]struct{})
	pos := 0
	for _, loc := range markerPattern.FindAllStringSubmatchIndex(answer, -1) {
		start, end := loc[0], loc[1]
		marker, err := strconv.Atoi(answer[loc[2]:loc[3]])
		if err != nil {
			// digits overflowing int cannot name a chunk
			continue
		}
		chunk, ok := byID[domain.ChunkIDForMarker(marker)]
		if !ok {
			if _, seen := unresolved[marker]; !seen {
				unresolved[marker] = struct{}{}
				out.Unresolved = append(out.Unresolved, marker)
			}
			continue
		}
		if start > pos {
			out.Segments = appendText(out.Segments, answer[pos:start])
		}
		idx, seen := cited[chunk.ID]
		if !seen {
			idx = len(out.Citations)
			cited[chunk.ID] = idx
			out.Citations = append(out.Citations, domain.Citation{
				ID:      marker,
				ChunkID: chunk.ID,
				Text:    chunk.Text,
				Page:    chunk.Page,
				BBox:    chunk.BBox,
			})
		}
		c := out.Citations[idx]
		out.Segments = append(out.Segments, domain.Segment{Kind: domain.SegmentCitation, Text: answer[start:end], Citation: &c})
		pos = end
	}
	if pos < len(answer) {
		out.Segments = appendText(out.Segments, answer[pos:])
	}
	return out
}

// appendText adds literal text, merging with a preceding literal segment.
func appendText(segs []domain.Segment, text string) []domain.Segment {
	if n := len(segs); n > 0 && segs[n-1].Kind == domain.SegmentText {
		segs[n-1].Text += text
		return segs
	}
	return append(segs, domain.Segment{Kind: domain.SegmentText, Text: text})
}

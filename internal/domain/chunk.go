package domain

import (
	"fmt"
	"strings"
)

// CandidateChunk is a text window cut from a source document and scored against a query.
// Start and End are byte offsets into the source text.
type CandidateChunk struct {
	SourceID string
	Subject  string
	Content  string
	Start    int
	End      int
	Lexical  float64
	Score    float64
}

// Source is the caller-facing reference to a chunk used in an answer.
type Source struct {
	GazetteID string `json:"gazette_id"`
	Subject   string `json:"subject"`
	Chunk     string `json:"chunk"`
}

// RankedAnswer is the top-N chunks selected for a query.
type RankedAnswer struct {
	Chunks []CandidateChunk
}

// Empty reports whether nothing was selected.
func (a RankedAnswer) Empty() bool { return len(a.Chunks) == 0 }

// Sources returns the chunks as response sources, in rank order.
func (a RankedAnswer) Sources() []Source {
	out := make([]Source, 0, len(a.Chunks))
	for _, c := range a.Chunks {
		out = append(out, Source{GazetteID: c.SourceID, Subject: c.Subject, Chunk: c.Content})
	}
	return out
}

// Excerpts renders the chunks as labelled prompt context.
func (a RankedAnswer) Excerpts() string {
	parts := make([]string, 0, len(a.Chunks))
	for _, c := range a.Chunks {
		parts = append(parts, fmt.Sprintf("[Gazette ID: %s; Subject: %s]\n%s", c.SourceID, c.Subject, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

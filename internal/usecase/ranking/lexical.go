package ranking

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/kira-labs/kira/internal/domain"
)

var tokenPattern = regexp.MustCompile(`[a-z]{3,}`)

// Tokenize returns the set of lowercase alphabetic runs of three or more letters.
func Tokenize(s string) map[string]struct{} {
	matches := tokenPattern.FindAllString(strings.ToLower(s), -1)
	tokens := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tokens[m] = struct{}{}
	}
	return tokens
}

// LexicalScore is the share of query tokens present in chunk, in [0,1].
func LexicalScore(query, chunk string) float64 {
	return overlapRatio(Tokenize(query), Tokenize(chunk))
}

func overlapRatio(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := chunk[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// Candidates windows every record, scores each window against the query and keeps
// the best limit windows with a positive score. Ties keep source order, then offset order.
// Records without an id or text are skipped.
func Candidates(query string, records []domain.GazetteRecord, size, overlap, limit int) []domain.CandidateChunk {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var out []domain.CandidateChunk
	for _, rec := range records {
		id := strings.TrimSpace(rec.ID)
		if id == "" || strings.TrimSpace(rec.Text) == "" {
			continue
		}
		subject := strings.TrimSpace(rec.Subject)
		for _, w := range Split(rec.Text, size, overlap) {
			score := overlapRatio(queryTokens, Tokenize(w.Content))
			if score <= 0 {
				continue
			}
			out = append(out, domain.CandidateChunk{
				SourceID: id,
				Subject:  subject,
				Content:  w.Content,
				Start:    w.Start,
				End:      w.End,
				Lexical:  score,
				Score:    score,
			})
		}
	}

	sortByScore(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortByScore orders chunks by descending Score, keeping insertion order among equals.
func sortByScore(chunks []domain.CandidateChunk) {
	slices.SortStableFunc(chunks, func(a, b domain.CandidateChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

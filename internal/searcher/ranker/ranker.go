// Package ranker scores documents against query tokens and orders them.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/index"
)

const (
	TitleWeight = 5
	BodyWeight  = 1
)

type ScoredDoc struct {
	Doc   *index.Document `json:"-"`
	DocID int             `json:"doc_id"`
	Score float64         `json:"score"`
}

// Score sums title and body frequencies of every query token, counting
// repeated tokens each time. Uncomputed tables contribute nothing.
func Score(doc *index.Document, tokens []string) float64 {
	titleFreq := doc.TitleFreq()
	bodyFreq := doc.BodyFreq()
	var score int
	for _, t := range tokens {
		score += titleFreq[t]*TitleWeight + bodyFreq[t]*BodyWeight
	}
	return float64(score)
}

// Rank scores docs, drops zero scores and sorts by descending score. Equal
// scores keep the order of docs. A limit <= 0 keeps every match.
func Rank(docs []*index.Document, tokens []string, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0)
	for _, d := range docs {
		score := Score(d, tokens)
		if score <= 0 {
			continue
		}
		result = append(result, ScoredDoc{Doc: d, DocID: d.ID, Score: score})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

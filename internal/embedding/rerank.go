package embedding

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	lexicalSubstringBoost = 0.5
	lexicalOverlapWeight  = 0.5
)

// Ranked is one candidate after reranking, referencing the caller's
// candidate slice by index.
type Ranked struct {
	Index int
	Score float64
}

// Rerank reorders candidates by relevance to query. The provider path
// batch-embeds query and candidates together and scores by cosine; if no
// provider can serve, it falls back to a local lexical heuristic. Callers
// cannot distinguish the two paths in the output, so the fallback produces
// a monotonically sensible ordering given only lexical overlap.
func (g *Gateway) Rerank(ctx context.Context, query string, candidates []string) []Ranked {
	if len(candidates) == 0 {
		return nil
	}

	ranked, err := g.rerankWithProvider(ctx, query, candidates)
	if err != nil {
		g.logger.Debug("provider rerank unavailable, using lexical fallback", zap.Error(err))
		ranked = lexicalRerank(query, candidates)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (g *Gateway) rerankWithProvider(ctx context.Context, query string, candidates []string) ([]Ranked, error) {
	if len(g.providers) == 0 {
		return nil, errProviderUnavailable
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	texts = append(texts, candidates...)

	vectors, _, err := g.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	queryVec := vectors[0]
	ranked := make([]Ranked, 0, len(candidates))
	for i, vec := range vectors[1:] {
		ranked = append(ranked, Ranked{Index: i, Score: CosineSimilarity(queryVec, vec)})
	}
	return ranked, nil
}

// lexicalRerank scores by exact substring match plus token-overlap
// fraction. More overlapping tokens always means a higher score.
func lexicalRerank(query string, candidates []string) []Ranked {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenSet(queryLower)

	ranked := make([]Ranked, 0, len(candidates))
	for i, candidate := range candidates {
		candidateLower := strings.ToLower(candidate)

		score := 0.0
		if queryLower != "" && strings.Contains(candidateLower, queryLower) {
			score += lexicalSubstringBoost
		}
		if len(queryTokens) > 0 {
			overlap := 0
			for token := range tokenSet(candidateLower) {
				if _, ok := queryTokens[token]; ok {
					overlap++
				}
			}
			score += lexicalOverlapWeight * float64(overlap) / float64(len(queryTokens))
		}
		ranked = append(ranked, Ranked{Index: i, Score: score})
	}
	return ranked
}

func tokenSet(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(s) {
		token := strings.Trim(field, ".,;:!?\"'()[]{}")
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Vectors of mismatched dimensions score zero; they came from different
// providers and are not comparable.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"chatvri/internal/domain"
	"chatvri/internal/metrics"
)

// EngineOptions configure the retrieval engine.
type EngineOptions struct {
	Snapshot *Snapshot
	Catalog  *Catalog
	Embedder domain.Embedder
	Logger   *slog.Logger

	TopK           int
	ScoreThreshold float64
	SimWeight      float64
	CategoryBonus  float64
	TypeBonus      float64
	KeywordBonus   float64
	CategoryFilter bool
	CacheSize      int
}

// Engine answers retrieval queries against an in-memory document
// snapshot. It expands the query with synonyms, searches the flat
// index per term, blends similarity with category, doc-type and
// keyword-overlap bonuses, deduplicates, and returns the top results.
type Engine struct {
	snapshot *Snapshot
	catalog  *Catalog
	index    *FlatIndex
	embedder domain.Embedder
	cache    *queryCache
	logger   *slog.Logger

	topK           int
	threshold      float64
	simWeight      float64
	categoryBonus  float64
	typeBonus      float64
	keywordBonus   float64
	categoryFilter bool
}

// NewEngine builds the engine and its flat index from a loaded snapshot.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Snapshot == nil || len(opts.Snapshot.Docs) == 0 {
		return nil, fmt.Errorf("knowledge engine needs a non-empty snapshot")
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("knowledge engine needs an embedder")
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TopK < 1 {
		opts.TopK = 5
	}
	if opts.SimWeight <= 0 {
		opts.SimWeight = 1.0
	}
	if opts.CacheSize < 1 {
		opts.CacheSize = 200
	}

	return &Engine{
		snapshot:       opts.Snapshot,
		catalog:        opts.Catalog,
		index:          NewFlatIndex(opts.Snapshot),
		embedder:       opts.Embedder,
		cache:          newQueryCache(opts.CacheSize),
		logger:         opts.Logger.With("component", "knowledge"),
		topK:           opts.TopK,
		threshold:      opts.ScoreThreshold,
		simWeight:      opts.SimWeight,
		categoryBonus:  opts.CategoryBonus,
		typeBonus:      opts.TypeBonus,
		keywordBonus:   opts.KeywordBonus,
		categoryFilter: opts.CategoryFilter,
	}, nil
}

// DocCount returns how many documents the snapshot holds.
func (e *Engine) DocCount() int { return len(e.snapshot.Docs) }

// CacheLen returns how many queries are currently cached.
func (e *Engine) CacheLen() int { return e.cache.Len() }

// Retrieve implements domain.Retriever. Results are cached by the raw
// query string; k overrides the configured top-k when positive.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredDocument, error) {
	if k < 1 {
		k = e.topK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if cached, ok := e.cache.Get(query, k); ok {
		metrics.CacheHitsTotal.Inc()
		return cached, nil
	}

	start := time.Now()
	results, err := e.search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	metrics.RetrievalLatency.Observe(time.Since(start).Seconds())
	e.cache.Put(query, k, results)
	return results, nil
}

func (e *Engine) search(ctx context.Context, query string, k int) ([]domain.ScoredDocument, error) {
	terms := e.catalog.Expand(query)
	faculty := e.catalog.DetectFaculty(query)
	if faculty != "" {
		name := strings.ToLower(e.catalog.FacultyName(faculty))
		terms = append(terms, name)
	}
	intent := DetectIntent(query)
	queryWords := wordSet(strings.ToLower(query))

	// Best score per document across all expanded terms.
	best := make(map[int]domain.ScoredDocument)

	for _, term := range terms {
		vec, err := e.embedder.Embed(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", term, err)
		}
		// Each term pulls up to three times the requested results so
		// blending and dedupe have candidates to discard.
		hits, err := e.index.Search(vec, 3*k)
		if err != nil {
			return nil, err
		}

		for _, hit := range hits {
			doc := e.snapshot.Docs[hit.Index]
			sim := 1.0 / (1.0 + hit.Distance)
			score := e.simWeight * sim

			if faculty != "" && strings.EqualFold(doc.Category, faculty) {
				score += e.categoryBonus
			}
			if matchesIntent(doc.DocType, intent) {
				score += e.typeBonus
			}
			if e.keywordBonus > 0 {
				score += e.keywordBonus * overlap(queryWords, strings.ToLower(doc.Title+" "+doc.Content))
			}

			if prev, ok := best[hit.Index]; !ok || score > prev.Score {
				best[hit.Index] = domain.ScoredDocument{
					Document:   doc,
					Similarity: sim,
					Score:      score,
				}
			}
		}
	}

	scored := make([]domain.ScoredDocument, 0, len(best))
	for _, sd := range best {
		scored = append(scored, sd)
	}

	scored = dedupe(scored)

	if e.categoryFilter && faculty != "" {
		filtered := scored[:0:0]
		for _, sd := range scored {
			if strings.EqualFold(sd.Category, faculty) {
				filtered = append(filtered, sd)
			}
		}
		// Fall back to the unfiltered pool when the faculty has no
		// documents at all, rather than answering with nothing.
		if len(filtered) > 0 {
			scored = filtered
		}
	}

	if e.threshold > 0 {
		kept := scored[:0:0]
		for _, sd := range scored {
			if sd.Score >= e.threshold {
				kept = append(kept, sd)
			}
		}
		scored = kept
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}

	e.logger.Debug("retrieval done",
		"query", query,
		"terms", len(terms),
		"faculty", faculty,
		"results", len(scored))
	return scored, nil
}

// dedupe collapses documents that share a content fingerprint, keeping
// the highest-scored copy of each.
func dedupe(docs []domain.ScoredDocument) []domain.ScoredDocument {
	bestByFP := make(map[string]domain.ScoredDocument, len(docs))
	for _, sd := range docs {
		fp := fingerprint(sd.Document)
		if prev, ok := bestByFP[fp]; !ok || sd.Score > prev.Score {
			bestByFP[fp] = sd
		}
	}
	out := make([]domain.ScoredDocument, 0, len(bestByFP))
	for _, sd := range bestByFP {
		out = append(out, sd)
	}
	return out
}

func fingerprint(doc domain.Document) string {
	content := strings.ToLower(strings.TrimSpace(doc.Content))
	if len(content) > 64 {
		content = content[:64]
	}
	return content + "|" + strings.ToLower(doc.Category) + "|" + strings.ToLower(doc.DocType)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, "¿?.,;:!¡\"'")
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// overlap returns the fraction of query words present in the text.
func overlap(queryWords map[string]struct{}, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	matched := 0
	for w := range queryWords {
		if strings.Contains(text, w) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

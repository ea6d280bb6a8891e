// Package matching pairs clean image names with product sheet rows.
package matching

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	"github.com/carloz138/catalogo-magico-mx-sub005/naming"
)

const (
	// DefaultThreshold is the minimum fuzzy coefficient accepted as a match.
	DefaultThreshold = 0.4

	exactScore    = 1.0
	containsScore = 0.75

	maxSuggestions = 5
)

// candidate is a product row with its canonical keys computed once.
type candidate struct {
	index int
	row   models.ProductRow
	sku   string
	name  string
}

// stage scores one candidate. It reports false when the candidate does not
// qualify at this stage.
type stage func(clean string, c candidate) (models.ScoredCandidate, bool)

// Engine runs the ordered matching stages.
type Engine struct {
	threshold float64
	metric    strutil.StringMetric
	stages    []stage
}

// NewEngine builds an engine accepting fuzzy matches at or above threshold.
// A non-positive threshold falls back to DefaultThreshold.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	e := &Engine{
		threshold: threshold,
		metric:    metrics.NewSorensenDice(),
	}
	e.stages = []stage{exactStage, containsStage, e.fuzzyStage}
	return e
}

// Threshold returns the fuzzy acceptance threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Match scores candidates against cleanImageName. The first stage producing
// any hit wins and its hits are returned best first, input order breaking
// ties. When no stage qualifies the result holds sub-threshold suggestions
// with method "none".
func (e *Engine) Match(cleanImageName string, candidates []models.ProductRow) []models.ScoredCandidate {
	clean := naming.Key(cleanImageName)
	if clean == "" || len(candidates) == 0 {
		return nil
	}

	keyed := make([]candidate, len(candidates))
	for i, row := range candidates {
		keyed[i] = candidate{index: i, row: row, sku: naming.Key(row.SKU), name: naming.Key(row.Name)}
	}

	for _, run := range e.stages {
		var hits []models.ScoredCandidate
		for _, c := range keyed {
			if sc, ok := run(clean, c); ok {
				hits = append(hits, sc)
			}
		}
		if len(hits) > 0 {
			rank(hits)
			return hits
		}
	}
	return e.suggestions(clean, keyed)
}

func exactStage(clean string, c candidate) (models.ScoredCandidate, bool) {
	if clean == c.sku || clean == c.name {
		return scored(c, exactScore, models.MatchExact), true
	}
	return models.ScoredCandidate{}, false
}

func containsStage(clean string, c candidate) (models.ScoredCandidate, bool) {
	if c.name == "" {
		return models.ScoredCandidate{}, false
	}
	if strings.Contains(c.name, clean) || strings.Contains(clean, c.name) {
		return scored(c, containsScore, models.MatchContains), true
	}
	return models.ScoredCandidate{}, false
}

func (e *Engine) fuzzyStage(clean string, c candidate) (models.ScoredCandidate, bool) {
	coef := e.coefficient(clean, c)
	if coef >= e.threshold {
		return scored(c, coef, models.MatchFuzzy), true
	}
	return models.ScoredCandidate{}, false
}

func (e *Engine) suggestions(clean string, keyed []candidate) []models.ScoredCandidate {
	var out []models.ScoredCandidate
	for _, c := range keyed {
		if coef := e.coefficient(clean, c); coef > 0 {
			out = append(out, scored(c, coef, models.MatchNone))
		}
	}
	rank(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// coefficient is the best bigram similarity against the SKU and the name.
func (e *Engine) coefficient(clean string, c candidate) float64 {
	target := compact(clean)
	best := 0.0
	for _, key := range []string{c.sku, c.name} {
		if key == "" {
			continue
		}
		if s := strutil.Similarity(target, compact(key), e.metric); s > best {
			best = s
		}
	}
	return best
}

func compact(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func scored(c candidate, score float64, method models.MatchMethod) models.ScoredCandidate {
	return models.ScoredCandidate{Row: c.row, Index: c.index, Score: score, Method: method}
}

func rank(hits []models.ScoredCandidate) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

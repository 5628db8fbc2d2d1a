// Package classifier maps free text onto the prototype taxonomy.
//
// Two implementations share the Classifier interface: Local embeds and ranks
// in-process, Remote asks a running dp serve instance. Neither ever fails a
// Classify call; anything that prevents a real answer degrades to an
// Uncategorized result.
package classifier

import (
	"context"
	"math"
	"sort"

	"dayplan/internal/domain"
	"dayplan/internal/embedding"
	"dayplan/internal/prototype"
)

const (
	DefaultTopK      = 3
	DefaultThreshold = 0.25
)

// NoThreshold disables unknown rejection.
var NoThreshold = math.Inf(-1)

// Options tune a single Classify call.
type Options struct {
	// TopK caps the returned ranking; zero or less returns every category.
	TopK int
	// UnknownThreshold is the minimum best similarity to accept a category.
	UnknownThreshold float64
	// Block waits for (or performs) the model load instead of degrading.
	Block bool
}

// DefaultOptions returns TopK 3 and threshold 0.25, non-blocking.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, UnknownThreshold: DefaultThreshold}
}

type Classifier interface {
	Classify(ctx context.Context, text string, opts Options) domain.ClassificationResult
	// Available reports whether classification can work without loading anything yet.
	Available(ctx context.Context) bool
	// Loaded reports whether the model is resident and ready.
	Loaded(ctx context.Context) bool
	// Preload loads the model, blocking until done.
	Preload(ctx context.Context) error
	// Metadata describes the loaded prototypes.
	Metadata(ctx context.Context) (prototype.Meta, bool)
}

// model is an immutable snapshot shared by concurrent readers.
type model struct {
	table *embedding.Table
	set   *prototype.Set
}

// rank scores text against every prototype of m.
func rank(m *model, text string, opts Options) domain.ClassificationResult {
	vec, ok := m.table.Vector(text)
	if !ok {
		return domain.Unclassified(true)
	}
	scores := make([]domain.Score, len(m.set.Prototypes))
	for i, p := range m.set.Prototypes {
		scores[i] = domain.Score{Category: p.Category, Similarity: embedding.Cosine(vec, p.Vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Similarity > scores[j].Similarity
	})
	best := scores[0]
	if opts.TopK > 0 && opts.TopK < len(scores) {
		scores = scores[:opts.TopK]
	}
	res := domain.ClassificationResult{Category: best.Category, Scores: scores, ModelReady: true}
	if best.Similarity < opts.UnknownThreshold {
		res.Category = domain.Uncategorized
	}
	return res
}

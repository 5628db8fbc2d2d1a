// Package prototype builds, stores and loads category prototype vectors.
//
// A prototype is the mean of a category's seed-phrase vectors. A built set is
// persisted as two co-located artifacts: a SQLite archive of the vectors and a
// meta.json describing the taxonomy and embedding model they came from.
package prototype

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dayplan/internal/config"
	"dayplan/internal/domain"
	"dayplan/internal/embedding"
	"dayplan/internal/logx"
)

var (
	// ErrEmptyCategory means no seed phrase of a category produced a vector.
	ErrEmptyCategory = errors.New("category has no vector")
	// ErrNotBuilt means the artifacts are missing.
	ErrNotBuilt = errors.New("prototypes not built")
	// ErrCorrupt means the archive and meta.json disagree.
	ErrCorrupt = errors.New("prototype artifacts are inconsistent")
)

// Set is a built taxonomy: prototypes in category order plus their metadata.
type Set struct {
	Meta       Meta
	Prototypes []domain.Prototype
}

// Builder turns a taxonomy into prototypes.
type Builder struct {
	Log logx.Logger
	Now func() time.Time
}

// Build is a convenience wrapper around a zero Builder.
func Build(tax config.Taxonomy, table *embedding.Table) (*Set, error) {
	return Builder{}.Build(tax, table)
}

// Build embeds every seed phrase and averages them per category.
func (b Builder) Build(tax config.Taxonomy, table *embedding.Table) (*Set, error) {
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	if table == nil || table.Len() == 0 {
		return nil, embedding.ErrNoVectors
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}
	set := &Set{
		Meta: Meta{
			EmbeddingModel: tax.EmbeddingModel,
			VectorDim:      table.Dim,
			Categories:     append([]domain.Category(nil), tax.Categories...),
			Seeds:          make(map[string][]string, len(tax.Seeds)),
			BuildID:        uuid.NewString(),
			BuiltAt:        now().UTC().Format(time.RFC3339),
		},
	}
	for name, seeds := range tax.Seeds {
		set.Meta.Seeds[name] = append([]string(nil), seeds...)
	}
	for i, cat := range tax.Categories {
		var vecs [][]float32
		for _, seed := range tax.Seeds[cat.Name] {
			v, ok := table.Vector(seed)
			if !ok {
				b.Log.Debug("seed phrase has no known tokens",
					logx.String("category", cat.Name),
					logx.String("seed", seed))
				continue
			}
			vecs = append(vecs, v)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("%w: %q (no seed tokens in vocabulary)", ErrEmptyCategory, cat.Name)
		}
		set.Prototypes = append(set.Prototypes, domain.Prototype{
			Category:  cat.Name,
			Color:     cat.Color,
			Position:  i,
			SeedsUsed: len(vecs),
			Vector:    embedding.Mean(vecs),
		})
	}
	b.Log.Info("prototypes built",
		logx.String("build_id", set.Meta.BuildID),
		logx.String("embedding_model", set.Meta.EmbeddingModel),
		logx.Int("categories", len(set.Prototypes)),
		logx.Int("vector_dim", set.Meta.VectorDim))
	return set, nil
}

// Validate checks that prototypes line up with the metadata.
func (s *Set) Validate() error {
	if len(s.Prototypes) == 0 {
		return fmt.Errorf("%w: no prototypes", ErrCorrupt)
	}
	if len(s.Prototypes) != len(s.Meta.Categories) {
		return fmt.Errorf("%w: %d prototypes for %d categories", ErrCorrupt, len(s.Prototypes), len(s.Meta.Categories))
	}
	for i, p := range s.Prototypes {
		if p.Category != s.Meta.Categories[i].Name {
			return fmt.Errorf("%w: prototype %d is %q, meta lists %q", ErrCorrupt, i, p.Category, s.Meta.Categories[i].Name)
		}
		if len(p.Vector) != s.Meta.VectorDim {
			return fmt.Errorf("%w: %s has dim %d, meta says %d", ErrCorrupt, p.Category, len(p.Vector), s.Meta.VectorDim)
		}
	}
	return nil
}

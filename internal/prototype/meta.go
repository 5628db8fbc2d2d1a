package prototype

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dayplan/internal/domain"
)

const MetaFile = "meta.json"

// Meta describes how a prototype set was built.
type Meta struct {
	EmbeddingModel string              `json:"embedding_model"`
	VectorDim      int                 `json:"vector_dim"`
	Categories     []domain.Category   `json:"categories"`
	Seeds          map[string][]string `json:"seeds"`
	BuildID        string              `json:"build_id,omitempty"`
	BuiltAt        string              `json:"built_at,omitempty"`
}

// CategoryNames lists categories in prototype order.
func (m Meta) CategoryNames() []string {
	names := make([]string, len(m.Categories))
	for i, c := range m.Categories {
		names[i] = c.Name
	}
	return names
}

// ReadMeta loads meta.json from dir.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid %s: %w", MetaFile, err)
	}
	return m, nil
}

// writeMeta replaces meta.json atomically so readers never see a partial file.
func writeMeta(dir string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".meta-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, MetaFile))
}

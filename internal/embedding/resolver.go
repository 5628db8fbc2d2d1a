package embedding

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var modelSuffixes = []string{".vec", ".vec.gz", ".txt", ".txt.gz"}

// Resolver finds the embedding file for a model identifier.
type Resolver struct {
	// ModelsDir holds files named after model ids.
	ModelsDir string
	// Path, when set, is used regardless of the model id.
	Path string
}

// Resolve returns the file backing model.
func (r Resolver) Resolve(model string) (string, error) {
	if p := strings.TrimSpace(r.Path); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("embeddings file: %w", err)
		}
		return p, nil
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return "", fmt.Errorf("embedding model required")
	}
	if strings.ContainsAny(model, `/\`) {
		return "", fmt.Errorf("invalid embedding model id %q", model)
	}
	dir := r.ModelsDir
	if dir == "" {
		dir = "."
	}
	for _, suffix := range modelSuffixes {
		p := filepath.Join(dir, model+suffix)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("embedding model %q not found in %s: %w", model, dir, os.ErrNotExist)
}

// Open resolves model and loads its table.
func (r Resolver) Open(model string) (*Table, error) {
	p, err := r.Resolve(model)
	if err != nil {
		return nil, err
	}
	return Load(p)
}

// Package embedding loads word-vector tables and turns short texts into
// averaged sentence vectors.
package embedding

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNoVectors is returned when an embedding file holds no usable rows.
var ErrNoVectors = errors.New("embedding file has no vectors")

// Table is an in-memory token → vector lookup. It is read-only after Load.
type Table struct {
	Dim     int
	Skipped int
	vectors map[string][]float32
}

// NewTable builds a table from explicit vectors. Keys are lowercased and the
// first occurrence wins; rows of a different dimension are skipped.
func NewTable(vectors map[string][]float32) *Table {
	t := &Table{vectors: make(map[string][]float32, len(vectors))}
	for k, v := range vectors {
		t.add(strings.ToLower(k), v)
	}
	return t
}

func (t *Table) add(token string, v []float32) {
	if t.Dim == 0 {
		t.Dim = len(v)
	}
	if len(v) != t.Dim || len(v) == 0 {
		t.Skipped++
		return
	}
	if _, ok := t.vectors[token]; ok {
		return
	}
	t.vectors[token] = v
}

// Len reports the vocabulary size.
func (t *Table) Len() int { return len(t.vectors) }

// Lookup returns the vector for a single token.
func (t *Table) Lookup(token string) ([]float32, bool) {
	v, ok := t.vectors[strings.ToLower(token)]
	return v, ok
}

// Vector embeds text as the mean of its in-vocabulary token vectors.
// ok is false when no token is known.
func (t *Table) Vector(text string) ([]float32, bool) {
	var hits [][]float32
	for _, tok := range Tokenize(text) {
		if v, ok := t.vectors[tok]; ok {
			hits = append(hits, v)
		}
	}
	if len(hits) == 0 {
		return nil, false
	}
	return Mean(hits), true
}

// Load reads a word2vec/fastText/GloVe text file, optionally gzip-compressed.
// A leading "count dim" header line is accepted and ignored.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open embeddings: %w", err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open embeddings %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	t, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("read embeddings %s: %w", path, err)
	}
	return t, nil
}

// Read parses the text vector format from r.
func Read(r io.Reader) (*Table, error) {
	t := &Table{vectors: map[string][]float32{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}
		if len(fields) < 2 {
			t.Skipped++
			continue
		}
		vec := make([]float32, len(fields)-1)
		bad := false
		for i, raw := range fields[1:] {
			x, err := strconv.ParseFloat(raw, 32)
			if err != nil {
				bad = true
				break
			}
			vec[i] = float32(x)
		}
		if bad {
			t.Skipped++
			continue
		}
		t.add(strings.ToLower(fields[0]), vec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(t.vectors) == 0 {
		return nil, ErrNoVectors
	}
	return t, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(fields[0])
	_, err2 := strconv.Atoi(fields[1])
	return err1 == nil && err2 == nil
}

package embedding

import (
	"compress/gzip"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sample = `4 3
gym 1 0 0
workout 0.8 0.2 0
read 0 1 0
Gym 9 9 9
broken 1 x 0
short 1 2
`

func TestTokenize(t *testing.T) {
	cases := map[string][]string{
		"Gym workout!":             {"gym", "workout"},
		"Don't skip leg-day":       {"don't", "skip", "leg", "day"},
		"a b c":                    nil,
		"12345 !!! ...":            nil,
		"Read 2 chapters, o'clock": {"read", "chapters", "o'clock"},
		"'quoted' words":           {"quoted'", "words"},
	}
	for in, want := range cases {
		if got := Tokenize(in); !reflect.DeepEqual(got, want) {
			t.Fatalf("Tokenize(%q) = %#v, want %#v", in, got, want)
		}
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 1}); got != -1 {
		t.Fatalf("zero norm: expected -1, got %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{1, 0, 0}); got != -1 {
		t.Fatalf("length mismatch: expected -1, got %v", got)
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {3, 4}})
	if !reflect.DeepEqual(got, []float32{2, 3}) {
		t.Fatalf("unexpected mean %v", got)
	}
	if Mean(nil) != nil {
		t.Fatalf("expected nil mean for no vectors")
	}
}

func TestReadSkipsBadRows(t *testing.T) {
	table, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if table.Dim != 3 || table.Len() != 3 {
		t.Fatalf("expected dim 3 and 3 tokens, got dim %d len %d", table.Dim, table.Len())
	}
	if table.Skipped != 2 {
		t.Fatalf("expected 2 skipped rows, got %d", table.Skipped)
	}
	v, ok := table.Lookup("GYM")
	if !ok || v[0] != 1 {
		t.Fatalf("first occurrence should win, got %v", v)
	}
}

func TestVector(t *testing.T) {
	table, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	v, ok := table.Vector("Gym WORKOUT unknownword")
	if !ok {
		t.Fatalf("expected a vector")
	}
	if math.Abs(float64(v[0])-0.9) > 1e-6 || math.Abs(float64(v[1])-0.1) > 1e-6 {
		t.Fatalf("unexpected mean vector %v", v)
	}
	if _, ok := table.Vector("!!! 42"); ok {
		t.Fatalf("punctuation should not embed")
	}
	if _, ok := table.Vector("nothing known here"); ok {
		t.Fatalf("out of vocabulary text should not embed")
	}
}

func TestReadEmpty(t *testing.T) {
	if _, err := Read(strings.NewReader("2 3\n")); !errors.Is(err, ErrNoVectors) {
		t.Fatalf("expected ErrNoVectors, got %v", err)
	}
}

func TestLoadGzipAndResolve(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tiny-model.vec.gz")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(sample)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r := Resolver{ModelsDir: dir}
	got, err := r.Resolve("tiny-model")
	if err != nil || got != p {
		t.Fatalf("resolve: %q, %v", got, err)
	}
	table, err := r.Open("tiny-model")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 tokens, got %d", table.Len())
	}

	if _, err := r.Resolve("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := r.Resolve("../escape"); err == nil {
		t.Fatalf("expected invalid id error")
	}
	direct := Resolver{ModelsDir: "/nowhere", Path: p}
	if got, err := direct.Resolve("ignored"); err != nil || got != p {
		t.Fatalf("direct path: %q, %v", got, err)
	}
}

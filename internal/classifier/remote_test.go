package classifier

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/logx"
)

func newRemote(url string) *Remote {
	return NewRemote(url, "/v0", 200*time.Millisecond, 100*time.Millisecond, logx.Nop())
}

func TestRemoteClassify(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/classify" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"Fitness","scores":[["Fitness",0.91],["Health",0.4]],"model_ready":true}`))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.UnknownThreshold = NoThreshold
	res := newRemote(srv.URL).Classify(context.Background(), "gym", opts)
	if res.Category != "Fitness" || !res.ModelReady || len(res.Scores) != 2 || res.Scores[1].Similarity != 0.4 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got["text"] != "gym" || got["top_k"] != float64(3) || got["unknown_threshold"] != float64(-1) {
		t.Fatalf("unexpected request %+v", got)
	}
}

func assertDegraded(t *testing.T, res domain.ClassificationResult) {
	t.Helper()
	if res.Category != domain.Uncategorized || len(res.Scores) != 0 || res.ModelReady {
		t.Fatalf("expected degraded result, got %+v", res)
	}
}

func TestRemoteDegradesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"internal"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	assertDegraded(t, newRemote(srv.URL).Classify(context.Background(), "gym", DefaultOptions()))
}

func TestRemoteDegradesOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	assertDegraded(t, newRemote(srv.URL).Classify(context.Background(), "gym", DefaultOptions()))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced: %v", elapsed)
	}
}

func TestRemoteDegradesWhenRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	r := newRemote("http://" + addr)
	assertDegraded(t, r.Classify(context.Background(), "gym", DefaultOptions()))
	if r.Available(context.Background()) {
		t.Fatalf("unreachable service cannot be available")
	}
	if err := r.Preload(context.Background()); err == nil {
		t.Fatalf("expected preload error")
	}
}

func TestRemoteHealthAndMetadata(t *testing.T) {
	var ready atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "model_ready": ready.Load()})
	})
	mux.HandleFunc("/v0/categories", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "{}", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"categories":[{"name":"Work","color":"#1e40af"}],"embedding_model":"tiny","vector_dim":3}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newRemote(srv.URL)
	ctx := context.Background()
	if r.Loaded(ctx) {
		t.Fatalf("service not ready yet")
	}
	if err := r.Preload(ctx); err == nil {
		t.Fatalf("expected not ready error")
	}
	if _, ok := r.Metadata(ctx); ok {
		t.Fatalf("no metadata while not ready")
	}
	ready.Store(true)
	if !r.Available(ctx) || r.Preload(ctx) != nil {
		t.Fatalf("expected ready service")
	}
	meta, ok := r.Metadata(ctx)
	if !ok || meta.EmbeddingModel != "tiny" || len(meta.Categories) != 1 || meta.Categories[0].Name != "Work" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestWireOptionsStayInServiceRange(t *testing.T) {
	cases := []struct {
		opts      Options
		topK      int
		threshold float64
	}{
		{DefaultOptions(), 3, 0.25},
		{Options{TopK: -4, UnknownThreshold: 0.5}, 0, 0.5},
		{Options{TopK: 2, UnknownThreshold: NoThreshold}, 2, -1},
		{Options{TopK: 2, UnknownThreshold: -3}, 2, -1},
		{Options{TopK: 2, UnknownThreshold: math.NaN()}, 2, -1},
		{Options{TopK: 2, UnknownThreshold: 1.5}, 2, 1},
	}
	for _, tc := range cases {
		topK, th := wireOptions(tc.opts)
		if topK != tc.topK || th != tc.threshold {
			t.Fatalf("wireOptions(%+v) = %d, %v; want %d, %v", tc.opts, topK, th, tc.topK, tc.threshold)
		}
	}
}

func TestRemoteRejectsEverythingAboveOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"category":"Fitness","scores":[["Fitness",1]],"model_ready":true}`))
	}))
	defer srv.Close()
	res := newRemote(srv.URL).Classify(context.Background(), "gym", Options{TopK: 1, UnknownThreshold: 1.5})
	if res.Category != domain.Uncategorized || len(res.Scores) != 1 || !res.ModelReady {
		t.Fatalf("unexpected result %+v", res)
	}
}

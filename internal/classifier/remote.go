package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/logx"
	"dayplan/internal/prototype"
	dayplansdk "dayplan/sdk/go"
)

// Remote classifies through a dp serve instance.
type Remote struct {
	Client        *dayplansdk.Client
	Timeout       time.Duration
	HealthTimeout time.Duration
	Log           logx.Logger
}

// NewRemote returns a client for the service at baseURL.
func NewRemote(baseURL, basePath string, timeout, healthTimeout time.Duration, log logx.Logger) *Remote {
	c := dayplansdk.New(baseURL)
	if basePath != "" {
		c.BasePath = basePath
	}
	return &Remote{
		Client:        c,
		Timeout:       timeout,
		HealthTimeout: healthTimeout,
		Log:           log.With(logx.String("component", "classifier"), logx.String("remote", baseURL)),
	}
}

func (r *Remote) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 5 * time.Second
}

func (r *Remote) healthTimeout() time.Duration {
	if r.HealthTimeout > 0 {
		return r.HealthTimeout
	}
	return 2 * time.Second
}

// Classify never fails: timeouts, transport errors and error statuses
// degrade to an unready Uncategorized result.
func (r *Remote) Classify(ctx context.Context, text string, opts Options) domain.ClassificationResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	topK, th := wireOptions(opts)
	req := dayplansdk.ClassifyRequest{Text: text, TopK: &topK, UnknownThreshold: &th}
	res, err := r.Client.Classify(ctx, req)
	if err != nil {
		r.Log.Warn("remote classify failed", logx.Err(err), logx.Bool("timeout", errors.Is(err, context.DeadlineExceeded)))
		return domain.Unclassified(false)
	}
	out := domain.ClassificationResult{Category: res.Category, Scores: make([]domain.Score, len(res.Scores)), ModelReady: res.ModelReady}
	for i, s := range res.Scores {
		out.Scores[i] = domain.Score{Category: s.Category, Similarity: s.Similarity}
	}
	if out.Category == "" || opts.UnknownThreshold > 1 {
		out.Category = domain.Uncategorized
	}
	return out
}

// wireOptions maps opts onto the ranges the service accepts without
// changing the outcome. Cosine lies in [-1, 1], so any threshold at or
// below -1 (including NoThreshold and NaN) rejects nothing, and one above 1
// rejects everything; the latter is sent as 1 and enforced by the caller.
func wireOptions(opts Options) (topK int, threshold float64) {
	topK = max(opts.TopK, 0)
	threshold = opts.UnknownThreshold
	if math.IsNaN(threshold) || threshold < -1 {
		threshold = -1
	}
	return topK, math.Min(threshold, 1)
}

func (r *Remote) health(ctx context.Context) (dayplansdk.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, r.healthTimeout())
	defer cancel()
	return r.Client.Health(ctx)
}

// Available is true when the service answers its health probe with a ready model.
func (r *Remote) Available(ctx context.Context) bool {
	h, err := r.health(ctx)
	if err != nil {
		r.Log.Debug("remote health failed", logx.Err(err))
		return false
	}
	return h.ModelReady
}

func (r *Remote) Loaded(ctx context.Context) bool {
	return r.Available(ctx)
}

// Preload fails unless the service reports a ready model.
func (r *Remote) Preload(ctx context.Context) error {
	h, err := r.health(ctx)
	if err != nil {
		return fmt.Errorf("remote classifier unreachable: %w", err)
	}
	if !h.ModelReady {
		return fmt.Errorf("remote classifier at %s is not ready", r.Client.BaseURL)
	}
	return nil
}

// Metadata fetches the remote taxonomy. Seeds are not exposed remotely.
func (r *Remote) Metadata(ctx context.Context) (prototype.Meta, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	cats, err := r.Client.Categories(ctx)
	if err != nil {
		r.Log.Debug("remote categories failed", logx.Err(err))
		return prototype.Meta{}, false
	}
	meta := prototype.Meta{EmbeddingModel: cats.EmbeddingModel, VectorDim: cats.VectorDim}
	for _, c := range cats.Categories {
		meta.Categories = append(meta.Categories, domain.Category{Name: c.Name, Color: c.Color})
	}
	return meta, true
}

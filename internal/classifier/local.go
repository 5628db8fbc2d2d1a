package classifier

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"dayplan/internal/db"
	"dayplan/internal/domain"
	"dayplan/internal/embedding"
	"dayplan/internal/logx"
	"dayplan/internal/prototype"
)

const defaultDebounce = 250 * time.Millisecond

// Local classifies in-process against prototypes in ArtifactsDir.
// The model loads at most once per Local; a failed load is not retried.
type Local struct {
	ArtifactsDir string
	Resolver     embedding.Resolver
	Log          logx.Logger
	// Debounce delays reloads after artifact changes. Zero means 250ms.
	Debounce time.Duration

	once    sync.Once
	loadErr error
	loading atomic.Bool
	current atomic.Pointer[model]
}

// NewLocal returns an unloaded classifier.
func NewLocal(artifactsDir string, resolver embedding.Resolver, log logx.Logger) *Local {
	return &Local{ArtifactsDir: artifactsDir, Resolver: resolver, Log: log.With(logx.String("component", "classifier"))}
}

func (l *Local) Available(ctx context.Context) bool {
	return prototype.Exists(l.ArtifactsDir)
}

func (l *Local) Loaded(ctx context.Context) bool {
	return l.current.Load() != nil
}

// Loading reports whether a load is in progress.
func (l *Local) Loading() bool {
	return l.loading.Load()
}

// Preload performs the single load. Later calls return its outcome.
func (l *Local) Preload(ctx context.Context) error {
	l.once.Do(func() {
		l.loading.Store(true)
		defer l.loading.Store(false)
		// The load is shared by every caller, so one caller's cancellation must not abort it.
		l.loadErr = l.load(context.WithoutCancel(ctx))
	})
	return l.loadErr
}

func (l *Local) load(ctx context.Context) error {
	start := time.Now()
	set, err := prototype.Load(ctx, l.ArtifactsDir)
	if err != nil {
		l.Log.Warn("classifier load failed", logx.String("dir", l.ArtifactsDir), logx.Err(err))
		return err
	}
	table, err := l.Resolver.Open(set.Meta.EmbeddingModel)
	if err != nil {
		l.Log.Warn("embedding load failed", logx.String("model", set.Meta.EmbeddingModel), logx.Err(err))
		return fmt.Errorf("load embedding model %s: %w", set.Meta.EmbeddingModel, err)
	}
	if table.Dim != set.Meta.VectorDim {
		err := fmt.Errorf("%w: embedding dim %d, prototypes built with %d", prototype.ErrCorrupt, table.Dim, set.Meta.VectorDim)
		l.Log.Warn("classifier load failed", logx.Err(err))
		return err
	}
	l.current.Store(&model{table: table, set: set})
	l.Log.Info("classifier ready",
		logx.String("embedding_model", set.Meta.EmbeddingModel),
		logx.Int("vocabulary", table.Len()),
		logx.Int("categories", len(set.Prototypes)),
		logx.Duration("elapsed", time.Since(start)))
	return nil
}

// Classify ranks text. Without Block it never starts a load and degrades
// until the model is resident.
func (l *Local) Classify(ctx context.Context, text string, opts Options) domain.ClassificationResult {
	m := l.current.Load()
	if m == nil {
		if !opts.Block {
			return domain.Unclassified(false)
		}
		if err := l.Preload(ctx); err != nil {
			return domain.Unclassified(false)
		}
		if m = l.current.Load(); m == nil {
			return domain.Unclassified(false)
		}
	}
	return rank(m, text, opts)
}

func (l *Local) Metadata(ctx context.Context) (prototype.Meta, bool) {
	m := l.current.Load()
	if m == nil {
		return prototype.Meta{}, false
	}
	return m.set.Meta, true
}

// Watch reloads prototypes when the artifacts change until ctx is done.
// The embedding table stays as loaded; a rebuild for another model or
// dimension is rejected.
func (l *Local) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("artifact watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(l.ArtifactsDir); err != nil {
		return fmt.Errorf("artifact watch %s: %w", l.ArtifactsDir, err)
	}
	delay := l.Debounce
	if delay <= 0 {
		delay = defaultDebounce
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() { l.Reload(ctx) })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	l.Log.Debug("artifact watcher started", logx.String("dir", l.ArtifactsDir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if isArtifact(ev.Name) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if err == fsnotify.ErrEventOverflow {
				debounce()
				continue
			}
			l.Log.Warn("artifact watch error", logx.Err(err))
		}
	}
}

func isArtifact(name string) bool {
	base := filepath.Base(name)
	return base == prototype.MetaFile || strings.HasPrefix(base, filepath.Base(db.Path("")))
}

// Reload swaps in freshly built prototypes. It reports whether a swap happened.
func (l *Local) Reload(ctx context.Context) bool {
	cur := l.current.Load()
	if cur == nil {
		return false
	}
	set, err := prototype.Load(ctx, l.ArtifactsDir)
	if err != nil {
		l.Log.Warn("prototype reload failed", logx.Err(err))
		return false
	}
	if set.Meta.EmbeddingModel != cur.set.Meta.EmbeddingModel || set.Meta.VectorDim != cur.table.Dim {
		l.Log.Warn("prototype reload rejected",
			logx.String("loaded_model", cur.set.Meta.EmbeddingModel),
			logx.String("artifact_model", set.Meta.EmbeddingModel),
			logx.Int("artifact_dim", set.Meta.VectorDim))
		return false
	}
	if set.Meta.BuildID != "" && set.Meta.BuildID == cur.set.Meta.BuildID {
		return false
	}
	l.current.Store(&model{table: cur.table, set: set})
	l.Log.Info("prototypes reloaded",
		logx.String("build_id", set.Meta.BuildID),
		logx.Strings("categories", set.Meta.CategoryNames()))
	return true
}

package prototype

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dayplan/internal/db"
	"dayplan/internal/domain"
	"dayplan/internal/events"
	"dayplan/internal/migrate"
	"dayplan/internal/repo"
)

// Archive is an open prototype archive in an artifact directory.
type Archive struct {
	Dir    string
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

// OpenArchive opens the archive in dir. With create unset a missing archive
// yields ErrNotBuilt; otherwise it is created and migrated.
func OpenArchive(ctx context.Context, dir string, create bool) (*Archive, error) {
	conn, err := db.Open(db.Config{Dir: dir, MustExist: !create})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotBuilt, db.Path(dir))
		}
		return nil, err
	}
	if create {
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate archive: %w", err)
		}
	} else if err := checkVersion(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Archive{
		Dir:  dir,
		DB:   conn,
		Repo: repo.Repo{DB: conn},
		Now:  time.Now,
	}, nil
}

func checkVersion(ctx context.Context, conn *sql.DB) error {
	want, err := migrate.Latest()
	if err != nil {
		return err
	}
	got, err := migrate.Version(ctx, conn)
	if err != nil {
		return fmt.Errorf("%w: read schema version: %v", ErrCorrupt, err)
	}
	if got != want {
		return fmt.Errorf("%w: archive schema version %d, want %d; rebuild with dp prototypes build", ErrCorrupt, got, want)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.DB.Close()
}

// Save replaces the stored prototypes and records the build.
func (a *Archive) Save(ctx context.Context, set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	a.Events.Now = a.Now
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := a.Repo.ReplacePrototypes(ctx, tx, set.Meta.BuildID, set.Prototypes); err != nil {
		return err
	}
	seedsUsed := 0
	for _, p := range set.Prototypes {
		seedsUsed += p.SeedsUsed
	}
	payload := events.EventPayload{
		"embedding_model": set.Meta.EmbeddingModel,
		"vector_dim":      set.Meta.VectorDim,
		"categories":      len(set.Prototypes),
		"seeds_used":      seedsUsed,
	}
	if err := a.Events.Append(ctx, tx, events.TypePrototypesBuilt, set.Meta.BuildID, payload); err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return writeMeta(a.Dir, set.Meta)
}

// Load reads the stored prototypes together with meta.json.
func (a *Archive) Load(ctx context.Context) (*Set, error) {
	meta, err := ReadMeta(a.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrNotBuilt, MetaFile)
		}
		return nil, err
	}
	protos, err := a.Repo.ListPrototypes(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrCorruptVector) {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil, fmt.Errorf("list prototypes: %w", err)
	}
	set := &Set{Meta: meta, Prototypes: protos}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// History returns recorded builds, newest first.
func (a *Archive) History(ctx context.Context, limit int) ([]domain.ArchiveEvent, error) {
	return a.Repo.ListEvents(ctx, events.TypePrototypesBuilt, limit)
}

// LastBuild returns the newest build record, or repo.ErrNotFound.
func (a *Archive) LastBuild(ctx context.Context) (domain.ArchiveEvent, error) {
	return a.Repo.LatestEvent(ctx, events.TypePrototypesBuilt)
}

// Save writes set into dir, creating the directory when needed.
func Save(ctx context.Context, dir string, set *Set) error {
	a, err := OpenArchive(ctx, dir, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Save(ctx, set)
}

// Load reads the prototype set in dir.
func Load(ctx context.Context, dir string) (*Set, error) {
	if !Exists(dir) {
		return nil, fmt.Errorf("%w in %s", ErrNotBuilt, dir)
	}
	a, err := OpenArchive(ctx, dir, false)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Load(ctx)
}

// Exists reports whether both artifacts are present in dir.
func Exists(dir string) bool {
	for _, p := range []string{db.Path(dir), filepath.Join(dir, MetaFile)} {
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			return false
		}
	}
	return true
}

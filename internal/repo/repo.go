package repo

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"dayplan/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrCorruptVector is returned when a stored blob does not match its dimension.
var ErrCorruptVector = errors.New("corrupt vector blob")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrototype(row rowScanner) (domain.Prototype, error) {
	var (
		p    domain.Prototype
		dim  int
		blob []byte
	)
	if err := row.Scan(&p.Category, &p.Position, &p.Color, &p.SeedsUsed, &dim, &blob); err != nil {
		return p, err
	}
	vec, err := DecodeVector(blob, dim)
	if err != nil {
		return p, fmt.Errorf("prototype %s: %w", p.Category, err)
	}
	p.Vector = vec
	return p, nil
}

// ReplacePrototypes swaps the whole prototype set inside tx.
func (r Repo) ReplacePrototypes(ctx context.Context, tx *sql.Tx, buildID string, protos []domain.Prototype) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM prototypes`); err != nil {
		return fmt.Errorf("clear prototypes: %w", err)
	}
	for _, p := range protos {
		_, err := tx.ExecContext(ctx, `INSERT INTO prototypes(category,position,color,dim,seeds_used,vector,build_id) VALUES (?,?,?,?,?,?,?)`,
			p.Category, p.Position, p.Color, len(p.Vector), p.SeedsUsed, EncodeVector(p.Vector), buildID)
		if err != nil {
			return fmt.Errorf("insert prototype %s: %w", p.Category, err)
		}
	}
	return nil
}

// ListPrototypes returns every prototype in insertion order.
func (r Repo) ListPrototypes(ctx context.Context) ([]domain.Prototype, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT category,position,color,seeds_used,dim,vector FROM prototypes ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Prototype
	for rows.Next() {
		p, err := scanPrototype(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListEvents returns archive history newest first. An empty type matches all.
func (r Repo) ListEvents(ctx context.Context, evtType string, limit int) ([]domain.ArchiveEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(build_id,''),payload_json FROM events WHERE (?='' OR type=?) ORDER BY id DESC LIMIT ?`,
		evtType, evtType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ArchiveEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvent returns the newest event of evtType.
func (r Repo) LatestEvent(ctx context.Context, evtType string) (domain.ArchiveEvent, error) {
	events, err := r.ListEvents(ctx, evtType, 1)
	if err != nil {
		return domain.ArchiveEvent{}, err
	}
	if len(events) == 0 {
		return domain.ArchiveEvent{}, ErrNotFound
	}
	return events[0], nil
}

func scanEvent(row rowScanner) (domain.ArchiveEvent, error) {
	var (
		e       domain.ArchiveEvent
		payload string
	)
	if err := row.Scan(&e.ID, &e.TS, &e.Type, &e.BuildID, &payload); err != nil {
		return e, err
	}
	e.Payload = map[string]any{}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return e, fmt.Errorf("event %d payload: %w", e.ID, err)
		}
	}
	return e, nil
}

// EncodeVector packs v as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector unpacks a little-endian float32 blob of dim components.
func DecodeVector(blob []byte, dim int) ([]float32, error) {
	if dim <= 0 || len(blob) != 4*dim {
		return nil, fmt.Errorf("%w: %d bytes for dim %d", ErrCorruptVector, len(blob), dim)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// TypePrototypesBuilt records a completed prototype build.
const TypePrototypesBuilt = "prototypes.built"

// Writer appends history rows to the prototype archive.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, buildID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,build_id,payload_json) VALUES (?,?,?,?)`,
		ts, evtType, nullable(buildID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

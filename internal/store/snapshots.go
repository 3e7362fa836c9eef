package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// Snapshot is the persisted form of a session: the serialized embedding
// cache and the JSON-encoded reconciliation state.
type Snapshot struct {
	ID         *surrealmodels.RecordID `json:"id,omitempty"`
	SessionID  string                  `json:"session_id"`
	Cache      string                  `json:"cache"`
	State      string                  `json:"state"`
	Increments int                     `json:"increments"`
	Created    time.Time               `json:"created,omitempty"`
	Updated    time.Time               `json:"updated,omitempty"`
}

type reportRecord struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	SessionID string                  `json:"session_id"`
	ModelID   string                  `json:"model_id"`
	Body      string                  `json:"body"`
	Created   time.Time               `json:"created,omitempty"`
}

// SaveSnapshot creates or replaces the snapshot of a session.
func (c *Client) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return fmt.Errorf("save snapshot: session id is required")
	}
	_, err := surrealdb.Query[[]Snapshot](ctx, c.db, `
		UPSERT type::record("session", $id) SET
			session_id = $id,
			cache = $cache,
			state = $state,
			increments = $increments,
			updated = time::now(),
			created = IF created THEN created ELSE time::now() END
	`, map[string]any{
		"id":         snap.SessionID,
		"cache":      snap.Cache,
		"state":      snap.State,
		"increments": snap.Increments,
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", wrapQueryError(err))
	}
	return nil
}

// LoadSnapshot returns the snapshot of a session or ErrNotFound.
func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	results, err := surrealdb.Query[[]Snapshot](ctx, c.db, `
		SELECT * FROM type::record("session", $id)
	`, map[string]any{"id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("snapshot %s: %w", sessionID, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListSnapshots returns snapshots ordered by most recent update, without
// their payloads.
func (c *Client) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]Snapshot](ctx, c.db, `
		SELECT id, session_id, "" AS cache, "" AS state, increments, created, updated
		FROM session ORDER BY updated DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []Snapshot{}, nil
	}
	snaps := (*results)[0].Result
	for i := range snaps {
		if snaps[i].SessionID != "" || snaps[i].ID == nil {
			continue
		}
		if key, err := models.RecordIDString(*snaps[i].ID); err == nil {
			snaps[i].SessionID = key
		}
	}
	return snaps, nil
}

// DeleteSnapshot removes a session snapshot and its reports. Deleting a
// missing session returns ErrNotFound.
func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	results, err := surrealdb.Query[[]Snapshot](ctx, c.db, `
		DELETE report WHERE session_id = $id;
		DELETE type::record("session", $id) RETURN BEFORE;
	`, map[string]any{"id": sessionID})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) < 2 || len((*results)[1].Result) == 0 {
		return fmt.Errorf("snapshot %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// SaveReport stores a generated report for a session. Older reports are kept.
func (c *Client) SaveReport(ctx context.Context, sessionID string, rep *models.Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = surrealdb.Query[[]reportRecord](ctx, c.db, `
		CREATE report SET session_id = $session_id, model_id = $model_id, body = $body
	`, map[string]any{
		"session_id": sessionID,
		"model_id":   rep.ModelID,
		"body":       string(body),
	})
	if err != nil {
		return fmt.Errorf("save report: %w", wrapQueryError(err))
	}
	return nil
}

// LatestReport returns the most recent report for a session or ErrNotFound.
func (c *Client) LatestReport(ctx context.Context, sessionID string) (*models.Report, error) {
	results, err := surrealdb.Query[[]reportRecord](ctx, c.db, `
		SELECT * FROM report WHERE session_id = $session_id ORDER BY created DESC LIMIT 1
	`, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("report for %s: %w", sessionID, ErrNotFound)
	}
	var rep models.Report
	if err := json.Unmarshal([]byte((*results)[0].Result[0].Body), &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

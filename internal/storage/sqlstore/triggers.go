package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Triglit/flowgraph/internal/triggers"
)

var _ triggers.API = (*Store)(nil)

const triggerColumns = `id, workflow_version_id, type, name, config, is_active, created_at, updated_at`

func (s *Store) Create(ctx context.Context, p triggers.CreateParams) (triggers.Trigger, error) {
	configJSON, err := encodeJSON(p.Config)
	if err != nil {
		return triggers.Trigger{}, err
	}
	now := s.now()
	t := triggers.Trigger{
		ID:                "trg_" + uuid.NewString(),
		WorkflowVersionID: p.WorkflowVersionID,
		Type:              p.Type,
		Name:              p.Name,
		Config:            p.Config,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO triggers (`+triggerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.WorkflowVersionID, t.Type, t.Name, configJSON, t.IsActive,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return triggers.Trigger{}, fmt.Errorf("failed to insert trigger: %w", err)
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, id string, p triggers.UpdateParams) (triggers.Trigger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return triggers.Trigger{}, err
	}
	defer tx.Rollback()

	t, err := s.getTrigger(ctx, tx, id)
	if err != nil {
		return triggers.Trigger{}, err
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Config != nil {
		t.Config = p.Config
	}
	t.UpdatedAt = s.now()

	configJSON, err := encodeJSON(t.Config)
	if err != nil {
		return triggers.Trigger{}, err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE triggers SET name = ?, config = ?, updated_at = ? WHERE id = ?`),
		t.Name, configJSON, formatTime(t.UpdatedAt), id,
	)
	if err != nil {
		return triggers.Trigger{}, fmt.Errorf("failed to update trigger: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return triggers.Trigger{}, err
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM triggers WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", triggers.ErrTriggerNotFound, id)
	}
	return nil
}

func (s *Store) List(ctx context.Context, workflowVersionID string) ([]triggers.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+triggerColumns+`
		FROM triggers
		WHERE workflow_version_id = ?
		ORDER BY created_at, id`),
		workflowVersionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	defer rows.Close()

	var out []triggers.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) getTrigger(ctx context.Context, q queryer, id string) (triggers.Trigger, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+triggerColumns+` FROM triggers WHERE id = ?`), id)
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return triggers.Trigger{}, fmt.Errorf("%w: %s", triggers.ErrTriggerNotFound, id)
	}
	return t, err
}

func scanTrigger(r rowScanner) (triggers.Trigger, error) {
	var (
		t                triggers.Trigger
		configJSON       []byte
		created, updated string
	)
	if err := r.Scan(&t.ID, &t.WorkflowVersionID, &t.Type, &t.Name, &configJSON, &t.IsActive, &created, &updated); err != nil {
		return triggers.Trigger{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &t.Config); err != nil {
			return triggers.Trigger{}, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return triggers.Trigger{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return triggers.Trigger{}, err
	}
	return t, nil
}

// encodeJSON returns a string so JSONB columns receive text, not bytea.
func encodeJSON(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	s := string(b)
	return &s, nil
}

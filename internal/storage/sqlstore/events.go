package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Triglit/flowgraph/internal/events"
)

var _ events.Sink = (*Store)(nil)

// EventRow is an event as stored in the event log.
type EventRow struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	WorkflowID *string                `json:"workflow_id,omitempty"`
}

// Append inserts an event into the event log.
func (s *Store) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, workflowID string) error {
	var fieldsJSON *string
	if fields != nil {
		var err error
		if fieldsJSON, err = encodeJSON(fields); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO events (ts, level, event, msg, fields, workflow_id)
		VALUES (?, ?, ?, ?, ?, ?)`),
		formatTime(ts), level, event, nullString(msg), fieldsJSON, nullString(workflowID),
	)
	return err
}

// QueryEvents returns the last limit events, newest first. An empty
// workflowID returns events of every workflow.
func (s *Store) QueryEvents(ctx context.Context, workflowID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `SELECT event_id, ts, level, event, msg, fields, workflow_id FROM events`
	args := []interface{}{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY ts DESC, event_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			e          EventRow
			ts         string
			fieldsJSON []byte
			msg, wf    sql.NullString
		)
		if err := rows.Scan(&e.EventID, &ts, &e.Level, &e.Event, &msg, &fieldsJSON, &wf); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if wf.Valid {
			e.WorkflowID = &wf.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

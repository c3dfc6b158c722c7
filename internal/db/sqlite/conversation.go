package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/pkg/models"
)

var _ db.ConversationLog = (*Store)(nil)

// DefaultConversationLimit caps ListByUser when no limit is given.
const DefaultConversationLimit = 100

// Append stores a conversation entry and returns its id.
// CreatedAt defaults to now.
func (s *Store) Append(ctx context.Context, entry *models.ConversationEntry) (int64, error) {
	if strings.TrimSpace(entry.UserID) == "" {
		entry.UserID = "anonymous"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	symptoms := entry.Symptoms
	if symptoms == nil {
		symptoms = map[string]int{}
	}
	data, err := json.Marshal(symptoms)
	if err != nil {
		return 0, fmt.Errorf("encode symptoms: %w", err)
	}

	res, err := s.ExecContext(ctx, `
		INSERT INTO conversations (user_id, message, prediction, symptoms, created_at, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.Message, entry.Prediction, string(data),
		entry.CreatedAt.Format(time.RFC3339Nano), entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("append conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append conversation: %w", err)
	}
	entry.ID = id
	return id, nil
}

// ListByUser returns a user's entries newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ConversationEntry, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}

	rows, err := s.QueryContext(ctx, `
		SELECT id, user_id, message, prediction, symptoms, created_at_epoch
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at_epoch DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationEntry
	for rows.Next() {
		var (
			e        models.ConversationEntry
			symptoms string
			epoch    int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.Prediction, &symptoms, &epoch); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		e.CreatedAt = time.UnixMilli(epoch).UTC()
		if symptoms != "" {
			if err := json.Unmarshal([]byte(symptoms), &e.Symptoms); err != nil {
				return nil, fmt.Errorf("decode symptoms for conversation %d: %w", e.ID, err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountByPrediction returns how many entries each prediction label has.
func (s *Store) CountByPrediction(ctx context.Context) (map[string]int, error) {
	rows, err := s.QueryContext(ctx, `SELECT prediction, COUNT(*) FROM conversations GROUP BY prediction`)
	if err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// PruneBefore deletes entries created before cutoff and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.ExecContext(ctx, `DELETE FROM conversations WHERE created_at_epoch < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune conversations: %w", err)
	}
	return res.RowsAffected()
}

package store

import (
	"context"

	"github.com/google/uuid"

	"chatvault/internal/apperr"
)

// CreateStreamID records that a generation stream was opened for chatID.
// An empty streamID is replaced with a fresh UUID.
func (s *SQLStore) CreateStreamID(ctx context.Context, streamID, chatID string) error {
	if streamID == "" {
		streamID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO streams (id, chat_id, created_at) VALUES (?, ?, ?)`),
		streamID, chatID, toMillis(s.timestamp()),
	)
	if err != nil {
		return apperr.Database("failed to create stream id", err)
	}
	return nil
}

// GetStreamIDsByChatID lists a chat's stream ids oldest first; the last
// entry is the most recent stream to resume.
func (s *SQLStore) GetStreamIDsByChatID(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT id FROM streams WHERE chat_id = ? ORDER BY created_at ASC, id ASC`),
		chatID,
	)
	if err != nil {
		return nil, apperr.Database("failed to get stream ids by chat id", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, apperr.Database("failed to get stream ids by chat id", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

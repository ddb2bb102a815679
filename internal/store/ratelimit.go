package store

import (
	"context"
	"time"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

// GetMessageCountByUserID counts the user-authored messages across all of
// userID's chats created at or after now-window. It has no side effects;
// comparing the count against a quota is the caller's decision.
func (s *SQLStore) GetMessageCountByUserID(ctx context.Context, userID string, window time.Duration) (int, error) {
	const op = "failed to get message count by user id"
	threshold := toMillis(s.now().Add(-window))

	chatIDs, err := s.chatIDsByUser(ctx, s.db, userID)
	if err != nil {
		return 0, apperr.Database(op, err)
	}
	if len(chatIDs) == 0 {
		return 0, nil
	}

	total := 0
	for _, part := range chunk(chatIDs, maxBatch) {
		query := inQuery(`SELECT COUNT(*) FROM messages WHERE role = ? AND created_at >= ? AND chat_id IN (%s)`, len(part))
		var n int
		if err := s.db.QueryRowContext(ctx, s.q(query), args([]any{string(models.RoleUser), threshold}, part)...).Scan(&n); err != nil {
			return 0, apperr.Database(op, err)
		}
		total += n
	}
	return total, nil
}

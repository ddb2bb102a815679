package store

import (
	"context"
	"fmt"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ChatPageRequest selects one page of a user's chats. At most one of
// StartingAfter and EndingBefore may be set; both are chat ids.
type ChatPageRequest struct {
	UserID        string
	Limit         int
	StartingAfter string
	EndingBefore  string
}

// ChatPage is one page of chats, newest first.
type ChatPage struct {
	Chats   []models.Chat `json:"chats"`
	HasMore bool          `json:"hasMore"`
}

// GetChatsByUserID pages through a user's chats ordered by createdAt
// descending. StartingAfter keeps chats newer than the cursor, EndingBefore
// chats older than it. Ties on createdAt are broken by id so the cursor is
// the compound (createdAt, id) and no row is skipped or repeated.
func (s *SQLStore) GetChatsByUserID(ctx context.Context, req ChatPageRequest) (*ChatPage, error) {
	if req.StartingAfter != "" && req.EndingBefore != "" {
		return nil, apperr.New(apperr.BadRequestAPI, "only one of starting_after or ending_before may be provided")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	query := `SELECT ` + chatColumns + ` FROM chats WHERE user_id = ?`
	params := []any{req.UserID}

	cursorID, newer := req.EndingBefore, false
	if req.StartingAfter != "" {
		cursorID, newer = req.StartingAfter, true
	}
	if cursorID != "" {
		cursor, err := s.getChat(ctx, s.db, cursorID)
		if err != nil {
			return nil, apperr.Database("failed to get chats by user id", err)
		}
		if cursor == nil {
			return nil, apperr.New(apperr.NotFoundDatabase, fmt.Sprintf("chat with id %s not found", cursorID))
		}
		op := "<"
		if newer {
			op = ">"
		}
		query += ` AND (created_at ` + op + ` ? OR (created_at = ? AND id ` + op + ` ?))`
		at := toMillis(cursor.CreatedAt)
		params = append(params, at, at, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	params = append(params, limit+1)

	rows, err := s.db.QueryContext(ctx, s.q(query), params...)
	if err != nil {
		return nil, apperr.Database("failed to get chats by user id", err)
	}
	chats, err := scanChats(rows)
	if err != nil {
		return nil, apperr.Database("failed to get chats by user id", err)
	}

	hasMore := len(chats) > limit
	if hasMore {
		chats = chats[:limit]
	}
	return &ChatPage{Chats: chats, HasMore: hasMore}, nil
}

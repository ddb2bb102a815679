package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

const chatColumns = `id, created_at, title, user_id, visibility`

// BestEffort is returned by writes whose failure must never abort the
// caller. The failure has already been logged when Err is set.
type BestEffort struct {
	Err error
}

// OK reports whether the write was applied without error.
func (b BestEffort) OK() bool { return b.Err == nil }

// SaveChat inserts a new chat. Empty ID and CreatedAt are filled in.
func (s *SQLStore) SaveChat(ctx context.Context, chat models.Chat) (*models.Chat, error) {
	if strings.TrimSpace(chat.UserID) == "" {
		return nil, apperr.New(apperr.BadRequestAPI, "chat owner is required")
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = s.timestamp()
	}
	chat.CreatedAt = chat.CreatedAt.UTC().Truncate(time.Millisecond)
	if chat.Visibility == "" {
		chat.Visibility = models.VisibilityPrivate
	}
	if !chat.Visibility.Valid() {
		return nil, apperr.New(apperr.BadRequestAPI, "invalid visibility")
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO chats (`+chatColumns+`) VALUES (?, ?, ?, ?, ?)`),
		chat.ID, toMillis(chat.CreatedAt), chat.Title, chat.UserID, string(chat.Visibility),
	)
	if err != nil {
		return nil, apperr.Database("failed to save chat", err)
	}
	return &chat, nil
}

// GetChatByID returns nil when the chat does not exist.
func (s *SQLStore) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	chat, err := s.getChat(ctx, s.db, id)
	if err != nil {
		return nil, apperr.Database("failed to get chat by id", err)
	}
	return chat, nil
}

func (s *SQLStore) getChat(ctx context.Context, q dbtx, id string) (*models.Chat, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+chatColumns+` FROM chats WHERE id = ?`), id)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// UpdateChatVisibilityByID changes who may read the chat.
func (s *SQLStore) UpdateChatVisibilityByID(ctx context.Context, id string, visibility models.Visibility) error {
	if !visibility.Valid() {
		return apperr.New(apperr.BadRequestAPI, "invalid visibility")
	}
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE chats SET visibility = ? WHERE id = ?`), string(visibility), id); err != nil {
		return apperr.Database("failed to update chat visibility by id", err)
	}
	return nil
}

// UpdateChatTitleByID sets the title. Failures are logged and reported in
// the result but never returned as an error.
func (s *SQLStore) UpdateChatTitleByID(ctx context.Context, id, title string) BestEffort {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE chats SET title = ? WHERE id = ?`), title, id); err != nil {
		log.Printf("[store] failed to update title for chat %s: %v", id, err)
		return BestEffort{Err: err}
	}
	return BestEffort{}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat       models.Chat
		createdAt  int64
		visibility string
	)
	if err := row.Scan(&chat.ID, &createdAt, &chat.Title, &chat.UserID, &visibility); err != nil {
		return nil, err
	}
	chat.CreatedAt = fromMillis(createdAt)
	chat.Visibility = models.Visibility(visibility)
	return &chat, nil
}

func scanChats(rows *sql.Rows) ([]models.Chat, error) {
	defer rows.Close()
	chats := make([]models.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

// chatIDsByUser resolves every chat id owned by userID.
func (s *SQLStore) chatIDsByUser(ctx context.Context, q dbtx, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, s.q(`SELECT id FROM chats WHERE user_id = ?`), userID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

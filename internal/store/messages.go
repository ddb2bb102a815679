package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

const messageColumns = `id, chat_id, role, parts, attachments, created_at`

var emptyJSONArray = json.RawMessage(`[]`)

// SaveMessages inserts all messages in one transaction. Empty IDs,
// timestamps and JSON arrays are filled in; the saved rows are returned.
func (s *SQLStore) SaveMessages(ctx context.Context, messages []models.Message) ([]models.Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	now := s.timestamp()
	saved := make([]models.Message, len(messages))
	for i, msg := range messages {
		if msg.ChatID == "" {
			return nil, apperr.New(apperr.BadRequestAPI, "message chat id is required")
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
		if len(msg.Parts) == 0 {
			msg.Parts = emptyJSONArray
		}
		if len(msg.Attachments) == 0 {
			msg.Attachments = emptyJSONArray
		}
		saved[i] = msg
	}

	err := s.withTx(ctx, "failed to save messages", func(tx dbtx) error {
		stmt := s.q(`INSERT INTO messages (` + messageColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
		for _, msg := range saved {
			if _, err := tx.ExecContext(ctx, stmt,
				msg.ID, msg.ChatID, string(msg.Role), string(msg.Parts), string(msg.Attachments), toMillis(msg.CreatedAt),
			); err != nil {
				return apperr.Database("failed to save messages", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetMessagesByChatID lists a chat's messages oldest first.
func (s *SQLStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`),
		chatID,
	)
	if err != nil {
		return nil, apperr.Database("failed to get messages by chat id", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Database("failed to get messages by chat id", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("failed to get messages by chat id", err)
	}
	return messages, nil
}

// GetMessageByID returns nil when the message does not exist.
func (s *SQLStore) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database("failed to get message by id", err)
	}
	return msg, nil
}

// VoteMessage records an up or down vote; a second vote on the same
// (chat, message) pair overwrites the first. The message must belong to the
// chat, otherwise the vote would outlive the chat cascades that own it.
func (s *SQLStore) VoteMessage(ctx context.Context, chatID, messageID string, vote models.VoteType) error {
	if vote != models.VoteUp && vote != models.VoteDown {
		return apperr.New(apperr.BadRequestAPI, "vote type must be up or down")
	}
	stmt := s.dialect.Upsert("votes",
		[]string{"chat_id", "message_id", "is_upvoted"},
		[]string{"chat_id", "message_id"},
		[]string{"is_upvoted"},
	)
	return s.withTx(ctx, "failed to vote message", func(tx dbtx) error {
		var found int
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT 1 FROM messages WHERE id = ? AND chat_id = ?`), messageID, chatID,
		).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFoundDatabase, fmt.Sprintf("message %s not found in chat %s", messageID, chatID))
		}
		if err != nil {
			return apperr.Database("failed to vote message", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, chatID, messageID, vote == models.VoteUp); err != nil {
			return apperr.Database("failed to vote message", err)
		}
		return nil
	})
}

// GetVotesByChatID lists every vote cast in a chat.
func (s *SQLStore) GetVotesByChatID(ctx context.Context, chatID string) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT chat_id, message_id, is_upvoted FROM votes WHERE chat_id = ? ORDER BY message_id`),
		chatID,
	)
	if err != nil {
		return nil, apperr.Database("failed to get votes by chat id", err)
	}
	defer rows.Close()

	votes := make([]models.Vote, 0)
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ChatID, &v.MessageID, &v.IsUpvoted); err != nil {
			return nil, apperr.Database("failed to get votes by chat id", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("failed to get votes by chat id", err)
	}
	return votes, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg         models.Message
		role        string
		parts       []byte
		attachments []byte
		createdAt   int64
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &role, &parts, &attachments, &createdAt); err != nil {
		return nil, err
	}
	msg.Role = models.Role(role)
	msg.Parts = json.RawMessage(parts)
	msg.Attachments = json.RawMessage(attachments)
	msg.CreatedAt = fromMillis(createdAt)
	return &msg, nil
}

package store

import (
	"context"
	"time"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

// Every cascade below runs in one transaction and deletes children before
// parents, filtering by explicit ids. Running any of them twice is a no-op.

// DeleteChatByID removes the chat's votes, messages and streams, then the
// chat itself. It returns the deleted chat, or nil when it did not exist.
func (s *SQLStore) DeleteChatByID(ctx context.Context, id string) (*models.Chat, error) {
	const op = "failed to delete chat by id"
	var deleted *models.Chat
	err := s.withTx(ctx, op, func(tx dbtx) error {
		chat, err := s.getChat(ctx, tx, id)
		if err != nil {
			return apperr.Database(op, err)
		}
		for _, stmt := range []string{
			`DELETE FROM votes WHERE chat_id = ?`,
			`DELETE FROM messages WHERE chat_id = ?`,
			`DELETE FROM streams WHERE chat_id = ?`,
			`DELETE FROM chats WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
				return apperr.Database(op, err)
			}
		}
		deleted = chat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteAllChatsByUserID removes every chat owned by userID together with
// its dependents and reports how many chats were removed.
func (s *SQLStore) DeleteAllChatsByUserID(ctx context.Context, userID string) (int, error) {
	const op = "failed to delete all chats by user id"
	var deleted int64
	err := s.withTx(ctx, op, func(tx dbtx) error {
		chatIDs, err := s.chatIDsByUser(ctx, tx, userID)
		if err != nil {
			return apperr.Database(op, err)
		}
		if len(chatIDs) == 0 {
			return nil
		}
		for _, stmt := range []string{
			`DELETE FROM votes WHERE chat_id IN (%s)`,
			`DELETE FROM messages WHERE chat_id IN (%s)`,
			`DELETE FROM streams WHERE chat_id IN (%s)`,
		} {
			if _, err := s.execBatched(ctx, tx, stmt, nil, chatIDs); err != nil {
				return apperr.Database(op, err)
			}
		}
		n, err := s.execBatched(ctx, tx, `DELETE FROM chats WHERE id IN (%s)`, nil, chatIDs)
		if err != nil {
			return apperr.Database(op, err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// DeleteDocumentsByIDAfterTimestamp drops every revision of id created
// strictly after ts, and the suggestions attached to those revisions.
// The removed revisions are returned.
func (s *SQLStore) DeleteDocumentsByIDAfterTimestamp(ctx context.Context, id string, ts time.Time) ([]models.Document, error) {
	const op = "failed to delete documents by id after timestamp"
	cutoff := toMillis(ts)
	var removed []models.Document
	err := s.withTx(ctx, op, func(tx dbtx) error {
		if _, err := tx.ExecContext(ctx,
			s.q(`DELETE FROM suggestions WHERE document_id = ? AND document_created_at > ?`),
			id, cutoff,
		); err != nil {
			return apperr.Database(op, err)
		}
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT `+documentColumns+` FROM documents WHERE id = ? AND created_at > ? ORDER BY created_at ASC`),
			id, cutoff,
		)
		if err != nil {
			return apperr.Database(op, err)
		}
		docs, err := scanDocuments(rows)
		if err != nil {
			return apperr.Database(op, err)
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`DELETE FROM documents WHERE id = ? AND created_at > ?`),
			id, cutoff,
		); err != nil {
			return apperr.Database(op, err)
		}
		removed = docs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteMessagesByChatIDAfterTimestamp removes the chat's messages created at
// or after ts, and their votes. It returns the number of messages removed.
func (s *SQLStore) DeleteMessagesByChatIDAfterTimestamp(ctx context.Context, chatID string, ts time.Time) (int, error) {
	const op = "failed to delete messages by chat id after timestamp"
	var deleted int64
	err := s.withTx(ctx, op, func(tx dbtx) error {
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT id FROM messages WHERE chat_id = ? AND created_at >= ?`),
			chatID, toMillis(ts),
		)
		if err != nil {
			return apperr.Database(op, err)
		}
		messageIDs, err := scanIDs(rows)
		if err != nil {
			return apperr.Database(op, err)
		}
		if len(messageIDs) == 0 {
			return nil
		}
		prefix := []any{chatID}
		if _, err := s.execBatched(ctx, tx, `DELETE FROM votes WHERE chat_id = ? AND message_id IN (%s)`, prefix, messageIDs); err != nil {
			return apperr.Database(op, err)
		}
		n, err := s.execBatched(ctx, tx, `DELETE FROM messages WHERE chat_id = ? AND id IN (%s)`, prefix, messageIDs)
		if err != nil {
			return apperr.Database(op, err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

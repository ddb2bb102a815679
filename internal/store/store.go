// Package store persists chats, messages, votes, documents, suggestions and
// resumable stream markers, and owns the cascades that keep them consistent.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
	"chatvault/internal/storage"
)

// Repository is the narrow persistence surface the API layer depends on.
type Repository interface {
	SaveChat(ctx context.Context, chat models.Chat) (*models.Chat, error)
	GetChatByID(ctx context.Context, id string) (*models.Chat, error)
	GetChatsByUserID(ctx context.Context, req ChatPageRequest) (*ChatPage, error)
	UpdateChatVisibilityByID(ctx context.Context, id string, visibility models.Visibility) error
	UpdateChatTitleByID(ctx context.Context, id, title string) BestEffort
	DeleteChatByID(ctx context.Context, id string) (*models.Chat, error)
	DeleteAllChatsByUserID(ctx context.Context, userID string) (int, error)

	SaveMessages(ctx context.Context, messages []models.Message) ([]models.Message, error)
	GetMessagesByChatID(ctx context.Context, chatID string) ([]models.Message, error)
	GetMessageByID(ctx context.Context, id string) (*models.Message, error)
	DeleteMessagesByChatIDAfterTimestamp(ctx context.Context, chatID string, ts time.Time) (int, error)
	GetMessageCountByUserID(ctx context.Context, userID string, window time.Duration) (int, error)

	VoteMessage(ctx context.Context, chatID, messageID string, vote models.VoteType) error
	GetVotesByChatID(ctx context.Context, chatID string) ([]models.Vote, error)

	SaveDocument(ctx context.Context, doc models.Document) (*models.Document, error)
	GetDocumentsByID(ctx context.Context, id string) ([]models.Document, error)
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	DeleteDocumentsByIDAfterTimestamp(ctx context.Context, id string, ts time.Time) ([]models.Document, error)
	SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) ([]models.Suggestion, error)
	GetSuggestionsByDocumentID(ctx context.Context, documentID string) ([]models.Suggestion, error)

	CreateStreamID(ctx context.Context, streamID, chatID string) error
	GetStreamIDsByChatID(ctx context.Context, chatID string) ([]string, error)
}

var _ Repository = (*SQLStore)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Repository on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
	now     func() time.Time
}

// Option customises an SQLStore.
type Option func(*SQLStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a store over an opened, migrated database.
func New(db *sql.DB, dialect storage.Dialect, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// q rewrites placeholders for the configured dialect.
func (s *SQLStore) q(query string) string {
	return s.dialect.Rebind(query)
}

// withTx runs fn in one transaction. fn's error is returned unchanged so the
// caller's apperr kind survives; begin/commit failures become database errors.
func (s *SQLStore) withTx(ctx context.Context, op string, fn func(tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperr.Database(op, err)
	}
	return nil
}

func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// maxBatch keeps IN (...) lists below every driver's placeholder limit.
const maxBatch = 500

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = maxBatch
	}
	var out [][]string
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func args(prefix []any, ids []string) []any {
	out := make([]any, 0, len(prefix)+len(ids))
	out = append(out, prefix...)
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}

// execBatched runs query once per chunk of ids. query must contain a single
// "%s" where the IN placeholder list goes, after any prefix placeholders.
func (s *SQLStore) execBatched(ctx context.Context, q dbtx, query string, prefix []any, ids []string) (int64, error) {
	var total int64
	for _, part := range chunk(ids, maxBatch) {
		res, err := q.ExecContext(ctx, s.q(inQuery(query, len(part))), args(prefix, part)...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func inQuery(query string, n int) string {
	return strings.Replace(query, "%s", storage.Placeholders(n), 1)
}

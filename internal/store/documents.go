package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
)

const (
	documentColumns   = `id, created_at, title, content, kind, user_id`
	suggestionColumns = `id, document_id, document_created_at, original_text, suggested_text, description, is_resolved, user_id, created_at`
)

// SaveDocument stores a new revision of doc.ID stamped with the current time.
func (s *SQLStore) SaveDocument(ctx context.Context, doc models.Document) (*models.Document, error) {
	if doc.UserID == "" {
		return nil, apperr.New(apperr.BadRequestAPI, "document owner is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Kind == "" {
		doc.Kind = models.KindText
	}

	var err error
	for attempt := 0; attempt < saveDocumentAttempts; attempt++ {
		var saved *models.Document
		if saved, err = s.saveRevision(ctx, doc); err == nil {
			return saved, nil
		}
	}
	return nil, err
}

// saveDocumentAttempts bounds retries when a concurrent writer claimed the
// same (id, created_at) key between our read and insert.
const saveDocumentAttempts = 3

func (s *SQLStore) saveRevision(ctx context.Context, doc models.Document) (*models.Document, error) {
	doc.CreatedAt = s.timestamp()
	err := s.withTx(ctx, "failed to save document", func(tx dbtx) error {
		// Revisions are keyed by (id, created_at); two saves inside the same
		// millisecond must still produce distinct, ordered revisions.
		var latest sql.NullInt64
		if err := tx.QueryRowContext(ctx, s.q(`SELECT MAX(created_at) FROM documents WHERE id = ?`), doc.ID).Scan(&latest); err != nil {
			return apperr.Database("failed to save document", err)
		}
		if latest.Valid && latest.Int64 >= toMillis(doc.CreatedAt) {
			doc.CreatedAt = fromMillis(latest.Int64 + 1)
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
			doc.ID, toMillis(doc.CreatedAt), doc.Title, nullString(doc.Content), string(doc.Kind), doc.UserID,
		); err != nil {
			return apperr.Database("failed to save document", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentsByID returns every revision, oldest first.
func (s *SQLStore) GetDocumentsByID(ctx context.Context, id string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+documentColumns+` FROM documents WHERE id = ? ORDER BY created_at ASC`),
		id,
	)
	if err != nil {
		return nil, apperr.Database("failed to get documents by id", err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, apperr.Database("failed to get documents by id", err)
	}
	return docs, nil
}

// GetDocumentByID returns the latest revision, or nil when none exists.
func (s *SQLStore) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+documentColumns+` FROM documents WHERE id = ? ORDER BY created_at DESC LIMIT 1`),
		id,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database("failed to get document by id", err)
	}
	return doc, nil
}

// SaveSuggestions inserts all suggestions in one transaction. Each one must
// point at an existing document revision.
func (s *SQLStore) SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) ([]models.Suggestion, error) {
	if len(suggestions) == 0 {
		return nil, nil
	}
	now := s.timestamp()
	saved := make([]models.Suggestion, len(suggestions))
	for i, sg := range suggestions {
		if sg.DocumentID == "" || sg.DocumentCreatedAt.IsZero() {
			return nil, apperr.New(apperr.BadRequestAPI, "suggestion must reference a document revision")
		}
		if sg.ID == "" {
			sg.ID = uuid.NewString()
		}
		if sg.CreatedAt.IsZero() {
			sg.CreatedAt = now
		}
		sg.CreatedAt = sg.CreatedAt.UTC().Truncate(time.Millisecond)
		sg.DocumentCreatedAt = sg.DocumentCreatedAt.UTC().Truncate(time.Millisecond)
		saved[i] = sg
	}

	err := s.withTx(ctx, "failed to save suggestions", func(tx dbtx) error {
		exists := s.q(`SELECT COUNT(*) FROM documents WHERE id = ? AND created_at = ?`)
		insert := s.q(`INSERT INTO suggestions (` + suggestionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		for _, sg := range saved {
			var n int
			if err := tx.QueryRowContext(ctx, exists, sg.DocumentID, toMillis(sg.DocumentCreatedAt)).Scan(&n); err != nil {
				return apperr.Database("failed to save suggestions", err)
			}
			if n == 0 {
				return apperr.New(apperr.NotFoundDocument, "document revision "+sg.DocumentID+" not found")
			}
			if _, err := tx.ExecContext(ctx, insert,
				sg.ID, sg.DocumentID, toMillis(sg.DocumentCreatedAt), sg.OriginalText, sg.SuggestedText,
				nullString(sg.Description), sg.IsResolved, sg.UserID, toMillis(sg.CreatedAt),
			); err != nil {
				return apperr.Database("failed to save suggestions", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetSuggestionsByDocumentID lists suggestions across all revisions, oldest first.
func (s *SQLStore) GetSuggestionsByDocumentID(ctx context.Context, documentID string) ([]models.Suggestion, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+suggestionColumns+` FROM suggestions WHERE document_id = ? ORDER BY created_at ASC, id ASC`),
		documentID,
	)
	if err != nil {
		return nil, apperr.Database("failed to get suggestions by document id", err)
	}
	defer rows.Close()

	out := make([]models.Suggestion, 0)
	for rows.Next() {
		var (
			sg          models.Suggestion
			docCreated  int64
			description sql.NullString
			createdAt   int64
		)
		if err := rows.Scan(&sg.ID, &sg.DocumentID, &docCreated, &sg.OriginalText, &sg.SuggestedText,
			&description, &sg.IsResolved, &sg.UserID, &createdAt); err != nil {
			return nil, apperr.Database("failed to get suggestions by document id", err)
		}
		sg.DocumentCreatedAt = fromMillis(docCreated)
		sg.CreatedAt = fromMillis(createdAt)
		if description.Valid {
			sg.Description = &description.String
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("failed to get suggestions by document id", err)
	}
	return out, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc       models.Document
		createdAt int64
		content   sql.NullString
		kind      string
	)
	if err := row.Scan(&doc.ID, &createdAt, &doc.Title, &content, &kind, &doc.UserID); err != nil {
		return nil, err
	}
	doc.CreatedAt = fromMillis(createdAt)
	doc.Kind = models.DocumentKind(kind)
	if content.Valid {
		doc.Content = &content.String
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]models.Document, error) {
	defer rows.Close()
	docs := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

package models

import "time"

// DocumentKind is consumed by artifact renderers; the store treats it as a tag.
type DocumentKind string

const (
	KindText  DocumentKind = "text"
	KindCode  DocumentKind = "code"
	KindImage DocumentKind = "image"
	KindSheet DocumentKind = "sheet"
)

// Document is one revision; revisions share ID and differ by CreatedAt.
type Document struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"createdAt"`
	Title     string       `json:"title"`
	Content   *string      `json:"content"`
	Kind      DocumentKind `json:"kind"`
	UserID    string       `json:"userId"`
}

// Suggestion annotates the document revision (DocumentID, DocumentCreatedAt).
type Suggestion struct {
	ID                string    `json:"id"`
	DocumentID        string    `json:"documentId"`
	DocumentCreatedAt time.Time `json:"documentCreatedAt"`
	OriginalText      string    `json:"originalText"`
	SuggestedText     string    `json:"suggestedText"`
	Description       *string   `json:"description"`
	IsResolved        bool      `json:"isResolved"`
	UserID            string    `json:"userId"`
	CreatedAt         time.Time `json:"createdAt"`
}

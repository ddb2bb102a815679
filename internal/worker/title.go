package worker

import (
	"context"
	"encoding/json"
	"strings"

	"chatvault/internal/models"
)

const (
	maxTitleRunes = 80
	fallbackTitle = "New Chat"
)

// Titler derives a chat title from the chat's first user message.
type Titler interface {
	GenerateTitle(ctx context.Context, message models.Message) (string, error)
}

// FirstTextTitler uses the first text part of the message, collapsed to a
// single line and cut at MaxRunes.
type FirstTextTitler struct {
	MaxRunes int
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (t FirstTextTitler) GenerateTitle(_ context.Context, message models.Message) (string, error) {
	limit := t.MaxRunes
	if limit <= 0 {
		limit = maxTitleRunes
	}
	var parts []messagePart
	if err := json.Unmarshal(message.Parts, &parts); err != nil {
		return "", err
	}
	for _, part := range parts {
		if part.Type != "text" {
			continue
		}
		text := strings.Join(strings.Fields(part.Text), " ")
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > limit {
			text = strings.TrimSpace(string(runes[:limit-1])) + "…"
		}
		return text, nil
	}
	return fallbackTitle, nil
}

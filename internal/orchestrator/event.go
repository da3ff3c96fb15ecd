package orchestrator

import (
	"github.com/appknox/ak-translator/internal/chunker"
	"github.com/appknox/ak-translator/internal/content"
)

type EventType string

const (
	EventMultiStarted      EventType = "multi_translation_started"
	EventLanguageStarted   EventType = "language_translation_started"
	EventLanguageCompleted EventType = "language_translation_completed"
	EventLanguageFailed    EventType = "language_translation_failed"
	EventMultiCompleted    EventType = "multi_translation_completed"
	EventTranslationError  EventType = "translation_error"
	EventPong              EventType = "pong"
)

// Event is one push message. Fields irrelevant to Type are omitted on the
// wire; TranslatedText renders as the per-language result object.
type Event struct {
	Type           EventType       `json:"type"`
	JobID          string          `json:"job_id,omitempty"`
	Language       string          `json:"language,omitempty"`
	Languages      []string        `json:"languages,omitempty"`
	TotalLanguages int             `json:"total_languages,omitempty"`
	Progress       string          `json:"progress,omitempty"`
	OriginalText   *content.Value  `json:"original_text,omitempty"`
	TranslatedText *chunker.Result `json:"translated_text,omitempty"`
	CompletedCount int             `json:"completed_count,omitempty"`
	TotalCount     int             `json:"total_count,omitempty"`
	Error          string          `json:"error,omitempty"`
}

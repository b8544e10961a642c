package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category is the coarse bucket a task is filed under.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryUrgent   Category = "urgent"
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryUrgent, CategoryWork, CategoryPersonal:
		return true
	}
	return false
}

// Sentiment is the label derived from the polarity score.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// TaskID identifies a task row. Producers send it either as a JSON string
// or as a JSON number; both are kept in their textual form.
type TaskID string

func (id *TaskID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = TaskID(strings.TrimSpace(s))
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("task_id must be a string or number: %w", err)
		}
		*id = TaskID(n.String())
		return nil
	}
}

// TaskEvent is the inbound message published when a task is created.
type TaskEvent struct {
	TaskID      TaskID `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DecodeTaskEvent parses a message body. Missing title and description
// decode to empty strings; a missing task_id is an error.
func DecodeTaskEvent(body []byte) (*TaskEvent, error) {
	var ev TaskEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.TaskID == "" {
		return nil, ErrMissingTaskID
	}
	return &ev, nil
}

// Classification is the result written onto the task record.
// Polarity is kept for logging and metrics only; it is not persisted.
type Classification struct {
	Category  Category  `json:"category"`
	Sentiment Sentiment `json:"sentiment"`
	Polarity  float64   `json:"polarity"`
}

// AnalysisResult describes one processed event.
type AnalysisResult struct {
	TaskID         TaskID         `json:"task_id"`
	Classification Classification `json:"classification"`
	// Updated is false when no task row matched the id.
	Updated    bool      `json:"updated"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

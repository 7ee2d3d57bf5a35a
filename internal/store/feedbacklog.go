package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// AppFeedback is a rider's rating of the app, submitted from the support
// screen.
type AppFeedback struct {
	UserID string `json:"user_id"`

	// Rating is 1 (poor) to 5 (excellent).
	Rating int `json:"rating"`

	// Category groups the comment, e.g. "voice", "tickets", "planner".
	Category string `json:"category,omitempty"`

	Comments string `json:"comments,omitempty"`
}

// Validate reports every problem with f.
func (f AppFeedback) Validate() error {
	var errs []error
	if f.UserID == "" {
		errs = append(errs, errors.New("user_id must not be empty"))
	}
	if f.Rating < 1 || f.Rating > 5 {
		errs = append(errs, fmt.Errorf("rating must be in [1, 5], got %d", f.Rating))
	}
	if len(f.Comments) > 4000 {
		errs = append(errs, errors.New("comments must be at most 4000 bytes"))
	}
	return errors.Join(errs...)
}

// FeedbackRecord is a single entry written to the feedback log.
type FeedbackRecord struct {
	Timestamp time.Time `json:"timestamp"`
	AppFeedback
}

// FeedbackLog persists app feedback as append-only JSON lines in a local
// file. Safe for concurrent use.
type FeedbackLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFeedbackLog creates a FeedbackLog that writes to the given path.
// The file is created on first write.
func NewFeedbackLog(path string) *FeedbackLog {
	return &FeedbackLog{path: path, now: time.Now}
}

// Append validates fb and appends it to the file.
func (l *FeedbackLog) Append(fb AppFeedback) (FeedbackRecord, error) {
	if err := fb.Validate(); err != nil {
		return FeedbackRecord{}, fmt.Errorf("store: feedback: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record := FeedbackRecord{Timestamp: l.now().UTC(), AppFeedback: fb}
	data, err := json.Marshal(record)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("store: feedback marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return FeedbackRecord{}, fmt.Errorf("store: feedback open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return FeedbackRecord{}, fmt.Errorf("store: feedback write: %w", err)
	}
	return record, nil
}

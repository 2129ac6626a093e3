// Package feedback stores user feedback records, the read-only input to the
// learning pipeline. Records are one JSON file each under a raw/ directory.
package feedback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// Type is the categorical label a user attaches to feedback.
type Type string

const (
	TypeCorrect     Type = "correct"
	TypeIncorrect   Type = "incorrect"
	TypePartial     Type = "partially_correct"
	TypePositive    Type = "positive"
	TypeSuggestion  Type = "improvement_suggestion"
	TypeUnspecified Type = ""
)

// Record is a single piece of user feedback on a chat response.
type Record struct {
	FeedbackID    string    `json:"feedback_id"`
	UserID        string    `json:"user_id"`
	Question      string    `json:"question"`
	ModelResponse string    `json:"model_response"`
	UserFeedback  string    `json:"user_feedback"`
	FeedbackType  Type      `json:"feedback_type"`
	Rating        int       `json:"rating"` // 1-5, 0 when only a type was given
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
	Notes         string    `json:"additional_notes,omitempty"`
}

// IsPositive reports whether the feedback is net-positive for counter
// reinforcement purposes.
func (r *Record) IsPositive() bool {
	return r.Rating >= 4 || r.FeedbackType == TypePositive
}

// IsNegative reports whether the feedback is net-negative.
func (r *Record) IsNegative() bool {
	return (r.Rating >= 1 && r.Rating <= 2) || r.FeedbackType == TypeIncorrect
}

// Store persists feedback records as individual JSON files.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *logging.Logger
}

// NewStore opens a feedback store rooted at dir, creating raw/ if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "raw"), 0755); err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "creating feedback directory")
	}
	return &Store{dir: dir, logger: logging.GetLogger()}, nil
}

// Save writes the record to raw/feedback_<id>_<timestamp>.json.
func (s *Store) Save(rec Record) error {
	if rec.FeedbackID == "" {
		return errors.New(errors.InvalidInput, "feedback id cannot be empty")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "marshaling feedback record")
	}

	name := "feedback_" + rec.FeedbackID + "_" + rec.Timestamp.Format("20060102_150405") + ".json"

	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, "raw", name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "writing feedback record")
	}
	return nil
}

// Get returns the record with the given feedback id.
func (s *Store) Get(feedbackID string) (*Record, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].FeedbackID == feedbackID {
			return &records[i], nil
		}
	}
	return nil, errors.WithFields(
		errors.New(errors.FeedbackNotFound, "feedback not found"),
		errors.Fields{"feedback_id": feedbackID},
	)
}

// List returns all records, newest first. Unreadable files are skipped with
// a warning rather than failing the whole listing.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "raw"))
	if err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "reading feedback directory")
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, "raw", entry.Name()))
		if err != nil {
			s.logger.Warn(context.Background(), "skipping unreadable feedback file %s: %v", entry.Name(), err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn(context.Background(), "skipping malformed feedback file %s: %v", entry.Name(), err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

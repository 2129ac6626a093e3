// Package chats stores chat turns keyed by feedback id, including which
// playbook bullets were surfaced in the prompt. The pipeline reads turns back
// when the user later rates the response.
package chats

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Turn records one question/response exchange and the bullets injected into
// its prompt.
type Turn struct {
	FeedbackID    string    `json:"feedback_id"`
	UserID        string    `json:"user_id"`
	Question      string    `json:"question"`
	ModelResponse string    `json:"model_response"`
	UsedBullets   []string  `json:"used_bullets"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is a SQLite-backed chat-turn store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	initialized sync.Once
}

// NewStore opens (or creates) the chat database at path. Pass ":memory:" for
// an in-memory database.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.PersistenceFailed, "opening chat database"),
			errors.Fields{"path": path},
		)
	}

	// One connection: sqlite serializes writes anyway, and the pool must
	// not hand out separate databases for ":memory:".
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.ensureInitialized(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.PersistenceFailed, "enabling WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS chat_turns (
            feedback_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            question TEXT NOT NULL,
            model_response TEXT NOT NULL,
            used_bullets TEXT NOT NULL DEFAULT '[]',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );

        CREATE INDEX IF NOT EXISTS idx_chat_turns_created_at
        ON chat_turns(created_at);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.PersistenceFailed, "initializing chat schema")
			return
		}
	})
	return initErr
}

// Save upserts the turn. UsedBullets is stored as a JSON array column.
func (s *Store) Save(turn Turn) error {
	if turn.FeedbackID == "" {
		return errors.New(errors.InvalidInput, "feedback id cannot be empty")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	bullets, err := json.Marshal(turn.UsedBullets)
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "marshaling used bullets")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
        INSERT INTO chat_turns (feedback_id, user_id, question, model_response, used_bullets, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(feedback_id) DO UPDATE SET
            user_id = excluded.user_id,
            question = excluded.question,
            model_response = excluded.model_response,
            used_bullets = excluded.used_bullets`,
		turn.FeedbackID, turn.UserID, turn.Question, turn.ModelResponse, string(bullets), turn.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "saving chat turn")
	}
	return nil
}

// Get returns the turn for the given feedback id.
func (s *Store) Get(feedbackID string) (*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
        SELECT feedback_id, user_id, question, model_response, used_bullets, created_at
        FROM chat_turns WHERE feedback_id = ?`, feedbackID)

	var turn Turn
	var bullets string
	err := row.Scan(&turn.FeedbackID, &turn.UserID, &turn.Question, &turn.ModelResponse, &bullets, &turn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.ChatTurnNotFound, "chat turn not found"),
			errors.Fields{"feedback_id": feedbackID},
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "reading chat turn")
	}

	if err := json.Unmarshal([]byte(bullets), &turn.UsedBullets); err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "parsing used bullets")
	}
	return &turn, nil
}

// SetResponse updates the stored model response for a turn, used when the
// response streams in after the turn was first recorded.
func (s *Store) SetResponse(feedbackID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE chat_turns SET model_response = ? WHERE feedback_id = ?`, response, feedbackID)
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "updating chat response")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.WithFields(
			errors.New(errors.ChatTurnNotFound, "chat turn not found"),
			errors.Fields{"feedback_id": feedbackID},
		)
	}
	return nil
}

// PruneOlderThan deletes turns created more than the given number of days
// ago, returning how many were removed.
func (s *Store) PruneOlderThan(days int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.Exec(`DELETE FROM chat_turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.PersistenceFailed, "pruning chat turns")
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

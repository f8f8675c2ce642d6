package store

import (
	"database/sql"
	"strings"
	"time"
)

// Transition is a stored gesture mode change.
type Transition struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Hands     []string  `json:"hands,omitempty"`
	Emergency bool      `json:"emergency"`
	At        time.Time `json:"at"`
}

// TransitionRepository provides access to transitions.
type TransitionRepository struct {
	db *sql.DB
}

// Transitions returns the transition repository for this store.
func (s *Store) Transitions() *TransitionRepository {
	return &TransitionRepository{db: s.db}
}

// Create inserts t and bumps the counters on its session in one transaction.
func (r *TransitionRepository) Create(t *Transition) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	emergency := 0
	if t.Emergency {
		emergency = 1
	}

	result, err := tx.Exec(
		`UPDATE sessions SET transitions = transitions + 1, emergencies = emergencies + ? WHERE id = ?`,
		emergency, t.SessionID,
	)
	if err != nil {
		return err
	}
	if err := expectRow(result); err != nil {
		return err
	}

	result, err = tx.Exec(
		`INSERT INTO transitions (session_id, from_mode, to_mode, hands, emergency, at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.From, t.To, strings.Join(t.Hands, ","), t.Emergency, t.At,
	)
	if err != nil {
		return err
	}

	if t.ID, err = result.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// ListBySession returns a session's transitions oldest first. limit <= 0
// returns all.
func (r *TransitionRepository) ListBySession(sessionID string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, from_mode, to_mode, hands, emergency, at
		 FROM transitions WHERE session_id = ? ORDER BY id LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		var hands string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.From, &t.To, &hands, &t.Emergency, &t.At); err != nil {
			return nil, err
		}
		if hands != "" {
			t.Hands = strings.Split(hands, ",")
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

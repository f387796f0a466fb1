package store

import (
	"database/sql"
	"time"
)

// EngagementKind marks a fingertip entering or leaving the center zone.
type EngagementKind string

const (
	EngagementEnter EngagementKind = "enter"
	EngagementLeave EngagementKind = "leave"
)

// Engagement is one engagement transition within a session.
type Engagement struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Hand      int            `json:"hand"`
	Kind      EngagementKind `json:"kind"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	At        time.Time      `json:"at"`
}

// EngagementRepository provides access to engagement events.
type EngagementRepository struct {
	db *sql.DB
}

// Engagements returns the engagement repository for this store.
func (s *Store) Engagements() *EngagementRepository {
	return &EngagementRepository{db: s.db}
}

// Record inserts an event and sets its ID.
func (r *EngagementRepository) Record(e *Engagement) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO engagements (session_id, hand, kind, x, y, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Hand, string(e.Kind), e.X, e.Y, e.At,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns a session's events in the order they happened.
func (r *EngagementRepository) ListBySession(sessionID string) ([]Engagement, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, hand, kind, x, y, at
		 FROM engagements WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Engagement
	for rows.Next() {
		var e Engagement
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Hand, &kind, &e.X, &e.Y, &e.At); err != nil {
			return nil, err
		}
		e.Kind = EngagementKind(kind)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

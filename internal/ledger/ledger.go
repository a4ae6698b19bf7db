// Package ledger provides the append-only journal of outbound writes.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the journal
type EventType string

const (
	EventWriteDispatched EventType = "write_dispatched"
	EventWriteConfirmed  EventType = "write_confirmed"
	EventWriteFailed     EventType = "write_failed"
	EventWriteRejected   EventType = "write_rejected"
	EventWriteRetry      EventType = "write_retry"
)

// Entry represents a single event in the journal
type Entry struct {
	ID        string         `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Property  string         `json:"property"`
	Value     float64        `json:"value"`
	Attempt   int            `json:"attempt"`
	Seq       uint64         `json:"seq"`
	Error     string         `json:"error,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only write journaling
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return NewWithClock(db, time.Now)
}

// NewWithClock creates a Ledger that stamps entries with now.
func NewWithClock(db *sql.DB, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, now: now}
}

// Append adds a new entry to the journal. A missing ID or timestamp is filled in.
func (l *Ledger) Append(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.Attempt == 0 {
		e.Attempt = 1
	}

	var payloadJSON []byte
	if e.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := l.db.Exec(`
		INSERT INTO write_journal (id, event_type, timestamp, property, value, attempt, seq, error, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.EventType), e.Timestamp.UTC().UnixNano(), e.Property, e.Value, e.Attempt, int64(e.Seq), errText, string(payloadJSON))
	if err != nil {
		return fmt.Errorf("failed to append %s entry: %w", e.EventType, err)
	}
	return nil
}

// Recent returns the newest entries, newest first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, property, value, attempt, seq, error, payload
		FROM write_journal
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByProperty returns the newest entries of one property, newest first
func (l *Ledger) ByProperty(property string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, property, value, attempt, seq, error, payload
		FROM write_journal
		WHERE property = ?
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, property, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// Counts returns the number of entries per event type
func (l *Ledger) Counts() (map[EventType]int, error) {
	rows, err := l.db.Query(`SELECT event_type, COUNT(*) FROM write_journal GROUP BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[EventType(t)] = n
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixNano()
	result, err := l.db.Exec(`
		DELETE FROM write_journal WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, errText sql.NullString
		var timestamp, seq int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.Property, &entry.Value,
			&entry.Attempt, &seq, &errText, &payloadStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(0, timestamp).UTC()
		entry.Seq = uint64(seq)
		if errText.Valid {
			entry.Error = errText.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so SQLite text comparison orders by time.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Accessory names used in Event.Accessory.
const (
	AccessoryDoor  = "door"
	AccessoryLight = "light"
)

// Door event kinds.
const (
	KindCurrent     = "current"
	KindTarget      = "target"
	KindObstruction = "obstruction"
	KindLight       = "on"
)

// ErrDeviceRequired is returned when a store is built without a device id.
var ErrDeviceRequired = errors.New("history: device id is required")

// Event is one recorded state change.
type Event struct {
	ID         int64     `json:"id"`
	Accessory  string    `json:"accessory"`
	Kind       string    `json:"kind"`
	Value      string    `json:"value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store reads and writes the door_events and light_events tables for one device.
//
// History is an audit trail only. Nothing reads it back to seed the state
// machines on startup.
type Store struct {
	db       *sql.DB
	deviceID string
}

// NewStore creates a store bound to deviceID.
//
// Parameters:
//   - db: Open SQLite connection with the history migrations applied
//   - deviceID: Bridge device identifier written on every row
//
// Returns:
//   - *Store: Ready for use
//   - error: ErrDeviceRequired when deviceID is empty
func NewStore(db *sql.DB, deviceID string) (*Store, error) {
	if deviceID == "" {
		return nil, ErrDeviceRequired
	}
	return &Store{db: db, deviceID: deviceID}, nil
}

// Record appends one event to the table matching its accessory.
func (s *Store) Record(ctx context.Context, e Event) error {
	at := e.OccurredAt.UTC().Format(timeLayout)

	switch e.Accessory {
	case AccessoryDoor:
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO door_events (device_id, kind, value, occurred_at) VALUES (?, ?, ?, ?)",
			s.deviceID, e.Kind, e.Value, at,
		)
		if err != nil {
			return fmt.Errorf("inserting door event: %w", err)
		}
	case AccessoryLight:
		isOn := 0
		if e.Value == "ON" {
			isOn = 1
		}
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO light_events (device_id, is_on, occurred_at) VALUES (?, ?, ?)",
			s.deviceID, isOn, at,
		)
		if err != nil {
			return fmt.Errorf("inserting light event: %w", err)
		}
	default:
		return fmt.Errorf("history: unknown accessory %q", e.Accessory)
	}
	return nil
}

// Recent returns the newest door and light events, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries (default 50, max 200)
//
// Returns:
//   - []Event: Possibly empty, never nil
//   - error: Query or decode failure
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, 'door', kind, value, occurred_at
		 FROM door_events WHERE device_id = ?
		 UNION ALL
		 SELECT id, 'light', 'on', CASE is_on WHEN 1 THEN 'ON' ELSE 'OFF' END, occurred_at
		 FROM light_events WHERE device_id = ?
		 ORDER BY 5 DESC
		 LIMIT ?`,
		s.deviceID, s.deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		var at string
		if err := rows.Scan(&e.ID, &e.Accessory, &e.Kind, &e.Value, &at); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if e.OccurredAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing occurred_at %q: %w", at, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return events, nil
}

// Prune deletes events older than olderThan from both tables.
//
// Returns:
//   - int64: Rows deleted across both tables
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: olderThan must be positive")
	}
	cutoff := now.UTC().Add(-olderThan).Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var total int64
	for _, table := range []string{"door_events", "light_events"} {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE device_id = ? AND occurred_at < ?", // #nosec G202 -- fixed table names
			s.deviceID, cutoff,
		)
		if err != nil {
			return 0, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

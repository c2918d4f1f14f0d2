package jobstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"inbox-deals-api/internal/models"
)

// keyPrefix namespaces job-handle keys away from any other state that may
// share the database file.
const keyPrefix = "backfill_job:"

// Store persists the mapping from a user to their in-flight backfill job.
// It exists so the connect flow can survive the full page reload caused by
// the OAuth redirect; staleness is detected externally by querying job
// status, so no expiry is stored here.
type Store struct {
	conn *sql.DB
}

// NewStore opens the store at the given path and initializes the schema.
func NewStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}

	s := &Store{conn: conn}

	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS job_handles (
			key TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_handles_job_id ON job_handles(job_id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

func storageKey(userID string) string {
	return keyPrefix + userID
}

// Get returns the persisted handle for a user, or nil when none exists.
func (s *Store) Get(userID string) (*models.JobHandle, error) {
	query := `SELECT user_id, job_id, created_at FROM job_handles WHERE key = ?`

	var handle models.JobHandle
	var createdAt string

	err := s.conn.QueryRow(query, storageKey(userID)).Scan(&handle.UserID, &handle.JobID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job handle: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		handle.CreatedAt = t
	}

	return &handle, nil
}

// Set persists jobID as the live handle for userID, replacing any previous
// one. This keeps the at-most-one-handle-per-user invariant.
func (s *Store) Set(userID, jobID string) error {
	query := `INSERT INTO job_handles (key, user_id, job_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			job_id = excluded.job_id,
			created_at = excluded.created_at`

	_, err := s.conn.Exec(query, storageKey(userID), userID, jobID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to persist job handle: %w", err)
	}

	return nil
}

// Clear removes the handle for a user. Clearing a missing handle is a no-op.
func (s *Store) Clear(userID string) error {
	if _, err := s.conn.Exec(`DELETE FROM job_handles WHERE key = ?`, storageKey(userID)); err != nil {
		return fmt.Errorf("failed to clear job handle: %w", err)
	}

	return nil
}

// List returns all persisted handles, used by the sweeper.
func (s *Store) List() ([]models.JobHandle, error) {
	rows, err := s.conn.Query(`SELECT user_id, job_id, created_at FROM job_handles`)
	if err != nil {
		return nil, fmt.Errorf("failed to list job handles: %w", err)
	}
	defer rows.Close()

	var handles []models.JobHandle
	for rows.Next() {
		var handle models.JobHandle
		var createdAt string

		if err := rows.Scan(&handle.UserID, &handle.JobID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan job handle: %w", err)
		}

		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			handle.CreatedAt = t
		}

		handles = append(handles, handle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job handles: %w", err)
	}

	return handles, nil
}

package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"parley/internal/classify"
	"parley/internal/config"
)

// Store manages dead-letter persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the dead-letter database and applies the
// schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "deadletter.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new entry. An ID is assigned when missing; FailedAt is
// stamped with the server clock. RecordedAt is clamped so it never exceeds
// FailedAt.
func (s *Store) Create(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if strings.TrimSpace(entry.OwnerID) == "" {
		return errors.New("entry owner required")
	}
	if strings.TrimSpace(entry.AudioKey) == "" {
		return errors.New("entry audio key required")
	}
	if !entry.ErrorKind.Valid() {
		entry.ErrorKind = classify.KindUnknown
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.RecordedAt.IsZero() || entry.RecordedAt.After(entry.FailedAt) {
		entry.RecordedAt = entry.FailedAt
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO dead_letters (
            id, owner_id, audio_key, audio_file_name, file_size_bytes,
            audio_duration_seconds, error_kind, error_message, recorded_at,
            failed_at, retry_count, last_retry_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, 0)`,
		entry.ID,
		entry.OwnerID,
		entry.AudioKey,
		nullableString(entry.AudioFileName),
		entry.FileSizeBytes,
		entry.AudioDurationSeconds,
		string(entry.ErrorKind),
		nullableString(entry.ErrorMessage),
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		entry.FailedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// Get fetches one entry after verifying ownership.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM dead_letters WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	if entry.OwnerID != ownerID {
		return nil, ErrPermissionDenied
	}
	return entry, nil
}

// ListByOwner returns all entries for an owner, most recently recorded first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM dead_letters WHERE owner_id = ? ORDER BY recorded_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpdateOnRetryFailure records one failed retry attempt: retry_count is
// incremented and the error fields overwritten in a single conditional
// update. A version mismatch means a concurrent writer got there first.
func (s *Store) UpdateOnRetryFailure(ctx context.Context, id string, kind classify.Kind, message string, lastRetryAt time.Time, expectedVersion int64) error {
	if !kind.Valid() {
		kind = classify.KindUnknown
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE dead_letters
         SET retry_count = retry_count + 1, error_kind = ?, error_message = ?,
             last_retry_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		string(kind),
		nullableString(message),
		lastRetryAt.UTC().Format(time.RFC3339Nano),
		id,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update on retry failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dead_letters WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check entry existence: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ErrStaleEntry
}

// Delete removes one entry after an ownership check. Deleting an entry that is
// already gone succeeds and reports false.
func (s *Store) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	entry, err := s.Get(ctx, ownerID, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ? AND owner_id = ?`, entry.ID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete dead letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteAll removes every entry for an owner in one statement and returns the
// count deleted.
func (s *Store) DeleteAll(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete all dead letters: %w", err)
	}
	return res.RowsAffected()
}

// ListOlderThan returns entries across all owners whose failure predates the
// cutoff. Used by the retention sweeper only.
func (s *Store) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM dead_letters WHERE failed_at < ? ORDER BY owner_id, failed_at`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteByID removes an entry without an ownership check. Sweeper path only.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete dead letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns entry counts grouped by error kind.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT error_kind, COUNT(1) FROM dead_letters GROUP BY error_kind`)
	if err != nil {
		return Stats{}, fmt.Errorf("dead letter stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByKind: make(map[classify.Kind]int)}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return Stats{}, err
		}
		stats.ByKind[classify.Kind(kind)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// OwnerDefaultModel returns the owner's preferred transcription model, or ""
// when the owner has never chosen one.
func (s *Store) OwnerDefaultModel(ctx context.Context, ownerID string) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx, `SELECT default_model FROM owner_profiles WHERE owner_id = ?`, ownerID).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner default model: %w", err)
	}
	return model, nil
}

// SetOwnerDefaultModel records the owner's preferred transcription model.
func (s *Store) SetOwnerDefaultModel(ctx context.Context, ownerID, model string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errors.New("owner required")
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("model required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO owner_profiles (owner_id, default_model, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(owner_id) DO UPDATE SET default_model = excluded.default_model, updated_at = excluded.updated_at`,
		ownerID,
		model,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set owner default model: %w", err)
	}
	return nil
}

const entryColumns = "id, owner_id, audio_key, audio_file_name, file_size_bytes, audio_duration_seconds, error_kind, error_message, recorded_at, failed_at, retry_count, last_retry_at, version"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id           string
		ownerID      string
		audioKey     string
		fileName     sql.NullString
		sizeBytes    sql.NullInt64
		duration     sql.NullFloat64
		kind         string
		message      sql.NullString
		recordedRaw  string
		failedRaw    string
		retryCount   int64
		lastRetryRaw sql.NullString
		version      int64
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&audioKey,
		&fileName,
		&sizeBytes,
		&duration,
		&kind,
		&message,
		&recordedRaw,
		&failedRaw,
		&retryCount,
		&lastRetryRaw,
		&version,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:                   id,
		OwnerID:              ownerID,
		AudioKey:             audioKey,
		AudioFileName:        fileName.String,
		FileSizeBytes:        sizeBytes.Int64,
		AudioDurationSeconds: duration.Float64,
		ErrorKind:            classify.Kind(kind),
		ErrorMessage:         message.String,
		RetryCount:           retryCount,
		Version:              version,
	}

	if recorded, err := parseTimeString(recordedRaw); err == nil {
		entry.RecordedAt = recorded
	}
	if failed, err := parseTimeString(failedRaw); err == nil {
		entry.FailedAt = failed
	}
	if lastRetryRaw.Valid {
		if lastRetry, err := parseTimeString(lastRetryRaw.String); err == nil {
			entry.LastRetryAt = &lastRetry
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

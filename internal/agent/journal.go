package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrJobNotFound is returned when a journaled job cannot be found.
var ErrJobNotFound = errors.New("journaled job not found")

// Metadata keys the station maintains alongside the job rows.
const (
	metaLastContact = "last_contact_at"
	metaServerName  = "server_name"
)

// JournalStatus tracks a job through the local print pipeline.
type JournalStatus string

const (
	// JournalStatusReceived means the job arrived and was acknowledged.
	JournalStatusReceived JournalStatus = "received"
	// JournalStatusPrinted means the rendered label reached the printer.
	JournalStatusPrinted JournalStatus = "printed"
	// JournalStatusFailed means rendering or printing failed.
	JournalStatusFailed JournalStatus = "failed"
)

// JournalEntry is one job's record in the local journal.
type JournalEntry struct {
	JobID      string        `json:"job_id"`
	PrinterID  string        `json:"printer_id"`
	LabelType  string        `json:"label_type"`
	Quantity   int           `json:"quantity"`
	Status     JournalStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
	PrintedAt  *time.Time    `json:"printed_at,omitempty"`
}

// JournalStats summarizes the journal for the status command.
type JournalStats struct {
	TotalJobs     int        `json:"total_jobs"`
	PrintedCount  int        `json:"printed_count"`
	FailedCount   int        `json:"failed_count"`
	ReceivedCount int        `json:"received_count"`
	LastPrintedAt *time.Time `json:"last_printed_at,omitempty"`
}

// Journal is the station's local SQLite record of every job it handled.
// It survives restarts and disconnects, which is what makes a print
// station's history auditable without asking the server.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenJournal opens (creating if needed) the journal database in dir.
func OpenJournal(dir string, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	dbPath := filepath.Join(dir, "journal.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal database: %w", err)
	}

	j.logger.Debug().Str("path", dbPath).Msg("job journal opened")

	return j, nil
}

// migrate creates the journal tables.
func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS print_jobs (
			job_id TEXT PRIMARY KEY,
			printer_id TEXT NOT NULL,
			label_type TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'received',
			error TEXT,
			received_at TEXT NOT NULL,
			printed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_print_jobs_status ON print_jobs(status);
		CREATE INDEX IF NOT EXISTS idx_print_jobs_received_at ON print_jobs(received_at);

		CREATE TABLE IF NOT EXISTS journal_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`

	_, err := j.db.Exec(schema)
	return err
}

// RecordJob journals a freshly received job. Receiving the same job id
// again resets its row; the server may legitimately re-deliver.
func (j *Journal) RecordJob(ctx context.Context, job *PrintJob) error {
	query := `
		INSERT INTO print_jobs (job_id, printer_id, label_type, quantity, status, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			printer_id = excluded.printer_id,
			label_type = excluded.label_type,
			quantity = excluded.quantity,
			status = excluded.status,
			error = NULL,
			received_at = excluded.received_at,
			printed_at = NULL
	`

	_, err := j.db.ExecContext(ctx, query,
		job.JobID,
		job.PrinterID,
		job.LabelType,
		job.Quantity,
		string(JournalStatusReceived),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	return nil
}

// MarkPrinted records that the job's label data reached the printer.
func (j *Journal) MarkPrinted(ctx context.Context, jobID string) error {
	query := `
		UPDATE print_jobs
		SET status = ?, printed_at = ?, error = NULL
		WHERE job_id = ?
	`

	result, err := j.db.ExecContext(ctx, query,
		string(JournalStatusPrinted),
		time.Now().UTC().Format(time.RFC3339),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job printed: %w", err)
	}

	return j.requireRow(result)
}

// MarkFailed records why the job could not be printed.
func (j *Journal) MarkFailed(ctx context.Context, jobID, reason string) error {
	result, err := j.db.ExecContext(ctx,
		`UPDATE print_jobs SET status = ?, error = ? WHERE job_id = ?`,
		string(JournalStatusFailed), reason, jobID,
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}

	return j.requireRow(result)
}

func (j *Journal) requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob retrieves one journal entry by job id.
func (j *Journal) GetJob(ctx context.Context, jobID string) (*JournalEntry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT job_id, printer_id, label_type, quantity, status, error, received_at, printed_at
		FROM print_jobs
		WHERE job_id = ?
	`, jobID)

	entry, err := scanJournalEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return entry, err
}

// RecentJobs returns the newest entries, most recent first.
func (j *Journal) RecentJobs(ctx context.Context, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT job_id, printer_id, label_type, quantity, status, error, received_at, printed_at
		FROM print_jobs
		ORDER BY received_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry, serr := scanJournalEntry(rows.Scan)
		if serr != nil {
			return nil, fmt.Errorf("scan journal row: %w", serr)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return entries, nil
}

// Stats aggregates the journal for the status command.
func (j *Journal) Stats(ctx context.Context) (*JournalStats, error) {
	stats := &JournalStats{}

	rows, err := j.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM print_jobs GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}

		switch JournalStatus(status) {
		case JournalStatusPrinted:
			stats.PrintedCount += count
		case JournalStatusFailed:
			stats.FailedCount += count
		case JournalStatusReceived:
			stats.ReceivedCount += count
		}
		stats.TotalJobs += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	var lastPrinted sql.NullString
	err = j.db.QueryRowContext(ctx,
		`SELECT MAX(printed_at) FROM print_jobs WHERE status = 'printed'`,
	).Scan(&lastPrinted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query last printed: %w", err)
	}
	if lastPrinted.Valid {
		if t, perr := time.Parse(time.RFC3339, lastPrinted.String); perr == nil {
			stats.LastPrintedAt = &t
		}
	}

	return stats, nil
}

// Prune removes printed and failed entries older than the given age.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	result, err := j.db.ExecContext(ctx, `
		DELETE FROM print_jobs
		WHERE status IN ('printed', 'failed')
		AND received_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return int(affected), nil
}

// SetMetadata stores a key-value pair in the metadata table.
func (j *Journal) SetMetadata(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO journal_metadata (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := j.db.ExecContext(ctx, query, key, value)
	return err
}

// GetMetadata retrieves a metadata value; missing keys return "".
func (j *Journal) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, `SELECT value FROM journal_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// TouchLastContact records a successful authentication with the server.
func (j *Journal) TouchLastContact(ctx context.Context) error {
	return j.SetMetadata(ctx, metaLastContact, time.Now().UTC().Format(time.RFC3339))
}

// LastContact returns when the station last authenticated, nil if never.
func (j *Journal) LastContact(ctx context.Context) (*time.Time, error) {
	value, err := j.GetMetadata(ctx, metaLastContact)
	if err != nil || value == "" {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("parse last contact: %w", err)
	}
	return &t, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// scanJournalEntry scans one row regardless of whether it came from a Row
// or Rows.
func scanJournalEntry(scan func(dest ...any) error) (*JournalEntry, error) {
	var (
		entry        JournalEntry
		status       string
		errText      sql.NullString
		receivedStr  string
		printedAtStr sql.NullString
	)

	err := scan(&entry.JobID, &entry.PrinterID, &entry.LabelType, &entry.Quantity,
		&status, &errText, &receivedStr, &printedAtStr)
	if err != nil {
		return nil, err
	}

	entry.Status = JournalStatus(status)
	if errText.Valid {
		entry.Error = errText.String
	}

	receivedAt, err := time.Parse(time.RFC3339, receivedStr)
	if err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}
	entry.ReceivedAt = receivedAt

	if printedAtStr.Valid {
		if t, perr := time.Parse(time.RFC3339, printedAtStr.String); perr == nil {
			entry.PrintedAt = &t
		}
	}

	return &entry, nil
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/realworldtech/props-print-service/internal/models"
)

const printRequestColumns = `id, job_id, print_client_id, asset_id, location_id,
	label_type, printer_id, quantity, status, error_message,
	sent_at, acked_at, completed_at, created_at, requested_by`

func scanPrintRequest(row pgx.Row) (*models.PrintRequest, error) {
	var req models.PrintRequest
	var labelStr, statusStr string
	err := row.Scan(
		&req.ID, &req.JobID, &req.PrintClientID, &req.AssetID, &req.LocationID,
		&labelStr, &req.PrinterID, &req.Quantity, &statusStr, &req.ErrorMessage,
		&req.SentAt, &req.AckedAt, &req.CompletedAt, &req.CreatedAt, &req.RequestedBy,
	)
	if err != nil {
		return nil, err
	}
	req.LabelType = models.LabelType(labelStr)
	req.Status = models.PrintRequestStatus(statusStr)
	return &req, nil
}

// CreatePrintRequest inserts a new print request.
func (db *DB) CreatePrintRequest(ctx context.Context, req *models.PrintRequest) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO print_requests (id, job_id, print_client_id, asset_id, location_id,
			label_type, printer_id, quantity, status, error_message,
			sent_at, acked_at, completed_at, created_at, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, req.ID, req.JobID, req.PrintClientID, req.AssetID, req.LocationID,
		string(req.LabelType), req.PrinterID, req.Quantity, string(req.Status),
		req.ErrorMessage, req.SentAt, req.AckedAt, req.CompletedAt,
		req.CreatedAt, req.RequestedBy)
	if err != nil {
		return fmt.Errorf("create print request: %w", err)
	}
	return nil
}

// GetPrintRequest returns a print request by ID.
func (db *DB) GetPrintRequest(ctx context.Context, id uuid.UUID) (*models.PrintRequest, error) {
	req, err := scanPrintRequest(db.Pool.QueryRow(ctx, `
		SELECT `+printRequestColumns+`
		FROM print_requests
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get print request: %w", err)
	}
	return req, nil
}

// GetPrintRequestByJobID returns the print request carrying the given wire
// job id. Clients report status against job_id, not the row id.
func (db *DB) GetPrintRequestByJobID(ctx context.Context, jobID uuid.UUID) (*models.PrintRequest, error) {
	req, err := scanPrintRequest(db.Pool.QueryRow(ctx, `
		SELECT `+printRequestColumns+`
		FROM print_requests
		WHERE job_id = $1
	`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get print request by job id: %w", err)
	}
	return req, nil
}

// ListPrintRequests returns print requests with optional filtering, newest first.
func (db *DB) ListPrintRequests(ctx context.Context, filter models.PrintRequestFilter) ([]*models.PrintRequest, error) {
	query := `
		SELECT ` + printRequestColumns + `
		FROM print_requests
		WHERE 1=1
	`
	args := []any{}
	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*filter.Status))
		argIdx++
	}
	if filter.PrintClientID != nil {
		query += fmt.Sprintf(" AND print_client_id = $%d", argIdx)
		args = append(args, *filter.PrintClientID)
		argIdx++
	}
	if filter.LabelType != nil {
		query += fmt.Sprintf(" AND label_type = $%d", argIdx)
		args = append(args, string(*filter.LabelType))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list print requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.PrintRequest
	for rows.Next() {
		req, err := scanPrintRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan print request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list print requests: %w", err)
	}
	return reqs, nil
}

// UpdatePrintRequestStatus persists the mutable lifecycle fields after a
// state transition. The transition itself is validated on the model.
func (db *DB) UpdatePrintRequestStatus(ctx context.Context, req *models.PrintRequest) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_requests
		SET status = $2, error_message = $3, sent_at = $4, acked_at = $5, completed_at = $6
		WHERE id = $1
	`, req.ID, string(req.Status), req.ErrorMessage, req.SentAt, req.AckedAt, req.CompletedAt)
	if err != nil {
		return fmt.Errorf("update print request status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepStalePrintRequests fails every sent or acked request whose dispatch
// happened before the cutoff, stamping completion and the given error text.
// Returns how many rows were failed.
func (db *DB) SweepStalePrintRequests(ctx context.Context, cutoff time.Time, errorMessage string) (int64, error) {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_requests
		SET status = $1, error_message = $2, completed_at = $3
		WHERE status IN ($4, $5)
		  AND sent_at IS NOT NULL
		  AND sent_at < $6
	`, string(models.PrintRequestStatusFailed), errorMessage, time.Now(),
		string(models.PrintRequestStatusSent), string(models.PrintRequestStatusAcked), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale print requests: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountPrintRequestsByStatus returns a count per status for everything in
// the table. Used by the health and metrics surfaces.
func (db *DB) CountPrintRequestsByStatus(ctx context.Context) (map[models.PrintRequestStatus]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM print_requests
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count print requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PrintRequestStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan print request count: %w", err)
		}
		counts[models.PrintRequestStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count print requests: %w", err)
	}
	return counts, nil
}

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

const printClientColumns = `id, name, token_hash, status, is_active, is_connected,
	last_seen_at, printers, protocol_version, approved_by, approved_at, created_at`

func scanPrintClient(row pgx.Row) (*models.PrintClient, error) {
	var client models.PrintClient
	var statusStr string
	var printersJSON []byte
	err := row.Scan(
		&client.ID, &client.Name, &client.TokenHash, &statusStr,
		&client.IsActive, &client.IsConnected, &client.LastSeenAt,
		&printersJSON, &client.ProtocolVersion,
		&client.ApprovedBy, &client.ApprovedAt, &client.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	client.Status = models.PrintClientStatus(statusStr)
	if err := client.UnmarshalPrinters(printersJSON); err != nil {
		return nil, fmt.Errorf("decode printers: %w", err)
	}
	return &client, nil
}

// CreatePrintClient inserts a new print client record.
func (db *DB) CreatePrintClient(ctx context.Context, client *models.PrintClient) error {
	printersJSON, err := client.MarshalPrinters()
	if err != nil {
		return fmt.Errorf("encode printers: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO print_clients (id, name, token_hash, status, is_active, is_connected,
			last_seen_at, printers, protocol_version, approved_by, approved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, client.ID, client.Name, client.TokenHash, string(client.Status),
		client.IsActive, client.IsConnected, client.LastSeenAt, printersJSON,
		client.ProtocolVersion, client.ApprovedBy, client.ApprovedAt, client.CreatedAt)
	if err != nil {
		return fmt.Errorf("create print client: %w", err)
	}
	return nil
}

// GetPrintClient returns a print client by ID.
func (db *DB) GetPrintClient(ctx context.Context, id uuid.UUID) (*models.PrintClient, error) {
	client, err := scanPrintClient(db.Pool.QueryRow(ctx, `
		SELECT `+printClientColumns+`
		FROM print_clients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get print client: %w", err)
	}
	return client, nil
}

// GetPrintClientByTokenHash returns the print client holding the given token hash.
// The token_hash column is unique, so at most one client can match.
func (db *DB) GetPrintClientByTokenHash(ctx context.Context, tokenHash string) (*models.PrintClient, error) {
	client, err := scanPrintClient(db.Pool.QueryRow(ctx, `
		SELECT `+printClientColumns+`
		FROM print_clients
		WHERE token_hash = $1
	`, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get print client by token hash: %w", err)
	}
	return client, nil
}

// GetPendingPrintClientByName returns the most recent pending client with the
// given name, so a re-sent pairing request reuses the existing record instead
// of piling up duplicates.
func (db *DB) GetPendingPrintClientByName(ctx context.Context, name string) (*models.PrintClient, error) {
	client, err := scanPrintClient(db.Pool.QueryRow(ctx, `
		SELECT `+printClientColumns+`
		FROM print_clients
		WHERE name = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, name, string(models.PrintClientStatusPending)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending print client by name: %w", err)
	}
	return client, nil
}

// ListPrintClients returns print clients, optionally filtered by status.
// An empty status returns all clients.
func (db *DB) ListPrintClients(ctx context.Context, status models.PrintClientStatus) ([]*models.PrintClient, error) {
	query := `
		SELECT ` + printClientColumns + `
		FROM print_clients
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list print clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.PrintClient
	for rows.Next() {
		client, err := scanPrintClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan print client: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list print clients: %w", err)
	}
	return clients, nil
}

// ApprovePrintClient marks a pending client approved and records who decided.
func (db *DB) ApprovePrintClient(ctx context.Context, id uuid.UUID, approvedBy string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = $5
	`, id, string(models.PrintClientStatusApproved), approvedBy, time.Now(),
		string(models.PrintClientStatusPending))
	if err != nil {
		return fmt.Errorf("approve print client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DenyPrintClient marks a pending client denied and records who decided.
func (db *DB) DenyPrintClient(ctx context.Context, id uuid.UUID, deniedBy string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1 AND status = $5
	`, id, string(models.PrintClientStatusDenied), deniedBy, time.Now(),
		string(models.PrintClientStatusPending))
	if err != nil {
		return fmt.Errorf("deny print client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePrintClientTokenHash replaces a client's token hash. Used when a
// pairing approval issues the first real token.
func (db *DB) UpdatePrintClientTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET token_hash = $2
		WHERE id = $1
	`, id, tokenHash)
	if err != nil {
		return fmt.Errorf("update print client token hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RotatePrintClientAuth atomically applies everything a successful
// authentication changes: the new token hash, connected flag, declared
// printers, protocol version, last-seen stamp, and optionally a new name.
// A single UPDATE keeps the rotation and the connection flag consistent
// even when a displaced session's cleanup races this write.
func (db *DB) RotatePrintClientAuth(ctx context.Context, id uuid.UUID, tokenHash string, printers []models.Printer, protocolVersion, name string) error {
	printersJSON, err := models.MarshalPrinterList(printers)
	if err != nil {
		return fmt.Errorf("encode printers: %w", err)
	}

	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET token_hash = $2,
		    is_connected = TRUE,
		    printers = $3,
		    protocol_version = $4,
		    last_seen_at = $5,
		    name = COALESCE(NULLIF($6, ''), name)
		WHERE id = $1
	`, id, tokenHash, printersJSON, protocolVersion, time.Now(), name)
	if err != nil {
		return fmt.Errorf("rotate print client auth: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPrintClientConnected updates the connected flag and stamps last_seen_at.
func (db *DB) SetPrintClientConnected(ctx context.Context, id uuid.UUID, connected bool) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET is_connected = $2, last_seen_at = $3
		WHERE id = $1
	`, id, connected, time.Now())
	if err != nil {
		return fmt.Errorf("set print client connected: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPrintClientActive enables or disables a client without touching its
// pairing status. Inactive clients cannot authenticate.
func (db *DB) SetPrintClientActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE print_clients
		SET is_active = $2
		WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set print client active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePrintClient removes a print client. Print requests that reference it
// keep their rows with the client reference nulled.
func (db *DB) DeletePrintClient(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `
		DELETE FROM print_clients
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete print client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountConnectedPrintClients returns how many approved clients currently
// hold an open session.
func (db *DB) CountConnectedPrintClients(ctx context.Context) (int64, error) {
	var count int64
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM print_clients
		WHERE status = $1 AND is_connected = TRUE
	`, string(models.PrintClientStatusApproved)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count connected print clients: %w", err)
	}
	return count, nil
}

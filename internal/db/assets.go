package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/realworldtech/props-print-service/internal/models"
)

// Asset catalog read model. The wider asset platform owns these tables; the
// print service only reads them to build label payloads.

// GetAsset returns an asset with its category and department names flattened in.
func (db *DB) GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	err := db.Pool.QueryRow(ctx, `
		SELECT a.id, a.name, a.barcode,
		       COALESCE(c.name, ''), COALESCE(d.name, ''),
		       a.location_id, a.is_active
		FROM assets a
		LEFT JOIN categories c ON c.id = a.category_id
		LEFT JOIN departments d ON d.id = c.department_id
		WHERE a.id = $1
	`, id).Scan(
		&asset.ID, &asset.Name, &asset.Barcode,
		&asset.CategoryName, &asset.DepartmentName,
		&asset.LocationID, &asset.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &asset, nil
}

// GetLocation returns a location by ID.
func (db *DB) GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var loc models.Location
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, description
		FROM locations
		WHERE id = $1
	`, id).Scan(&loc.ID, &loc.Name, &loc.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &loc, nil
}

// ListLocationCategoryNames returns the distinct category names across the
// active assets stored at a location, sorted.
func (db *DB) ListLocationCategoryNames(ctx context.Context, locationID uuid.UUID) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT c.name
		FROM assets a
		JOIN categories c ON c.id = a.category_id
		WHERE a.location_id = $1 AND a.is_active = TRUE
		ORDER BY c.name
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list location category names: %w", err)
	}
	return scanNames(rows)
}

// ListLocationDepartmentNames returns the distinct department names across
// the active assets stored at a location, sorted.
func (db *DB) ListLocationDepartmentNames(ctx context.Context, locationID uuid.UUID) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT d.name
		FROM assets a
		JOIN categories c ON c.id = a.category_id
		JOIN departments d ON d.id = c.department_id
		WHERE a.location_id = $1 AND a.is_active = TRUE
		ORDER BY d.name
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list location department names: %w", err)
	}
	return scanNames(rows)
}

func scanNames(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan names: %w", err)
	}
	return names, nil
}

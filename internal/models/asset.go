package models

import (
	"github.com/google/uuid"
)

// Asset is the slice of the asset catalog the print service consumes when
// building label payloads. Category and department names arrive flattened
// from the store; the print service never walks the catalog hierarchy.
type Asset struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Barcode        string     `json:"barcode"`
	CategoryName   string     `json:"category_name"`
	DepartmentName string     `json:"department_name"`
	LocationID     *uuid.UUID `json:"location_id,omitempty"`
	IsActive       bool       `json:"is_active"`
}

// Location is the read model for location labels.
type Location struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

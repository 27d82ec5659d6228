package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PrintClientStatus represents the approval state of a print client.
type PrintClientStatus string

const (
	// PrintClientStatusPending indicates the client has paired but awaits an operator decision.
	PrintClientStatusPending PrintClientStatus = "pending"
	// PrintClientStatusApproved indicates an operator approved the client.
	PrintClientStatusApproved PrintClientStatus = "approved"
	// PrintClientStatusDenied indicates an operator denied the client.
	PrintClientStatusDenied PrintClientStatus = "denied"
)

// DefaultProtocolVersion is assigned to clients created by a pairing request.
const DefaultProtocolVersion = "1"

// PrintClient is a remote print station paired over the print-service protocol.
// The raw bearer token is never stored; TokenHash holds its SHA-256 hex digest.
type PrintClient struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	TokenHash       string            `json:"-"`
	Status          PrintClientStatus `json:"status"`
	IsActive        bool              `json:"is_active"`
	IsConnected     bool              `json:"is_connected"`
	LastSeenAt      *time.Time        `json:"last_seen_at,omitempty"`
	Printers        []Printer         `json:"printers"`
	ProtocolVersion string            `json:"protocol_version"`
	ApprovedBy      string            `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// NewPrintClient creates a pending print client. The token hash passed in
// should be a placeholder digest that no issuable token can produce, so the
// client cannot authenticate before approval.
func NewPrintClient(name, tokenHash string) *PrintClient {
	return &PrintClient{
		ID:              uuid.New(),
		Name:            name,
		TokenHash:       tokenHash,
		Status:          PrintClientStatusPending,
		IsActive:        true,
		IsConnected:     false,
		Printers:        []Printer{},
		ProtocolVersion: DefaultProtocolVersion,
		CreatedAt:       time.Now().UTC(),
	}
}

// CanAuthenticate reports whether the client is allowed to complete
// authentication: approved by an operator and not deactivated.
func (c *PrintClient) CanAuthenticate() bool {
	return c.Status == PrintClientStatusApproved && c.IsActive
}

// HasPrinter reports whether the client declared a printer with the given id.
func (c *PrintClient) HasPrinter(printerID string) bool {
	for _, p := range c.Printers {
		if p.ID == printerID {
			return true
		}
	}
	return false
}

// SupportsLocationLabels reports whether the client's negotiated protocol
// version carries location label support. Versions are compared ordinally:
// the supported version space is small single-token strings.
func (c *PrintClient) SupportsLocationLabels() bool {
	return c.ProtocolVersion >= "2"
}

// MarshalPrinterList serializes a printer list for JSONB storage.
func MarshalPrinterList(printers []Printer) ([]byte, error) {
	if printers == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(printers)
}

// MarshalPrinters serializes the declared printers for JSONB storage.
func (c *PrintClient) MarshalPrinters() ([]byte, error) {
	return MarshalPrinterList(c.Printers)
}

// UnmarshalPrinters restores the declared printers from JSONB storage.
func (c *PrintClient) UnmarshalPrinters(data []byte) error {
	if len(data) == 0 {
		c.Printers = []Printer{}
		return nil
	}
	return json.Unmarshal(data, &c.Printers)
}

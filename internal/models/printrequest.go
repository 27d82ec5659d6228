package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PrintRequestStatus represents the lifecycle state of a print request.
type PrintRequestStatus string

const (
	// PrintRequestStatusPending indicates the request has not been dispatched yet.
	PrintRequestStatusPending PrintRequestStatus = "pending"
	// PrintRequestStatusSent indicates the job was published to the client's group.
	PrintRequestStatusSent PrintRequestStatus = "sent"
	// PrintRequestStatusAcked indicates the client acknowledged receipt of the job.
	PrintRequestStatusAcked PrintRequestStatus = "acked"
	// PrintRequestStatusCompleted indicates the client reported a successful print.
	PrintRequestStatusCompleted PrintRequestStatus = "completed"
	// PrintRequestStatusFailed indicates a terminal failure; ErrorMessage says why.
	PrintRequestStatusFailed PrintRequestStatus = "failed"
)

// LabelType selects the payload layout of a print job.
type LabelType string

const (
	// LabelTypeAsset prints a single asset's barcode label.
	LabelTypeAsset LabelType = "asset"
	// LabelTypeLocation prints a location summary label. Requires
	// protocol version 2 on the client.
	LabelTypeLocation LabelType = "location"
)

// Quantity bounds for a single print request.
const (
	MinPrintQuantity = 1
	MaxPrintQuantity = 100
)

// validTransitions is the print request state machine. completed and
// failed are terminal; there are no administrative resets here.
var validTransitions = map[PrintRequestStatus][]PrintRequestStatus{
	PrintRequestStatusPending:   {PrintRequestStatusSent, PrintRequestStatusFailed},
	PrintRequestStatusSent:      {PrintRequestStatusAcked, PrintRequestStatusFailed},
	PrintRequestStatusAcked:     {PrintRequestStatusCompleted, PrintRequestStatusFailed},
	PrintRequestStatusCompleted: {},
	PrintRequestStatusFailed:    {},
}

// TransitionError reports an attempt to move a print request to a status
// the state machine does not allow.
type TransitionError struct {
	From PrintRequestStatus
	To   PrintRequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from '%s' to '%s'", e.From, e.To)
}

// PrintRequest is a label print job addressed to one print client.
type PrintRequest struct {
	ID            uuid.UUID          `json:"id"`
	JobID         uuid.UUID          `json:"job_id"`
	PrintClientID *uuid.UUID         `json:"print_client_id,omitempty"`
	AssetID       *uuid.UUID         `json:"asset_id,omitempty"`
	LocationID    *uuid.UUID         `json:"location_id,omitempty"`
	LabelType     LabelType          `json:"label_type"`
	PrinterID     string             `json:"printer_id"`
	Quantity      int                `json:"quantity"`
	Status        PrintRequestStatus `json:"status"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	AckedAt       *time.Time         `json:"acked_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	RequestedBy   string             `json:"requested_by,omitempty"`
}

// NewPrintRequest creates a pending print request for the given client.
func NewPrintRequest(clientID uuid.UUID, labelType LabelType, printerID string, quantity int) *PrintRequest {
	return &PrintRequest{
		ID:            uuid.New(),
		JobID:         uuid.New(),
		PrintClientID: &clientID,
		LabelType:     labelType,
		PrinterID:     printerID,
		Quantity:      quantity,
		Status:        PrintRequestStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// TransitionTo advances the request through the state machine, stamping the
// timestamp matching the new status. Failed transitions stamp CompletedAt
// and record errorMessage. The caller persists the mutated fields.
func (r *PrintRequest) TransitionTo(newStatus PrintRequestStatus, errorMessage string) error {
	allowed := false
	for _, target := range validTransitions[r.Status] {
		if target == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return &TransitionError{From: r.Status, To: newStatus}
	}

	now := time.Now().UTC()
	r.Status = newStatus

	switch newStatus {
	case PrintRequestStatusSent:
		r.SentAt = &now
	case PrintRequestStatusAcked:
		r.AckedAt = &now
	case PrintRequestStatusCompleted:
		r.CompletedAt = &now
	case PrintRequestStatusFailed:
		r.CompletedAt = &now
		if errorMessage != "" {
			r.ErrorMessage = errorMessage
		}
	}

	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (r *PrintRequest) IsTerminal() bool {
	return len(validTransitions[r.Status]) == 0
}

// PrintRequestFilter narrows ListPrintRequests results. Nil fields are not
// applied. Limit <= 0 means no limit.
type PrintRequestFilter struct {
	Status        *PrintRequestStatus
	PrintClientID *uuid.UUID
	LabelType     *LabelType
	Limit         int
}

// Package printservice implements the WebSocket pairing, authentication and
// job dispatch protocol spoken by remote print stations. Each live socket is
// owned by a Session running a small state machine; cross-session
// coordination (pairing decisions, forced displacement, job delivery) goes
// through the pubsub group layer.
package printservice

import (
	"github.com/google/uuid"

	"github.com/realworldtech/props-print-service/internal/models"
)

// Client to server message types.
const (
	MessageTypePairingRequest = "pairing_request"
	MessageTypeAuthenticate   = "authenticate"
	MessageTypeJobStatus      = "job_status"
)

// Server to client message types.
const (
	MessageTypeError           = "error"
	MessageTypePairingPending  = "pairing_pending"
	MessageTypePairingApproved = "pairing_approved"
	MessageTypePairingDenied   = "pairing_denied"
	MessageTypeAuthResult      = "auth_result"
	MessageTypePrintJob        = "print.job"
)

// Error codes carried by error messages. Protocol errors leave the
// connection open so the client can retry with corrected input.
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeVersionMismatch = "version_mismatch"
)

// Job status values a client may report back for a dispatched job.
const (
	JobStatusAcked     = "acked"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// PairingRequestMessage asks the server to register this station for
// operator approval.
type PairingRequestMessage struct {
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// AuthenticateMessage presents a bearer token along with the station's
// current printer inventory.
type AuthenticateMessage struct {
	ProtocolVersion string           `json:"protocol_version"`
	Token           string           `json:"token"`
	ClientName      string           `json:"client_name,omitempty"`
	Printers        []models.Printer `json:"printers"`
}

// JobStatusMessage reports progress on a previously dispatched job.
type JobStatusMessage struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorMessage reports a protocol error without closing the connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PairingPendingMessage acknowledges a pairing request while the operator
// decision is outstanding.
type PairingPendingMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// PairingApprovedMessage carries the raw bearer token. This is the only
// message that ever transmits a token in the clear.
type PairingApprovedMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	ServerName string `json:"server_name"`
}

// PairingDeniedMessage tells the station the operator rejected it.
type PairingDeniedMessage struct {
	Type string `json:"type"`
}

// AuthResultMessage reports the outcome of an authenticate attempt. On
// success NewToken replaces the token the client presented.
type AuthResultMessage struct {
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	ServerName string `json:"server_name,omitempty"`
	NewToken   string `json:"new_token,omitempty"`
}

// PrintJobMessage is the label job pushed to an authenticated station.
// Label-type-specific fields are flattened into the message; absent fields
// are omitted.
type PrintJobMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	PrinterID string `json:"printer_id"`
	LabelType string `json:"label_type"`
	Quantity  int    `json:"quantity"`

	// Asset labels.
	Barcode        string `json:"barcode,omitempty"`
	AssetName      string `json:"asset_name,omitempty"`
	CategoryName   string `json:"category_name,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`

	// Location labels.
	LocationName        string   `json:"location_name,omitempty"`
	LocationDescription string   `json:"location_description,omitempty"`
	CategoryNames       []string `json:"category_names,omitempty"`
	DepartmentNames     []string `json:"department_names,omitempty"`

	// QRContent is the fully qualified URL encoded into the label's QR code.
	QRContent string `json:"qr_content,omitempty"`
}

// PairingGroup names the short-lived broadcast group a pairing candidate
// listens on for the operator decision.
func PairingGroup(clientID uuid.UUID) string {
	return "print_client_" + clientID.String()
}

// ActiveGroup names the long-lived group an authenticated client's session
// listens on for job delivery and forced displacement. Keeping it distinct
// from the pairing group means a pairing candidate can never receive print
// jobs, and an authenticated session never sees pairing traffic.
func ActiveGroup(clientID uuid.UUID) string {
	return "print_client_active_" + clientID.String()
}

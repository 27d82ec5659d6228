// Package agent implements the print station side of the print-service
// protocol: pairing, the authenticated run loop, local job journaling, ZPL
// rendering and raw socket printing.
package agent

// Wire message types. These mirror the server's protocol constants; the
// strings are the contract.
const (
	msgTypePairingRequest  = "pairing_request"
	msgTypeAuthenticate    = "authenticate"
	msgTypeJobStatus       = "job_status"
	msgTypeError           = "error"
	msgTypePairingPending  = "pairing_pending"
	msgTypePairingApproved = "pairing_approved"
	msgTypePairingDenied   = "pairing_denied"
	msgTypeAuthResult      = "auth_result"
	msgTypePrintJob        = "print.job"
)

// Job status values reported back for a dispatched job.
const (
	jobStatusAcked     = "acked"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

// pairingRequestFrame registers the station for operator approval.
type pairingRequestFrame struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// wirePrinter is one printer declared during authentication.
type wirePrinter struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	Templates []string `json:"templates"`
}

// authenticateFrame presents the station's token and printer inventory.
type authenticateFrame struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Token           string        `json:"token"`
	ClientName      string        `json:"client_name,omitempty"`
	Printers        []wirePrinter `json:"printers"`
}

// jobStatusFrame reports progress on a received job.
type jobStatusFrame struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// envelope carries just enough to route an inbound frame.
type envelope struct {
	Type string `json:"type"`
}

// errorFrame is a protocol error from the server. The connection stays open.
type errorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pairingPendingFrame acknowledges a pairing request.
type pairingPendingFrame struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// pairingApprovedFrame carries the station's first bearer token.
type pairingApprovedFrame struct {
	Token      string `json:"token"`
	ServerName string `json:"server_name"`
}

// authResultFrame reports the authentication outcome. On success NewToken
// replaces the token the station presented.
type authResultFrame struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	ServerName string `json:"server_name,omitempty"`
	NewToken   string `json:"new_token,omitempty"`
}

// PrintJob is a label job pushed to the station. Fields for the other label
// type are absent from the wire and stay zero.
type PrintJob struct {
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

	// QRContent is the URL encoded into the label's QR code.
	QRContent string `json:"qr_content,omitempty"`
}

// Label types the station can render.
const (
	labelTypeAsset    = "asset"
	labelTypeLocation = "location"
)

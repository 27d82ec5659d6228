package models

// PrinterStatus is the device state a client last reported for a printer.
type PrinterStatus string

const (
	// PrinterStatusOnline indicates the printer is reachable and ready.
	PrinterStatusOnline PrinterStatus = "online"
	// PrinterStatusOffline indicates the printer is configured but unreachable.
	PrinterStatusOffline PrinterStatus = "offline"
	// PrinterStatusError indicates the printer reported a fault.
	PrinterStatusError PrinterStatus = "error"
)

// Printer describes one printer a client declares during authentication.
// The whole set is replaced on every successful authenticate.
type Printer struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Status    PrinterStatus `json:"status"`
	Templates []string      `json:"templates"`
}

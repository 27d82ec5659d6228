package health

import (
	"time"
)

// Status grades a station diagnostic result.
type Status string

const (
	// StatusHealthy indicates all checks are within acceptable ranges.
	StatusHealthy Status = "healthy"
	// StatusWarning indicates some checks are concerning but printing works.
	StatusWarning Status = "warning"
	// StatusCritical indicates the station likely cannot print.
	StatusCritical Status = "critical"
	// StatusUnknown indicates health cannot be determined.
	StatusUnknown Status = "unknown"
)

// Thresholds defines the limits for station health evaluation.
type Thresholds struct {
	// Disk thresholds (percentage used on the journal filesystem)
	DiskWarning  float64 // Default: 80%
	DiskCritical float64 // Default: 90%

	// Memory thresholds (percentage used)
	MemoryWarning  float64 // Default: 85%
	MemoryCritical float64 // Default: 95%

	// CPU thresholds (percentage used)
	CPUWarning  float64 // Default: 80%
	CPUCritical float64 // Default: 95%

	// Server contact thresholds. A station that has not authenticated in
	// this long may hold a rotated-away token.
	ContactWarning  time.Duration // Default: 24 hours
	ContactCritical time.Duration // Default: 7 days
}

// DefaultThresholds returns the default station health thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskWarning:     80.0,
		DiskCritical:    90.0,
		MemoryWarning:   85.0,
		MemoryCritical:  95.0,
		CPUWarning:      80.0,
		CPUCritical:     95.0,
		ContactWarning:  24 * time.Hour,
		ContactCritical: 7 * 24 * time.Hour,
	}
}

// CheckResult contains the detailed diagnostic result.
type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Issues    []Issue   `json:"issues,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Issue represents a specific diagnostic finding.
type Issue struct {
	Component string  `json:"component"` // disk, memory, cpu, network, printer, server
	Severity  Status  `json:"severity"`
	Message   string  `json:"message"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Checker evaluates station health from collected metrics.
type Checker struct {
	thresholds Thresholds
}

// NewChecker creates a checker with the given thresholds.
func NewChecker(thresholds Thresholds) *Checker {
	return &Checker{thresholds: thresholds}
}

// NewCheckerWithDefaults creates a checker with default thresholds.
func NewCheckerWithDefaults() *Checker {
	return NewChecker(DefaultThresholds())
}

// EvaluateMetrics grades the current metrics sample.
func (c *Checker) EvaluateMetrics(m *Metrics) *CheckResult {
	result := &CheckResult{
		Status:    StatusHealthy,
		CheckedAt: time.Now(),
		Issues:    make([]Issue, 0),
	}

	if m == nil {
		result.Status = StatusUnknown
		result.Message = "No metrics available"
		return result
	}

	if m.DiskUsage >= c.thresholds.DiskCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusCritical,
			Message:   "Journal disk space critically low",
			Value:     m.DiskUsage,
			Threshold: c.thresholds.DiskCritical,
		})
	} else if m.DiskUsage >= c.thresholds.DiskWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusWarning,
			Message:   "Journal disk space running low",
			Value:     m.DiskUsage,
			Threshold: c.thresholds.DiskWarning,
		})
	}

	if m.MemoryUsage >= c.thresholds.MemoryCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "memory",
			Severity:  StatusCritical,
			Message:   "Memory usage critically high",
			Value:     m.MemoryUsage,
			Threshold: c.thresholds.MemoryCritical,
		})
	} else if m.MemoryUsage >= c.thresholds.MemoryWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "memory",
			Severity:  StatusWarning,
			Message:   "Memory usage high",
			Value:     m.MemoryUsage,
			Threshold: c.thresholds.MemoryWarning,
		})
	}

	if m.CPUUsage >= c.thresholds.CPUCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "cpu",
			Severity:  StatusCritical,
			Message:   "CPU usage critically high",
			Value:     m.CPUUsage,
			Threshold: c.thresholds.CPUCritical,
		})
	} else if m.CPUUsage >= c.thresholds.CPUWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "cpu",
			Severity:  StatusWarning,
			Message:   "CPU usage high",
			Value:     m.CPUUsage,
			Threshold: c.thresholds.CPUWarning,
		})
	}

	if !m.NetworkUp {
		result.Issues = append(result.Issues, Issue{
			Component: "network",
			Severity:  StatusWarning,
			Message:   "No active network interface detected",
		})
	}

	result.Issues = append(result.Issues, c.evaluatePrinters(m.Printers)...)

	result.Status = c.determineOverallStatus(result.Issues)
	result.Message = c.generateMessage(result)

	return result
}

// evaluatePrinters flags unreachable printers. One dead printer among
// several is a warning; a station with no reachable printer at all cannot
// do its job, so every probe failure escalates to critical.
func (c *Checker) evaluatePrinters(probes []PrinterProbe) []Issue {
	if len(probes) == 0 {
		return nil
	}

	reachable := 0
	for _, p := range probes {
		if p.Reachable {
			reachable++
		}
	}

	severity := StatusWarning
	if reachable == 0 {
		severity = StatusCritical
	}

	var issues []Issue
	for _, p := range probes {
		if p.Reachable {
			continue
		}
		msg := "Printer " + p.ID + " is unreachable at " + p.Address
		if p.Error != "" {
			msg += ": " + p.Error
		}
		issues = append(issues, Issue{
			Component: "printer",
			Severity:  severity,
			Message:   msg,
		})
	}
	return issues
}

// EvaluateWithLastContact grades metrics plus the time since the station
// last authenticated with the server.
func (c *Checker) EvaluateWithLastContact(m *Metrics, lastContact *time.Time) *CheckResult {
	result := c.EvaluateMetrics(m)

	if lastContact != nil {
		sinceContact := time.Since(*lastContact)

		if sinceContact >= c.thresholds.ContactCritical {
			result.Issues = append(result.Issues, Issue{
				Component: "server",
				Severity:  StatusCritical,
				Message:   "Station has not authenticated in over a week; its token may have been rotated away",
				Value:     sinceContact.Hours(),
				Threshold: c.thresholds.ContactCritical.Hours(),
			})
		} else if sinceContact >= c.thresholds.ContactWarning {
			result.Issues = append(result.Issues, Issue{
				Component: "server",
				Severity:  StatusWarning,
				Message:   "Station has not authenticated in over a day",
				Value:     sinceContact.Hours(),
				Threshold: c.thresholds.ContactWarning.Hours(),
			})
		}
	} else {
		result.Issues = append(result.Issues, Issue{
			Component: "server",
			Severity:  StatusWarning,
			Message:   "Station has never connected to the server",
		})
	}

	result.Status = c.determineOverallStatus(result.Issues)
	result.Message = c.generateMessage(result)

	return result
}

// determineOverallStatus reduces issues to a single grade.
func (c *Checker) determineOverallStatus(issues []Issue) Status {
	if len(issues) == 0 {
		return StatusHealthy
	}

	hasCritical := false
	hasWarning := false

	for _, issue := range issues {
		switch issue.Severity {
		case StatusCritical:
			hasCritical = true
		case StatusWarning:
			hasWarning = true
		}
	}

	if hasCritical {
		return StatusCritical
	}
	if hasWarning {
		return StatusWarning
	}
	return StatusHealthy
}

// generateMessage produces a human-readable summary line.
func (c *Checker) generateMessage(result *CheckResult) string {
	switch result.Status {
	case StatusHealthy:
		return "Station is ready to print"
	case StatusWarning:
		return "Some checks require attention"
	case StatusCritical:
		return "Critical issues detected"
	default:
		return "Health status unknown"
	}
}

// GetStatusColor returns a display color for the status.
func GetStatusColor(status Status) string {
	switch status {
	case StatusHealthy:
		return "green"
	case StatusWarning:
		return "yellow"
	case StatusCritical:
		return "red"
	default:
		return "gray"
	}
}

package health

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()

	if th.DiskWarning != 80.0 {
		t.Errorf("expected DiskWarning 80.0, got %f", th.DiskWarning)
	}
	if th.DiskCritical != 90.0 {
		t.Errorf("expected DiskCritical 90.0, got %f", th.DiskCritical)
	}
	if th.MemoryWarning != 85.0 {
		t.Errorf("expected MemoryWarning 85.0, got %f", th.MemoryWarning)
	}
	if th.MemoryCritical != 95.0 {
		t.Errorf("expected MemoryCritical 95.0, got %f", th.MemoryCritical)
	}
	if th.CPUWarning != 80.0 {
		t.Errorf("expected CPUWarning 80.0, got %f", th.CPUWarning)
	}
	if th.CPUCritical != 95.0 {
		t.Errorf("expected CPUCritical 95.0, got %f", th.CPUCritical)
	}
	if th.ContactWarning != 24*time.Hour {
		t.Errorf("expected ContactWarning 24h, got %v", th.ContactWarning)
	}
	if th.ContactCritical != 7*24*time.Hour {
		t.Errorf("expected ContactCritical 168h, got %v", th.ContactCritical)
	}
}

func TestEvaluateMetrics_NilMetrics(t *testing.T) {
	c := NewCheckerWithDefaults()
	result := c.EvaluateMetrics(nil)

	if result.Status != StatusUnknown {
		t.Errorf("expected StatusUnknown, got %q", result.Status)
	}
	if result.Message != "No metrics available" {
		t.Errorf("expected 'No metrics available', got %q", result.Message)
	}
}

func TestEvaluateMetrics_AllHealthy(t *testing.T) {
	c := NewCheckerWithDefaults()
	m := &Metrics{
		CPUUsage:    30.0,
		MemoryUsage: 50.0,
		DiskUsage:   40.0,
		NetworkUp:   true,
		Printers: []PrinterProbe{
			{ID: "zebra-1", Address: "192.168.10.40:9100", Reachable: true, LatencyMS: 2},
		},
	}

	result := c.EvaluateMetrics(m)

	if result.Status != StatusHealthy {
		t.Errorf("expected StatusHealthy, got %q", result.Status)
	}
	if result.Message != "Station is ready to print" {
		t.Errorf("expected ready message, got %q", result.Message)
	}
	if len(result.Issues) != 0 {
		t.Errorf("expected 0 issues, got %d", len(result.Issues))
	}
	if result.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be set")
	}
}

func TestEvaluateMetrics_DiskThresholds(t *testing.T) {
	c := NewCheckerWithDefaults()

	t.Run("warning at 85 percent", func(t *testing.T) {
		result := c.EvaluateMetrics(&Metrics{DiskUsage: 85.0, NetworkUp: true})
		if result.Status != StatusWarning {
			t.Errorf("expected StatusWarning, got %q", result.Status)
		}
		if len(result.Issues) != 1 {
			t.Fatalf("expected 1 issue, got %d", len(result.Issues))
		}
		issue := result.Issues[0]
		if issue.Component != "disk" || issue.Severity != StatusWarning {
			t.Errorf("unexpected issue %+v", issue)
		}
		if issue.Value != 85.0 || issue.Threshold != 80.0 {
			t.Errorf("expected value 85/threshold 80, got %f/%f", issue.Value, issue.Threshold)
		}
	})

	t.Run("critical at 95 percent", func(t *testing.T) {
		result := c.EvaluateMetrics(&Metrics{DiskUsage: 95.0, NetworkUp: true})
		if result.Status != StatusCritical {
			t.Errorf("expected StatusCritical, got %q", result.Status)
		}
	})

	t.Run("exactly at warning threshold", func(t *testing.T) {
		result := c.EvaluateMetrics(&Metrics{DiskUsage: 80.0, NetworkUp: true})
		if result.Status != StatusWarning {
			t.Errorf("expected StatusWarning at exactly 80%%, got %q", result.Status)
		}
	})

	t.Run("just below warning threshold", func(t *testing.T) {
		result := c.EvaluateMetrics(&Metrics{DiskUsage: 79.9, NetworkUp: true})
		if result.Status != StatusHealthy {
			t.Errorf("expected StatusHealthy below 80%%, got %q", result.Status)
		}
	})
}

func TestEvaluateMetrics_MemoryAndCPU(t *testing.T) {
	c := NewCheckerWithDefaults()

	tests := []struct {
		name      string
		metrics   Metrics
		want      Status
		component string
	}{
		{"memory warning", Metrics{MemoryUsage: 90.0, NetworkUp: true}, StatusWarning, "memory"},
		{"memory critical", Metrics{MemoryUsage: 96.0, NetworkUp: true}, StatusCritical, "memory"},
		{"cpu warning", Metrics{CPUUsage: 85.0, NetworkUp: true}, StatusWarning, "cpu"},
		{"cpu critical", Metrics{CPUUsage: 96.0, NetworkUp: true}, StatusCritical, "cpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.EvaluateMetrics(&tt.metrics)
			if result.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, result.Status)
			}
			found := false
			for _, issue := range result.Issues {
				if issue.Component == tt.component && issue.Severity == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %s issue with severity %q", tt.component, tt.want)
			}
		})
	}
}

func TestEvaluateMetrics_NetworkDown(t *testing.T) {
	c := NewCheckerWithDefaults()
	result := c.EvaluateMetrics(&Metrics{NetworkUp: false})

	if result.Status != StatusWarning {
		t.Errorf("expected StatusWarning, got %q", result.Status)
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Component == "network" && issue.Severity == StatusWarning {
			found = true
		}
	}
	if !found {
		t.Error("expected network issue")
	}
}

func TestEvaluateMetrics_Printers(t *testing.T) {
	c := NewCheckerWithDefaults()

	t.Run("one of two printers down is a warning", func(t *testing.T) {
		m := &Metrics{
			NetworkUp: true,
			Printers: []PrinterProbe{
				{ID: "zebra-1", Address: "192.168.10.40:9100", Reachable: true},
				{ID: "zebra-2", Address: "192.168.10.41:9100", Reachable: false, Error: "connection refused"},
			},
		}
		result := c.EvaluateMetrics(m)
		if result.Status != StatusWarning {
			t.Errorf("expected StatusWarning, got %q", result.Status)
		}
		if len(result.Issues) != 1 {
			t.Fatalf("expected 1 issue, got %d", len(result.Issues))
		}
		if result.Issues[0].Component != "printer" {
			t.Errorf("expected printer issue, got %q", result.Issues[0].Component)
		}
	})

	t.Run("all printers down is critical", func(t *testing.T) {
		m := &Metrics{
			NetworkUp: true,
			Printers: []PrinterProbe{
				{ID: "zebra-1", Address: "192.168.10.40:9100", Reachable: false},
				{ID: "zebra-2", Address: "192.168.10.41:9100", Reachable: false},
			},
		}
		result := c.EvaluateMetrics(m)
		if result.Status != StatusCritical {
			t.Errorf("expected StatusCritical, got %q", result.Status)
		}
		if len(result.Issues) != 2 {
			t.Fatalf("expected 2 issues, got %d", len(result.Issues))
		}
		for _, issue := range result.Issues {
			if issue.Severity != StatusCritical {
				t.Errorf("expected critical severity, got %q", issue.Severity)
			}
		}
	})

	t.Run("single printer down is critical", func(t *testing.T) {
		m := &Metrics{
			NetworkUp: true,
			Printers: []PrinterProbe{
				{ID: "zebra-1", Address: "192.168.10.40:9100", Reachable: false, Error: "i/o timeout"},
			},
		}
		result := c.EvaluateMetrics(m)
		if result.Status != StatusCritical {
			t.Errorf("expected StatusCritical for the only printer down, got %q", result.Status)
		}
	})

	t.Run("no printers configured adds no issues", func(t *testing.T) {
		result := c.EvaluateMetrics(&Metrics{NetworkUp: true})
		if result.Status != StatusHealthy {
			t.Errorf("expected StatusHealthy, got %q", result.Status)
		}
	})
}

func TestEvaluateWithLastContact(t *testing.T) {
	c := NewCheckerWithDefaults()
	healthy := &Metrics{NetworkUp: true}

	t.Run("recent contact", func(t *testing.T) {
		recent := time.Now().Add(-1 * time.Hour)
		result := c.EvaluateWithLastContact(healthy, &recent)
		if result.Status != StatusHealthy {
			t.Errorf("expected StatusHealthy, got %q", result.Status)
		}
		for _, issue := range result.Issues {
			if issue.Component == "server" {
				t.Error("unexpected server issue for recent contact")
			}
		}
	})

	t.Run("stale contact warns", func(t *testing.T) {
		stale := time.Now().Add(-36 * time.Hour)
		result := c.EvaluateWithLastContact(healthy, &stale)
		if result.Status != StatusWarning {
			t.Errorf("expected StatusWarning, got %q", result.Status)
		}
	})

	t.Run("week-old contact is critical", func(t *testing.T) {
		old := time.Now().Add(-8 * 24 * time.Hour)
		result := c.EvaluateWithLastContact(healthy, &old)
		if result.Status != StatusCritical {
			t.Errorf("expected StatusCritical, got %q", result.Status)
		}
	})

	t.Run("never connected warns", func(t *testing.T) {
		result := c.EvaluateWithLastContact(healthy, nil)
		if result.Status != StatusWarning {
			t.Errorf("expected StatusWarning, got %q", result.Status)
		}
		found := false
		for _, issue := range result.Issues {
			if issue.Component == "server" && issue.Message == "Station has never connected to the server" {
				found = true
			}
		}
		if !found {
			t.Error("expected never-connected issue")
		}
	})

	t.Run("nil metrics with stale contact", func(t *testing.T) {
		old := time.Now().Add(-8 * 24 * time.Hour)
		result := c.EvaluateWithLastContact(nil, &old)
		if result.Status != StatusCritical {
			t.Errorf("expected StatusCritical, got %q", result.Status)
		}
	})
}

func TestDetermineOverallStatus(t *testing.T) {
	c := NewCheckerWithDefaults()

	t.Run("no issues returns healthy", func(t *testing.T) {
		if got := c.determineOverallStatus([]Issue{}); got != StatusHealthy {
			t.Errorf("expected StatusHealthy, got %q", got)
		}
	})

	t.Run("only warnings returns warning", func(t *testing.T) {
		issues := []Issue{{Severity: StatusWarning}, {Severity: StatusWarning}}
		if got := c.determineOverallStatus(issues); got != StatusWarning {
			t.Errorf("expected StatusWarning, got %q", got)
		}
	})

	t.Run("critical trumps warning", func(t *testing.T) {
		issues := []Issue{{Severity: StatusWarning}, {Severity: StatusCritical}}
		if got := c.determineOverallStatus(issues); got != StatusCritical {
			t.Errorf("expected StatusCritical, got %q", got)
		}
	})
}

func TestGetStatusColor(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusHealthy, "green"},
		{StatusWarning, "yellow"},
		{StatusCritical, "red"},
		{StatusUnknown, "gray"},
		{"other", "gray"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := GetStatusColor(tt.status); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCollect(t *testing.T) {
	c := NewCollector(t.TempDir(), nil)
	ctx := context.Background()

	m, err := c.Collect(ctx)

	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.DiskTotalBytes <= 0 {
		t.Errorf("expected positive disk total, got %d", m.DiskTotalBytes)
	}
	if len(m.Printers) != 0 {
		t.Errorf("expected no probes without printers, got %d", len(m.Printers))
	}
}

func TestCollect_CanceledContext(t *testing.T) {
	c := NewCollector(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := c.Collect(ctx)

	// Collect reports per-check failures inside the sample, not as errors.
	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil metrics even with canceled context")
	}
}

func TestProbePrinter_Reachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, aerr := listener.Accept()
		if aerr == nil {
			conn.Close()
		}
	}()

	c := NewCollector(t.TempDir(), nil)
	probe := c.probePrinter(context.Background(), PrinterTarget{
		ID:      "zebra-1",
		Address: listener.Addr().String(),
	})

	if !probe.Reachable {
		t.Errorf("expected reachable probe, got error %q", probe.Error)
	}
	if probe.ID != "zebra-1" {
		t.Errorf("expected probe ID zebra-1, got %q", probe.ID)
	}
}

func TestProbePrinter_Unreachable(t *testing.T) {
	// Grab a port and close it so nothing is listening there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	c := NewCollector(t.TempDir(), nil)
	probe := c.probePrinter(context.Background(), PrinterTarget{ID: "zebra-1", Address: addr})

	if probe.Reachable {
		t.Error("expected unreachable probe")
	}
	if probe.Error == "" {
		t.Error("expected probe error to be recorded")
	}
}

func TestCollect_WithPrinters(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	go func() {
		for {
			conn, aerr := listener.Accept()
			if aerr != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewCollector(t.TempDir(), []PrinterTarget{
		{ID: "zebra-1", Address: listener.Addr().String()},
	})

	m, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() returned error: %v", err)
	}
	if len(m.Printers) != 1 {
		t.Fatalf("expected 1 probe, got %d", len(m.Printers))
	}
	if !m.Printers[0].Reachable {
		t.Errorf("expected printer reachable, got error %q", m.Printers[0].Error)
	}
}

func TestGetOSInfo(t *testing.T) {
	info := GetOSInfo()

	if info["os"] == "" {
		t.Error("expected non-empty os")
	}
	if info["arch"] == "" {
		t.Error("expected non-empty arch")
	}
	if _, ok := info["hostname"]; !ok {
		t.Error("expected hostname key")
	}
	if _, ok := info["version"]; !ok {
		t.Error("expected version key")
	}
}

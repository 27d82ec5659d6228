// Package health provides local diagnostics for print stations: host
// metrics, network state, and printer reachability probes.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// defaultProbeTimeout bounds each printer reachability probe.
const defaultProbeTimeout = 3 * time.Second

// Metrics contains one diagnostics sample for a print station.
type Metrics struct {
	CPUUsage       float64        `json:"cpu_usage"`
	MemoryUsage    float64        `json:"memory_usage"`
	DiskUsage      float64        `json:"disk_usage"`
	DiskFreeBytes  int64          `json:"disk_free_bytes"`
	DiskTotalBytes int64          `json:"disk_total_bytes"`
	NetworkUp      bool           `json:"network_up"`
	Printers       []PrinterProbe `json:"printers,omitempty"`
}

// PrinterTarget identifies one printer to probe.
type PrinterTarget struct {
	ID      string
	Address string
}

// PrinterProbe is the result of a TCP reachability check against one printer.
type PrinterProbe struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Collector samples host metrics and probes the station's printers.
type Collector struct {
	journalDir   string
	printers     []PrinterTarget
	probeTimeout time.Duration
}

// NewCollector creates a collector. Disk usage is measured on the
// filesystem holding journalDir, where the job journal grows.
func NewCollector(journalDir string, printers []PrinterTarget) *Collector {
	return &Collector{
		journalDir:   journalDir,
		printers:     printers,
		probeTimeout: defaultProbeTimeout,
	}
}

// Collect gathers one diagnostics sample. Individual probe failures are
// reported inside the sample, not as errors.
func (c *Collector) Collect(ctx context.Context) (*Metrics, error) {
	m := &Metrics{}

	// CPU usage (average over 1 second)
	cpuPercent, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		m.CPUUsage = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		m.MemoryUsage = memStat.UsedPercent
	}

	diskStat, err := disk.UsageWithContext(ctx, c.diskPath())
	if err == nil {
		m.DiskUsage = diskStat.UsedPercent
		m.DiskFreeBytes = int64(diskStat.Free)
		m.DiskTotalBytes = int64(diskStat.Total)
	}

	m.NetworkUp = c.checkNetworkUp(ctx)

	for _, target := range c.printers {
		m.Printers = append(m.Printers, c.probePrinter(ctx, target))
	}

	return m, nil
}

// diskPath returns the filesystem path whose usage matters to the station.
func (c *Collector) diskPath() string {
	if c.journalDir != "" {
		if _, err := os.Stat(c.journalDir); err == nil {
			return c.journalDir
		}
	}
	if runtime.GOOS == "windows" {
		return "C:\\"
	}
	return "/"
}

// checkNetworkUp reports whether any non-loopback interface has an address.
func (c *Collector) checkNetworkUp(ctx context.Context) bool {
	interfaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		name := strings.ToLower(iface.Name)
		if strings.Contains(name, "lo") || strings.Contains(name, "loopback") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}

	return false
}

// probePrinter opens and closes a TCP connection to the printer's raw
// print port. Zebra-class printers accept the connection even while busy,
// so success means the device is powered and on the network.
func (c *Collector) probePrinter(ctx context.Context, target PrinterTarget) PrinterProbe {
	probe := PrinterProbe{ID: target.ID, Address: target.Address}

	dialer := net.Dialer{Timeout: c.probeTimeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", target.Address)
	if err != nil {
		probe.Error = err.Error()
		return probe
	}
	conn.Close()

	probe.Reachable = true
	probe.LatencyMS = time.Since(start).Milliseconds()
	return probe
}

// GetOSInfo returns operating system information for the status display.
func GetOSInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"version":  getOSVersion(),
	}
}

// getOSVersion returns the OS version string.
func getOSVersion() string {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/etc/os-release")
		if err == nil {
			lines := strings.Split(string(data), "\n")
			for _, line := range lines {
				if strings.HasPrefix(line, "PRETTY_NAME=") {
					return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
				}
			}
		}
	case "darwin":
		cmd := exec.Command("sw_vers", "-productVersion")
		output, err := cmd.Output()
		if err == nil {
			return fmt.Sprintf("macOS %s", strings.TrimSpace(string(output)))
		}
	case "windows":
		cmd := exec.Command("cmd", "/c", "ver")
		output, err := cmd.Output()
		if err == nil {
			return strings.TrimSpace(string(output))
		}
	}
	return runtime.GOOS
}

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPrinterPort is the raw socket port ZPL printers listen on.
const DefaultPrinterPort = "9100"

// DefaultAgentProtocolVersion is what stations declare unless configured
// otherwise. Servers reject versions they were not told to accept, so the
// opt-in to version 2 lives in the config file.
const DefaultAgentProtocolVersion = "1"

// DefaultConfigDir returns the default agent config directory
// (~/.props-print-agent).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".props-print-agent"), nil
}

// DefaultConfigPath returns the default agent config file path
// (~/.props-print-agent/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// PrinterConfig describes one printer attached to the station.
type PrinterConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Type selects the render pipeline; "zpl" is the only built-in.
	Type string `yaml:"type"`
	// Address is the raw socket print target. A bare host gets the
	// default printer port appended.
	Address   string   `yaml:"address"`
	Templates []string `yaml:"templates,omitempty"`
}

// DialAddress returns the TCP target for the printer, appending the default
// raw-print port when the configured address carries none.
func (p *PrinterConfig) DialAddress() string {
	if _, _, err := net.SplitHostPort(p.Address); err == nil {
		return p.Address
	}
	return net.JoinHostPort(p.Address, DefaultPrinterPort)
}

// ProxyConfig holds outbound proxy settings for stations on restricted
// networks.
type ProxyConfig struct {
	SOCKS5Proxy string `yaml:"socks5_proxy,omitempty"`
	HTTPProxy   string `yaml:"http_proxy,omitempty"`
	HTTPSProxy  string `yaml:"https_proxy,omitempty"`
	NoProxy     string `yaml:"no_proxy,omitempty"`
}

// HasProxy returns true if any proxy is configured.
func (p *ProxyConfig) HasProxy() bool {
	if p == nil {
		return false
	}
	return p.SOCKS5Proxy != "" || p.HTTPProxy != "" || p.HTTPSProxy != ""
}

// AgentConfig holds the print station's configuration. The token field is
// rewritten after every successful authentication, so the file must stay
// writable by the agent user.
type AgentConfig struct {
	ServerURL string `yaml:"server_url,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Token     string `yaml:"token,omitempty"`
	ClientID  string `yaml:"client_id,omitempty"`
	// ServerName is the display name the server reported when pairing.
	ServerName string          `yaml:"server_name,omitempty"`
	Printers   []PrinterConfig `yaml:"printers,omitempty"`
	Proxy      *ProxyConfig    `yaml:"proxy,omitempty"`
	// ProtocolVersion is what the station declares to the server. Version 2
	// adds location labels; leave empty to declare version 1.
	ProtocolVersion string `yaml:"protocol_version,omitempty"`
	// JournalDir overrides where the local job journal lives. Empty means
	// the config directory.
	JournalDir string `yaml:"journal_dir,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`
}

// EffectiveProtocolVersion returns the protocol version the station should
// declare, defaulting to version 1.
func (c *AgentConfig) EffectiveProtocolVersion() string {
	if c.ProtocolVersion == "" {
		return DefaultAgentProtocolVersion
	}
	return c.ProtocolVersion
}

// Validate checks that the configuration has required fields for operation.
func (c *AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.Token == "" {
		return errors.New("token is required; run 'props-print-agent pair' first")
	}
	if len(c.Printers) == 0 {
		return errors.New("at least one printer must be configured")
	}
	for i, p := range c.Printers {
		if p.ID == "" {
			return fmt.Errorf("printer %d: id is required", i)
		}
		if p.Address == "" {
			return fmt.Errorf("printer %q: address is required", p.ID)
		}
	}
	return nil
}

// IsConfigured returns true if the station has been paired with a server.
func (c *AgentConfig) IsConfigured() bool {
	return c.ServerURL != "" && c.Token != ""
}

// GetProxyConfig returns the proxy settings, nil when none are set.
func (c *AgentConfig) GetProxyConfig() *ProxyConfig {
	if c.Proxy == nil || !c.Proxy.HasProxy() {
		return nil
	}
	return c.Proxy
}

// ResolveJournalDir returns the directory the job journal lives in,
// defaulting to the agent config directory.
func (c *AgentConfig) ResolveJournalDir() (string, error) {
	if c.JournalDir != "" {
		return c.JournalDir, nil
	}
	return DefaultConfigDir()
}

// LoadAgentConfig reads the configuration from the given path. If the file
// does not exist, an empty config is returned.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AgentConfig{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadAgentConfigDefault loads the configuration from the default path.
func LoadAgentConfigDefault() (*AgentConfig, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadAgentConfig(path)
}

// Save writes the configuration to the given path, creating directories as
// needed. The file carries the station's bearer token, hence 0600.
func (c *AgentConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// SaveDefault saves the configuration to the default path.
func (c *AgentConfig) SaveDefault() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}

// Package config handles loading and managing application configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport kinds accepted in server configuration
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Collision policies for tools advertised by more than one backend
const (
	CollisionReject    = "reject"
	CollisionNamespace = "namespace"
)

// Defaults shared by the host and the aggregator
const (
	DefaultCallTimeout        = 30 * time.Second
	DefaultReceiveTimeout     = 30 * time.Second
	DefaultInitializeTimeout  = 30 * time.Second
	DefaultCloseGracePeriod   = 2 * time.Second
	DefaultToolTimeout        = 30 * time.Second
	DefaultUpstreamTimeout    = 10 * time.Second
	DefaultNamespaceSeparator = "."
	DefaultPokeAPIBaseURL     = "https://pokeapi.co/api/v2"
	DefaultBenignURL          = "https://gist.githubusercontent.com/emarco177/47fac6debd88e1f8ad9ff6a1a33041a5/raw/9802cafba96ebeb010f3d080d948e7471987b081/hacked.txt"
)

// Config represents the main application configuration
type Config struct {
	Version       string                     `json:"version,omitempty"`
	MCPServers    map[string]MCPServerConfig `json:"mcpServers"`
	Aggregator    AggregatorConfig           `json:"aggregator,omitempty"`
	Host          HostConfig                 `json:"host,omitempty"`
	Timeouts      TimeoutConfig              `json:"timeouts,omitempty"`
	Monitoring    MonitoringConfig           `json:"monitoring,omitempty"`
	Observability ObservabilityConfig        `json:"observability,omitempty"`
	Reload        ReloadConfig               `json:"reload,omitempty"`
}

// MCPServerConfig describes how to reach one backend host
type MCPServerConfig struct {
	Command                  string            `json:"command,omitempty"`
	Args                     []string          `json:"args,omitempty"`
	Cwd                      string            `json:"cwd,omitempty"`
	URL                      string            `json:"url,omitempty"`
	Transport                string            `json:"transport,omitempty"`
	Env                      map[string]string `json:"env,omitempty"`
	Headers                  map[string]string `json:"headers,omitempty"`
	Disabled                 bool              `json:"disabled,omitempty"`
	InitializeTimeoutSeconds *int              `json:"initializeTimeoutSeconds,omitempty"`
	// Sequential marks a backend that cannot interleave requests; calls are then queued FIFO
	Sequential bool           `json:"sequential,omitempty"`
	Tools      MCPToolsConfig `json:"tools,omitempty"`
}

// GetTransport returns the normalised transport kind, inferring it from other fields if not set
func (mcp *MCPServerConfig) GetTransport() string {
	switch strings.ToLower(strings.TrimSpace(mcp.Transport)) {
	case "stdio", "process":
		return TransportStdio
	case "sse", "stream", "http":
		return TransportSSE
	case "":
	default:
		return strings.ToLower(mcp.Transport)
	}
	if mcp.Command != "" {
		return TransportStdio
	}
	if mcp.URL != "" {
		return TransportSSE
	}
	return TransportStdio
}

// GetInitializeTimeout returns the handshake timeout with default fallback
func (mcp *MCPServerConfig) GetInitializeTimeout() time.Duration {
	if mcp.InitializeTimeoutSeconds != nil && *mcp.InitializeTimeoutSeconds > 0 {
		return time.Duration(*mcp.InitializeTimeoutSeconds) * time.Second
	}
	return DefaultInitializeTimeout
}

// MCPToolsConfig contains tool filtering configuration
type MCPToolsConfig struct {
	AllowList []string `json:"allowList,omitempty"`
	BlockList []string `json:"blockList,omitempty"`
}

// Allowed reports whether a backend tool passes the allow and block lists
func (t MCPToolsConfig) Allowed(name string) bool {
	if len(t.AllowList) > 0 && !contains(t.AllowList, name) {
		return false
	}
	return !contains(t.BlockList, name)
}

// AggregatorConfig controls catalog merging
type AggregatorConfig struct {
	RequireAll         bool   `json:"requireAll,omitempty"`
	CollisionPolicy    string `json:"collisionPolicy,omitempty"`
	NamespaceSeparator string `json:"namespaceSeparator,omitempty"`
}

// HostConfig configures the tool/resource host binaries
type HostConfig struct {
	Name        string `json:"name,omitempty"`
	Version     string `json:"version,omitempty"`
	ResourceDir string `json:"resourceDir,omitempty"`
	ListenAddr  string `json:"listenAddr,omitempty"`
	ToolTimeout string `json:"toolTimeout,omitempty"`
	// EnableShell exposes the terminal tool; it runs arbitrary commands
	EnableShell              *bool   `json:"enableShell,omitempty"`
	BenignURL                string  `json:"benignUrl,omitempty"`
	PokeAPIBaseURL           string  `json:"pokeApiBaseUrl,omitempty"`
	PokeAPIRequestsPerSecond float64 `json:"pokeApiRequestsPerSecond,omitempty"`
}

// ShellEnabled reports whether the terminal tool should be registered
func (h HostConfig) ShellEnabled() bool {
	return h.EnableShell == nil || *h.EnableShell
}

// GetToolTimeout returns the per-tool timeout
func (h HostConfig) GetToolTimeout() time.Duration {
	return durationOr(h.ToolTimeout, DefaultToolTimeout)
}

// TimeoutConfig contains timeout settings for client-side operations
type TimeoutConfig struct {
	CallTimeout        string `json:"callTimeout,omitempty"`        // per request on a session (default: "30s")
	ReceiveTimeout     string `json:"receiveTimeout,omitempty"`     // max wait of a single channel receive (default: "30s")
	CloseGracePeriod   string `json:"closeGracePeriod,omitempty"`   // stdio child exit grace on close (default: "2s")
	HTTPRequestTimeout string `json:"httpRequestTimeout,omitempty"` // upstream fetches (default: "10s")
}

// GetCallTimeout returns the per-call timeout
func (t TimeoutConfig) GetCallTimeout() time.Duration {
	return durationOr(t.CallTimeout, DefaultCallTimeout)
}

// GetReceiveTimeout returns the per-receive bound
func (t TimeoutConfig) GetReceiveTimeout() time.Duration {
	return durationOr(t.ReceiveTimeout, DefaultReceiveTimeout)
}

// GetCloseGracePeriod returns how long a stdio child may take to exit after stdin closes
func (t TimeoutConfig) GetCloseGracePeriod() time.Duration {
	return durationOr(t.CloseGracePeriod, DefaultCloseGracePeriod)
}

// GetHTTPRequestTimeout returns the upstream fetch timeout
func (t TimeoutConfig) GetHTTPRequestTimeout() time.Duration {
	return durationOr(t.HTTPRequestTimeout, DefaultUpstreamTimeout)
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	LoggingLevel string `json:"loggingLevel,omitempty"`
}

// ObservabilityConfig contains tracing settings
type ObservabilityConfig struct {
	Enabled        bool              `json:"enabled,omitempty"`
	Endpoint       string            `json:"endpoint,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	ServiceName    string            `json:"serviceName,omitempty"`
	ServiceVersion string            `json:"serviceVersion,omitempty"`
}

// ReloadConfig contains settings for periodic host reload
type ReloadConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"` // default: "30m"
}

// ApplyDefaults applies default values to the configuration
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	if c.MCPServers == nil {
		c.MCPServers = make(map[string]MCPServerConfig)
	}

	if c.Aggregator.CollisionPolicy == "" {
		c.Aggregator.CollisionPolicy = CollisionReject
	}
	if c.Aggregator.NamespaceSeparator == "" {
		c.Aggregator.NamespaceSeparator = DefaultNamespaceSeparator
	}

	if c.Host.Name == "" {
		c.Host.Name = "terminal-server"
	}
	if c.Host.Version == "" {
		c.Host.Version = "0.1.0"
	}
	if c.Host.ResourceDir == "" {
		c.Host.ResourceDir = "resource"
	}
	if c.Host.ListenAddr == "" {
		c.Host.ListenAddr = ":8000"
	}
	if c.Host.ToolTimeout == "" {
		c.Host.ToolTimeout = "30s"
	}
	if c.Host.BenignURL == "" {
		c.Host.BenignURL = DefaultBenignURL
	}
	if c.Host.PokeAPIBaseURL == "" {
		c.Host.PokeAPIBaseURL = DefaultPokeAPIBaseURL
	}
	if c.Host.PokeAPIRequestsPerSecond == 0 {
		c.Host.PokeAPIRequestsPerSecond = 5
	}

	if c.Timeouts.CallTimeout == "" {
		c.Timeouts.CallTimeout = "30s"
	}
	if c.Timeouts.ReceiveTimeout == "" {
		c.Timeouts.ReceiveTimeout = "30s"
	}
	if c.Timeouts.CloseGracePeriod == "" {
		c.Timeouts.CloseGracePeriod = "2s"
	}
	if c.Timeouts.HTTPRequestTimeout == "" {
		c.Timeouts.HTTPRequestTimeout = "10s"
	}

	if c.Reload.Interval == "" {
		c.Reload.Interval = "30m"
	}

	c.Monitoring.Enabled = true
	if c.Monitoring.LoggingLevel == "" {
		c.Monitoring.LoggingLevel = "info"
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "mcp-server"
	}
	if c.Observability.ServiceVersion == "" {
		c.Observability.ServiceVersion = c.Host.Version
	}
}

// ApplyEnvironmentVariables applies environment variable overrides
func (c *Config) ApplyEnvironmentVariables() {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Monitoring.LoggingLevel = level
	}
	if enabled := os.Getenv("MONITORING_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			c.Monitoring.Enabled = val
		}
	}

	if dir := os.Getenv("MCP_RESOURCE_DIR"); dir != "" {
		c.Host.ResourceDir = dir
	}
	if addr := os.Getenv("MCP_LISTEN_ADDR"); addr != "" {
		c.Host.ListenAddr = addr
	}
	if baseURL := os.Getenv("POKEAPI_BASE_URL"); baseURL != "" {
		c.Host.PokeAPIBaseURL = baseURL
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Observability.Endpoint = endpoint
		c.Observability.Enabled = true
	}
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}

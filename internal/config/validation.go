package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

//go:embed config-schema.json
var configSchema string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("config-schema.json", configSchema)
	})
	return compiledSchema, schemaErr
}

// minReloadInterval guards against reload storms
const minReloadInterval = 10 * time.Second

// ValidateAfterDefaults validates configuration after defaults and env substitution
func (c *Config) ValidateAfterDefaults() error {
	switch c.Aggregator.CollisionPolicy {
	case CollisionReject, CollisionNamespace:
	default:
		return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
			"unknown collision policy %q", c.Aggregator.CollisionPolicy)
	}
	if c.Aggregator.CollisionPolicy == CollisionNamespace && c.Aggregator.NamespaceSeparator == "" {
		return customErrors.NewConfigError(string(customErrors.KindInvalidConfig), "namespace separator must not be empty")
	}

	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		server := c.MCPServers[name]
		if server.Disabled {
			continue
		}
		if err := ValidateServer(name, &server); err != nil {
			return err
		}
	}

	durations := map[string]string{
		"timeouts.callTimeout":        c.Timeouts.CallTimeout,
		"timeouts.receiveTimeout":     c.Timeouts.ReceiveTimeout,
		"timeouts.closeGracePeriod":   c.Timeouts.CloseGracePeriod,
		"timeouts.httpRequestTimeout": c.Timeouts.HTTPRequestTimeout,
		"host.toolTimeout":            c.Host.ToolTimeout,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d <= 0 {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"%s must be a positive duration, got %q", field, value)
		}
	}

	if c.Reload.Enabled {
		interval, err := time.ParseDuration(c.Reload.Interval)
		if err != nil {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"invalid reload interval %q", c.Reload.Interval)
		}
		if interval < minReloadInterval {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"reload interval %s is below the minimum of %s", interval, minReloadInterval)
		}
	}

	if c.Observability.Enabled {
		if c.Observability.Endpoint == "" || strings.HasPrefix(c.Observability.Endpoint, "${") {
			return customErrors.NewConfigError(string(customErrors.KindInvalidConfig),
				"OTEL_EXPORTER_OTLP_ENDPOINT not set while observability is enabled")
		}
	}

	return nil
}

// ValidateServer checks that an enabled server entry can be dialed
func ValidateServer(name string, server *MCPServerConfig) error {
	switch server.GetTransport() {
	case TransportStdio:
		if strings.TrimSpace(server.Command) == "" {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"server %q: stdio transport requires a command", name)
		}
	case TransportSSE:
		if server.URL == "" {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"server %q: sse transport requires a url", name)
		}
		u, err := url.Parse(server.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
				"server %q: invalid url %q", name, server.URL)
		}
	default:
		return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig),
			"server %q: unsupported transport %q", name, server.Transport)
	}
	return nil
}

// ValidateDocument checks raw JSON configuration data against the embedded schema
func ValidateDocument(configData []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "failed to compile config schema")
	}

	dec := json.NewDecoder(bytes.NewReader(configData))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "config is not valid JSON")
	}

	if err := schema.Validate(doc); err != nil {
		return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "configuration validation failed")
	}
	return nil
}

// removeSchemaField removes the $schema field from JSON data to avoid strict parsing errors
func removeSchemaField(configData []byte) []byte {
	var rawConfig map[string]interface{}
	if err := json.Unmarshal(configData, &rawConfig); err != nil {
		return configData
	}

	delete(rawConfig, "$schema")

	if cleanData, err := json.Marshal(rawConfig); err == nil {
		return cleanData
	}

	return configData
}

// yamlToJSON converts a YAML document into equivalent JSON
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return json.Marshal(doc)
}

// SubstituteEnvironmentVariables performs environment variable substitution
func (c *Config) SubstituteEnvironmentVariables() {
	for name, server := range c.MCPServers {
		server.Command = substituteEnvVars(server.Command)
		server.Cwd = substituteEnvVars(server.Cwd)
		server.URL = substituteEnvVars(server.URL)
		for i, arg := range server.Args {
			server.Args[i] = substituteEnvVars(arg)
		}
		for key, value := range server.Env {
			server.Env[key] = substituteEnvVars(value)
		}
		for key, value := range server.Headers {
			server.Headers[key] = substituteEnvVars(value)
		}
		c.MCPServers[name] = server
	}

	c.Host.ResourceDir = substituteEnvVars(c.Host.ResourceDir)
	c.Host.PokeAPIBaseURL = substituteEnvVars(c.Host.PokeAPIBaseURL)
	c.Observability.Endpoint = substituteEnvVars(c.Observability.Endpoint)
	for key, value := range c.Observability.Headers {
		c.Observability.Headers[key] = substituteEnvVars(value)
	}
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Unset variables are left as written.
func substituteEnvVars(input string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	return envPlaceholder.ReplaceAllStringFunc(input, func(match string) string {
		varName := match[2 : len(match)-1]
		if envValue, ok := os.LookupEnv(varName); ok {
			return envValue
		}
		return match
	})
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configFile string, logger *logging.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.DebugKV("No .env file loaded", "error", err)
		}
	} else if logger != nil {
		logger.InfoKV("Loaded environment variables from .env file", "success", true)
	}

	cfg := &Config{}
	cfg.ApplyDefaults()

	// Environment first so the config file has the final say
	cfg.ApplyEnvironmentVariables()

	if configFile != "" {
		if err := loadConfigFile(cfg, configFile, logger); err != nil {
			return nil, err
		}
	}

	cfg.SubstituteEnvironmentVariables()

	if err := cfg.ValidateAfterDefaults(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadConfigFile loads configuration from a JSON or YAML file
func loadConfigFile(cfg *Config, configFile string, logger *logging.Logger) error {
	configData, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return customErrors.NewConfigErrorf(string(customErrors.KindInvalidConfig), "config file does not exist: %s", configFile)
		}
		return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "failed to read config file")
	}

	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		configData, err = yamlToJSON(configData)
		if err != nil {
			return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "failed to parse YAML config file")
		}
	}

	if err := ValidateDocument(configData); err != nil {
		return err
	}

	configData = removeSchemaField(configData)
	dec := json.NewDecoder(bytes.NewReader(configData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), fmt.Sprintf("failed to parse config file %s", configFile))
	}

	if logger != nil {
		logger.InfoKV("Loaded configuration from file", "file", configFile, "servers", len(cfg.MCPServers))
	}

	return nil
}

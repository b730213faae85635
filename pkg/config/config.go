// Copyright 2025 The shiki authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the agent configuration schema and its YAML loader.
// The loaded Config is validated once at startup and treated as immutable
// afterwards.
package config

import (
	"os"
	"time"

	"github.com/pirakansa/shiki/pkg/constants"
)

// BackendType selects how the agent carries out service operations.
type BackendType string

const (
	// BackendSystemd delegates to the host service manager via systemctl.
	BackendSystemd BackendType = "systemd"
	// BackendExec runs operator-defined commands per service.
	BackendExec BackendType = "exec"
)

// AgentMode selects standalone or cluster operation.
type AgentMode string

const (
	// ModeStandalone runs the agent without peers.
	ModeStandalone AgentMode = "standalone"
	// ModeCluster runs the agent with a configured peer list.
	ModeCluster AgentMode = "cluster"
)

// AuthMethod selects how incoming requests authenticate.
type AuthMethod string

const (
	// AuthNone disables authentication.
	AuthNone AuthMethod = "none"
	// AuthToken requires a static bearer token.
	AuthToken AuthMethod = "token"
	// AuthAPIKey requires one of a list of API keys.
	AuthAPIKey AuthMethod = "apikey"
)

// Config is the root of the agent configuration file.
type Config struct {
	Services map[string]ServiceDefinition `yaml:"services"`
	Server   ServerConfig                 `yaml:"server"`
	Auth     AuthConfig                   `yaml:"auth"`
	Logging  LoggingConfig                `yaml:"logging"`
	Agent    AgentConfig                  `yaml:"agent"`
	Retry    RetryConfig                  `yaml:"retry"`
	Timeout  TimeoutConfig                `yaml:"timeout"`
	ACL      ACLConfig                    `yaml:"acl"`
	Cluster  ClusterConfig                `yaml:"cluster"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Bind string    `yaml:"bind"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// TLSConfig holds the optional TLS listener settings.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
	Enabled  bool   `yaml:"enabled"`
}

// AuthConfig holds the incoming-request authentication settings.
type AuthConfig struct {
	Method  AuthMethod `yaml:"method"`
	Token   string     `yaml:"token"`
	APIKeys []string   `yaml:"api_keys"`
	Enabled bool       `yaml:"enabled"`
}

// LoggingConfig holds log level and format. Format "json" emits structured
// JSON, "text" emits the human-readable console format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AgentConfig holds agent identity and backend selection.
type AgentConfig struct {
	Metadata map[string]string `yaml:"metadata"`
	Name     string            `yaml:"name"`
	Mode     AgentMode         `yaml:"mode"`
	Backend  BackendType       `yaml:"backend"`
	Tags     []string          `yaml:"tags"`
}

// RetryConfig holds the client retry schedule.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialIntervalMs int     `yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `yaml:"max_interval_ms"`
	Multiplier        float64 `yaml:"multiplier"`
}

// InitialInterval returns the delay before the first retry.
func (r RetryConfig) InitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMs) * time.Millisecond
}

// MaxInterval returns the cap on the delay between retries.
func (r RetryConfig) MaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMs) * time.Millisecond
}

// TimeoutConfig holds the operation deadlines, in seconds.
type TimeoutConfig struct {
	ServiceSeconds int `yaml:"service_seconds"`
	HTTPSeconds    int `yaml:"http_seconds"`
	HealthSeconds  int `yaml:"health_seconds"`
}

// Service returns the service operation timeout.
func (t TimeoutConfig) Service() time.Duration {
	return time.Duration(t.ServiceSeconds) * time.Second
}

// HTTP returns the HTTP request timeout.
func (t TimeoutConfig) HTTP() time.Duration {
	return time.Duration(t.HTTPSeconds) * time.Second
}

// Health returns the health check timeout.
func (t TimeoutConfig) Health() time.Duration {
	return time.Duration(t.HealthSeconds) * time.Second
}

// ACLConfig holds the allow and deny glob lists. An empty allow list permits
// every service not explicitly denied.
type ACLConfig struct {
	Allowed []string `yaml:"allowed"`
	Denied  []string `yaml:"denied"`
}

// ClusterConfig holds the peer agent list for cluster mode.
type ClusterConfig struct {
	Peers   []PeerConfig `yaml:"peers"`
	Enabled bool         `yaml:"enabled"`
}

// PeerConfig names one remote agent.
type PeerConfig struct {
	Name    string   `yaml:"name"`
	Address string   `yaml:"address"`
	Tags    []string `yaml:"tags"`
}

// ServiceDefinition describes one service for the exec backend. Start, stop
// and status are required; restart falls back to stop followed by start.
type ServiceDefinition struct {
	Start          string   `yaml:"start"`
	Stop           string   `yaml:"stop"`
	Status         string   `yaml:"status"`
	Reload         string   `yaml:"reload"`
	Restart        string   `yaml:"restart"`
	WorkingDir     string   `yaml:"working_dir"`
	Env            []string `yaml:"env"`
	TimeoutSeconds int      `yaml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: constants.DefaultListenAddress,
			Port: constants.DefaultListenPort,
		},
		Auth: AuthConfig{
			Method: AuthNone,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Agent: AgentConfig{
			Mode:    ModeStandalone,
			Backend: BackendSystemd,
		},
		Retry: RetryConfig{
			MaxAttempts:       constants.DefaultRetryMaxAttempts,
			InitialIntervalMs: int(constants.DefaultRetryInitialDelay / time.Millisecond),
			MaxIntervalMs:     int(constants.DefaultRetryMaxDelay / time.Millisecond),
			Multiplier:        constants.DefaultRetryBackoffMultiplier,
		},
		Timeout: TimeoutConfig{
			ServiceSeconds: int(constants.DefaultOperationTimeout / time.Second),
			HTTPSeconds:    int(constants.DefaultRequestTimeout / time.Second),
			HealthSeconds:  int(constants.DefaultHealthCheckTimeout / time.Second),
		},
	}
}

// AgentName returns the configured agent name, falling back to the hostname.
func (c *Config) AgentName() string {
	if c.Agent.Name != "" {
		return c.Agent.Name
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	return hostname
}

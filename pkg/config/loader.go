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

package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pirakansa/shiki/pkg/logger"
	"github.com/pirakansa/shiki/pkg/standarderrors"
)

// defaultSearchPaths is tried in order when no --config flag is given.
var defaultSearchPaths = []string{
	"/etc/shiki/config.yaml",
	"/etc/shiki/config.yml",
	"config.yaml",
	"config.yml",
}

// Load reads and validates the configuration. An empty path searches the
// default locations; when none exists the built-in defaults are used.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}

	for _, candidate := range defaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return loadFile(candidate)
		}
	}

	logger.For(logger.ComponentConfig).Infow("no config file found, using defaults")

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, standarderrors.NewConfigError(fmt.Sprintf("failed to read config file %q", path), err)
	}

	logger.For(logger.ComponentConfig).Debugw("loading configuration", "path", path)

	return Parse(data)
}

// Parse unmarshals YAML over the built-in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, standarderrors.NewConfigError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency. It returns a
// config error naming the first offending field.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return standarderrors.NewConfigError("server.port must be between 1 and 65535", nil)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertPath == "" {
			return standarderrors.NewConfigError("server.tls.cert_path is required when TLS is enabled", nil)
		}

		if c.Server.TLS.KeyPath == "" {
			return standarderrors.NewConfigError("server.tls.key_path is required when TLS is enabled", nil)
		}
	}

	if c.Auth.Enabled {
		switch c.Auth.Method {
		case AuthToken:
			if c.Auth.Token == "" {
				return standarderrors.NewConfigError("auth.token is required when using token authentication", nil)
			}
		case AuthAPIKey:
			if len(c.Auth.APIKeys) == 0 {
				return standarderrors.NewConfigError("auth.api_keys is required when using API key authentication", nil)
			}
		case AuthNone:
		default:
			return standarderrors.NewConfigError(fmt.Sprintf("unknown auth method: %s", c.Auth.Method), nil)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return standarderrors.NewConfigError(fmt.Sprintf("unknown log level: %s", c.Logging.Level), nil)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return standarderrors.NewConfigError(fmt.Sprintf("unknown log format: %s", c.Logging.Format), nil)
	}

	switch c.Agent.Mode {
	case ModeStandalone, ModeCluster:
	default:
		return standarderrors.NewConfigError(fmt.Sprintf("unknown agent mode: %s", c.Agent.Mode), nil)
	}

	switch c.Agent.Backend {
	case BackendSystemd:
	case BackendExec:
		if len(c.Services) == 0 {
			return standarderrors.NewConfigError("services section is required when using exec backend", nil)
		}
	default:
		return standarderrors.NewConfigError(fmt.Sprintf("unknown backend: %s", c.Agent.Backend), nil)
	}

	for name, def := range c.Services {
		if def.Start == "" {
			return standarderrors.NewConfigError(fmt.Sprintf("services.%s.start is required", name), nil)
		}

		if def.Stop == "" {
			return standarderrors.NewConfigError(fmt.Sprintf("services.%s.stop is required", name), nil)
		}

		if def.Status == "" {
			return standarderrors.NewConfigError(fmt.Sprintf("services.%s.status is required", name), nil)
		}
	}

	if c.Retry.MaxAttempts <= 0 {
		return standarderrors.NewConfigError("retry.max_attempts must be > 0", nil)
	}

	if c.Cluster.Enabled && len(c.Cluster.Peers) == 0 {
		return standarderrors.NewConfigError("cluster.peers is required when cluster is enabled", nil)
	}

	if err := validatePatterns("acl.allowed", c.ACL.Allowed); err != nil {
		return err
	}

	if err := validatePatterns("acl.denied", c.ACL.Denied); err != nil {
		return err
	}

	return nil
}

// validatePatterns rejects malformed glob patterns at load time so the ACL
// evaluator never has to guess what a broken pattern meant.
func validatePatterns(field string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return standarderrors.NewConfigError(fmt.Sprintf("%s: malformed pattern %q", field, pattern), err)
		}
	}

	return nil
}

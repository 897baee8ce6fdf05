// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the control plane's process-wide configuration,
// loaded once at startup per §6's environment table.
package config

import (
	"github.com/pyforge/controlplane/internal/config"
	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/logging"
)

// EnvPrefix is the environment-variable prefix this component loads
// configuration under (e.g. PYFORGE__DATABASE__URL sets database.url).
const EnvPrefix = "PYFORGE"

// Config is the control plane's complete process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Engine   EngineConfig   `koanf:"engine"`
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Images   ImagesConfig   `koanf:"images"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	ShutdownTimeout string `koanf:"shutdown-timeout"`
}

// LoggingConfig controls the ambient slog setup.
type LoggingConfig struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	AddSource bool   `koanf:"add-source"`
}

// EngineConfig controls how the core reaches the workflow engine cluster.
type EngineConfig struct {
	WorkflowNamespace string `koanf:"workflow-namespace"`
	ClusterType       string `koanf:"cluster-type"`
	KubeconfigPath    string `koanf:"kubeconfig-path"`
}

// DatabaseConfig controls the relational store connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// HTTPConfig controls boundary-level HTTP concerns.
type HTTPConfig struct {
	CORSOrigins []string `koanf:"cors-origins"`
}

// ImagesConfig names the container images the manifest synthesizer and
// helper pod manager run workloads under.
type ImagesConfig struct {
	PythonImage  string `koanf:"python-image"`
	NixBaseImage string `koanf:"nix-base-image"`
	HelperImage  string `koanf:"helper-image"`
}

// Defaults returns a Config populated with the component's defaults, to be
// overridden by config file and environment per internal/config.Loader's
// priority order.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "15s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			WorkflowNamespace: "default",
			ClusterType:       string(engine.ClusterTypeAuto),
		},
		Images: ImagesConfig{
			PythonImage:  "python:3.12-slim",
			NixBaseImage: "nixos/nix:latest",
			HelperImage:  "busybox:stable",
		},
	}
}

// Validate checks that every field load-bearing for startup is usable,
// implementing internal/config.Validator.
func (c *Config) Validate() error {
	var errs config.ValidationErrors

	root := config.NewPath("config")
	if err := config.MustNotBeEmpty(root.Child("engine").Child("workflow-namespace"), c.Engine.WorkflowNamespace); err != nil {
		errs = append(errs, err)
	}
	if err := config.MustBeOneOf(root.Child("engine").Child("cluster-type"), c.Engine.ClusterType,
		[]string{"auto", "kind", "eks", "external"}); err != nil {
		errs = append(errs, err)
	}
	if err := config.MustNotBeEmpty(root.Child("database").Child("url"), c.Database.URL); err != nil {
		errs = append(errs, err)
	}
	if err := config.MustBeInRange(root.Child("server").Child("port"), c.Server.Port, 1, 65535); err != nil {
		errs = append(errs, err)
	}
	if err := config.MustNotBeEmpty(root.Child("images").Child("python-image"), c.Images.PythonImage); err != nil {
		errs = append(errs, err)
	}

	return errs.OrNil()
}

// LoggingOptions adapts LoggingConfig to internal/logging.Config.
func (c *LoggingConfig) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     c.Level,
		Format:    c.Format,
		AddSource: c.AddSource,
	}
}

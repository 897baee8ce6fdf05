// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Command controlplane runs the task-and-flow execution control plane: the
// HTTP API, the log pipeline, and the volume helper pod manager, wired
// over a Store Adapter and a workflow engine client.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/pyforge/controlplane/internal/controlplane/api"
	"github.com/pyforge/controlplane/internal/controlplane/config"
	"github.com/pyforge/controlplane/internal/controlplane/service"
	coreconfig "github.com/pyforge/controlplane/internal/config"
	"github.com/pyforge/controlplane/internal/engine"
	"github.com/pyforge/controlplane/internal/helperpod"
	"github.com/pyforge/controlplane/internal/logging"
	"github.com/pyforge/controlplane/internal/logs"
	"github.com/pyforge/controlplane/internal/manifest"
	"github.com/pyforge/controlplane/internal/server"
	"github.com/pyforge/controlplane/internal/store"
)

func main() {
	flags, cli := setupFlags()
	_ = flags.Parse(os.Args[1:]) // ExitOnError mode handles parse errors

	bootLogger := logging.New(logging.Config{Level: "info", Format: "json"})

	loader := coreconfig.NewLoader(config.EnvPrefix)
	if err := loader.LoadWithDefaults(config.Defaults(), cli.configPath); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.LoadFlags(flags, flagMappings); err != nil {
		bootLogger.Error("failed to apply flag overrides", "error", err)
		os.Exit(1)
	}

	if cli.dumpConfig {
		if err := loader.DumpYAML(os.Stdout); err != nil {
			bootLogger.Error("failed to dump configuration", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var cfg config.Config
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		var validationErrs coreconfig.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, e := range validationErrs {
				bootLogger.Error("invalid configuration", "field", e.Field, "message", e.Message)
			}
		} else {
			bootLogger.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.LoggingOptions())
	logger.Info("starting control plane", "workflow_namespace", cfg.Engine.WorkflowNamespace, "cluster_type", cfg.Engine.ClusterType)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engineClient, err := engine.NewClient(engine.Config{
		Namespace:      cfg.Engine.WorkflowNamespace,
		ClusterType:    engine.ClusterType(cfg.Engine.ClusterType),
		KubeconfigPath: cfg.Engine.KubeconfigPath,
	})
	if err != nil {
		logger.Error("failed to build engine client", "error", err)
		os.Exit(1)
	}

	db, dialect, err := openDatabase(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st, err := store.Open(ctx, db, dialect, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	helper := helperpod.New(engineClient, cfg.Images.HelperImage)
	if err := helper.Start(ctx); err != nil {
		logger.Error("failed to start volume helper pod", "error", err)
		os.Exit(1)
	}

	synth := manifest.New(cfg.Images.PythonImage, cfg.Images.NixBaseImage)
	pipeline := logs.New(st, engineClient)

	tasks := service.NewTaskService(st, engineClient, synth, pipeline, logger)
	flows := service.NewFlowService(st, engineClient, synth, pipeline)
	files := service.NewFileService(helper)

	handler := api.New(tasks, flows, files, logger)
	mux := handler.Routes(&cfg)

	root := http.NewServeMux()
	root.Handle("/", mux)
	root.Handle("/metrics", promhttp.Handler())

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = server.DefaultShutdownTimeout
	}

	srv := server.New(server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ShutdownTimeout: shutdownTimeout,
	}, root, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("control plane stopped gracefully")
}

// openDatabase resolves the store dialect from the DSN's scheme and opens
// the corresponding database/sql driver: pgx's stdlib driver for
// postgres://, postgresql:// DSNs, modernc.org/sqlite otherwise (a bare
// filesystem path or a sqlite:// / file: DSN).
func openDatabase(dsn string) (*sql.DB, store.Dialect, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres connection: %w", err)
		}
		return db, store.DialectPostgres, nil
	default:
		path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "file:")
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite connection: %w", err)
		}
		return db, store.DialectSQLite, nil
	}
}

// cliFlags holds direct command-line flags that control program behavior.
type cliFlags struct {
	configPath string
	dumpConfig bool
}

// flagMappings maps pflag names to their dotted config keys, applied by
// internal/config.Loader.LoadFlags after defaults and environment are
// loaded.
var flagMappings = map[string]string{
	"server-host":        "server.host",
	"server-port":        "server.port",
	"log-level":          "logging.level",
	"workflow-namespace": "engine.workflow-namespace",
	"cluster-type":       "engine.cluster-type",
	"kubeconfig":         "engine.kubeconfig-path",
	"database-url":       "database.url",
}

// setupFlags creates and configures the CLI flags for the control plane.
func setupFlags() (*pflag.FlagSet, *cliFlags) {
	defaults := config.Defaults()
	flags := pflag.NewFlagSet("controlplane", pflag.ExitOnError)
	cli := &cliFlags{}

	flags.String("server-host", defaults.Server.Host, "HTTP server bind address")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.String("log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	flags.String("workflow-namespace", defaults.Engine.WorkflowNamespace, "Kubernetes namespace workflows are submitted into")
	flags.String("cluster-type", defaults.Engine.ClusterType, "Cluster connection mode (auto, kind, eks, external)")
	flags.String("kubeconfig", "", "Path to a kubeconfig file; empty assumes in-cluster config")
	flags.String("database-url", "", "Store connection string (postgres:// or a sqlite file path)")

	flags.StringVar(&cli.configPath, "config", "", "Path to config file")
	flags.BoolVar(&cli.dumpConfig, "dump-config", false, "Print loaded configuration and exit")

	return flags, cli
}

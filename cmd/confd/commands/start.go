package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/confd-io/confd/internal/builtin"
	"github.com/confd-io/confd/internal/conn"
	"github.com/confd-io/confd/internal/config"
	"github.com/confd-io/confd/internal/datamgr"
	"github.com/confd-io/confd/internal/logger"
	"github.com/confd-io/confd/internal/notify"
	"github.com/confd-io/confd/internal/persist"
	"github.com/confd-io/confd/internal/procfile"
	"github.com/confd-io/confd/internal/session"
	"github.com/confd-io/confd/internal/telemetry"
	"github.com/confd-io/confd/internal/telemetry/metrics"
	"github.com/confd-io/confd/internal/wire"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the confd broker",
	Long: `Start the confd broker, listening on its local stream socket.

confd always runs in the foreground; the --foreground flag is accepted but
does not change this. Daemonizing itself is left to the process
supervisor, matching a sysrepo-style plugin daemon's usual deployment. A PID file is still written and locked via flock so two broker
instances never run against the same configuration.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&foreground, "foreground", true, "run attached to the current terminal")
}

// notifySender is the glue between notify.Processor, which needs a Sender
// at construction time, and conn.Server, which needs notify.Processor at
// construction time. srv is filled in once the Server exists.
type notifySender struct{ srv *conn.Server }

func (s *notifySender) Send(n *wire.Notification) error {
	if s.srv == nil {
		return fmt.Errorf("server not yet started")
	}
	return s.srv.Send(n)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	lock, err := procfile.Acquire(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "confd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics disabled")
	}
	recorder := metrics.New()

	for _, dir := range []string{cfg.SchemaDir, cfg.DataDir, cfg.PersistDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	modules := builtin.Modules(cfg.SchemaDir)
	logger.Info("modules loaded", "count", len(modules))

	sm := session.NewManager()
	pm := persist.NewManager(cfg.PersistDir)
	sender := &notifySender{}
	np := notify.NewProcessor(pm, sender)
	dm := datamgr.NewManager(builtin.Modules(cfg.SchemaDir), cfg.DataDir, np)

	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}

	srv := conn.NewServer(listener, sm, dm, np, pm, modules, cfg.SchemaDir, int(cfg.MaxMessageSize))
	srv.SetMetricsRecorder(recorder)
	sender.srv = srv

	schemaWatcher, err := persist.WatchSchemaDir(cfg.SchemaDir, func(module string, installed bool) {
		schema, known := modules[module]
		if !known {
			logger.Warn("ignoring schema change for a module with no compiled schema", "module", module)
			return
		}
		_, registered := dm.Module(module)
		switch {
		case installed && !registered:
			dm.RegisterModule(schema)
			logger.Info("module installed via schema directory watch", "module", module)
		case !installed && registered:
			dm.UnregisterModule(module)
			logger.Info("module uninstalled via schema directory watch", "module", module)
		default:
			return
		}
		np.ModuleInstallNotify(module)
	})
	if err != nil {
		return fmt.Errorf("watch schema directory: %w", err)
	}
	defer func() {
		if err := schemaWatcher.Close(); err != nil {
			logger.Error("schema watcher shutdown error", "error", err)
		}
	}()

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("confd is running", "socket", cfg.SocketPath)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining connections")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	}

	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	logger.Info("confd stopped")
	return nil
}

// Command heatspreader runs the multicloud stack reconciliation engine
// and its REST API in one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acticloud/heatspreader/pkg/cloud/openstack"
	"github.com/acticloud/heatspreader/pkg/config"
	"github.com/acticloud/heatspreader/pkg/driver"
	"github.com/acticloud/heatspreader/pkg/health"
	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/metrics"
	"github.com/acticloud/heatspreader/pkg/reconciler"
	"github.com/acticloud/heatspreader/pkg/rest"
	"github.com/acticloud/heatspreader/pkg/scheduler"
	"github.com/acticloud/heatspreader/pkg/store"
	"github.com/acticloud/heatspreader/pkg/store/remotestore"
	"github.com/acticloud/heatspreader/pkg/store/sqlitestore"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "heatspreader",
	Short:   "heatspreader spreads a workload across clouds by weight",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"heatspreader version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation engine and REST server",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("config", "heatspreader.yaml", "Path to config file")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	backingStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backingStore.Close()

	drivers := make(reconciler.Drivers, len(cfg.Clouds))
	for _, cloudName := range cfg.Clouds {
		d, err := openstack.New(openstack.Config{CloudName: cloudName, Timeout: cfg.DriverTimeout()})
		if err != nil {
			log.Logger.Error().Err(err).Str("cloud_name", cloudName).Msg("cloud_connection_failed")
			continue
		}
		drivers[cloudName] = d
		log.WithCloud(cloudName).Info().Msg("cloud_connection_created")
	}

	registry := health.New()
	rec := reconciler.New(drivers, registry)
	sched := scheduler.New(backingStore, rec, scheduler.Config{
		UpdateFrequency: cfg.UpdateFrequency(),
		DriverTimeout:   cfg.DriverTimeout(),
	})

	server := rest.New(backingStore)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", server.Handler())
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Logger.Info().Str("address", httpServer.Addr).Msg("server_serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("server_failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sched.Run(ctx) }()

	// The first SIGINT/SIGTERM triggers a graceful Stop; a second SIGINT or
	// SIGTERM received while still shutting down escalates to ForceStop.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("runner_caught_signal")
		sched.Stop()
		fmt.Fprintln(os.Stderr, "Interrupt again to force stop")

		select {
		case <-sigCh:
			log.Logger.Info().Msg("runner_force_shutdown")
			sched.ForceStop()
			<-runErrCh
		case err := <-runErrCh:
			if err != nil {
				log.Logger.Error().Err(err).Msg("scheduler_run_failed")
			}
		}
	case err := <-runErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("scheduler_run_failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Logger.Error().Err(err).Msg("server_shutdown_failed")
	}

	return nil
}

func openStore(cfg *config.Config) (store.WriteStore, error) {
	switch cfg.Backend.Type {
	case config.BackendSqlite:
		return sqlitestore.Open(cfg.Backend.Sqlite.Database)
	case config.BackendRemote:
		addr := fmt.Sprintf("http://%s:%d", cfg.Backend.Remote.Host, cfg.Backend.Remote.Port)
		timeout := time.Duration(cfg.Backend.Remote.Timeout) * time.Second
		return remotestore.Open(addr, timeout), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

var _ driver.CloudStackDriver = (*openstack.Driver)(nil)

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/passgate/passgate/config"
	"github.com/passgate/passgate/gate"
	gatehttp "github.com/passgate/passgate/http"
	"github.com/passgate/passgate/listener"
	"github.com/passgate/passgate/listener/api"
	log "github.com/passgate/passgate/logger"
	"github.com/passgate/passgate/physical"
	fileStorage "github.com/passgate/passgate/physical/file"
	inmemStorage "github.com/passgate/passgate/physical/inmem"
	postgresStorage "github.com/passgate/passgate/physical/postgres"
)

const (
	subsystemGate     = "gate"
	subsystemListener = "listener"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a passgate server that responds to API requests",
		Long: `
Usage: passgate server [options]

  This command starts a passgate server that verifies tokens and serves
  revocation requests. Start a server with a configuration file:

      $ passgate server --config=/etc/passgate/config.hcl
  `,
		RunE: run,
	}

	storageBackends = map[string]physical.Factory{
		"inmem":    inmemStorage.NewInmem,
		"file":     fileStorage.NewFileStorage,
		"postgres": postgresStorage.NewPostgresStorage,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/passgate.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// construct the logger with gate closed during initialization
	logger := buildGatedLogger(conf)

	storage, err := buildStorage(conf, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the storage: %w", err)
	}

	storeOpTimeout, err := conf.Gate.StoreOpTimeoutDuration()
	if err != nil {
		return err
	}
	sweepInterval, err := conf.Gate.SweepIntervalDuration()
	if err != nil {
		return err
	}

	creds := make([]gate.Credential, 0, len(conf.Credentials))
	for _, c := range conf.Credentials {
		creds = append(creds, gate.Credential{
			Name:    c.Name,
			Token:   c.Token,
			OwnerID: c.OwnerID,
			Admin:   c.Admin,
		})
	}

	core, err := gate.NewCore(&gate.CoreConfig{
		Storage:        storage,
		Logger:         logger.WithSystem(subsystemGate),
		AllowedOrigins: conf.Gate.AllowedOrigins,
		FallbackURL:    conf.Gate.FallbackURL,
		StoreOpTimeout: storeOpTimeout,
		Credentials:    creds,
	})
	if err != nil {
		return fmt.Errorf("error initializing the gate: %w", err)
	}

	httpHandler := gatehttp.Handler(&gatehttp.HandlerProperties{
		Core:       core,
		Logger:     logger.WithSystem("http"),
		FailureURL: conf.Gate.FailureURL,
		ProxyMode:  conf.Gate.ProxyMode,
	})

	lns, err := initListeners(httpHandler, conf, logger)
	if err != nil {
		return err
	}

	// Compile server information for the startup banner
	info := map[string]string{
		"log level":       conf.LogLevel,
		"log format":      conf.LogFormat,
		"storage":         conf.Storage.Type,
		"allowed origins": fmt.Sprintf("%d configured", len(conf.Gate.AllowedOrigins)),
		"credentials":     fmt.Sprintf("%d configured", core.Credentials().Len()),
	}
	if conf.Gate.ProxyMode {
		info["proxy mode"] = "enabled"
	}
	if sweepInterval > 0 {
		info["sweep interval"] = sweepInterval.String()
	}

	infoKeys := make([]string, 0, len(info))
	for k := range info {
		infoKeys = append(infoKeys, k)
	}
	sort.Strings(infoKeys)

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Passgate server configuration:\n\n")
	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", k, info[k])
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	for _, ln := range lns {
		ln := ln
		group.Go(func() error {
			return ln.Start(gctx)
		})
	}
	if sweepInterval > 0 {
		group.Go(func() error {
			core.Sweeper().Run(gctx, sweepInterval)
			return nil
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Passgate server started! Log data will stream in below:\n")
	logger.OpenGate()

	err = group.Wait()

	// Drain any sweeps still in flight before reporting shutdown
	core.Sweeper().Wait()

	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed with errors: %v\n", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

func buildGatedLogger(conf *config.Config) *log.GatedLogger {
	logConfig := &log.Config{
		Level:     log.ParseLogLevel(conf.LogLevel),
		Subsystem: subsystemGate,
		FileConfig: &log.FileConfig{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogRotateMegabytes,
			MaxAge:     conf.LogRotationPeriod,
			MaxBackups: conf.LogRotateMaxFiles,
		},
		Format:  log.ParseOutputFormat(conf.LogFormat),
		Outputs: []io.Writer{os.Stdout},
	}

	gateConfig := log.GatedWriterConfig{
		Underlying:    os.Stdout,
		InitialState:  log.GateClosed,
		MaxBufferSize: 10 * 1024 * 1024, // initialization logs
	}

	gatedLogger, _ := log.NewGatedLogger(logConfig, gateConfig)
	return gatedLogger
}

func buildStorage(conf *config.Config, logger *log.GatedLogger) (physical.Storage, error) {
	factory, exists := storageBackends[conf.Storage.Type]
	if !exists {
		return nil, fmt.Errorf("unknown storage type %s", conf.Storage.Type)
	}

	storage, err := factory(conf.Storage.Config(), logger.WithSystem("storage."+conf.Storage.Type))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage of type %s: %w", conf.Storage.Type, err)
	}
	return storage, nil
}

func initListeners(httpHandler http.Handler, conf *config.Config, logger *log.GatedLogger) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(conf.Listeners))

	for _, lnConfig := range conf.Listeners {
		ln, err := api.NewApiListener(api.ApiListenerConfig{
			Logger:      logger.WithSystem(subsystemListener),
			Address:     lnConfig.Address,
			TLSCertFile: lnConfig.TLSCertFile,
			TLSKeyFile:  lnConfig.TLSKeyFile,
			TLSEnabled:  lnConfig.TLSEnabled,
		}, httpHandler)
		if err != nil {
			return nil, fmt.Errorf("error initializing listener %q: %w", lnConfig.Name, err)
		}
		lns = append(lns, ln)
	}

	return lns, nil
}

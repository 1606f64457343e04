package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ptl-core/internal/api"
	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/infrastructure/database"
	"github.com/nerrad567/ptl-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/ptl-core/internal/infrastructure/logging"
	"github.com/nerrad567/ptl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptl-core/internal/ledger"
	"github.com/nerrad567/ptl-core/internal/metrics"
	"github.com/nerrad567/ptl-core/internal/ptl/external"
	"github.com/nerrad567/ptl-core/internal/ptl/mode"
	"github.com/nerrad567/ptl-core/internal/ptl/orchestrator"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/picking"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// ServeCmd returns the serve command.
func ServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the PTL service",
		Long: `Connect to every configured controller, start the selected mode
and serve the HTTP API until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath)
		},
	}
}

// run is the service lifecycle, separated from the command for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configFlag: Value of --config, may be empty
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configFlag string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PTL core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, path, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", path)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	printBanner(cfg)

	db, err := openDatabase(ctx, cfg.Database, true)
	if err != nil {
		return err
	}
	defer closeWith(log, "database", db)
	log.Info("database ready", "path", cfg.Database.Path)

	topoRepo := topology.NewSQLiteRepository(db.DB)
	if seeded, seedErr := seedTopology(ctx, topoRepo, cfg.PTL.Endpoints); seedErr != nil {
		return fmt.Errorf("seeding topology: %w", seedErr)
	} else if seeded > 0 {
		log.Info("topology seeded from configuration", "units", seeded)
	}

	// Prometheus collector (optional)
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.New(nil)
		if err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer closeWith(log, "InfluxDB", influxClient)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// The hub is shared: the orchestrator broadcasts, the API serves clients.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	opts := orchestrator.Options{
		ReconnectDelay: cfg.PTL.ReconnectDelay,
		ConnectTimeout: cfg.PTL.ConnectTimeout,
		WriteTimeout:   cfg.PTL.WriteTimeout,
		ResendInterval: cfg.PTL.ResendInterval,
		ResendAge:      cfg.PTL.ResendAge,
		LogCapacity:    cfg.PTL.LogCapacity,
		Logger:         log.Component("orchestrator"),
		Hub:            hub,
		TopicSite:      cfg.Site.ID,
	}
	if collector != nil {
		opts.Metrics = collector
	}
	if influxClient != nil {
		opts.Points = influxClient
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		offline, payloadErr := orchestrator.OfflinePayload(cfg.Site.ID)
		if payloadErr != nil {
			return fmt.Errorf("building last will: %w", payloadErr)
		}
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID, mqtt.Will{
			Topic:   orchestrator.HealthTopic(cfg.Site.ID),
			Payload: offline,
		})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer closeWith(log, "MQTT", mqttClient)
		mqttClient.SetLogger(log.Component("mqtt"))
		opts.Events = mqttClient
		log.Info("MQTT connected",
			"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	orch := orchestrator.New(opts)

	pol, err := buildPolicy(cfg, orch, ledger.NewSQLiteRepository(db.DB), influxClient, log)
	if err != nil {
		return err
	}
	orch.SetPolicy(pol)
	orch.Start(ctx)
	defer func() {
		log.Info("stopping orchestrator")
		orch.Stop()
		if p, ok := pol.(*picking.Policy); ok {
			p.Wait()
		}
	}()

	units, err := orch.ReloadFrom(ctx, topoRepo)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}
	log.Info("orchestrator started",
		"mode", pol.Name(),
		"units", len(units),
		"endpoints", len(units.Endpoints()),
	)

	if p, ok := pol.(*picking.Policy); ok && cfg.Jobs.RedeliveryInterval > 0 {
		go p.RunRedelivery(ctx, cfg.Jobs.RedeliveryInterval)
		log.Info("confirmation redelivery scheduled", "interval", cfg.Jobs.RedeliveryInterval)
	}

	if mqttClient != nil {
		reporter := orchestrator.NewHealthReporter(orchestrator.HealthReporterConfig{
			Site:      cfg.Site.ID,
			Version:   version,
			Publisher: mqttClient,
			Source:    orch,
			Logger:    log.Component("health"),
		})
		reporter.Start(ctx)
		defer reporter.Stop()

		// Re-announce after every reconnect; the broker may have fired the will.
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if pubErr := reporter.PublishNow(pubCtx); pubErr != nil {
				log.Warn("publishing health failed", "error", pubErr)
			}
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		if subErr := mqttClient.SubscribeCommands(commandHandler(ctx, orch, topoRepo, log)); subErr != nil {
			return fmt.Errorf("subscribing to commands: %w", subErr)
		}
	}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log.Component("api"),
		Orchestrator: orch,
		Topology:     topoRepo,
		Metrics:      collector,
		MetricsPath:  cfg.Metrics.Path,
		Hub:          hub,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, health reporter,
	// orchestrator, MQTT, hub, InfluxDB, database.
	return nil
}

// buildPolicy creates the configured mode.
//
// Parameters:
//   - cfg: Application configuration
//   - orch: Command sender for the policy
//   - repo: Confirmation ledger
//   - influxClient: Confirmation recorder (may be nil if disabled)
//   - log: Logger instance
//
// Returns:
//   - policy.Policy: The mode, ready for SetPolicy
//   - error: If the mode or its external client cannot be built
func buildPolicy(cfg *config.Config, orch *orchestrator.Orchestrator, repo ledger.Repository, influxClient *influxdb.Client, log *logging.Logger) (policy.Policy, error) {
	deps := mode.Deps{
		Sender: orch,
		Ledger: repo,
		Picking: picking.Options{
			EnableAddKey:      cfg.Mode.Picking.EnableAddKey,
			EnableSubKey:      cfg.Mode.Picking.EnableSubKey,
			EnableFunctionKey: cfg.Mode.Picking.EnableFunctionKey,
		},
		Logger: log.Component("policy"),
	}
	if influxClient != nil {
		deps.Recorder = influxClient
	}

	if cfg.Mode.Name == config.ModePicking {
		client, err := external.New(cfg.External)
		if err != nil {
			return nil, fmt.Errorf("creating external client: %w", err)
		}
		deps.Confirmer = client
		log.Info("external system configured", "url", client.URL())
	}

	pol, err := mode.New(cfg.Mode.Name, deps)
	if err != nil {
		return nil, err
	}
	return pol, nil
}

// seedTopology saves the configured endpoints when the database holds no
// topology yet.
//
// Returns:
//   - int: Number of units saved, 0 when nothing was seeded
//   - error: If reading or saving fails
func seedTopology(ctx context.Context, repo *topology.SQLiteRepository, endpoints []config.EndpointConfig) (int, error) {
	if len(endpoints) == 0 {
		return 0, nil
	}
	existing, err := repo.Load(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	units := topology.FromConfig(endpoints)
	if err := topology.Validate(units); err != nil {
		return 0, err
	}
	saved, err := repo.Save(ctx, units)
	if err != nil {
		return 0, err
	}
	return len(saved), nil
}

// commandHandler serves the MQTT command topics.
//
// "reload" re-reads the topology like POST /configuration/reload.
// "movement" queues the movement in the payload like POST /movements.
func commandHandler(ctx context.Context, orch *orchestrator.Orchestrator, src orchestrator.TopologySource, log *logging.Logger) mqtt.CommandHandler {
	return func(name string, payload []byte) error {
		switch name {
		case mqtt.CommandReload:
			units, err := orch.ReloadFrom(ctx, src)
			if err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			log.Info("configuration reloaded", "units", len(units), "source", "mqtt")
			return nil
		case mqtt.CommandMovement:
			var m picking.Movement
			if err := json.Unmarshal(payload, &m); err != nil {
				return fmt.Errorf("decoding movement: %w", err)
			}
			if m.ExternalID <= 0 || m.LocationCode == "" {
				return fmt.Errorf("%w: movement needs externalId and locationCode", policy.ErrInvalidPayload)
			}
			if _, err := orch.Process(ctx, policy.ActionAddMovement, m); err != nil {
				return fmt.Errorf("adding movement %d: %w", m.ExternalID, err)
			}
			return nil
		default:
			return fmt.Errorf("unknown command %q", name)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

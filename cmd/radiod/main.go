package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radiolink/radiolink/internal/airlink"
	"github.com/radiolink/radiolink/internal/api"
	"github.com/radiolink/radiolink/internal/broker"
	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/events"
	"github.com/radiolink/radiolink/internal/integration"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/internal/telemetry"
	"github.com/radiolink/radiolink/pkg/radio"
)

func main() {
	// Command line flags
	var configPath = flag.String("config", "config/radiod.yml", "configuration file path")
	var validateOnly = flag.Bool("validate", false, "only validate the configuration file")
	var showConfig = flag.Bool("show-config", false, "print the configuration and exit")
	flag.Parse()

	// Logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log)

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	radioCfg, err := cfg.RadioConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid radio configuration")
	}

	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("Configuration OK")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("address", radioCfg.DeviceAddress.String()).
		Msg("Radio daemon starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	// Air link bridge. It has to exist before the radio so the radio can
	// transmit through it.
	var link *airlink.UDPLink
	opts := []radio.Option{
		radio.WithChannelModel(radio.NewSimulatedChannel(cfg.SimulationParams())),
		radio.WithLogger(log.With().Str("component", "radio").Logger()),
		radio.WithPollInterval(cfg.Radio.PollInterval),
		radio.WithTxHistory(cfg.Radio.TxHistory),
	}
	if cfg.Airlink.Enabled {
		link, err = airlink.NewUDPLink(cfg.Airlink.UDPBind, cfg.Airlink.Peers, radioCfg.DeviceAddress, cfg.Airlink.Seal)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start air link")
		}
		opts = append(opts, radio.WithTransmitter(link))
	}

	// Radio
	r := radio.New(opts...)
	if err := r.Init(radioCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize radio")
	}
	if state, err := radio.ParsePowerState(cfg.Radio.InitialState); err == nil && state != radio.PowerIdle {
		if err := r.SetPowerState(state); err != nil {
			log.Fatal().Err(err).Str("state", cfg.Radio.InitialState).Msg("Failed to set initial power state")
		}
	}
	if link != nil {
		link.SetReceiver(r)
	}

	// Event fan-out
	bus := events.NewBus(0)
	journal := events.NewJournal(store, radioCfg.DeviceAddress)
	bus.Subscribe("journal", journal)
	if err := r.SetRxListener(bus); err != nil {
		log.Fatal().Err(err).Msg("Failed to register receive listener")
	}
	if err := r.SetEventListener(bus); err != nil {
		log.Fatal().Err(err).Msg("Failed to register event listener")
	}

	errChan := make(chan error, 4)

	// NATS
	var nc *nats.Conn
	var statsPublisher telemetry.StatsPublisher
	if cfg.NATS.Enabled {
		nc, err = broker.Connect(cfg.NATS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		b := broker.New(nc, nil, cfg.NATS.SubjectPrefix, radioCfg.DeviceAddress, r, journal)
		bus.Subscribe("nats", b)
		statsPublisher = b
		go func() {
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("nats broker: %w", err)
			}
		}()
	}

	// MQTT
	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = integration.Connect(cfg.MQTT)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
		}
		fwd := integration.NewMQTTForwarder(mqttClient, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, radioCfg.DeviceAddress)
		bus.Subscribe("mqtt", fwd)
	}

	if link != nil {
		go func() {
			if err := link.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("air link: %w", err)
			}
		}()
	}

	// Telemetry
	if cfg.Telemetry.Interval > 0 {
		recorder := telemetry.NewRecorder(r, radioCfg.DeviceAddress, store, statsPublisher, cfg.Telemetry.Interval)
		go func() {
			if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Telemetry recorder stopped")
			}
		}()
	}

	// Simulated inbound traffic
	go pumpArrivals(ctx, r, cfg.Radio.PollInterval)

	// REST API
	var server *api.RESTServer
	if cfg.API.Enabled {
		if err := api.EnsureAdminUser(ctx, store, cfg.API.AdminUser, cfg.API.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("Failed to create admin user")
		}
		server = api.NewRESTServer(cfg, store, r, journal, bus)
		addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
		go func() {
			if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("api server: %w", err)
			}
		}()
	}

	// Wait for a shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("Component failed, shutting down")
	}

	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown failed")
		}
		shutdownCancel()
	}

	if err := r.Deinit(); err != nil {
		log.Error().Err(err).Msg("Radio deinit failed")
	}
	bus.Close()

	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
	if nc != nil {
		nc.Drain()
	}

	log.Info().Msg("Radio daemon stopped")
}

// setupLogging applies the level and, when a log file is configured, adds
// a rotating JSON file next to the console output
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.Format == "json" {
		console = os.Stderr
	}

	if cfg.File == "" {
		log.Logger = log.Output(console)
		return
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, file))
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	if cfg.DSN == "" {
		log.Info().Msg("No database configured, using in-memory storage")
		return storage.NewMemoryStore(0), nil
	}

	store, err := storage.NewPostgresStore(cfg.DSN)
	if err != nil {
		return nil, err
	}
	store.SetPool(cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// pumpArrivals polls the simulated channel for inbound packets. Polls
// while the radio is asleep or transmitting are skipped.
func pumpArrivals(ctx context.Context, r *radio.Radio, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SimulateArrivals(1); err != nil && !r.Initialized() {
				return
			}
		}
	}
}

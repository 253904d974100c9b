package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/db"
	"github.com/thatsimonsguy/pool-controller/internal/api"
	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/controllers/modecontroller"
	"github.com/thatsimonsguy/pool-controller/internal/datadog"
	"github.com/thatsimonsguy/pool-controller/internal/env"
	"github.com/thatsimonsguy/pool-controller/internal/gpio"
	"github.com/thatsimonsguy/pool-controller/internal/logging"
	"github.com/thatsimonsguy/pool-controller/internal/model"
	"github.com/thatsimonsguy/pool-controller/internal/mqtt"
	"github.com/thatsimonsguy/pool-controller/internal/notifications"
	"github.com/thatsimonsguy/pool-controller/internal/rules"
	"github.com/thatsimonsguy/pool-controller/internal/temperature"
	"github.com/thatsimonsguy/pool-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Str("relay_driver", cfg.RelayDriver).
		Msg("Starting pool controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: relay writes are disabled system-wide")
	}

	datadog.InitMetrics()
	defer datadog.Close()
	notifications.Init()

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer dbConn.Close()

	initialMode, _ := cfg.InitialMode()
	if _, err := db.SeedSettings(dbConn, initialMode, cfg.InitialParams()); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed settings")
	}
	settings, err := db.GetSettings(dbConn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	}

	driver, err := gpio.NewDriver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open relay driver")
	}
	defer driver.Close()

	relays, err := gpio.NewRelays(driver, cfg.Relays)
	if err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with relays in an unknown state")
	}
	shutdown.Register(relays)

	actuators := make(map[model.ActuatorID]modecontroller.Actuator, len(relays))
	for _, r := range relays {
		actuators[r.ID] = r
	}

	temps := temperature.NewService(cfg)
	sources := map[model.SensorID]modecontroller.TemperatureSource{}
	for id := range cfg.Sensors {
		sources[model.SensorID(id)] = temps.Source(model.SensorID(id))
	}

	ctrl, err := modecontroller.New(modecontroller.Options{
		Mode:      settings.Mode,
		Params:    settings.Params,
		Sources:   sources,
		Actuators: actuators,
		Rules:     rules.Defaults(),
	})
	if err != nil {
		shutdown.ShutdownWithError(err, "Stored settings rejected by controller")
	}

	var publisher mqtt.Publisher
	var realPub *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		realPub, err = mqtt.NewRealPublisher(cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT unavailable, continuing without it")
		} else {
			publisher = realPub
		}
	}

	contacts, err := gpio.NewContactMonitor(driver, cfg.Contacts, cfg.ContactDebounce(), cfg.ContactPollInterval())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up contact inputs")
	}

	runner := modecontroller.NewRunner(ctrl, modecontroller.RunnerOptions{
		DB:        dbConn,
		Publisher: publisher,
		Interval:  cfg.PollInterval(),
		Retention: time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour,
		Contacts:  contacts,
	})
	contacts.OnChange(runner.ContactChanged)

	if realPub != nil {
		if err := realPub.Subscribe(runner); err != nil {
			log.Warn().Err(err).Msg("Failed to subscribe to MQTT commands")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	temps.Start(ctx)
	contacts.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := api.NewServer(runner, dbConn).Start(ctx, cfg.APIPort); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	wg.Wait()

	if realPub != nil {
		if err := realPub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close MQTT connection")
		}
	}
	shutdown.Release()
	log.Info().Msg("Pool controller stopped")
}

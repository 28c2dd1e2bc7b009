package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "chargepilot/internal/adapter/actor"
	"chargepilot/internal/adapter/notify"
	"chargepilot/internal/adapter/storage"
	"chargepilot/internal/config"
	"chargepilot/internal/core/actor"
	"chargepilot/internal/core/port"
	"chargepilot/internal/server"
	"chargepilot/internal/util/actorutil"
	"chargepilot/pkg/e3dc"
	"chargepilot/pkg/keba"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// persistence and notifications
	store, err := storage.NewFileStorage(cfg.StorageDir)
	if err != nil {
		panic(err)
	}
	notifier := notifierFromConfig(cfg, store, logger)

	// init device adapter providers
	e3dcProv, err := e3dcActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, store, notifier,
			wallboxActorProvider(cfg, logger), e3dcProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, store)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => CHARGEPILOT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("CHARGEPILOT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("chargepilot")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	// check bounds
	if cfg.Wallbox.Host == "" {
		return nil, errors.New("config param wallbox.host is required")
	}
	if cfg.E3dc.Host == "" {
		return nil, errors.New("config param e3dc_modbus_tcp.host is required")
	}
	if cfg.Wallbox.MaxSendAttempts < 1 {
		return nil, errors.New("config param wallbox.max_send_attempts should be >= 1")
	}
	if cfg.Wallbox.RetryBackoffFactor < 1 {
		return nil, errors.New("config param wallbox.retry_backoff_factor should be >= 1")
	}
	if cfg.GridFrequency.Tier3ThresholdHz <= cfg.GridFrequency.Tier2ThresholdHz {
		return nil, errors.New("config param grid_frequency.tier3_threshold_hz must be > tier2_threshold_hz")
	}
	if cfg.GridFrequency.EmergencyTargetSoC > 100 {
		return nil, errors.New("config param grid_frequency.emergency_target_soc should be <= 100")
	}

	return &cfg, nil
}

func wallboxActorProvider(cfg *config.Config, logger *zap.Logger) actor.WallboxActorProvider {
	retry := keba.RetryConfig{
		MaxAttempts:   cfg.Wallbox.MaxSendAttempts,
		BaseDelay:     time.Duration(cfg.Wallbox.RetryBaseDelayMillis) * time.Millisecond,
		BackoffFactor: cfg.Wallbox.RetryBackoffFactor,
	}
	timeout := time.Duration(cfg.Wallbox.ResponseTimeoutMillis) * time.Millisecond
	return func() *adactor.WallboxActor {
		client := keba.NewUDPClient(cfg.Wallbox.Host, cfg.Wallbox.Port, timeout, retry, logger)
		return adactor.NewWallboxActor(client, logger)
	}
}

func e3dcActorProvider(cfg *config.Config, logger *zap.Logger) (actor.E3DCActorProvider, error) {

	reader, err := e3dc.CreateModbusReader(cfg.E3dc.Host, cfg.E3dc.Port, cfg.E3dc.UnitId,
		time.Duration(cfg.E3dc.TimeoutMillis)*time.Millisecond, logger)

	if err != nil {
		return nil, err
	}

	return func() *adactor.E3DCActor {
		return adactor.NewE3DCActor(reader, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func notifierFromConfig(cfg *config.Config, store port.Storage, logger *zap.Logger) port.Notifier {
	apiKey := cfg.Prowl.ApiKey
	if apiKey == "" {
		// the key may live in the persisted settings instead
		if settings, err := store.GetSettings(); err == nil {
			apiKey = settings.ProwlAPIKey
		}
	}
	if !cfg.Prowl.Enable || apiKey == "" {
		return port.NopNotifier{}
	}
	return notify.NewProwlNotifier(apiKey, logger)
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("wallbox.port", keba.DefaultPort)
	viper.SetDefault("wallbox.response_timeout_millis", 3000)
	viper.SetDefault("wallbox.max_send_attempts", 3)
	viper.SetDefault("wallbox.retry_base_delay_millis", 500)
	viper.SetDefault("wallbox.retry_backoff_factor", 2.0)
	viper.SetDefault("e3dc_modbus_tcp.port", 502)
	viper.SetDefault("e3dc_modbus_tcp.unit_id", 1)
	viper.SetDefault("e3dc_modbus_tcp.timeout_millis", 1500)
	viper.SetDefault("grid_frequency.tier2_threshold_hz", 0.1)
	viper.SetDefault("grid_frequency.tier3_threshold_hz", 0.2)
	viper.SetDefault("grid_frequency.emergency_charge_enable", false)
	viper.SetDefault("grid_frequency.emergency_target_soc", 80)
	viper.SetDefault("prowl.enable", false)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "chargepilot")
	viper.SetDefault("storage_dir", "./data")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Prowl.ApiKey = "*redacted*"
	slog.Info("Using", "config", cfg)
}

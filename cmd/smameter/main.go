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
	"strings"
	"syscall"
	"time"

	adactor "github.com/Johanpmeert/SMA-multicast-decode/internal/adapter/actor"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/actor"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/server"
	"github.com/Johanpmeert/SMA-multicast-decode/internal/util/actorutil"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

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
		os.Exit(1)
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

	eventStream := &eventstream.EventStream{}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, eventStream, multicastActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not start master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, eventStream, logger)
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

	// alias PORT => SMAMETER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SMAMETER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("smameter")
	// SMAMETER_MQTT_HOST => mqtt.host
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
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

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic

		if cfg.MQTT.Host == "" {
			return nil, errors.New("config param mqtt.host is required when mqtt.enable is set")
		}
	}

	// check bounds
	if interval := cfg.Multicast.DiscoveryIntervalMillis; interval > 0 && interval < 1000 {
		return nil, errors.New("config param multicast.discovery_interval_millis should be 0 or >= 1000")
	}
	if cfg.Multicast.ReadBufferSize < sma_multicast.HOME_MANAGER_TELEGRAM_LENGTH {
		return nil, fmt.Errorf("config param multicast.read_buffer_size should be >= %d", sma_multicast.HOME_MANAGER_TELEGRAM_LENGTH)
	}
	if cfg.MonitorConfig.MaxMeters < 0 {
		return nil, errors.New("config param monitor.max_meters should be >= 0")
	}
	if cfg.HistoryConfig.Enable && cfg.HistoryConfig.DBPath == "" {
		return nil, errors.New("config param history.db_path is required when history.enable is set")
	}

	return &cfg, nil
}

func multicastActorProvider(cfg *config.Config, logger *zap.Logger) actor.MulticastActorProvider {
	return func() *adactor.MulticastActor {
		listener := sma_multicast.NewMulticastListener(adactor.MulticastListenerConfig(cfg.Multicast), logger)
		return adactor.NewMulticastActor(cfg, listener, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
	viper.SetDefault("multicast.group", sma_multicast.DEFAULT_MULTICAST_GROUP)
	viper.SetDefault("multicast.port", sma_multicast.DEFAULT_MULTICAST_PORT)
	viper.SetDefault("multicast.interface", "")
	viper.SetDefault("multicast.local_address", "")
	viper.SetDefault("multicast.send_discovery", true)
	viper.SetDefault("multicast.discovery_interval_millis", 0)
	viper.SetDefault("multicast.read_buffer_size", sma_multicast.DEFAULT_READ_BUFFER)
	viper.SetDefault("mqtt.enable", true)
	viper.SetDefault("mqtt.host", "")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "smameter")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.publish_interval_millis", 5000)
	viper.SetDefault("monitor.serial_filter", []uint32{})
	viper.SetDefault("monitor.log_readings", true)
	viper.SetDefault("monitor.max_meters", 64)
	viper.SetDefault("monitor.stale_after_millis", 600000)
	viper.SetDefault("history.enable", false)
	viper.SetDefault("history.db_path", "smameter.db")
	viper.SetDefault("history.retention_hours", 168)
	viper.SetDefault("history.record_interval_millis", 60000)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

func (v configVar[T]) bind() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	store = configVar[string]{
		envKey:       "SERVER_STORE",
		flagKey:      "store",
		defaultValue: app.StoreRedis,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	redisDB = configVar[int]{
		envKey:       "REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
	}
	catalogPath = configVar[string]{
		envKey:       "SERVER_CATALOG_PATH",
		flagKey:      "catalog-path",
		defaultValue: "",
	}
	videoLookup = configVar[bool]{
		envKey:       "SERVER_VIDEO_LOOKUP",
		flagKey:      "video-lookup",
		defaultValue: false,
	}
	roomsListingLimit = configVar[int]{
		envKey:       "SERVER_ROOMS_LISTING_LIMIT",
		flagKey:      "rooms-listing-limit",
		defaultValue: 20,
	}
	chatHistoryLimit = configVar[int]{
		envKey:       "SERVER_CHAT_HISTORY_LIMIT",
		flagKey:      "chat-history-limit",
		defaultValue: 100,
	}
	driftThreshold = configVar[float64]{
		envKey:       "SERVER_DRIFT_THRESHOLD",
		flagKey:      "drift-threshold",
		defaultValue: 2,
	}
	resyncInterval = configVar[time.Duration]{
		envKey:       "SERVER_RESYNC_INTERVAL",
		flagKey:      "resync-interval",
		defaultValue: 5 * time.Second,
	}
	seekGuard = configVar[time.Duration]{
		envKey:       "SERVER_SEEK_GUARD",
		flagKey:      "seek-guard",
		defaultValue: 500 * time.Millisecond,
	}
	hostProgressInterval = configVar[time.Duration]{
		envKey:       "SERVER_HOST_PROGRESS_INTERVAL",
		flagKey:      "host-progress-interval",
		defaultValue: time.Second,
	}
	autoplayCountdown = configVar[int]{
		envKey:       "SERVER_AUTOPLAY_COUNTDOWN",
		flagKey:      "autoplay-countdown",
		defaultValue: 10,
	}
	heartbeatInterval = configVar[time.Duration]{
		envKey:       "SERVER_HEARTBEAT_INTERVAL",
		flagKey:      "heartbeat-interval",
		defaultValue: 5 * time.Second,
	}
	connectionTimeout = configVar[time.Duration]{
		envKey:       "SERVER_CONNECTION_TIMEOUT",
		flagKey:      "connection-timeout",
		defaultValue: 15 * time.Second,
	}
	reaperWorkers = configVar[int]{
		envKey:       "SERVER_REAPER_WORKERS",
		flagKey:      "reaper-workers",
		defaultValue: 4,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, "Secret used to verify user tokens")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(store.flagKey, store.defaultValue, "Store backend: redis or memory")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Int(redisDB.flagKey, redisDB.defaultValue, "Redis database")
	pflag.String(catalogPath.flagKey, catalogPath.defaultValue, "Path to the series catalog file")
	pflag.Bool(videoLookup.flagKey, videoLookup.defaultValue, "Check submitted YouTube videos exist")
	pflag.Int(roomsListingLimit.flagKey, roomsListingLimit.defaultValue, "Maximum number of rooms in a listing")
	pflag.Int(chatHistoryLimit.flagKey, chatHistoryLimit.defaultValue, "Number of chat messages kept per room")
	pflag.Float64(driftThreshold.flagKey, driftThreshold.defaultValue, "Seconds of drift tolerated before a guest is corrected")
	pflag.Duration(resyncInterval.flagKey, resyncInterval.defaultValue, "How often guests poll the shared playback state")
	pflag.Duration(seekGuard.flagKey, seekGuard.defaultValue, "How long player events are ignored after a seek")
	pflag.Duration(hostProgressInterval.flagKey, hostProgressInterval.defaultValue, "How often a playing host publishes its position")
	pflag.Int(autoplayCountdown.flagKey, autoplayCountdown.defaultValue, "Seconds counted down before the next episode starts")
	pflag.Duration(heartbeatInterval.flagKey, heartbeatInterval.defaultValue, "Store connection heartbeat interval")
	pflag.Duration(connectionTimeout.flagKey, connectionTimeout.defaultValue, "Time after which a silent store connection is reaped")
	pflag.Int(reaperWorkers.flagKey, reaperWorkers.defaultValue, "Number of workers running disconnect rules")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	secret.bind()
	host.bind()
	port.bind()
	logLevel.bind()
	store.bind()
	redisHost.bind()
	redisPort.bind()
	redisPassword.bind()
	redisDB.bind()
	catalogPath.bind()
	videoLookup.bind()
	roomsListingLimit.bind()
	chatHistoryLimit.bind()
	driftThreshold.bind()
	resyncInterval.bind()
	seekGuard.bind()
	hostProgressInterval.bind()
	autoplayCountdown.bind()
	heartbeatInterval.bind()
	connectionTimeout.bind()
	reaperWorkers.bind()

	config := &app.AppConfig{
		Secret:               viper.GetString(secret.flagKey),
		Host:                 viper.GetString(host.flagKey),
		Port:                 viper.GetInt(port.flagKey),
		LogLevel:             viper.GetString(logLevel.flagKey),
		Store:                viper.GetString(store.flagKey),
		RedisHost:            viper.GetString(redisHost.flagKey),
		RedisPort:            viper.GetInt(redisPort.flagKey),
		RedisPassword:        viper.GetString(redisPassword.flagKey),
		RedisDB:              viper.GetInt(redisDB.flagKey),
		CatalogPath:          viper.GetString(catalogPath.flagKey),
		VideoLookup:          viper.GetBool(videoLookup.flagKey),
		RoomsListingLimit:    viper.GetInt(roomsListingLimit.flagKey),
		ChatHistoryLimit:     viper.GetInt(chatHistoryLimit.flagKey),
		DriftThreshold:       viper.GetFloat64(driftThreshold.flagKey),
		ResyncInterval:       viper.GetDuration(resyncInterval.flagKey),
		SeekGuard:            viper.GetDuration(seekGuard.flagKey),
		HostProgressInterval: viper.GetDuration(hostProgressInterval.flagKey),
		AutoplayCountdown:    viper.GetInt(autoplayCountdown.flagKey),
		HeartbeatInterval:    viper.GetDuration(heartbeatInterval.flagKey),
		ConnectionTimeout:    viper.GetDuration(connectionTimeout.flagKey),
		ReaperWorkers:        viper.GetInt(reaperWorkers.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}

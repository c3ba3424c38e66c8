package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sharetube/watchparty/internal/catalog"
	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/repository/tree/inmemory"
	treeredis "github.com/sharetube/watchparty/internal/repository/tree/redis"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	shutdownTimeout = 30 * time.Second
)

type AppConfig struct {
	Secret               string        `json:"-"`
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	LogLevel             string        `json:"log_level"`
	Store                string        `json:"store"`
	RedisHost            string        `json:"redis_host"`
	RedisPort            int           `json:"redis_port"`
	RedisPassword        string        `json:"-"`
	RedisDB              int           `json:"redis_db"`
	CatalogPath          string        `json:"catalog_path"`
	VideoLookup          bool          `json:"video_lookup"`
	RoomsListingLimit    int           `json:"rooms_listing_limit"`
	ChatHistoryLimit     int           `json:"chat_history_limit"`
	DriftThreshold       float64       `json:"drift_threshold"`
	ResyncInterval       time.Duration `json:"resync_interval"`
	SeekGuard            time.Duration `json:"seek_guard"`
	HostProgressInterval time.Duration `json:"host_progress_interval"`
	AutoplayCountdown    int           `json:"autoplay_countdown"`
	HeartbeatInterval    time.Duration `json:"heartbeat_interval"`
	ConnectionTimeout    time.Duration `json:"connection_timeout"`
	ReaperWorkers        int           `json:"reaper_workers"`
}

func (cfg *AppConfig) Validate() error {
	var errs []error
	if cfg.Secret == "" {
		errs = append(errs, errors.New("secret must be set"))
	}
	if cfg.Store != StoreRedis && cfg.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("store must be %q or %q", StoreRedis, StoreMemory))
	}
	if cfg.RoomsListingLimit < 1 {
		errs = append(errs, errors.New("rooms listing limit must be greater than 0"))
	}
	if cfg.ChatHistoryLimit < 1 {
		errs = append(errs, errors.New("chat history limit must be greater than 0"))
	}
	if cfg.DriftThreshold <= 0 {
		errs = append(errs, errors.New("drift threshold must be greater than 0"))
	}
	if cfg.ResyncInterval <= 0 {
		errs = append(errs, errors.New("resync interval must be greater than 0"))
	}
	if cfg.SeekGuard < 0 || cfg.HostProgressInterval < 0 {
		errs = append(errs, errors.New("seek guard and host progress interval must not be negative"))
	}
	if cfg.AutoplayCountdown < 1 {
		errs = append(errs, errors.New("autoplay countdown must be greater than 0"))
	}
	if cfg.Store == StoreRedis {
		if cfg.HeartbeatInterval <= 0 {
			errs = append(errs, errors.New("heartbeat interval must be greater than 0"))
		}
		if cfg.ConnectionTimeout <= cfg.HeartbeatInterval {
			errs = append(errs, errors.New("connection timeout must be greater than heartbeat interval"))
		}
		if cfg.ReaperWorkers < 1 {
			errs = append(errs, errors.New("reaper workers must be greater than 0"))
		}
	}

	return errors.Join(errs...)
}

func (cfg *AppConfig) sessionConfig() session.Config {
	sessionConfig := session.DefaultConfig()
	sessionConfig.DriftThreshold = cfg.DriftThreshold
	sessionConfig.ResyncInterval = cfg.ResyncInterval
	sessionConfig.SeekGuard = cfg.SeekGuard
	sessionConfig.HostProgressInterval = cfg.HostProgressInterval
	sessionConfig.AutoplayCountdown = cfg.AutoplayCountdown
	return sessionConfig
}

func newLogger(cfg *AppConfig) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type iBackend interface {
	Connect(ctx context.Context) (tree.Conn, error)
}

// newBackend returns the tree backend and a function releasing it.
func newBackend(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (iBackend, func(), error) {
	if cfg.Store == StoreMemory {
		return inmemory.NewRepo(logger), func() {}, nil
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	repo, err := treeredis.NewRepo(ctx, rc, &treeredis.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ConnectionTTL:     cfg.ConnectionTimeout,
		ReaperWorkers:     cfg.ReaperWorkers,
	}, logger)
	if err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("failed to create tree repository: %w", err)
	}

	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close tree repository", "error", err)
		}
		rc.Close()
	}, nil
}

// Run serves until ctx is done or the process is signalled, then shuts the
// server down gracefully.
func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return serve(ctx, cfg, listener, logger)
}

func serve(ctx context.Context, cfg *AppConfig, listener net.Listener, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	backend, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		listener.Close()
		return err
	}
	defer closeBackend()

	contentCatalog := catalog.New()
	if cfg.CatalogPath != "" {
		contentCatalog, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			listener.Close()
			return err
		}
		logger.InfoContext(ctx, "catalog loaded", "contents", contentCatalog.Len())
	}

	serverConn, err := backend.Connect(ctx)
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer serverConn.Close(context.WithoutCancel(ctx))

	controller := controller.NewController(backend, serverConn, contentCatalog, ytvideodata.New(nil), &controller.Config{
		Secret:       cfg.Secret,
		ListingLimit: cfg.RoomsListingLimit,
		VideoLookup:  cfg.VideoLookup,
		Chat: chat.Config{
			HistoryLimit: cfg.ChatHistoryLimit,
		},
		Session: cfg.sessionConfig(),
	}, logger)
	server := &http.Server{Handler: controller.GetMux()}

	// graceful shutdown
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	logger.InfoContext(ctx, "starting server", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("failed to shut down gracefully: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

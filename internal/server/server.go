package server

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "time"

    "github.com/gofiber/fiber/v2"
    "github.com/redis/go-redis/v9"

    "github.com/congo-pay/otp-auth/internal/auth"
    "github.com/congo-pay/otp-auth/internal/clock"
    "github.com/congo-pay/otp-auth/internal/config"
    "github.com/congo-pay/otp-auth/internal/identity"
    "github.com/congo-pay/otp-auth/internal/middleware"
    "github.com/congo-pay/otp-auth/internal/notification"
    "github.com/congo-pay/otp-auth/internal/otp"
    "github.com/congo-pay/otp-auth/internal/routes"
)

// Server wraps the Fiber application and the background workers behind it.
type Server struct {
    app        *fiber.App
    cfg        config.Config
    logger     *slog.Logger
    dispatcher *notification.Dispatcher
    sweepStop  context.CancelFunc
    sweepDone  chan struct{}
}

// New builds the OTP core from cfg and mounts it on a Fiber app. cache may be
// nil unless cfg.StoreBackend is redis.
func New(cfg config.Config, cache *redis.Client, logger *slog.Logger) (*Server, error) {
    clk := clock.New()

    tokens, err := auth.NewTokenCodec(auth.TokenConfig{
        Secret: []byte(cfg.JWTSecret),
        Issuer: cfg.JWTIssuer,
        Clock:  clk,
    })
    if err != nil {
        return nil, fmt.Errorf("token codec: %w", err)
    }

    s := &Server{cfg: cfg, logger: logger}

    var store otp.Store
    switch cfg.StoreBackend {
    case config.BackendRedis:
        if cache == nil {
            return nil, errors.New("redis store backend selected without a redis client")
        }
        store = otp.NewRedisStore(cache, clk.Now)
    default:
        mem := otp.NewMemoryStore(clk.Now)
        store = mem
        sweepCtx, stop := context.WithCancel(context.Background())
        s.sweepStop = stop
        s.sweepDone = make(chan struct{})
        go func() {
            defer close(s.sweepDone)
            mem.RunSweeper(sweepCtx, cfg.SweepInterval)
        }()
    }

    s.dispatcher = notification.NewDispatcher(notification.NewLoggerNotifier(logger), notification.DispatcherConfig{
        Workers:    cfg.DeliveryWorkers,
        QueueSize:  cfg.DeliveryQueueSize,
        MaxRetries: uint64(cfg.DeliveryMaxRetries),
    }, logger)

    svc, err := otp.NewService(otp.Config{
        OTPExpiry:      cfg.OTPExpiry,
        BlockDuration:  cfg.BlockDuration,
        MaxTries:       cfg.MaxTries,
        ResendCooldown: cfg.ResendCooldown,
    }, otp.Deps{
        Store:     store,
        Clock:     clk,
        Codes:     otp.NewRandomCodes(),
        Notifier:  s.dispatcher,
        Tokens:    tokens,
        Validator: identity.MustValidator(),
        Logger:    logger,
    })
    if err != nil {
        s.stopBackground(context.Background())
        return nil, fmt.Errorf("otp service: %w", err)
    }

    s.app = fiber.New(fiber.Config{
        AppName:      cfg.AppName,
        ReadTimeout:  30 * time.Second,
        WriteTimeout: 30 * time.Second,
        ErrorHandler: middleware.ErrorHandler(logger),
    })

    if err := routes.Setup(s.app, routes.Deps{Cfg: cfg, Cache: cache, Logger: logger, OTP: svc, Tokens: tokens}); err != nil {
        s.stopBackground(context.Background())
        return nil, err
    }

    return s, nil
}

// App exposes the Fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App {
    return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
    return s.app.Listen(s.cfg.Address())
}

// Shutdown stops accepting requests, then drains pending deliveries and
// stops the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
    err := s.app.ShutdownWithContext(ctx)
    if bgErr := s.stopBackground(ctx); bgErr != nil && err == nil {
        err = bgErr
    }
    return err
}

func (s *Server) stopBackground(ctx context.Context) error {
    if s.sweepStop != nil {
        s.sweepStop()
        <-s.sweepDone
        s.sweepStop = nil
    }
    if s.dispatcher == nil {
        return nil
    }
    if err := s.dispatcher.Close(ctx); err != nil {
        return fmt.Errorf("drain notifications: %w", err)
    }
    s.logger.Info("notification dispatcher drained",
        slog.Uint64("delivered", s.dispatcher.Delivered()),
        slog.Uint64("failed", s.dispatcher.Failed()),
        slog.Uint64("dropped", s.dispatcher.Dropped()),
    )
    return nil
}

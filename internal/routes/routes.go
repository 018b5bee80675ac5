package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cyberella/handson/internal/audit"
	"github.com/cyberella/handson/internal/auth"
	"github.com/cyberella/handson/internal/config"
	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/logging"
	"github.com/cyberella/handson/internal/metrics"
	"github.com/cyberella/handson/internal/middleware"
	"github.com/cyberella/handson/internal/password"
	"github.com/cyberella/handson/internal/profile"
	"github.com/cyberella/handson/internal/totp"
	"github.com/cyberella/handson/internal/twofactor"
)

// replayablePaths accept Idempotency-Key. Sign-in and two-factor checks are
// never replayed: every attempt must reach the password or code check.
var replayablePaths = []string{"/register", "/updateprofile", "/image"}

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development; Store is required.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Store    identity.Store
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Clock    totp.Clock
	// Sink overrides the default logger and Redis stream audit sinks.
	Sink audit.Sink
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("identity store is required")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLog(d.Logger))
	app.Use(middleware.Metrics(d.Metrics))
	app.Use(cors.New(corsConfig(d.Cfg)))
	if d.Cache != nil {
		replay := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
		for _, path := range replayablePaths {
			app.Use(path, replay)
		}
	}

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Gatherer)

	// Services
	sink := audit.Safe(auditSink(d), d.Logger)
	hasher := password.NewBcrypt(d.Cfg.BcryptCost)
	authSvc := auth.NewService(d.Store, hasher, sink, d.Metrics, d.Logger)
	twoFactorSvc := twofactor.NewService(d.Store, d.Clock, d.Cfg.TOTPIssuer, d.Metrics, d.Logger)
	profileSvc := profile.NewService(d.Store, sink, d.Logger)

	RegisterAuthRoutes(app, authSvc, sink)
	RegisterTwoFactorRoutes(app, twoFactorSvc, profileSvc)
	RegisterProfileRoutes(app, profileSvc)

	return nil
}

func auditSink(d Deps) audit.Sink {
	if d.Sink != nil {
		return d.Sink
	}
	sinks := audit.Multi{audit.NewLoggerSink(d.Logger)}
	if d.Cache != nil {
		sinks = append(sinks, audit.NewRedisSink(d.Cache, d.Cfg.AuditStream, d.Cfg.AuditStreamMaxLen, d.Logger))
	}
	return sinks
}

func corsConfig(cfg config.Config) cors.Config {
	origins := "http://localhost:5173"
	if len(cfg.CORSAllowedOrigins) > 0 {
		origins = strings.Join(cfg.CORSAllowedOrigins, ",")
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Idempotency-Key,X-Request-ID",
		AllowCredentials: true,
	}
}

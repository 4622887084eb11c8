package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/worldtattoorating/backend/internal/auth"
	"github.com/worldtattoorating/backend/internal/config"
	"github.com/worldtattoorating/backend/internal/contact"
	"github.com/worldtattoorating/backend/internal/middleware"
	"github.com/worldtattoorating/backend/internal/registration"
	"github.com/worldtattoorating/backend/internal/session_guard"
	"github.com/worldtattoorating/backend/internal/telemetry/metrics"
	"github.com/worldtattoorating/backend/internal/telemetry/tracing"
	"github.com/worldtattoorating/backend/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// how long a logged out session keeps answering status queries with its
// last logout reason
const guardSessionRetention = 24 * time.Hour

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config            *config.Config
	contactStore      *contact.FileStore
	registrationStore *registration.FileStore

	redisClient  *redis.Client
	authService  *auth.Service
	loginChecker *auth.LoginChecker
	guard        *session_guard.Guard

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()

	janitorDone chan struct{}
}

type NewServerParams struct {
	Config            *config.Config
	VersionInfo       string
	AdminUsername     string
	AdminPasswordHash string
	RedisPassword     string
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	promRegistry := metrics.SetupPrometheus(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsManager := metrics.NewManager("wtr", "backend", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	otelShutdown, err := tracing.Setup(cfg.TracingEnabled)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})
	if cfg.TracingEnabled {
		rdb.AddHook(redisotel.NewTracingHook())
	}

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewAuthService(&auth.Admin{
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)

	guard := session_guard.NewGuard(
		session_guard.Config{
			IdleTimeout:       cfg.GuardIdleTimeout(),
			HiddenTimeout:     cfg.GuardHiddenTimeout(),
			BlurTimeout:       cfg.GuardBlurTimeout(),
			OfflineGrace:      cfg.GuardOfflineGrace(),
			MaxSessionAge:     cfg.GuardMaxSession(),
			HeartbeatInterval: cfg.GuardHeartbeat(),
			AdminPathPrefix:   cfg.AdminPathPrefix,
		},
		func(token, reason string) {
			// the guard decided: revoke the session token
			if _, err := authService.Logout(context.Background(), token); err != nil && !errors.Is(err, redis.Nil) {
				log.Errorf("guard logout [%s], revoke token: %s", reason, err)
			}
		},
		metricsManager,
	)

	contactStore, err := contact.NewFileStore(cfg.MessagesFilePath, cfg.StrictReadErrors)
	if err != nil {
		return nil, fmt.Errorf("new messages store: %w", err)
	}

	registrationStore, err := registration.NewFileStore(cfg.RegistrantsFilePath, cfg.StrictReadErrors)
	if err != nil {
		return nil, fmt.Errorf("new registrants store: %w", err)
	}

	s := &Server{
		versionInfo: params.VersionInfo,

		config:            cfg,
		contactStore:      contactStore,
		registrationStore: registrationStore,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),
		guard:        guard,

		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,

		janitorDone: make(chan struct{}),
	}

	go s.janitor(ctx)

	return s, nil
}

// janitor periodically removes expired session tokens and stale logged out
// guard records.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorDone:
			return
		case <-ticker.C:
			s.authService.ScanAndClean(ctx)
			if pruned := s.guard.Prune(guardSessionRetention); pruned > 0 {
				log.Debugf("janitor: pruned %d stale guard sessions", pruned)
			}
		}
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("wtr-backend"))

	contactHandler := contact.NewHandler(s.contactStore, s.metricsManager)
	contactHandler.SetupRoutes(r)

	registrationHandler := registration.NewHandler(
		s.registrationStore,
		s.contactStore,
		s.metricsManager,
	)
	registrationHandler.SetupRoutes(r)

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	loginRouter := r.PathPrefix("/a").Subrouter()
	authHandler := auth.NewHandler(s.authService, s.guard, s.metricsManager)
	authHandler.SetupRoutes(loginRouter)
	// rate limit the /login and /logout endpoints to prevent abuse
	loginRouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))

	sessionRouter := r.PathPrefix("/a").Subrouter()
	guardHandler := session_guard.NewHandler(s.guard)
	guardHandler.SetupRoutes(sessionRouter)

	r.HandleFunc("/", s.handleRoot).Methods("GET", "OPTIONS").Name("root")
	r.HandleFunc("/version", s.handleVersion).Methods("GET").Name("version")

	r.NotFoundHandler = http.HandlerFunc(handleUnknownPath)
	r.MethodNotAllowedHandler = http.HandlerFunc(handleUnknownPath)

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.NoCache())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, s.versionInfo)
}

// handleUnknownPath runs outside the middleware chain, so the headers the
// chain would normally add are set here too.
func handleUnknownPath(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	pkg.WriteJSONError(w, "Ruta no encontrada", http.StatusNotFound)
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	close(s.janitorDone)
	s.guard.Shutdown()

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}

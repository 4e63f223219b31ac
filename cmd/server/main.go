package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/oddmeter/camhub/internal/admin"
	"github.com/oddmeter/camhub/internal/audit"
	"github.com/oddmeter/camhub/internal/auth"
	"github.com/oddmeter/camhub/internal/authsession"
	"github.com/oddmeter/camhub/internal/codec"
	"github.com/oddmeter/camhub/internal/config"
	"github.com/oddmeter/camhub/internal/data"
	"github.com/oddmeter/camhub/internal/discovery"
	"github.com/oddmeter/camhub/internal/hub"
	"github.com/oddmeter/camhub/internal/metrics"
	"github.com/oddmeter/camhub/internal/middleware"
	"github.com/oddmeter/camhub/internal/platform/rlimit"
	"github.com/oddmeter/camhub/internal/rail"
	"github.com/oddmeter/camhub/internal/ratelimit"
	"github.com/oddmeter/camhub/internal/tokens"
)

// wantNoFile is the RLIMIT_NOFILE soft limit requested at startup: one
// socket per camera/viewer session plus headroom for the admin HTTP
// surface and the database/redis pools.
const wantNoFile = 65536

func main() {
	configPath := flag.String("config", "config/default.yaml", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if got, err := rlimit.RaiseNoFile(wantNoFile); err != nil {
		log.Printf("rlimit: could not raise RLIMIT_NOFILE: %v", err)
	} else {
		log.Printf("rlimit: RLIMIT_NOFILE soft limit is %d", got)
	}

	db, err := sql.Open("postgres", cfg.Server.DatabaseDSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("pinging database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
	defer rdb.Close()

	jwtKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtKey == "" {
		log.Println("JWT_SIGNING_KEY not set, using an insecure development default")
		jwtKey = "dev-secret-do-not-use-in-prod"
	}

	cameras := data.CameraModel{DB: db}
	settings := data.SettingModel{DB: db}
	permissions := data.PermissionModel{DB: db}
	users := data.UserModel{DB: db}
	videos := data.VideoModel{DB: db}

	auditSvc := audit.NewService(db)
	tokenMgr := tokens.NewManager(jwtKey)
	sessionMgr := authsession.NewManager(rdb)
	blacklist := auth.NewRedisBlacklist(rdb)

	frameRail := rail.NewBroadcaster(rail.FrameSentinel)
	controlRail := rail.NewBroadcaster(rail.ControlSentinel)

	collector := metrics.NewCollector()

	watcher := config.NewWatcher(*configPath, cfg.Hot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher.Start(ctx)

	var discoverer admin.Discoverer
	if cfg.Discovery.Enabled {
		scanner := discovery.NewScanner(cfg.Discovery.ScanInterval)
		go scanner.Run(ctx)
		discoverer = scanner
		collector.SetDiscoveryUp(true)
	}

	adminSvc := &admin.Service{
		Cameras:     cameras,
		Settings:    settings,
		Permissions: permissions,
		Users:       users,
		Videos:      videos,
		Audit:       auditSvc,
		ControlRail: controlRail,
		Tokens:      tokenMgr,
		Sessions:    sessionMgr,
	}

	supervisor := &hub.Supervisor{
		Cameras:              hub.CameraStore{Cameras: cameras},
		Settings:             hub.SettingStore{Settings: settings},
		Videos:               hub.VideoStore{Videos: videos},
		Entitlements:         hub.EntitlementStore{Permissions: permissions},
		Codec:                hub.CodecAdapter{Writer: codec.FFmpegWriter{}},
		Audit:                hub.AuditStore{Audit: auditSvc},
		FrameRail:            frameRail,
		ControlRail:          controlRail,
		VideoDir:             cfg.Server.VideoDir,
		RecorderDrainTimeout: 10 * time.Second,
		Logger:               log.New(os.Stdout, "hub: ", log.LstdFlags),
	}

	jwtAuth := middleware.NewJWTAuth(tokenMgr, blacklist)
	limiter := ratelimit.NewLimiter(rdb, "camhub-salt")
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, watcher.Current().RateLimit)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS)
	r.Use(rlMiddleware.GlobalLimiter)
	r.Use(loginRateLimited(rlMiddleware))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", collector.Handler())

	r.Get("/ws", websocketUpgradeHandler(ctx, supervisor, tokenMgr, collector))

	r.Mount("/", admin.NewRouter(adminSvc, discoverer, jwtAuth.Middleware))

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("camhub listening on %s", cfg.Server.ListenAddr)
		var err error
		if cfg.Server.TLSCertPath != "" && cfg.Server.TLSKeyPath != "" {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCertPath, cfg.Server.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received, draining connections")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// loginRateLimited applies the stricter login-scope limiter to POST
// /api/login only, ahead of every other route's general per-IP/per-user
// limit already installed by GlobalLimiter.
func loginRateLimited(rl *middleware.RateLimitMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		guarded := rl.LoginLimiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == "/api/login" {
				guarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// websocketUpgradeHandler upgrades the connection and hands it to the
// Session Supervisor. A camera peer sends no token and self-identifies via
// its first text frame ("camera"/"camera_any_port"); a viewer peer
// authenticates with an access token on the query string, since browsers
// cannot set an Authorization header on a WebSocket handshake.
//
// The supervisor runs in a goroutine detached from ServeHTTP, which returns
// as soon as the connection is hijacked for the upgrade. net/http cancels
// r.Context() at that point, so the session must be driven by baseCtx (the
// process's signal.NotifyContext lifetime) instead: baseCtx.Done() is what
// ties a shutdown signal to "cancel every session, drain every recorder".
func websocketUpgradeHandler(baseCtx context.Context, supervisor *hub.Supervisor, tokenMgr *tokens.Manager, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var authenticatedUserID *int64
		if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
			claims, err := tokenMgr.ValidateToken(tokenStr)
			if err != nil || claims.TokenType != tokens.Access {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			uid := claims.UserID
			authenticatedUserID = &uid
		}

		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade failed: %v", err)
			return
		}

		kind := "viewer"
		if authenticatedUserID == nil {
			kind = "camera"
		}
		collector.SessionConnected(kind)
		go func() {
			defer collector.SessionDisconnected(kind)
			supervisor.Handle(baseCtx, conn, r.RemoteAddr, authenticatedUserID)
		}()
	}
}

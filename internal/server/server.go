package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/redis/go-redis/v9"

	"github.com/joeblew999/plat-overlay/internal/api"
	"github.com/joeblew999/plat-overlay/internal/api/surface"
	"github.com/joeblew999/plat-overlay/internal/api/viewer"
	"github.com/joeblew999/plat-overlay/internal/catalog"
	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/logger"
	"github.com/joeblew999/plat-overlay/internal/metrics"
	"github.com/joeblew999/plat-overlay/internal/overlay"
	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
	"github.com/joeblew999/plat-overlay/internal/templates"
	"github.com/joeblew999/plat-overlay/internal/tiler/gotiler"
)

// Score backends.
const (
	BackendMock   = "mock"
	BackendDuckDB = "duckdb"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // optional; <WebDir>/templates/fragments overrides the embedded fragments

	CatalogPath  string // empty uses the embedded catalog
	GeometryPath string // empty uses the embedded Munich districts
	RegionKey    string

	Scores        string // BackendMock or BackendDuckDB
	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration
	FetchTimeout  time.Duration

	Range    string
	Interval string

	Logger *slog.Logger
}

// Window resolves the configured initial time window. An empty range is the
// default window, an empty interval is the first allowed for the range.
func (c Config) Window() (scores.Window, error) {
	if c.Range == "" {
		return scores.DefaultWindow(), nil
	}
	if c.Interval == "" {
		return scores.NewWindow(scores.Range(c.Range))
	}
	w := scores.Window{Range: scores.Range(c.Range), Interval: scores.Interval(c.Interval)}
	return w, w.Validate()
}

// Server is the overlay HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	redis    *redis.Client
	session  *session.Session
	services *api.Services
	renderer *templates.Renderer
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the server and starts its session loop. Close stops it.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.L()
	}
	if cfg.Scores == "" {
		cfg.Scores = BackendMock
	}
	if cfg.Scores != BackendMock && cfg.Scores != BackendDuckDB {
		return nil, fmt.Errorf("unknown score backend %q", cfg.Scores)
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		c, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		cat = c
	}

	geom := overlay.Default()
	if cfg.GeometryPath != "" {
		g, err := overlay.LoadFile(cfg.GeometryPath, cfg.RegionKey)
		if err != nil {
			return nil, err
		}
		geom = g
	}

	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-overlay API", "1.0.0")
	humaConfig.Info.Description = "Choropleth overlay API: layer catalog, selection, region scores, search and rendering."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		logger:  log,
		done:    make(chan struct{}),
	}

	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "overlay"})
	if err != nil {
		log.Warn("database unavailable", "error", err)
	} else {
		s.db = conn
	}

	fetcher, err := s.fetcher()
	if err != nil {
		s.release()
		return nil, err
	}

	sess, err := session.New(session.Config{
		Catalog:      cat,
		Geometry:     geom,
		Fetcher:      fetcher,
		Window:       window,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
	})
	if err != nil {
		s.release()
		return nil, err
	}
	s.session = sess

	s.renderer = templates.Must()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if err := s.renderer.Reload(fragmentsDir); err != nil {
			log.Warn("fragment overrides not loaded", "dir", fragmentsDir, "error", err)
		} else {
			log.Info("loaded fragment templates", "dir", fragmentsDir)
		}
	}

	s.services = &api.Services{
		Session: sess,
		Tiles:   service.NewTileService(cfg.DataDir, gotiler.New()),
	}
	if s.db != nil {
		s.services.Reports = service.NewReportService(s.db, geom.Has)
		s.services.Sources = service.NewSourceService(cfg.DataDir, scores.NewDuckDBFetcher(s.db))
	}

	s.routes()
	s.handler = logger.AccessMiddleware(log)(mux)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("session loop stopped", "error", err)
		}
	}()

	log.Info("server configured",
		"scores", cfg.Scores,
		"regions", geom.Len(),
		"layers", cat.Len(),
		"window", window.Range,
		"db", s.db != nil,
		"redis", s.redis != nil,
	)
	return s, nil
}

// fetcher builds the score fetcher for the configured backend, optionally
// behind a Redis cache.
func (s *Server) fetcher() (scores.Fetcher, error) {
	var f scores.Fetcher = scores.NewMockFetcher()
	if s.config.Scores == BackendDuckDB {
		if s.db == nil {
			return nil, service.ErrNoDatabase
		}
		f = scores.NewDuckDBFetcher(s.db)
	}

	if client := scores.OpenRedis(s.config.RedisAddr, s.config.RedisPassword, 0); client != nil {
		s.redis = client
		ttl := s.config.CacheTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		f = scores.NewCachedFetcher(f, scores.RedisKV{Client: client}, ttl, s.logger)
	}
	return f, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Session returns the server's overlay session.
func (s *Server) Session() *session.Session { return s.session }

// Services returns the services behind the REST routes.
func (s *Server) Services() *api.Services { return s.services }

// Close stops the session loop and closes server resources.
func (s *Server) Close() error {
	s.cancel()
	<-s.done
	return s.release()
}

// release closes the Redis client and the database.
func (s *Server) release() error {
	if s.redis != nil {
		s.redis.Close()
		s.redis = nil
	}
	if s.db == nil {
		return nil
	}
	s.db = nil
	return db.Close()
}

func (s *Server) routes() {
	dbOK := s.db != nil

	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, dbOK, s.config.Scores).RegisterRoutes(s.humaAPI)

	vh := viewer.NewHandler(s.session, s.renderer, s.logger)
	vh.RegisterRoutes(s.humaAPI)

	s.mux.Handle("/api/v1/surface/ws", surface.New(s.session, s.logger))
	s.mux.Handle("/metrics", metrics.Handler())

	tilesDir := filepath.Join(s.config.DataDir, "tiles")
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(tilesDir)))

	s.mux.HandleFunc("/viewer", vh.Page)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-overlay",
		"status":  "running",
		"viewer":  "/viewer",
		"docs":    "/docs",
	})
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	files := http.FileServer(http.Dir(tilesDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		files.ServeHTTP(w, r)
	})
}

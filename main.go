package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
	"pixelart-server/editor"
	"pixelart-server/handlers/api/artworks"
	"pixelart-server/handlers/api/palette"
	"pixelart-server/handlers/api/sessions"
	"pixelart-server/handlers/websocket"
	"pixelart-server/middleware"
	"pixelart-server/stores"
)

const (
	defaultTokenTTL = 24 * time.Hour
	sweepInterval   = time.Minute
)

type viewerCounter interface {
	Viewers() map[string]int
}

type server struct {
	registry *editor.Registry
	store    core.ArtworkStore
	tokens   *middleware.SessionTokens
	viewers  viewerCounter
	origins  []string
}

func setupRouter(s server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	corsOptions := cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		ExposedHeaders: []string{"Content-Disposition", "X-Message"},
		MaxAge:         300,
	}
	if len(s.origins) == 0 {
		corsOptions.AllowOriginFunc = func(r *http.Request, origin string) bool {
			parsed, err := url.Parse(origin)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return false
			}
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
			return false
		}
	}
	r.Use(cors.Handler(corsOptions))

	r.Route("/api", func(r chi.Router) {
		r.Get("/palette", palette.HandleGetPalette(s.registry.Config()))

		r.Post("/sessions", sessions.HandleCreate(s.registry, s.tokens))
		r.Get("/sessions", sessions.HandleList(s.registry))
		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Use(s.tokens.RequireSession)
			r.Get("/", sessions.HandleGet(s.registry))
			r.Delete("/", sessions.HandleClose(s.registry))
			r.Put("/palette", sessions.HandleUpdatePalette(s.registry))
			r.Post("/pointer/down", sessions.HandlePointerDown(s.registry))
			r.Post("/pointer/move", sessions.HandlePointerMove(s.registry))
			r.Post("/pointer/up", sessions.HandlePointerUp(s.registry))
			r.Post("/pointer/leave", sessions.HandlePointerLeave(s.registry))
			r.Post("/undo", sessions.HandleUndo(s.registry))
			r.Post("/redo", sessions.HandleRedo(s.registry))
			r.Get("/image", sessions.HandleImage(s.registry))
			r.Get("/download", sessions.HandleDownload(s.registry))
			r.Post("/save", sessions.HandleSave(s.registry, s.store))
		})

		r.Get("/artworks", artworks.HandleList(s.store))
		r.Route("/artworks/{artworkId}", func(r chi.Router) {
			r.Get("/", artworks.HandleGetImage(s.store))
			r.Delete("/", artworks.HandleDelete(s.store))
		})

		r.Get("/viewers", handleViewers(s.viewers))
	})

	return r
}

type viewerEntry struct {
	SessionID string `json:"sessionId"`
	Viewers   int    `json:"viewers"`
}

// handleViewers lists sessions that are displayed somewhere, busiest first.
func handleViewers(counter viewerCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := make([]viewerEntry, 0)
		if counter != nil {
			for id, n := range counter.Viewers() {
				entries = append(entries, viewerEntry{SessionID: id, Viewers: n})
			}
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Viewers == entries[j].Viewers {
				return entries[i].SessionID < entries[j].SessionID
			}
			return entries[i].Viewers > entries[j].Viewers
		})
		render.JSON(w, r, entries)
	}
}

func parseOrigins(v string) []string {
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func tokenTTL() time.Duration {
	v := os.Getenv("SESSION_TOKEN_TTL")
	if v == "" {
		return defaultTokenTTL
	}
	ttl, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithError(err).Warnf("Invalid SESSION_TOKEN_TTL, using %s", defaultTokenTTL)
		return defaultTokenTTL
	}
	return ttl
}

// registryOptions reads MAX_SESSIONS and SESSION_IDLE_TIMEOUT. Idle
// sessions outlive their token by default.
func registryOptions(ttl time.Duration) []editor.Option {
	maxSessions := editor.DefaultMaxSessions
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logrus.WithError(err).Warnf("Invalid MAX_SESSIONS, using %d", maxSessions)
		} else {
			maxSessions = n
		}
	}

	idle := ttl
	if v := os.Getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logrus.WithError(err).Warnf("Invalid SESSION_IDLE_TIMEOUT, using %s", idle)
		} else {
			idle = d
		}
	}

	return []editor.Option{editor.WithMaxSessions(maxSessions), editor.WithIdleTimeout(idle)}
}

func setupLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func waitForShutdown(httpServer *http.Server, hub *websocket.Hub) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-signals
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Server().Close(nil)
	if err := httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	setupLogging(*logLevel)

	cfg, err := core.CanvasConfigFromEnv()
	if err != nil {
		logrus.Fatalf("Invalid canvas configuration: %v", err)
	}

	store, err := stores.GetStore(context.Background())
	if err != nil {
		logrus.Fatalf("Failed to open artwork store: %v", err)
	}

	ttl := tokenTTL()
	tokens, err := middleware.NewSessionTokens(os.Getenv("JWT_SECRET"), ttl)
	if err != nil {
		logrus.Fatalf("Failed to set up session tokens: %v", err)
	}

	origins := parseOrigins(os.Getenv("CORS_ORIGINS"))
	registry := editor.NewRegistry(cfg, registryOptions(ttl)...)
	hub := websocket.NewHub(registry, tokens, origins)
	registry.SetNotifier(hub)

	r := setupRouter(server{
		registry: registry,
		store:    store,
		tokens:   tokens,
		viewers:  hub,
		origins:  origins,
	})
	r.Mount("/socket.io/", hub.Server().ServeHandler(nil))

	httpServer := &http.Server{
		Addr:              *listenAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithFields(logrus.Fields{
		"addr":       *listenAddress,
		"cells":      cfg.Cells(),
		"pixel_size": cfg.PixelSize,
	}).Info("starting server")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go registry.Run(sweepCtx, sweepInterval)

	logrus.Debug("Server is running in the background")
	waitForShutdown(httpServer, hub)
	stopSweep()
}

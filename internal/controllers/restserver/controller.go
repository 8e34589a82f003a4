// Package restserver exposes the capture archive and the playback controls
// over HTTP, with replayed frames streamed to browsers over a WebSocket.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/softbio/fallcapture/internal/capture"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/playback"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"go.uber.org/zap"
)

// Engine is the subset of the capture engine the REST server drives
type Engine interface {
	CaptureState() capture.State
	ListEvents() []*types.CaptureRecord
	GetEvent(id string) (*types.CaptureRecord, error)
	MostRecentEvent() (*types.CaptureRecord, error)
	SimulateEvent(d types.Direction) (*types.CaptureRecord, error)
	StartPlayback(id string, opts playback.StartOptions) bool
	Pause()
	Resume()
	Stop()
	Seek(index int, id string)
	SetSpeed(speed float64)
	SetLoop(loop bool)
	Status() types.PlaybackStatus
	Settings() types.PlaybackSettings
	OnPlaybackFrame(cb playback.Callback) (unsubscribe func())
}

// IngestReporter reports frame counters per ingest source
type IngestReporter interface {
	IngestStats() map[string]types.IngestStats
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	engine     Engine
	health     *storage.HealthManager
	ingest     IngestReporter
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller. health and ingest may
// be nil when no storage backends or frame sources are configured.
func NewController(ctx context.Context, wg *sync.WaitGroup, engine Engine, health *storage.HealthManager, ingest IngestReporter, rc config.RESTServerData, logger *zap.SugaredLogger) (*Controller, error) {
	if engine == nil {
		return nil, fmt.Errorf("REST server requires a capture engine")
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		engine:     engine,
		health:     health,
		ingest:     ingest,
		logger:     log.OrNop(logger),
	}

	if rc.ListenAddr == "" {
		ctrl.logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		ctrl.logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.setupRouter()

	return ctrl, nil
}

// Handler returns the configured router
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				c.logger.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		c.handlers.hub.closeAll()
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	if c.restConfig.EnableCORS {
		router.Use(c.corsMiddleware)
	}

	route := func(path, method string, h http.HandlerFunc) {
		methods := []string{method}
		if c.restConfig.EnableCORS {
			methods = append(methods, http.MethodOptions)
		}
		router.HandleFunc(path, h).Methods(methods...)
	}

	route("/capture/state", http.MethodGet, c.handlers.GetCaptureState)

	route("/events", http.MethodGet, c.handlers.ListEvents)
	route("/events/latest", http.MethodGet, c.handlers.GetLatestEvent)
	route("/events/simulate/{direction}", http.MethodPost, c.handlers.SimulateEvent)
	route("/events/{id}", http.MethodGet, c.handlers.GetEvent)

	route("/playback/start", http.MethodPost, c.handlers.StartPlayback)
	route("/playback/pause", http.MethodPost, c.handlers.PausePlayback)
	route("/playback/resume", http.MethodPost, c.handlers.ResumePlayback)
	route("/playback/stop", http.MethodPost, c.handlers.StopPlayback)
	route("/playback/seek", http.MethodPost, c.handlers.SeekPlayback)
	route("/playback/speed", http.MethodPost, c.handlers.SetPlaybackSpeed)
	route("/playback/loop", http.MethodPost, c.handlers.SetPlaybackLoop)
	route("/playback/status", http.MethodGet, c.handlers.GetPlaybackStatus)
	route("/playback/settings", http.MethodGet, c.handlers.GetPlaybackSettings)
	route("/playback/stream", http.MethodGet, c.handlers.StreamPlayback)

	route("/storage/health", http.MethodGet, c.handlers.GetStorageHealth)
	route("/ingest/stats", http.MethodGet, c.handlers.GetIngestStats)

	return router
}

// corsMiddleware answers preflight requests and marks every response as
// readable from any origin
func (c *Controller) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

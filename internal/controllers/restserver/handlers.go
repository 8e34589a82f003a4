package restserver

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/softbio/fallcapture/internal/archive"
	"github.com/softbio/fallcapture/internal/playback"
	"github.com/softbio/fallcapture/internal/storage"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/responseformat"
)

// healthMaxAge is how stale a backend health report may be before the
// backend counts as unhealthy
const healthMaxAge = 2 * time.Minute

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
	hub        *streamHub
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(ctrl.restConfig.EnableCORS),
		hub:        newStreamHub(ctrl.engine, ctrl.restConfig.EnableCORS, ctrl.logger),
	}
}

// CaptureStateResponse reports whether a capture window is open
type CaptureStateResponse struct {
	State string `json:"state"`
}

// StartRequest is the body of POST /playback/start
type StartRequest struct {
	ID    string   `json:"id"`
	Speed *float64 `json:"speed,omitempty"`
	Loop  bool     `json:"loop,omitempty"`
}

// SeekRequest is the body of POST /playback/seek
type SeekRequest struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// IngestStatsResponse is the body of GET /ingest/stats
type IngestStatsResponse struct {
	Sources map[string]types.IngestStats `json:"sources"`
}

// SpeedRequest is the body of POST /playback/speed
type SpeedRequest struct {
	Speed float64 `json:"speed"`
}

// LoopRequest is the body of POST /playback/loop
type LoopRequest struct {
	Loop bool `json:"loop"`
}

// StorageHealthResponse reports every storage backend's last health check
type StorageHealthResponse struct {
	Healthy  bool                            `json:"healthy"`
	Backends map[string]storage.HealthStatus `json:"backends"`
}

// GetCaptureState handles GET /capture/state
func (h *Handlers) GetCaptureState(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, CaptureStateResponse{State: string(h.controller.engine.CaptureState())})
}

// ListEvents handles GET /events. The listing carries summaries only; fetch
// a single event for its frames.
func (h *Handlers) ListEvents(w http.ResponseWriter, req *http.Request) {
	records := h.controller.engine.ListEvents()
	summaries := make([]types.Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summarize())
	}
	h.write(w, req, http.StatusOK, summaries)
}

// GetLatestEvent handles GET /events/latest
func (h *Handlers) GetLatestEvent(w http.ResponseWriter, req *http.Request) {
	rec, err := h.controller.engine.MostRecentEvent()
	if err != nil {
		h.writeLookupError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, rec)
}

// GetEvent handles GET /events/{id}
func (h *Handlers) GetEvent(w http.ResponseWriter, req *http.Request) {
	rec, err := h.controller.engine.GetEvent(mux.Vars(req)["id"])
	if err != nil {
		h.writeLookupError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, rec)
}

// SimulateEvent handles POST /events/simulate/{direction}
func (h *Handlers) SimulateEvent(w http.ResponseWriter, req *http.Request) {
	d := types.Direction(mux.Vars(req)["direction"])
	if !d.Valid() {
		h.writeError(w, req, http.StatusBadRequest, "unknown direction: "+string(d))
		return
	}

	rec, err := h.controller.engine.SimulateEvent(d)
	if err != nil {
		h.controller.logger.Errorf("error simulating %s fall: %v", d, err)
		h.writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	h.write(w, req, http.StatusCreated, rec)
}

// StartPlayback handles POST /playback/start. An unknown or empty record
// leaves the session untouched and answers 404.
func (h *Handlers) StartPlayback(w http.ResponseWriter, req *http.Request) {
	var body StartRequest
	if !h.decode(w, req, &body) {
		return
	}

	opts := playback.StartOptions{Loop: body.Loop}
	if body.Speed != nil {
		if !validSpeed(*body.Speed) {
			h.writeError(w, req, http.StatusBadRequest, "speed must be a positive number")
			return
		}
		opts.Speed = *body.Speed
	}

	if !h.controller.engine.StartPlayback(body.ID, opts) {
		h.writeError(w, req, http.StatusNotFound, "no playable record with id "+body.ID)
		return
	}
	h.writeStatus(w, req)
}

// PausePlayback handles POST /playback/pause
func (h *Handlers) PausePlayback(w http.ResponseWriter, req *http.Request) {
	h.controller.engine.Pause()
	h.writeStatus(w, req)
}

// ResumePlayback handles POST /playback/resume
func (h *Handlers) ResumePlayback(w http.ResponseWriter, req *http.Request) {
	h.controller.engine.Resume()
	h.writeStatus(w, req)
}

// StopPlayback handles POST /playback/stop
func (h *Handlers) StopPlayback(w http.ResponseWriter, req *http.Request) {
	h.controller.engine.Stop()
	h.writeStatus(w, req)
}

// SeekPlayback handles POST /playback/seek
func (h *Handlers) SeekPlayback(w http.ResponseWriter, req *http.Request) {
	var body SeekRequest
	if !h.decode(w, req, &body) {
		return
	}
	h.controller.engine.Seek(body.Index, body.ID)
	h.writeStatus(w, req)
}

// SetPlaybackSpeed handles POST /playback/speed
func (h *Handlers) SetPlaybackSpeed(w http.ResponseWriter, req *http.Request) {
	var body SpeedRequest
	if !h.decode(w, req, &body) {
		return
	}
	if !validSpeed(body.Speed) {
		h.writeError(w, req, http.StatusBadRequest, "speed must be a positive number")
		return
	}
	h.controller.engine.SetSpeed(body.Speed)
	h.write(w, req, http.StatusOK, h.controller.engine.Settings())
}

// SetPlaybackLoop handles POST /playback/loop
func (h *Handlers) SetPlaybackLoop(w http.ResponseWriter, req *http.Request) {
	var body LoopRequest
	if !h.decode(w, req, &body) {
		return
	}
	h.controller.engine.SetLoop(body.Loop)
	h.write(w, req, http.StatusOK, h.controller.engine.Settings())
}

// GetPlaybackStatus handles GET /playback/status
func (h *Handlers) GetPlaybackStatus(w http.ResponseWriter, req *http.Request) {
	h.writeStatus(w, req)
}

// GetPlaybackSettings handles GET /playback/settings
func (h *Handlers) GetPlaybackSettings(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.controller.engine.Settings())
}

// GetIngestStats handles GET /ingest/stats
func (h *Handlers) GetIngestStats(w http.ResponseWriter, req *http.Request) {
	resp := IngestStatsResponse{Sources: map[string]types.IngestStats{}}
	if h.controller.ingest != nil {
		resp.Sources = h.controller.ingest.IngestStats()
	}
	h.write(w, req, http.StatusOK, resp)
}

// GetStorageHealth handles GET /storage/health
func (h *Handlers) GetStorageHealth(w http.ResponseWriter, req *http.Request) {
	resp := StorageHealthResponse{
		Healthy:  true,
		Backends: map[string]storage.HealthStatus{},
	}

	hm := h.controller.health
	if hm != nil {
		resp.Backends = hm.GetAllHealth()
		for name := range resp.Backends {
			if !hm.IsHealthy(name, healthMaxAge) {
				resp.Healthy = false
			}
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.write(w, req, status, resp)
}

// StreamPlayback handles GET /playback/stream
func (h *Handlers) StreamPlayback(w http.ResponseWriter, req *http.Request) {
	h.hub.serve(w, req)
}

func (h *Handlers) writeStatus(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.controller.engine.Status())
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		h.writeError(w, req, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, req, http.StatusInternalServerError, err.Error())
}

func (h *Handlers) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		h.writeError(w, req, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error writing response to %s: %v", req.URL.Path, err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.controller.logger.Errorf("error writing response to %s: %v", req.URL.Path, err)
	}
}

func validSpeed(s float64) bool {
	return s > 0 && !math.IsNaN(s) && !math.IsInf(s, 0)
}

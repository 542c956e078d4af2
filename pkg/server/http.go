package server

import (
	"net/http"
	"strings"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/manager"
	"github.com/camstream/camstream/pkg/network/httpx"
	"github.com/camstream/camstream/pkg/network/websocket"
	"github.com/camstream/camstream/pkg/session"
	"github.com/camstream/camstream/pkg/signaling"
	"github.com/goccy/go-json"
)

const (
	WsPath      = "/ws"
	CameraParam = "camera_id"
	ViewerParam = "viewer"
)

// Sessions is the part of the manager the HTTP front uses.
type Sessions interface {
	Available(cameraId string) bool
	Accept(cameraId string, ch session.Channel) (*session.Session, error)
	Cameras() []string
	Sessions() []session.Status
	Summary() manager.Summary
	Stats(cameraId string) (*manager.ConnectionStats, bool)
}

// Status is the body of GET /status.
type Status struct {
	Summary  manager.Summary  `json:"summary"`
	Cameras  []string         `json:"cameras"`
	Sessions []session.Status `json:"sessions"`
}

type Handler struct {
	sessions Sessions
	log      *logger.Logger
}

func NewHandler(sessions Sessions, log *logger.Logger) *Handler {
	return &Handler{sessions: sessions, log: log}
}

// Routes adds the signaling and health endpoints to the mux.
func (h *Handler) Routes(mux *httpx.Mux) *httpx.Mux {
	return mux.
		HandleFunc(WsPath, h.signal).
		HandleFunc(WsPath+"/", h.signal).
		HandleFunc("/status", h.status).
		HandleFunc("/stats", h.stats).
		HandleW("/healthz", func(w http.ResponseWriter) { _, _ = w.Write([]byte("ok")) })
}

// signal upgrades the request and starts a session of the camera.
// The viewer always gets the welcome, with the unavailable status
// the channel is closed right after it.
func (h *Handler) signal(w http.ResponseWriter, r *http.Request) {
	id := cameraId(r)
	if id == "" {
		http.Error(w, "no "+CameraParam, http.StatusBadRequest)
		return
	}
	log := h.log.Extend(h.log.With().
		Str(logger.CameraField, id).
		Str(ViewerParam, r.URL.Query().Get(ViewerParam)))

	conn, err := websocket.NewServer(w, r, log)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade")
		return
	}

	if !h.sessions.Available(id) {
		log.Warn().Msg("Viewer asked for an unknown camera")
		if ch, err := signaling.Accept(conn, id, api.StatusUnavailable, log); err == nil {
			ch.Close()
		}
		return
	}

	ch, err := signaling.Accept(conn, id, api.StatusReady, log)
	if err != nil {
		log.Error().Err(err).Msg("welcome")
		return
	}
	s, err := h.sessions.Accept(id, ch)
	if err != nil {
		log.Warn().Err(err).Msg("Session was rejected")
		ch.Close()
		return
	}
	log.Info().Str(logger.SessionField, s.Id().Short()).Msg("Viewer connected")
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	h.json(w, Status{
		Summary:  h.sessions.Summary(),
		Cameras:  h.sessions.Cameras(),
		Sessions: h.sessions.Sessions(),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get(CameraParam)
	stats, ok := h.sessions.Stats(id)
	if !ok {
		http.Error(w, "no connected session of "+id, http.StatusNotFound)
		return
	}
	h.json(w, stats)
}

func (h *Handler) json(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("json")
	}
}

// cameraId takes the camera either from the query or the path: /ws?camera_id=1 or /ws/1.
func cameraId(r *http.Request) string {
	if id := r.URL.Query().Get(CameraParam); id != "" {
		return id
	}
	return strings.Trim(strings.TrimPrefix(r.URL.Path, WsPath), "/")
}

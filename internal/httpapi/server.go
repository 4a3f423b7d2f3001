package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/config"
	"github.com/ent0n29/healthpilot/internal/dictation"
	"github.com/ent0n29/healthpilot/internal/live"
	"github.com/ent0n29/healthpilot/internal/observability"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/voice"
)

// LiveSession is the duplex session surface the API drives.
type LiveSession interface {
	Start(ctx context.Context, opts live.StartOptions) error
	Stop()
	Snapshot() live.Snapshot
	SendAuxiliaryFrame(data []byte, mimeType string) (bool, error)
}

// VoiceCommands is the push-to-talk surface.
type VoiceCommands interface {
	Listen(ctx context.Context) error
	StopListening()
	Reset(ctx context.Context) error
	SetLocale(locale, language string)
	Status() voice.Status
}

type Dictation interface {
	Start(ctx context.Context, field, locale string) error
	Stop()
	Status() dictation.Status
}

// DeviceBridge carries the browser's devices over one websocket.
type DeviceBridge interface {
	Attach(out chan<- any) func()
	Handle(msg any)
	Connected() bool
}

type Deps struct {
	Live      LiveSession
	Voice     VoiceCommands
	Dictation Dictation
	Bridge    DeviceBridge
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

type Server struct {
	cfg       config.Config
	live      LiveSession
	voice     VoiceCommands
	dictation Dictation
	bridge    DeviceBridge
	metrics   *observability.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		live:      deps.Live,
		voice:     deps.Voice,
		dictation: deps.Dictation,
		bridge:    deps.Bridge,
		metrics:   deps.Metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the page served from this origin may drive the
				// microphone unless explicitly allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/live", func(r chi.Router) {
		r.Post("/start", s.handleLiveStart)
		r.Post("/stop", s.handleLiveStop)
		r.Get("/status", s.handleLiveStatus)
		r.Post("/frame", s.handleLiveFrame)
	})
	r.Route("/v1/voice", func(r chi.Router) {
		r.Post("/listen", s.handleVoiceListen)
		r.Post("/stop", s.handleVoiceStop)
		r.Get("/task", s.handleVoiceTask)
		r.Delete("/task", s.handleVoiceReset)
		r.Post("/locale", s.handleVoiceLocale)
	})
	r.Post("/v1/dictation/start", s.handleDictationStart)
	r.Post("/v1/dictation/stop", s.handleDictationStop)
	r.Get("/v1/bridge/ws", s.handleBridgeWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	connected := s.bridge != nil && s.bridge.Connected()
	state := live.StateIdle
	if s.live != nil {
		state = s.live.Snapshot().State
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"bridge_connected": connected,
		"live_state":       state,
		"live_transport":   s.cfg.LiveTransport,
		"intent_mode":      s.cfg.IntentMode,
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure maps a classified component error onto HTTP.
func respondFailure(w http.ResponseWriter, err error) {
	kind := reliability.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case reliability.KindPermissionDenied:
		status = http.StatusForbidden
	case reliability.KindDeviceUnavailable:
		status = http.StatusConflict
	case reliability.KindTransport, reliability.KindParse:
		status = http.StatusBadGateway
	case reliability.KindCancelled:
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, errorResponse{
		Error:     err.Error(),
		Code:      string(kind),
		Retryable: reliability.UserRetryable(kind),
	})
}

package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ent0n29/healthpilot/internal/capture"
	"github.com/ent0n29/healthpilot/internal/device"
	"github.com/ent0n29/healthpilot/internal/policy"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/toolcall"
)

// CaptureStarter opens the microphone.
type CaptureStarter interface {
	Start(ctx context.Context) (*capture.Handle, error)
}

// Player schedules inbound audio.
type Player interface {
	Enqueue(chunk []byte) error
	CancelAll()
}

// ToolHandler answers model function calls.
type ToolHandler interface {
	Handle(call toolcall.Call) toolcall.Ack
}

// DeviceArbiter hands out the microphone.
type DeviceArbiter interface {
	Acquire(owner device.Owner, release func())
	Release(owner device.Owner)
}

// Observer receives session lifecycle counters and latencies.
type Observer interface {
	ObserveSessionEvent(event string)
	ObserveStageLatency(stage string, d time.Duration)
}

// Hooks are optional UI callbacks. They run on manager goroutines and
// must not block.
type Hooks struct {
	OnState      func(state State)
	OnTranscript func(role, fragment string)
	OnError      func(kind reliability.Kind, err error)
}

type Config struct {
	Model       string
	Voice       string
	Language    string
	AuxFrameHz  float64
	Instruction string
}

type Deps struct {
	Dialer   Dialer
	Capture  CaptureStarter
	Playback Player
	Tools    ToolHandler
	Arbiter  DeviceArbiter
	Logger   *zap.Logger
	Observer Observer
}

// StartOptions customizes one session start.
type StartOptions struct {
	// Instruction overrides the configured persona.
	Instruction string
	// Capture is an already running microphone handle to reuse. The
	// manager owns it from here on.
	Capture *capture.Handle
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	State            State     `json:"state"`
	SessionID        string    `json:"session_id,omitempty"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	InputTranscript  string    `json:"input_transcript"`
	OutputTranscript string    `json:"output_transcript"`
	InputLevel       float64   `json:"input_level"`
}

// Manager owns at most one duplex session. Callbacks from a torn down
// session are discarded by comparing generations.
type Manager struct {
	cfg  Config
	deps Deps

	// stopMu serializes lifecycle transitions so a Start never
	// interleaves with a teardown in progress.
	stopMu sync.Mutex
	// dispatchMu is held while an inbound message is handled; teardown
	// takes it once to wait out any in-flight dispatch.
	dispatchMu sync.Mutex

	mu         sync.Mutex
	state      State
	gen        uint64
	sessionID  string
	startedAt  time.Time
	conn       Conn
	capture    *capture.Handle
	dialCancel context.CancelFunc
	hooks      Hooks

	transcripts Transcripts
	auxLimiter  *rate.Limiter
}

func NewManager(cfg Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.AuxFrameHz <= 0 {
		cfg.AuxFrameHz = 2
	}
	return &Manager{
		cfg:        cfg,
		deps:       deps,
		state:      StateIdle,
		auxLimiter: rate.NewLimiter(rate.Limit(cfg.AuxFrameHz), 1),
	}
}

// SetHooks installs UI callbacks.
func (m *Manager) SetHooks(h Hooks) {
	m.mu.Lock()
	m.hooks = h
	m.mu.Unlock()
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot reports state plus accumulated transcripts.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{State: m.state, SessionID: m.sessionID, StartedAt: m.startedAt}
	h := m.capture
	m.mu.Unlock()
	s.InputTranscript, s.OutputTranscript = m.transcripts.Snapshot()
	if h != nil {
		s.InputLevel = h.Level()
	}
	return s
}

// Start opens a session. It is a no-op while one is connecting or
// active. On device or transport failure the manager returns to idle
// and a classified error is returned.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	m.stopMu.Lock()
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		m.stopMu.Unlock()
		if opts.Capture != nil {
			opts.Capture.Stop()
		}
		return nil
	}
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.sessionID = uuid.NewString()
	m.startedAt = time.Now().UTC()
	sessionID := m.sessionID
	dialCtx, dialCancel := context.WithCancel(context.WithoutCancel(ctx))
	m.dialCancel = dialCancel
	m.mu.Unlock()
	m.stopMu.Unlock()

	defer dialCancel()
	m.transcripts.Reset()
	m.emitState(StateConnecting)
	logger := m.deps.Logger.With(zap.String("session_id", sessionID))
	logger.Info("live session connecting", zap.String("model", m.cfg.Model))
	began := time.Now()

	if m.deps.Arbiter != nil {
		m.deps.Arbiter.Acquire(device.OwnerLive, m.Stop)
		if !m.isCurrent(gen) {
			if opts.Capture != nil {
				opts.Capture.Stop()
			}
			return m.abandon()
		}
	}

	h := opts.Capture
	if h == nil {
		if m.deps.Capture == nil {
			m.teardown(gen)
			return fmt.Errorf("start live session: %w", reliability.ErrDeviceUnavailable)
		}
		var err error
		h, err = m.deps.Capture.Start(dialCtx)
		if err != nil {
			m.teardown(gen)
			m.observe("capture_error")
			return fmt.Errorf("start live session: %w", err)
		}
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		h.Stop()
		return m.abandon()
	}
	m.capture = h
	m.mu.Unlock()

	instruction := opts.Instruction
	if instruction == "" {
		instruction = m.cfg.Instruction
	}
	if instruction == "" {
		instruction = toolcall.DefaultInstruction(m.cfg.Language)
	}
	if m.deps.Dialer == nil {
		m.teardown(gen)
		return fmt.Errorf("start live session: %w: no transport configured", reliability.ErrTransport)
	}
	conn, err := m.deps.Dialer.Dial(dialCtx, ConnectConfig{
		Model:       m.cfg.Model,
		Voice:       m.cfg.Voice,
		Instruction: instruction,
		Tools:       toolcall.Declarations(),
	})
	if err != nil {
		if m.isCurrent(gen) {
			m.teardown(gen)
			m.observe("connect_error")
			logger.Warn("live session connect failed", zap.Error(err))
			return fmt.Errorf("start live session: %w: %v", reliability.ErrTransport, err)
		}
		return m.abandon()
	}

	m.mu.Lock()
	if m.gen != gen || m.state != StateConnecting {
		m.mu.Unlock()
		_ = conn.Close()
		logger.Info("live session abandoned during connect")
		return m.abandon()
	}
	m.conn = conn
	m.state = StateActive
	m.dialCancel = nil
	m.mu.Unlock()

	h.Attach(func(e capture.Encoded) { m.sendAudio(gen, e) })
	go m.receiveLoop(gen, conn, logger)

	m.emitState(StateActive)
	m.observe("started")
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveStageLatency("live_connect", time.Since(began))
	}
	logger.Info("live session active", zap.Duration("connect", time.Since(began)))
	return nil
}

// Stop tears the session down. It is idempotent and safe from any
// state, including mid-connect. When Stop returns no callback from the
// old session runs anymore.
func (m *Manager) Stop() {
	m.teardown(0)
}

// SendAuxiliaryFrame forwards a still image (for example a camera frame)
// to the active session. Frames are dropped when no session is active or
// when they arrive faster than the configured rate.
func (m *Manager) SendAuxiliaryFrame(data []byte, mimeType string) (bool, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	m.mu.Lock()
	conn := m.conn
	active := m.state == StateActive
	m.mu.Unlock()
	if !active || conn == nil || len(data) == 0 {
		return false, nil
	}
	if !m.auxLimiter.Allow() {
		return false, nil
	}
	if err := conn.SendRealtime(Blob{Data: data, MIMEType: mimeType}); err != nil {
		return false, fmt.Errorf("send frame: %w: %v", reliability.ErrTransport, err)
	}
	return true, nil
}

// teardown runs the ordered shutdown. A non-zero gen restricts it to
// that session generation.
func (m *Manager) teardown(gen uint64) {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	m.mu.Lock()
	if m.state == StateIdle || (gen != 0 && m.gen != gen) {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.gen++
	conn, h, dialCancel := m.conn, m.capture, m.dialCancel
	sessionID := m.sessionID
	m.conn, m.capture, m.dialCancel = nil, nil, nil
	m.mu.Unlock()
	m.emitState(StateClosing)

	if dialCancel != nil {
		dialCancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.deps.Logger.Debug("live transport close failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	// Wait out any dispatch that passed its liveness check before gen moved.
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	if h != nil {
		h.Detach()
		h.Stop()
	}
	if m.deps.Playback != nil {
		m.deps.Playback.CancelAll()
	}
	m.transcripts.Reset()

	m.mu.Lock()
	m.state = StateIdle
	m.sessionID = ""
	m.startedAt = time.Time{}
	m.mu.Unlock()

	if m.deps.Arbiter != nil {
		m.deps.Arbiter.Release(device.OwnerLive)
	}
	m.emitState(StateIdle)
	m.observe("stopped")
	m.deps.Logger.Info("live session stopped", zap.String("session_id", sessionID))
}

// abandon unwinds a Start whose session was stopped mid-connect. The
// device is released unless a newer session has claimed it since.
func (m *Manager) abandon() error {
	m.mu.Lock()
	idle := m.state == StateIdle
	m.mu.Unlock()
	if idle && m.deps.Arbiter != nil {
		m.deps.Arbiter.Release(device.OwnerLive)
	}
	m.observe("abandoned")
	return ErrAbandoned
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

func (m *Manager) isLive(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen && m.state == StateActive
}

func (m *Manager) sendAudio(gen uint64, e capture.Encoded) {
	m.mu.Lock()
	conn := m.conn
	ok := m.gen == gen && m.state == StateActive
	m.mu.Unlock()
	if !ok || conn == nil {
		return
	}
	if err := conn.SendRealtime(Blob{Data: e.Data, MIMEType: e.MIMEType}); err != nil {
		m.deps.Logger.Debug("dropping audio frame", zap.Error(err))
	}
}

func (m *Manager) receiveLoop(gen uint64, conn Conn, logger *zap.Logger) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if m.isLive(gen) {
				logger.Warn("live transport failed", zap.Error(err))
				m.observe("transport_error")
				m.emitError(reliability.KindTransport, fmt.Errorf("%w: %v", reliability.ErrTransport, err))
				m.teardown(gen)
			}
			return
		}
		if !m.dispatch(gen, conn, msg, logger) {
			return
		}
	}
}

// dispatch handles one message in arrival order. It reports false once
// the session generation is gone.
func (m *Manager) dispatch(gen uint64, conn Conn, msg ServerMessage, logger *zap.Logger) bool {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	if !m.isLive(gen) {
		return false
	}

	if msg.InputTranscript != "" {
		m.transcripts.AppendInput(msg.InputTranscript)
		m.emitTranscript("user", msg.InputTranscript)
		logger.Debug("input transcript", zap.String("text", policy.Transcript(msg.InputTranscript)))
	}
	if msg.OutputTranscript != "" {
		m.transcripts.AppendOutput(msg.OutputTranscript)
		m.emitTranscript("assistant", msg.OutputTranscript)
	}
	if msg.Interrupted && m.deps.Playback != nil {
		m.deps.Playback.CancelAll()
	}
	for _, chunk := range msg.Audio {
		if m.deps.Playback == nil {
			break
		}
		if err := m.deps.Playback.Enqueue(chunk); err != nil && !errors.Is(err, reliability.ErrDecode) {
			logger.Warn("playback enqueue failed", zap.Error(err))
		}
	}
	for _, call := range msg.ToolCalls {
		ack := toolcall.Ack{ID: call.ID, Name: call.Name, Response: map[string]any{"result": toolcall.ResultIgnored}}
		if m.deps.Tools != nil {
			ack = m.deps.Tools.Handle(call)
		}
		if err := conn.SendToolResponse(ack); err != nil {
			logger.Warn("tool response send failed", zap.String("tool", call.Name), zap.Error(err))
		}
	}
	return true
}

func (m *Manager) emitState(s State) {
	m.mu.Lock()
	fn := m.hooks.OnState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (m *Manager) emitTranscript(role, fragment string) {
	m.mu.Lock()
	fn := m.hooks.OnTranscript
	m.mu.Unlock()
	if fn != nil {
		fn(role, fragment)
	}
}

func (m *Manager) emitError(kind reliability.Kind, err error) {
	m.mu.Lock()
	fn := m.hooks.OnError
	m.mu.Unlock()
	if fn != nil {
		fn(kind, err)
	}
}

func (m *Manager) observe(event string) {
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveSessionEvent(event)
	}
}

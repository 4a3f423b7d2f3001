// Package bridge exposes the browser's microphone, speaker and Web
// Speech engines to the service over one websocket link. A Bridge is
// the capture device, playback sink and clock, synthesizer and
// recognizer the rest of the service is wired with.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/audio"
	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/capture"
	"github.com/ent0n29/healthpilot/internal/protocol"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/speech"
)

const (
	defaultMicTimeout = 10 * time.Second
	micBuffer         = 32
)

var errLinkClosed = fmt.Errorf("%w: browser link closed", reliability.ErrDeviceUnavailable)

// Observer counts outbound messages by type and result (queued,
// drop_full, no_link).
type Observer interface {
	ObserveOutboundMessage(msgType, result string)
}

type Config struct {
	CaptureSampleRate int
	// MicTimeout bounds how long Open waits for the browser to report
	// the microphone state.
	MicTimeout time.Duration
}

// Bridge multiplexes device traffic onto the current browser link. At
// most one link is attached; attaching a new one replaces the old.
type Bridge struct {
	cfg    Config
	logger *zap.Logger
	epoch  time.Time

	mu           sync.Mutex
	link         *link
	linkSeq      uint64
	mic          *micStream
	utterances   map[string]func(error)
	recognitions map[string]func(speech.RecognitionEvent)
	onInterrupt  func()
	observer     Observer
}

type link struct {
	id  uint64
	out chan<- any
}

func New(cfg Config, logger *zap.Logger) *Bridge {
	if cfg.CaptureSampleRate <= 0 {
		cfg.CaptureSampleRate = audio.CaptureSampleRate
	}
	if cfg.MicTimeout <= 0 {
		cfg.MicTimeout = defaultMicTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		cfg:          cfg,
		logger:       logger,
		epoch:        time.Now(),
		utterances:   make(map[string]func(error)),
		recognitions: make(map[string]func(speech.RecognitionEvent)),
	}
}

func (b *Bridge) SetObserver(o Observer) {
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

// OnInterrupt installs the handler for a user barge-in from the browser.
func (b *Bridge) OnInterrupt(fn func()) {
	b.mu.Lock()
	b.onInterrupt = fn
	b.mu.Unlock()
}

// Attach makes out the active link and returns its detach func. The
// browser learns the bridge clock from the first message.
func (b *Bridge) Attach(out chan<- any) func() {
	b.mu.Lock()
	prev := b.link
	b.linkSeq++
	l := &link{id: b.linkSeq, out: out}
	b.link = l
	b.mu.Unlock()

	if prev != nil {
		b.logger.Info("browser link replaced", zap.Uint64("previous", prev.id), zap.Uint64("link", l.id))
		b.dropDevices()
	}
	b.send(protocol.SystemEvent{
		Type:   protocol.TypeSystemEvent,
		Code:   "clock_sync",
		Detail: strconv.FormatInt(b.Now().Milliseconds(), 10),
	})
	return func() { b.detach(l.id) }
}

// Connected reports whether a browser link is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link != nil
}

func (b *Bridge) detach(id uint64) {
	b.mu.Lock()
	if b.link == nil || b.link.id != id {
		b.mu.Unlock()
		return
	}
	b.link = nil
	b.mu.Unlock()
	b.logger.Info("browser link detached", zap.Uint64("link", id))
	b.dropDevices()
}

// dropDevices ends everything that depended on the previous link:
// the microphone stream closes, pending utterances fail and running
// recognitions get an error followed by end.
func (b *Bridge) dropDevices() {
	b.mu.Lock()
	mic := b.mic
	b.mic = nil
	utterances := b.utterances
	b.utterances = make(map[string]func(error))
	recognitions := b.recognitions
	b.recognitions = make(map[string]func(speech.RecognitionEvent))
	b.mu.Unlock()

	if mic != nil {
		mic.fail(errLinkClosed)
	}
	for _, done := range utterances {
		done(errLinkClosed)
	}
	for _, fn := range recognitions {
		fn(speech.RecognitionEvent{Kind: speech.RecognitionError, Err: errLinkClosed})
		fn(speech.RecognitionEvent{Kind: speech.RecognitionEnd})
	}
}

// send queues msg on the active link without blocking. It reports
// whether the message was queued.
func (b *Bridge) send(msg any) bool {
	b.mu.Lock()
	l := b.link
	obs := b.observer
	b.mu.Unlock()

	msgType := string(messageType(msg))
	if l == nil {
		observe(obs, msgType, "no_link")
		return false
	}
	select {
	case l.out <- msg:
		observe(obs, msgType, "queued")
		return true
	default:
		observe(obs, msgType, "drop_full")
		b.logger.Debug("bridge outbound queue full", zap.String("type", msgType))
		return false
	}
}

// Now is the bridge clock used to schedule playback.
func (b *Bridge) Now() time.Duration {
	return time.Since(b.epoch)
}

// Handle applies one parsed client message.
func (b *Bridge) Handle(msg any) {
	switch m := msg.(type) {
	case protocol.ClientAudioChunk:
		b.handleAudio(m)
	case protocol.ClientControl:
		b.handleControl(m)
	case protocol.RecognitionEvent:
		b.handleRecognition(m)
	case protocol.SpeechEvent:
		b.handleSpeech(m)
	}
}

func (b *Bridge) handleAudio(m protocol.ClientAudioChunk) {
	b.mu.Lock()
	mic := b.mic
	b.mu.Unlock()
	if mic == nil {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
	if err != nil {
		b.logger.Debug("dropping malformed audio chunk", zap.Int("seq", m.Seq), zap.Error(err))
		return
	}
	samples, err := audio.DecodePCM16LE(raw)
	if err != nil {
		b.logger.Debug("dropping malformed audio chunk", zap.Int("seq", m.Seq), zap.Error(err))
		return
	}
	if m.SampleRate != b.cfg.CaptureSampleRate {
		samples = audio.Resample(samples, m.SampleRate, b.cfg.CaptureSampleRate)
	}
	mic.deliver(samples)
}

func (b *Bridge) handleControl(m protocol.ClientControl) {
	switch m.Action {
	case protocol.ControlMicReady:
		b.resolveMic(nil)
	case protocol.ControlMicPermissionDenied:
		b.resolveMic(fmt.Errorf("%w: %s", reliability.ErrPermissionDenied, m.Detail))
	case protocol.ControlMicUnavailable:
		b.resolveMic(fmt.Errorf("%w: %s", reliability.ErrDeviceUnavailable, m.Detail))
	case protocol.ControlInterrupt:
		b.mu.Lock()
		fn := b.onInterrupt
		b.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (b *Bridge) resolveMic(err error) {
	b.mu.Lock()
	mic := b.mic
	if err != nil && mic != nil {
		b.mic = nil
	}
	b.mu.Unlock()
	if mic == nil {
		return
	}
	if err != nil {
		mic.fail(err)
		return
	}
	mic.ready()
}

// Open asks the browser for the microphone and waits until it reports
// ready, denied or unavailable.
func (b *Bridge) Open(ctx context.Context) (capture.Stream, error) {
	b.mu.Lock()
	if b.link == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("open microphone: %w: no browser link", reliability.ErrDeviceUnavailable)
	}
	prev := b.mic
	mic := newMicStream(b, b.cfg.CaptureSampleRate)
	b.mic = mic
	b.mu.Unlock()
	if prev != nil {
		prev.fail(errors.New("microphone reopened"))
	}

	if !b.send(protocol.CaptureStart{Type: protocol.TypeCaptureStart, SampleRate: b.cfg.CaptureSampleRate}) {
		b.releaseMic(mic)
		return nil, fmt.Errorf("open microphone: %w: link unavailable", reliability.ErrDeviceUnavailable)
	}

	timer := time.NewTimer(b.cfg.MicTimeout)
	defer timer.Stop()
	select {
	case err := <-mic.readyCh:
		if err != nil {
			b.releaseMic(mic)
			return nil, fmt.Errorf("open microphone: %w", err)
		}
		return mic, nil
	case <-timer.C:
		b.releaseMic(mic)
		return nil, fmt.Errorf("open microphone: %w: browser did not answer", reliability.ErrDeviceUnavailable)
	case <-ctx.Done():
		b.releaseMic(mic)
		return nil, ctx.Err()
	}
}

// releaseMic detaches mic if it is still current and tells the browser
// to stop capturing.
func (b *Bridge) releaseMic(mic *micStream) {
	b.mu.Lock()
	current := b.mic == mic
	if current {
		b.mic = nil
	}
	b.mu.Unlock()
	mic.shutdown()
	if current {
		b.send(protocol.CaptureStop{Type: protocol.TypeCaptureStop})
	}
}

// Play sends a scheduled buffer. It implements the playback sink.
func (b *Bridge) Play(id uint64, buf audio.Frame, at time.Duration) error {
	ok := b.send(protocol.PlaybackChunk{
		Type:        protocol.TypePlaybackChunk,
		BufferID:    id,
		AtMs:        float64(at) / float64(time.Millisecond),
		SampleRate:  buf.SampleRate,
		PCM16Base64: base64.StdEncoding.EncodeToString(audio.EncodePCM16LE(buf.Samples)),
	})
	if !ok {
		return fmt.Errorf("play buffer %d: %w", id, reliability.ErrDeviceUnavailable)
	}
	return nil
}

func (b *Bridge) Stop(id uint64) {
	b.send(protocol.PlaybackStop{Type: protocol.TypePlaybackStop, BufferID: id})
}

// Speak hands an utterance to the browser synthesizer.
func (b *Bridge) Speak(u speech.Utterance, done func(error)) error {
	b.mu.Lock()
	if b.link == nil {
		b.mu.Unlock()
		return fmt.Errorf("speak: %w: no browser link", reliability.ErrDeviceUnavailable)
	}
	b.utterances[u.ID] = done
	b.mu.Unlock()

	if !b.send(protocol.SpeechStart{Type: protocol.TypeSpeechStart, UtteranceID: u.ID, Text: u.Text, Locale: u.Locale}) {
		b.mu.Lock()
		delete(b.utterances, u.ID)
		b.mu.Unlock()
		return fmt.Errorf("speak: %w: link unavailable", reliability.ErrDeviceUnavailable)
	}
	return nil
}

// Cancel silences the browser synthesizer. Pending completions are
// forgotten; the coordinator has already settled them.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	b.utterances = make(map[string]func(error))
	b.mu.Unlock()
	b.send(protocol.SpeechCancel{Type: protocol.TypeSpeechCancel})
}

func (b *Bridge) handleSpeech(m protocol.SpeechEvent) {
	b.mu.Lock()
	done, ok := b.utterances[m.UtteranceID]
	delete(b.utterances, m.UtteranceID)
	b.mu.Unlock()
	if !ok {
		return
	}
	if m.Kind == protocol.EventError {
		done(fmt.Errorf("browser synthesis: %s", m.Error))
		return
	}
	done(nil)
}

// Start begins a browser recognition pass.
func (b *Bridge) Start(_ context.Context, cfg speech.RecognitionConfig, onEvent func(speech.RecognitionEvent)) (speech.Recognition, error) {
	id := uuid.NewString()
	b.mu.Lock()
	if b.link == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("start recognition: %w: no browser link", reliability.ErrDeviceUnavailable)
	}
	b.recognitions[id] = onEvent
	b.mu.Unlock()

	ok := b.send(protocol.RecognitionStart{
		Type:           protocol.TypeRecognitionStart,
		RecognitionID:  id,
		Locale:         cfg.Locale,
		Continuous:     cfg.Continuous,
		InterimResults: cfg.InterimResults,
	})
	if !ok {
		b.forgetRecognition(id)
		return nil, fmt.Errorf("start recognition: %w: link unavailable", reliability.ErrDeviceUnavailable)
	}
	return &recognition{bridge: b, id: id}, nil
}

func (b *Bridge) forgetRecognition(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.recognitions[id]
	delete(b.recognitions, id)
	return ok
}

func (b *Bridge) handleRecognition(m protocol.RecognitionEvent) {
	b.mu.Lock()
	fn, ok := b.recognitions[m.RecognitionID]
	if ok && m.Kind == protocol.EventEnd {
		delete(b.recognitions, m.RecognitionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	switch m.Kind {
	case protocol.EventResult:
		fn(speech.RecognitionEvent{Kind: speech.RecognitionResult, Text: m.Text, Final: m.Final})
	case protocol.EventError:
		fn(speech.RecognitionEvent{Kind: speech.RecognitionError, Err: recognitionError(m.Error)})
	case protocol.EventEnd:
		fn(speech.RecognitionEvent{Kind: speech.RecognitionEnd})
	}
}

// recognitionError maps Web Speech error codes onto the error taxonomy.
func recognitionError(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		return fmt.Errorf("%w: %s", reliability.ErrPermissionDenied, code)
	case "audio-capture":
		return fmt.Errorf("%w: %s", reliability.ErrDeviceUnavailable, code)
	default:
		return fmt.Errorf("recognition error: %s", code)
	}
}

type recognition struct {
	bridge *Bridge
	id     string
	once   sync.Once
}

func (r *recognition) Stop() {
	r.once.Do(func() {
		if r.bridge.forgetRecognition(r.id) {
			r.bridge.send(protocol.RecognitionStop{Type: protocol.TypeRecognitionStop, RecognitionID: r.id})
		}
	})
}

// PublishCommand forwards a bus event to the UI.
func (b *Bridge) PublishCommand(evt bus.Event) {
	b.send(protocol.CommandEvent{Type: protocol.TypeCommandEvent, Kind: bus.Kind(evt), Payload: evt})
}

// Forward relays events until ctx ends or the channel closes.
func (b *Bridge) Forward(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.PublishCommand(evt)
		}
	}
}

func (b *Bridge) SendTranscript(role, text string) {
	b.send(protocol.TranscriptDelta{Type: protocol.TypeTranscriptDelta, Role: role, Text: text})
}

func (b *Bridge) SendLevel(level float64) {
	b.send(protocol.AudioLevel{Type: protocol.TypeAudioLevel, Level: level})
}

func (b *Bridge) SendSystem(code, detail string) {
	b.send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: code, Detail: detail})
}

// SendError reports a classified failure with its retry affordance.
func (b *Bridge) SendError(source string, kind reliability.Kind, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	b.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		Code:      string(kind),
		Source:    source,
		Retryable: reliability.UserRetryable(kind),
		Detail:    detail,
	})
}

func observe(o Observer, msgType, result string) {
	if o != nil {
		o.ObserveOutboundMessage(msgType, result)
	}
}

// Package voice runs the push-to-talk command flow: one recognition
// pass, intent parsing, UI commands on the bus and a spoken reply.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/intent"
	"github.com/ent0n29/healthpilot/internal/policy"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/speech"
	"github.com/ent0n29/healthpilot/internal/taskstore"
	"github.com/ent0n29/healthpilot/internal/views"
)

const (
	defaultOwner        = "default"
	defaultParseTimeout = 12 * time.Second
	persistTimeout      = 2 * time.Second
)

// ErrDictationActive is returned by Listen while dictation owns the
// recognizer.
var ErrDictationActive = fmt.Errorf("%w: dictation in progress", reliability.ErrDeviceUnavailable)

// Speaker is the synthesis side the machine talks through.
type Speaker interface {
	Speak(text, locale string, onDone func(speech.Outcome))
	Cancel()
}

// Observer counts intents and records parse and analysis latency.
type Observer interface {
	ObserveVoiceIntent(intent string)
	ObserveStageLatency(stage string, d time.Duration)
}

type Config struct {
	// Locale is the BCP 47 tag used for recognition and synthesis.
	Locale string
	// Language is the human-readable language passed to the parser.
	Language     string
	BookingView  views.View
	ParseTimeout time.Duration
	// Owner keys the persisted task.
	Owner string
}

type Deps struct {
	Recognizer speech.Recognizer
	Speaker    Speaker
	Parser     intent.Parser
	Analyzer   intent.Analyzer
	Bus        bus.Publisher
	Tasks      taskstore.Store
	Logger     *zap.Logger
	Observer   Observer
}

// Status is what the UI shows next to the voice control.
type Status struct {
	Listening  bool                `json:"listening"`
	Dictating  bool                `json:"dictating"`
	Processing string              `json:"processing,omitempty"`
	Locale     string              `json:"locale"`
	Language   string              `json:"language"`
	Task       taskstore.VoiceTask `json:"task"`
}

// Machine is the command state machine. Every recognition pass gets a
// cycle number and every parsed command a flow number; callbacks that
// carry a stale number are dropped.
type Machine struct {
	cfg  Config
	deps Deps

	mu         sync.Mutex
	cycle      uint64
	flow       uint64
	rec        speech.Recognition
	listening  bool
	dictating  bool
	processing string
	locale     string
	language   string
	task       taskstore.VoiceTask

	wg sync.WaitGroup
}

func NewMachine(cfg Config, deps Deps) *Machine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.BookingView == "" {
		cfg.BookingView = views.ResourceFinder
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = defaultParseTimeout
	}
	if cfg.Owner == "" {
		cfg.Owner = defaultOwner
	}
	return &Machine{
		cfg:      cfg,
		deps:     deps,
		locale:   cfg.Locale,
		language: cfg.Language,
		task:     taskstore.Empty(),
	}
}

// Restore loads the persisted task, if any.
func (m *Machine) Restore(ctx context.Context) error {
	if m.deps.Tasks == nil {
		return nil
	}
	task, err := m.deps.Tasks.Load(ctx, m.cfg.Owner)
	if errors.Is(err, taskstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore voice task: %w", err)
	}
	m.mu.Lock()
	m.task = task
	m.mu.Unlock()
	return nil
}

// Listen starts one recognition pass. Any speech in progress is cut
// off first. It is a no-op while already listening.
func (m *Machine) Listen(ctx context.Context) error {
	m.mu.Lock()
	if m.dictating {
		m.mu.Unlock()
		return ErrDictationActive
	}
	if m.listening {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.deps.Speaker != nil {
		m.deps.Speaker.Cancel()
	}
	return m.startCycle(ctx)
}

func (m *Machine) startCycle(ctx context.Context) error {
	if m.deps.Recognizer == nil {
		return fmt.Errorf("start listening: %w: no recognizer", reliability.ErrDeviceUnavailable)
	}

	m.mu.Lock()
	if m.dictating || m.listening {
		m.mu.Unlock()
		return nil
	}
	m.cycle++
	cycle := m.cycle
	m.listening = true
	locale := m.locale
	m.mu.Unlock()

	rec, err := m.deps.Recognizer.Start(ctx, speech.RecognitionConfig{
		Locale:         locale,
		Continuous:     false,
		InterimResults: true,
	}, func(evt speech.RecognitionEvent) { m.onRecognition(cycle, evt) })
	if err != nil {
		m.mu.Lock()
		if m.cycle == cycle {
			m.listening = false
		}
		m.mu.Unlock()
		return fmt.Errorf("start listening: %w", err)
	}

	m.mu.Lock()
	if m.cycle != cycle {
		m.mu.Unlock()
		rec.Stop()
		return nil
	}
	m.rec = rec
	m.mu.Unlock()
	m.deps.Logger.Debug("recognition started", zap.Uint64("cycle", cycle), zap.String("locale", locale))
	return nil
}

// StopListening ends the current recognition pass without handling its
// result.
func (m *Machine) StopListening() {
	m.mu.Lock()
	rec := m.endCycleLocked()
	m.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// Toggle flips listening and reports whether the machine now listens.
func (m *Machine) Toggle(ctx context.Context) (bool, error) {
	if m.Listening() {
		m.StopListening()
		return false, nil
	}
	if err := m.Listen(ctx); err != nil {
		return false, err
	}
	return m.Listening(), nil
}

// Reset abandons any command in flight, stops speech and clears the
// task.
func (m *Machine) Reset(ctx context.Context) error {
	m.mu.Lock()
	m.flow++
	m.processing = ""
	rec := m.endCycleLocked()
	m.task.Reset()
	m.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
	if m.deps.Speaker != nil {
		m.deps.Speaker.Cancel()
	}
	if m.deps.Tasks != nil {
		if err := m.deps.Tasks.Clear(ctx, m.cfg.Owner); err != nil {
			return fmt.Errorf("clear voice task: %w", err)
		}
	}
	return nil
}

// SetDictating suppresses the whole pipeline while dictation holds the
// recognizer. Turning it on stops listening and drops pending results.
func (m *Machine) SetDictating(on bool) {
	m.mu.Lock()
	m.dictating = on
	var rec speech.Recognition
	if on {
		m.flow++
		m.processing = ""
		rec = m.endCycleLocked()
	}
	m.mu.Unlock()
	if rec != nil {
		rec.Stop()
	}
}

// SetLocale switches the recognition and synthesis locale and the
// language sent to the parser. Empty values keep the current setting.
func (m *Machine) SetLocale(locale, language string) {
	m.mu.Lock()
	if l := strings.TrimSpace(locale); l != "" {
		m.locale = l
	}
	if l := strings.TrimSpace(language); l != "" {
		m.language = l
	}
	m.mu.Unlock()
}

// Task returns a copy of the current task context.
func (m *Machine) Task() taskstore.VoiceTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task.Clone()
}

func (m *Machine) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Listening:  m.listening,
		Dictating:  m.dictating,
		Processing: m.processing,
		Locale:     m.locale,
		Language:   m.language,
		Task:       m.task.Clone(),
	}
}

// Wait blocks until every command handler started so far has returned.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) endCycleLocked() speech.Recognition {
	m.cycle++
	m.listening = false
	rec := m.rec
	m.rec = nil
	return rec
}

func (m *Machine) onRecognition(cycle uint64, evt speech.RecognitionEvent) {
	m.mu.Lock()
	if m.cycle != cycle || m.dictating {
		m.mu.Unlock()
		return
	}

	switch evt.Kind {
	case speech.RecognitionResult:
		text := strings.TrimSpace(evt.Text)
		if !evt.Final || text == "" {
			m.mu.Unlock()
			return
		}
		rec := m.endCycleLocked()
		m.flow++
		flow := m.flow
		m.processing = text
		m.mu.Unlock()
		if rec != nil {
			rec.Stop()
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handleTranscript(flow, text)
		}()
	case speech.RecognitionError:
		m.endCycleLocked()
		m.mu.Unlock()
		m.deps.Logger.Warn("recognition failed", zap.Error(evt.Err))
	case speech.RecognitionEnd:
		m.endCycleLocked()
		m.mu.Unlock()
	default:
		m.mu.Unlock()
	}
}

func (m *Machine) handleTranscript(flow uint64, transcript string) {
	logger := m.deps.Logger.With(zap.Uint64("flow", flow))
	logger.Info("voice command received", zap.String("transcript", policy.Transcript(transcript)))
	m.notice(processingNotice)

	language := m.currentLanguage()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ParseTimeout)
	began := time.Now()
	cmd, err := m.parse(ctx, transcript, language)
	cancel()
	m.observeLatency("intent_parse", time.Since(began))

	if !m.finishProcessing(flow) {
		return
	}
	if err != nil {
		logger.Warn("intent parse failed", zap.Error(err))
		m.respond(parseFailurePhrase, false, flow)
		return
	}
	m.observeIntent(cmd.Intent)
	logger.Debug("intent parsed", zap.String("intent", string(cmd.Intent)))

	switch cmd.Intent {
	case intent.Navigate:
		if v, ok := views.Normalize(cmd.Entities.View); ok {
			m.publish(bus.Navigate{View: v})
			m.respond(navigationPhrase(v), false, flow)
			return
		}
	case intent.IdentifyMedicine:
		m.publish(bus.Navigate{View: views.MedicineIdentifier})
		m.respond(medicineScannerPhrase, false, flow)
		return
	case intent.CheckSymptoms:
		if symptom := strings.TrimSpace(cmd.Entities.Symptom); symptom != "" {
			m.checkSymptoms(flow, symptom, cmd.SuggestedResponse, language, logger)
			return
		}
	case intent.Confirm:
		if target, ok := m.takePendingNavigation(); ok {
			m.persist()
			m.publish(bus.Navigate{View: target})
			m.respond(confirmPhrase, false, flow)
			return
		}
	case intent.Deny:
		if m.cancelPendingNavigation() {
			m.persist()
			m.respond(fallbackOr(cmd.SuggestedResponse, denyPhrase), false, flow)
			return
		}
	}
	m.respond(fallbackPhrase(cmd.SuggestedResponse), false, flow)
}

func (m *Machine) checkSymptoms(flow uint64, symptom, suggestion, language string, logger *zap.Logger) {
	m.publish(bus.Navigate{View: views.AIAssistant})
	m.publish(bus.BeginSymptomAnalysis{Text: symptom})
	m.speak(analyzingPhrase, nil)

	if m.deps.Analyzer == nil {
		m.respond(analysisFailurePhrase, false, flow)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ParseTimeout)
	began := time.Now()
	analysis, err := m.deps.Analyzer.AnalyzeSymptoms(ctx, symptom, language)
	cancel()
	m.observeLatency("symptom_analysis", time.Since(began))

	if !m.flowCurrent(flow) {
		return
	}
	condition := analysis.TopCondition()
	if err == nil && condition == "" {
		err = fmt.Errorf("%w: analysis lists no condition", reliability.ErrParse)
	}
	if err != nil {
		logger.Warn("symptom analysis failed", zap.Error(err))
		m.respond(analysisFailurePhrase, false, flow)
		return
	}

	m.mu.Lock()
	m.task.ActiveTask = taskstore.TaskBookingFlow
	m.task.Merge(map[string]string{"specialty": analysis.SuggestedSpecialty})
	m.task.Awaiting = taskstore.AwaitYesNo
	m.task.PendingNavigation = string(m.cfg.BookingView)
	m.mu.Unlock()
	m.persist()

	logger.Info("symptom analysis ready",
		zap.String("condition", condition),
		zap.String("specialty", analysis.SuggestedSpecialty),
	)
	m.respond(analysisSummary(condition, suggestion, analysis.SuggestedSpecialty), true, flow)
}

// respond shows text as a notice and speaks it. With listenAfter the
// next recognition pass starts only once the speech has finished.
func (m *Machine) respond(text string, listenAfter bool, flow uint64) {
	m.notice(text)
	var onDone func(speech.Outcome)
	if listenAfter {
		onDone = func(o speech.Outcome) {
			if !speech.Completes(o) || !m.flowCurrent(flow) {
				return
			}
			if err := m.startCycle(context.Background()); err != nil {
				m.deps.Logger.Warn("resume listening failed", zap.Error(err))
			}
		}
	}
	m.speak(text, onDone)
}

// speak always silences recognition first so the microphone never
// hears the reply.
func (m *Machine) speak(text string, onDone func(speech.Outcome)) {
	m.StopListening()
	if m.deps.Speaker == nil {
		if onDone != nil {
			onDone(speech.Completed)
		}
		return
	}
	m.mu.Lock()
	locale := m.locale
	m.mu.Unlock()
	m.deps.Speaker.Speak(text, locale, onDone)
}

func (m *Machine) parse(ctx context.Context, transcript, language string) (intent.Command, error) {
	if m.deps.Parser == nil {
		return intent.Command{}, fmt.Errorf("%w: no intent parser", reliability.ErrParse)
	}
	return m.deps.Parser.ParseCommand(ctx, transcript, language)
}

func (m *Machine) takePendingNavigation() (views.View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task.Awaiting != taskstore.AwaitYesNo || m.task.PendingNavigation == "" {
		return "", false
	}
	target, ok := views.Normalize(m.task.PendingNavigation)
	m.task.Reset()
	return target, ok
}

func (m *Machine) cancelPendingNavigation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task.Awaiting != taskstore.AwaitYesNo {
		return false
	}
	m.task.Reset()
	return true
}

// finishProcessing clears the processing marker and reports whether the
// flow is still the one the user expects an answer for.
func (m *Machine) finishProcessing(flow uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flow != flow || m.dictating {
		return false
	}
	m.processing = ""
	return true
}

func (m *Machine) flowCurrent(flow uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flow == flow && !m.dictating
}

func (m *Machine) currentLanguage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

func (m *Machine) persist() {
	if m.deps.Tasks == nil {
		return
	}
	task := m.Task()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	var err error
	if task.IsEmpty() {
		err = m.deps.Tasks.Clear(ctx, m.cfg.Owner)
	} else {
		task.UpdatedAt = time.Now().UTC()
		err = m.deps.Tasks.Save(ctx, m.cfg.Owner, task)
	}
	if err != nil {
		m.deps.Logger.Warn("voice task persist failed", zap.Error(err))
	}
}

func (m *Machine) publish(evt bus.Event) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(evt)
	}
}

func (m *Machine) notice(text string) {
	m.publish(bus.Notice{Text: text})
}

func (m *Machine) observeIntent(i intent.Intent) {
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveVoiceIntent(string(i))
	}
}

func (m *Machine) observeLatency(stage string, d time.Duration) {
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveStageLatency(stage, d)
	}
}

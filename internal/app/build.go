package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/healthpilot/internal/bridge"
	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/capture"
	"github.com/ent0n29/healthpilot/internal/config"
	"github.com/ent0n29/healthpilot/internal/device"
	"github.com/ent0n29/healthpilot/internal/dictation"
	"github.com/ent0n29/healthpilot/internal/httpapi"
	"github.com/ent0n29/healthpilot/internal/intent"
	"github.com/ent0n29/healthpilot/internal/live"
	"github.com/ent0n29/healthpilot/internal/observability"
	"github.com/ent0n29/healthpilot/internal/playback"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/speech"
	"github.com/ent0n29/healthpilot/internal/taskstore"
	"github.com/ent0n29/healthpilot/internal/toolcall"
	"github.com/ent0n29/healthpilot/internal/voice"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Bridge    *bridge.Bridge
	Events    *bus.Bus
	Live      *live.Manager
	Voice     *voice.Machine
	Dictation *dictation.Controller
	Metrics   *observability.Metrics
	Transport string

	// Cleanup stops every device user and releases external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	store, err := taskstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("task store init failed: %w", err)
	}

	intents, err := intent.New(ctx, intent.Config{
		Mode:          cfg.IntentMode,
		APIKey:        cfg.GeminiAPIKey,
		HTTPURL:       cfg.IntentHTTPURL,
		CommandModel:  cfg.IntentModel,
		AnalysisModel: cfg.AnalysisModel,
		HTTPTimeout:   cfg.IntentTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("intent service init failed: %w", err)
	}

	transport, err := resolveLiveTransport(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("live transport resolved", zap.String("transport", transport.resolved), zap.String("detail", transport.detail))

	events := bus.New(logger.Named("bus"))
	events.SetDeliveryObserver(metrics)

	br := bridge.New(bridge.Config{CaptureSampleRate: cfg.CaptureSampleRate}, logger.Named("bridge"))
	br.SetObserver(metrics)

	arbiter := device.NewArbiter(logger.Named("device"))
	encoder := capture.NewEncoder(br, capture.Config{
		SampleRate:   cfg.CaptureSampleRate,
		FrameSamples: cfg.CaptureFrameSamples,
		OnLevel:      br.SendLevel,
	}, logger.Named("capture"))

	scheduler := playback.NewScheduler(br, br, cfg.PlaybackSampleRate, logger.Named("playback"))
	scheduler.SetObserver(metrics)

	speaker := speech.NewCoordinator(br, cfg.SpeechWatchdog, logger.Named("speech"))
	speaker.SetObserver(metrics)

	router := toolcall.NewRouter(events, logger.Named("toolcall"))
	router.SetObserver(metrics)

	liveMgr := live.NewManager(live.Config{
		Model:      cfg.LiveModel,
		Voice:      cfg.LiveVoice,
		Language:   cfg.VoiceLanguage,
		AuxFrameHz: cfg.AuxFrameRate,
	}, live.Deps{
		Dialer:   transport.dialer,
		Capture:  encoder,
		Playback: scheduler,
		Tools:    router,
		Arbiter:  arbiter,
		Logger:   logger.Named("live"),
		Observer: metrics,
	})
	liveMgr.SetHooks(live.Hooks{
		OnState: func(state live.State) {
			metrics.ObserveLiveActive(state == live.StateActive)
			br.SendSystem("live_state", string(state))
		},
		OnTranscript: br.SendTranscript,
		OnError: func(kind reliability.Kind, err error) {
			br.SendError("live", kind, err)
		},
	})

	machine := voice.NewMachine(voice.Config{
		Locale:       cfg.VoiceLocale,
		Language:     cfg.VoiceLanguage,
		BookingView:  cfg.BookingTargetView,
		ParseTimeout: cfg.IntentTimeout,
	}, voice.Deps{
		Recognizer: br,
		Speaker:    speaker,
		Parser:     intents,
		Analyzer:   intents,
		Bus:        events,
		Tasks:      store,
		Logger:     logger.Named("voice"),
		Observer:   metrics,
	})
	restoreCtx, restoreCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := machine.Restore(restoreCtx); err != nil {
		logger.Warn("voice task restore failed", zap.Error(err))
	}
	restoreCancel()

	dictate := dictation.NewController(dictation.Deps{
		Recognizer: br,
		Speaker:    speaker,
		Gate:       machine,
		Arbiter:    arbiter,
		Bus:        events,
		Logger:     logger.Named("dictation"),
	})

	// The browser stop button cuts both audio paths at once.
	br.OnInterrupt(func() {
		scheduler.CancelAll()
		speaker.Cancel()
	})

	forwardCtx, forwardCancel := context.WithCancel(context.WithoutCancel(ctx))
	uiEvents, unsubscribe := events.Subscribe()
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		br.Forward(forwardCtx, uiEvents)
	}()

	api := httpapi.New(cfg, httpapi.Deps{
		Live:      liveMgr,
		Voice:     machine,
		Dictation: dictate,
		Bridge:    br,
		Metrics:   metrics,
		Logger:    logger.Named("http"),
	})

	cleanup := func() error {
		liveMgr.Stop()
		dictate.Stop()
		machine.StopListening()
		speaker.Cancel()
		scheduler.CancelAll()
		machine.Wait()

		unsubscribe()
		forwardCancel()
		<-forwardDone
		events.Close()

		var errs []error
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("task store close: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Bridge:    br,
		Events:    events,
		Live:      liveMgr,
		Voice:     machine,
		Dictation: dictate,
		Metrics:   metrics,
		Transport: transport.resolved,
		Cleanup:   cleanup,
	}, nil
}

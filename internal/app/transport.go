package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/healthpilot/internal/config"
	"github.com/ent0n29/healthpilot/internal/live"
)

type liveSetup struct {
	dialer   live.Dialer
	resolved string
	detail   string
}

// resolveLiveTransport picks the duplex transport. auto prefers the
// hosted session and falls back to the scripted mock without a key.
func resolveLiveTransport(ctx context.Context, cfg config.Config) (liveSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.LiveTransport))
	if mode == "" {
		mode = "auto"
	}

	tryGemini := func() (liveSetup, bool, error) {
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return liveSetup{}, false, nil
		}
		d, err := live.NewGeminiDialer(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return liveSetup{}, false, fmt.Errorf("gemini live transport init failed: %w", err)
		}
		return liveSetup{
			dialer:   d,
			resolved: "gemini",
			detail:   fmt.Sprintf("gemini live (%s, voice %s)", cfg.LiveModel, cfg.LiveVoice),
		}, true, nil
	}
	mock := liveSetup{
		dialer:   &live.MockDialer{},
		resolved: "mock",
		detail:   "mock",
	}

	switch mode {
	case "gemini":
		setup, ok, err := tryGemini()
		if err != nil {
			return liveSetup{}, err
		}
		if !ok {
			return liveSetup{}, fmt.Errorf("LIVE_TRANSPORT=gemini but GEMINI_API_KEY is not set")
		}
		return setup, nil
	case "mock":
		return mock, nil
	case "auto":
		setup, ok, err := tryGemini()
		if err != nil {
			return liveSetup{}, err
		}
		if ok {
			return setup, nil
		}
		mock.detail = "mock (no gemini api key)"
		return mock, nil
	default:
		return liveSetup{}, fmt.Errorf("invalid LIVE_TRANSPORT: %q (expected auto|gemini|mock)", cfg.LiveTransport)
	}
}

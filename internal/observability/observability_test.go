package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(8, nil)
	w.Observe("intent_parse", 500)
	w.Observe("intent_parse", 700)
	w.Observe("intent_parse", 900)
	w.Observe("", 10)
	w.Observe("intent_parse", -1)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	s := snap.Stages[0]
	assert.Equal(t, 8, snap.WindowSize)
	assert.Equal(t, "intent_parse", s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 900.0)
	assert.Equal(t, 1800.0, s.TargetP95MS)
	assert.Zero(t, s.OverTarget)
	assert.False(t, s.Breached)
	assert.Empty(t, snap.Breached)
}

func TestLatencyWindowCountsOverTarget(t *testing.T) {
	w := NewLatencyWindow(4, map[string]time.Duration{"intent_parse": 100 * time.Millisecond})
	for _, v := range []float64{50, 150, 250, 300, 40} {
		w.Observe("intent_parse", v)
	}
	w.Observe("tts_first_audio", 900)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 2)
	s := snap.Stages[0]
	assert.Equal(t, "intent_parse", s.Stage)
	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, uint64(5), s.Total)
	assert.Equal(t, 40.0, s.LastMS)
	assert.Equal(t, 100.0, s.TargetP95MS)
	assert.Equal(t, 3, s.OverTarget)
	assert.True(t, s.Breached)
	assert.Equal(t, []string{"intent_parse"}, snap.Breached)

	untargeted := snap.Stages[1]
	assert.Equal(t, "tts_first_audio", untargeted.Stage)
	assert.Zero(t, untargeted.TargetP95MS)
	assert.False(t, untargeted.Breached)
}

func TestLatencyWindowWraps(t *testing.T) {
	w := NewLatencyWindow(2, nil)
	for _, v := range []float64{1, 2, 3} {
		w.Observe("live_connect", v)
	}
	s := w.Snapshot().Stages[0]
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 2.5, s.AvgMS)
	assert.Equal(t, uint64(3), s.Total)

	w.Reset()
	assert.Empty(t, w.Snapshot().Stages)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSessionEvent("started")
	m.ObserveStageLatency("live_connect", time.Second)
	m.ObserveToolCall("navigate_to_page", "ui_updated")
	m.ObserveLiveActive(true)
	assert.Empty(t, m.Latency().Snapshot().Stages)
}

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics("healthpilot", nil)
	m.ObserveToolCall("navigate_to_page", "ui_updated")
	m.ObserveStageLatency("intent_parse", 120*time.Millisecond)
	m.ObserveOutboundMessage("playback_chunk", "queued")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `healthpilot_tool_calls_total{result="ui_updated",tool="navigate_to_page"} 1`)
	assert.Contains(t, text, `healthpilot_ws_messages_total{direction="outbound",type="playback_chunk"} 1`)
	assert.Equal(t, 1, m.Latency().Snapshot().Stages[0].Samples)
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("bogus", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

package bridge

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/healthpilot/internal/audio"
	"github.com/ent0n29/healthpilot/internal/bus"
	"github.com/ent0n29/healthpilot/internal/capture"
	"github.com/ent0n29/healthpilot/internal/protocol"
	"github.com/ent0n29/healthpilot/internal/reliability"
	"github.com/ent0n29/healthpilot/internal/speech"
	"github.com/ent0n29/healthpilot/internal/views"
)

func attached(t *testing.T) (*Bridge, chan any) {
	t.Helper()
	b := New(Config{MicTimeout: time.Second}, nil)
	out := make(chan any, 64)
	detach := b.Attach(out)
	t.Cleanup(detach)
	clock, ok := recv(t, out).(protocol.SystemEvent)
	require.True(t, ok)
	require.Equal(t, "clock_sync", clock.Code)
	return b, out
}

func recv(t *testing.T, out chan any) any {
	t.Helper()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound message")
		return nil
	}
}

func TestPlayRequiresLink(t *testing.T) {
	b := New(Config{}, nil)
	err := b.Play(1, audio.Frame{Samples: []int16{1}, SampleRate: 24000}, 0)
	assert.ErrorIs(t, err, reliability.ErrDeviceUnavailable)
}

func TestPlaySendsScheduledChunk(t *testing.T) {
	b, out := attached(t)
	require.NoError(t, b.Play(3, audio.Frame{Samples: []int16{1, -1}, SampleRate: 24000}, 1500*time.Millisecond))

	chunk := recv(t, out).(protocol.PlaybackChunk)
	assert.Equal(t, uint64(3), chunk.BufferID)
	assert.Equal(t, 1500.0, chunk.AtMs)
	assert.Equal(t, 24000, chunk.SampleRate)
	raw, err := base64.StdEncoding.DecodeString(chunk.PCM16Base64)
	require.NoError(t, err)
	assert.Equal(t, audio.EncodePCM16LE([]int16{1, -1}), raw)

	b.Stop(3)
	assert.Equal(t, protocol.PlaybackStop{Type: protocol.TypePlaybackStop, BufferID: 3}, recv(t, out))
}

func TestOpenMicrophone(t *testing.T) {
	b, out := attached(t)

	type result struct {
		stream capture.Stream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		s, err := b.Open(context.Background())
		done <- result{stream: s, err: err}
	}()

	start := recv(t, out).(protocol.CaptureStart)
	assert.Equal(t, audio.CaptureSampleRate, start.SampleRate)
	b.Handle(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ControlMicReady})

	res := <-done
	require.NoError(t, res.err)

	pcm := audio.EncodePCM16LE(make([]int16, 480))
	b.Handle(protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  48000,
	})
	select {
	case samples := <-res.stream.Samples():
		assert.Len(t, samples, 160)
	case <-time.After(time.Second):
		t.Fatal("no samples delivered")
	}

	require.NoError(t, res.stream.Close())
	assert.Equal(t, protocol.CaptureStop{Type: protocol.TypeCaptureStop}, recv(t, out))
	_, open := <-res.stream.Samples()
	assert.False(t, open)
}

func TestOpenMicrophoneDenied(t *testing.T) {
	b, out := attached(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Open(context.Background())
		errCh <- err
	}()
	recv(t, out)
	b.Handle(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ControlMicPermissionDenied, Detail: "NotAllowedError"})

	err := <-errCh
	assert.Equal(t, reliability.KindPermissionDenied, reliability.Classify(err))
}

func TestOpenWithoutLink(t *testing.T) {
	_, err := New(Config{}, nil).Open(context.Background())
	assert.Equal(t, reliability.KindDeviceUnavailable, reliability.Classify(err))
}

func TestSpeechThroughCoordinator(t *testing.T) {
	b, out := attached(t)
	c := speech.NewCoordinator(b, time.Minute, nil)

	outcomes := make(chan speech.Outcome, 1)
	c.Speak("**Hello** there", "en-US", func(o speech.Outcome) { outcomes <- o })

	start := recv(t, out).(protocol.SpeechStart)
	assert.Equal(t, "Hello there", start.Text)
	assert.Equal(t, "en-US", start.Locale)

	b.Handle(protocol.SpeechEvent{Type: protocol.TypeSpeechEvent, UtteranceID: start.UtteranceID, Kind: protocol.EventEnd})
	assert.Equal(t, speech.Completed, <-outcomes)
}

func TestRecognitionRoundTrip(t *testing.T) {
	b, out := attached(t)
	events := make(chan speech.RecognitionEvent, 8)
	rec, err := b.Start(context.Background(), speech.RecognitionConfig{Locale: "hi-IN", InterimResults: true}, func(e speech.RecognitionEvent) { events <- e })
	require.NoError(t, err)

	start := recv(t, out).(protocol.RecognitionStart)
	assert.Equal(t, "hi-IN", start.Locale)
	assert.True(t, start.InterimResults)

	b.Handle(protocol.RecognitionEvent{Type: protocol.TypeRecognitionEvent, RecognitionID: start.RecognitionID, Kind: protocol.EventResult, Text: "cart", Final: true})
	assert.Equal(t, speech.RecognitionEvent{Kind: speech.RecognitionResult, Text: "cart", Final: true}, <-events)

	b.Handle(protocol.RecognitionEvent{Type: protocol.TypeRecognitionEvent, RecognitionID: start.RecognitionID, Kind: protocol.EventError, Error: "not-allowed"})
	assert.ErrorIs(t, (<-events).Err, reliability.ErrPermissionDenied)

	rec.Stop()
	assert.Equal(t, protocol.RecognitionStop{Type: protocol.TypeRecognitionStop, RecognitionID: start.RecognitionID}, recv(t, out))
	rec.Stop()

	b.Handle(protocol.RecognitionEvent{Type: protocol.TypeRecognitionEvent, RecognitionID: start.RecognitionID, Kind: protocol.EventResult, Text: "late"})
	assert.Empty(t, events)
}

func TestDetachSettlesPendingWork(t *testing.T) {
	b := New(Config{}, nil)
	out := make(chan any, 16)
	detach := b.Attach(out)

	spoke := make(chan error, 1)
	require.NoError(t, b.Speak(speech.Utterance{ID: "u1", Text: "hi"}, func(err error) { spoke <- err }))
	events := make(chan speech.RecognitionEvent, 4)
	_, err := b.Start(context.Background(), speech.RecognitionConfig{}, func(e speech.RecognitionEvent) { events <- e })
	require.NoError(t, err)

	detach()
	assert.False(t, b.Connected())
	assert.ErrorIs(t, <-spoke, reliability.ErrDeviceUnavailable)
	assert.Equal(t, speech.RecognitionError, (<-events).Kind)
	assert.Equal(t, speech.RecognitionEnd, (<-events).Kind)
}

func TestForwardCommands(t *testing.T) {
	b, out := attached(t)
	events := make(chan bus.Event, 1)
	events <- bus.Navigate{View: views.Cart}
	close(events)

	b.Forward(context.Background(), events)

	cmd := recv(t, out).(protocol.CommandEvent)
	assert.Equal(t, "navigate", cmd.Kind)
	assert.Equal(t, bus.Navigate{View: views.Cart}, cmd.Payload)
}

func TestInterruptHandler(t *testing.T) {
	b, _ := attached(t)
	called := false
	b.OnInterrupt(func() { called = true })
	b.Handle(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ControlInterrupt})
	assert.True(t, called)
}

func TestSendErrorCarriesRetryAffordance(t *testing.T) {
	b, out := attached(t)
	b.SendError("live", reliability.KindTransport, reliability.ErrTransport)

	evt := recv(t, out).(protocol.ErrorEvent)
	assert.Equal(t, string(reliability.KindTransport), evt.Code)
	assert.Equal(t, reliability.UserRetryable(reliability.KindTransport), evt.Retryable)
}

// Package protocol defines the JSON messages exchanged with the browser
// over the device bridge websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Browser to service.
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeRecognitionEvent MessageType = "recognition_event"
	TypeSpeechEvent      MessageType = "speech_event"

	// Service to browser.
	TypeCaptureStart     MessageType = "capture_start"
	TypeCaptureStop      MessageType = "capture_stop"
	TypePlaybackChunk    MessageType = "playback_chunk"
	TypePlaybackStop     MessageType = "playback_stop"
	TypeSpeechStart      MessageType = "speech_start"
	TypeSpeechCancel     MessageType = "speech_cancel"
	TypeRecognitionStart MessageType = "recognition_start"
	TypeRecognitionStop  MessageType = "recognition_stop"
	TypeCommandEvent     MessageType = "command_event"
	TypeTranscriptDelta  MessageType = "transcript_delta"
	TypeAudioLevel       MessageType = "audio_level"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Client control actions.
const (
	ControlMicReady            = "mic_ready"
	ControlMicPermissionDenied = "mic_permission_denied"
	ControlMicUnavailable      = "mic_unavailable"
	ControlInterrupt           = "interrupt"
)

// Recognition and speech event kinds reported by the browser.
const (
	EventResult = "result"
	EventEnd    = "end"
	EventError  = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	Detail string      `json:"detail,omitempty"`
	TSMs   int64       `json:"ts_ms,omitempty"`
}

type RecognitionEvent struct {
	Type          MessageType `json:"type"`
	RecognitionID string      `json:"recognition_id"`
	Kind          string      `json:"kind"`
	Text          string      `json:"text,omitempty"`
	Final         bool        `json:"final,omitempty"`
	Error         string      `json:"error,omitempty"`
}

type SpeechEvent struct {
	Type        MessageType `json:"type"`
	UtteranceID string      `json:"utterance_id"`
	Kind        string      `json:"kind"`
	Error       string      `json:"error,omitempty"`
}

type CaptureStart struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate"`
}

type CaptureStop struct {
	Type MessageType `json:"type"`
}

// PlaybackChunk asks the browser to play PCM at AtMs on the bridge
// clock, which starts at zero when the link attaches.
type PlaybackChunk struct {
	Type        MessageType `json:"type"`
	BufferID    uint64      `json:"buffer_id"`
	AtMs        float64     `json:"at_ms"`
	SampleRate  int         `json:"sample_rate"`
	PCM16Base64 string      `json:"pcm16_base64"`
}

type PlaybackStop struct {
	Type     MessageType `json:"type"`
	BufferID uint64      `json:"buffer_id"`
}

type SpeechStart struct {
	Type        MessageType `json:"type"`
	UtteranceID string      `json:"utterance_id"`
	Text        string      `json:"text"`
	Locale      string      `json:"locale"`
}

type SpeechCancel struct {
	Type MessageType `json:"type"`
}

type RecognitionStart struct {
	Type           MessageType `json:"type"`
	RecognitionID  string      `json:"recognition_id"`
	Locale         string      `json:"locale"`
	Continuous     bool        `json:"continuous"`
	InterimResults bool        `json:"interim_results"`
}

type RecognitionStop struct {
	Type          MessageType `json:"type"`
	RecognitionID string      `json:"recognition_id"`
}

// CommandEvent carries one bus event; Kind names the variant.
type CommandEvent struct {
	Type    MessageType `json:"type"`
	Kind    string      `json:"kind"`
	Payload any         `json:"payload"`
}

type TranscriptDelta struct {
	Type MessageType `json:"type"`
	Role string      `json:"role"`
	Text string      `json:"text"`
}

type AudioLevel struct {
	Type  MessageType `json:"type"`
	Level float64     `json:"level"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ControlMicReady, ControlMicPermissionDenied, ControlMicUnavailable, ControlInterrupt:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
	case TypeRecognitionEvent:
		var msg RecognitionEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RecognitionID == "" || !validKind(msg.Kind) {
			return nil, errors.New("invalid recognition_event")
		}
		return msg, nil
	case TypeSpeechEvent:
		var msg SpeechEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.UtteranceID == "" || (msg.Kind != EventEnd && msg.Kind != EventError) {
			return nil, errors.New("invalid speech_event")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validKind(kind string) bool {
	return kind == EventResult || kind == EventEnd || kind == EventError
}

package reliability

import (
	"context"
	"errors"
)

// Kind is the user-facing failure class of an error.
type Kind string

const (
	KindNone              Kind = ""
	KindPermissionDenied  Kind = "permission_denied"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindTransport         Kind = "transport_error"
	KindDecode            Kind = "decode_error"
	KindParse             Kind = "parse_error"
	KindSynthesisTimeout  Kind = "synthesis_timeout"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal"
)

var (
	// ErrPermissionDenied means the user refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no capture device (or no attached browser) exists.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrTransport covers duplex session connect and mid-session failures.
	ErrTransport = errors.New("live transport error")
	// ErrDecode means an inbound audio chunk could not be decoded.
	ErrDecode = errors.New("audio decode error")
	// ErrParse means the intent parser or analyzer failed or returned garbage.
	ErrParse = errors.New("intent parse error")
	// ErrSynthesisTimeout means an utterance never reported completion.
	ErrSynthesisTimeout = errors.New("speech synthesis timeout")
)

// Classify maps a (possibly wrapped) error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrSynthesisTimeout):
		return KindSynthesisTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// UserRetryable reports whether the UI should offer a manual retry for kind.
// Nothing in the subsystem retries on its own.
func UserRetryable(kind Kind) bool {
	switch kind {
	case KindPermissionDenied, KindDeviceUnavailable, KindTransport, KindParse:
		return true
	default:
		return false
	}
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

package audio

import (
	"bytes"
	"fmt"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

// DecodeChunk turns an inbound audio payload into a frame at wantRate.
// Payloads are raw PCM16LE at wantRate or a WAV container at any rate.
func DecodeChunk(raw []byte, wantRate int) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, fmt.Errorf("%w: empty chunk", reliability.ErrDecode)
	}
	if bytes.HasPrefix(raw, []byte("RIFF")) {
		f, err := ParseWAV(raw)
		if err != nil {
			return Frame{}, err
		}
		if wantRate > 0 && f.SampleRate != wantRate {
			f = Frame{Samples: Resample(f.Samples, f.SampleRate, wantRate), SampleRate: wantRate}
		}
		return f, nil
	}
	samples, err := DecodePCM16LE(raw)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Samples: samples, SampleRate: wantRate}, nil
}

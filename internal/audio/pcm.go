package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

const (
	// CaptureSampleRate is the rate outbound microphone audio is sent at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate inbound model audio arrives at.
	PlaybackSampleRate = 24000
)

// Frame is a block of mono signed 16-bit samples.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration reports how long the frame plays at its sample rate.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration converts a sample count to wall time.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// MIMEType renders the wire MIME type advertised for raw PCM at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// EncodePCM16LE packs samples as little-endian bytes.
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16LE unpacks little-endian bytes into samples.
func DecodePCM16LE(raw []byte) ([]int16, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm16 length %d", reliability.ErrDecode, len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

// FloatToPCM16 converts normalized [-1, 1] samples, clamping out of range values.
func FloatToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, v := range in {
		switch {
		case v >= 1:
			out[i] = math.MaxInt16
		case v <= -1:
			out[i] = -math.MaxInt16
		default:
			out[i] = int16(v * math.MaxInt16)
		}
	}
	return out
}

// RMS returns the root mean square of samples normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Resample converts samples between rates with linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		a, b := float64(samples[idx]), float64(samples[idx+1])
		out[i] = int16(math.Round(a + (b-a)*frac))
	}
	return out
}

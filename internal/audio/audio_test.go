package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

func TestPCM16RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(rapid.Int16()).Draw(t, "samples")
		out, err := DecodePCM16LE(EncodePCM16LE(in))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out) != len(in) {
			t.Fatalf("len = %d, want %d", len(out), len(in))
		}
		for i := range in {
			if in[i] != out[i] {
				t.Fatalf("sample %d = %d, want %d", i, out[i], in[i])
			}
		}
	})
}

func TestDecodePCM16OddLength(t *testing.T) {
	_, err := DecodePCM16LE([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, reliability.ErrDecode))
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(make([]int16, 64)))
	assert.InDelta(t, 0.5, RMS([]int16{16384, -16384, 16384, -16384}), 1e-6)
}

func TestResampleLength(t *testing.T) {
	in := make([]int16, 16000)
	out := Resample(in, 16000, 24000)
	assert.Len(t, out, 24000)
	assert.Len(t, Resample(in, 48000, 16000), 5333)
}

func TestResampleKeepsConstantSignal(t *testing.T) {
	in := []int16{1000, 1000, 1000, 1000, 1000, 1000}
	for _, v := range Resample(in, 8000, 11025) {
		assert.Equal(t, int16(1000), v)
	}
}

func TestSamplesDuration(t *testing.T) {
	assert.Equal(t, time.Second, SamplesDuration(24000, 24000))
	assert.Equal(t, 128*time.Millisecond, SamplesDuration(2048, 16000))
	assert.Zero(t, SamplesDuration(10, 0))
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	wav, err := EncodeWAVPCM16LE(EncodePCM16LE(samples), 24000)
	require.NoError(t, err)

	f, err := ParseWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 24000, f.SampleRate)
	assert.Equal(t, samples, f.Samples)
}

func TestDecodeChunkResamplesWAV(t *testing.T) {
	wav, err := EncodeWAVPCM16LE(EncodePCM16LE(make([]int16, 1600)), 16000)
	require.NoError(t, err)

	f, err := DecodeChunk(wav, PlaybackSampleRate)
	require.NoError(t, err)
	assert.Equal(t, PlaybackSampleRate, f.SampleRate)
	assert.Len(t, f.Samples, 2400)
}

func TestDecodeChunkRejectsGarbage(t *testing.T) {
	for _, raw := range [][]byte{nil, {1}, []byte("RIFFjunk")} {
		_, err := DecodeChunk(raw, PlaybackSampleRate)
		assert.True(t, errors.Is(err, reliability.ErrDecode), "raw %v", raw)
	}
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "audio/pcm;rate=16000", MIMEType(CaptureSampleRate))
}

package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ent0n29/healthpilot/internal/reliability"
)

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// ParseWAV extracts mono PCM16 samples from a RIFF/WAVE container.
// Stereo input is downmixed by averaging channels.
func ParseWAV(data []byte) (Frame, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Frame{}, fmt.Errorf("%w: not a wav container", reliability.ErrDecode)
	}
	var (
		channels, bits, format uint16
		rate                   uint32
		haveFmt                bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return Frame{}, fmt.Errorf("%w: truncated %q chunk", reliability.ErrDecode, id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Frame{}, fmt.Errorf("%w: short fmt chunk", reliability.ErrDecode)
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = binary.LittleEndian.Uint16(data[body+2:])
			rate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return Frame{}, fmt.Errorf("%w: data before fmt", reliability.ErrDecode)
			}
			if format != 1 || bits != 16 || channels == 0 || rate == 0 {
				return Frame{}, fmt.Errorf("%w: unsupported wav format=%d bits=%d channels=%d", reliability.ErrDecode, format, bits, channels)
			}
			pcm := data[body : body+size]
			pcm = pcm[:len(pcm)-len(pcm)%int(2*channels)]
			samples, err := DecodePCM16LE(pcm)
			if err != nil {
				return Frame{}, err
			}
			return Frame{Samples: downmix(samples, int(channels)), SampleRate: int(rate)}, nil
		}
		off = body + size + size%2
	}
	return Frame{}, fmt.Errorf("%w: wav has no data chunk", reliability.ErrDecode)
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Package audio decodes synthesized speech buffers into normalized PCM
// samples. A WAV container parse is attempted first; anything that does not
// parse is interpreted as raw signed 16-bit little-endian PCM.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Fallback format for raw byte buffers without a container.
const (
	FallbackSampleRate = 16000
	FallbackChannels   = 1
)

// Format describes decoded audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Decode converts an audio buffer into float32 samples in [-1.0, 1.0].
// WAV input keeps its declared format; raw input is assumed to be PCM16 at
// 16 kHz mono.
func Decode(data []byte) ([]float32, Format, error) {
	if samples, format, err := decodeWAV(data); err == nil {
		return samples, format, nil
	}
	samples := DecodePCM16(data)
	if len(samples) == 0 {
		return nil, Format{}, fmt.Errorf("empty audio buffer")
	}
	return samples, Format{SampleRate: FallbackSampleRate, Channels: FallbackChannels}, nil
}

// DecodePCM16 interprets data as signed 16-bit little-endian samples and
// normalizes them to [-1.0, 1.0]. A trailing odd byte is dropped.
func DecodePCM16(data []byte) []float32 {
	samples := make([]float32, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		v := int16(binary.LittleEndian.Uint16(data[i:]))
		samples = append(samples, float32(v)/32768.0)
	}
	return samples
}

// Duration reports the playback length of decoded samples.
func Duration(samples []float32, format Format) time.Duration {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return 0
	}
	frames := len(samples) / format.Channels
	return time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
}

// decodeWAV parses a RIFF/WAVE container holding PCM16 data.
func decodeWAV(data []byte) ([]float32, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("not a RIFF/WAVE container")
	}

	var format Format
	var bitsPerSample int
	var pcm []byte

	// Walk the chunk list for fmt and data.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, Format{}, fmt.Errorf("truncated %s chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body:])
			if audioFormat != 1 { // PCM
				return nil, Format{}, fmt.Errorf("unsupported WAV format %d", audioFormat)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if format.SampleRate == 0 || format.Channels == 0 {
		return nil, Format{}, fmt.Errorf("missing fmt chunk")
	}
	if bitsPerSample != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}
	if pcm == nil {
		return nil, Format{}, fmt.Errorf("missing data chunk")
	}

	return DecodePCM16(pcm), format, nil
}

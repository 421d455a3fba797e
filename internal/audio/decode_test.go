package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		b = binary.LittleEndian.AppendUint16(b, uint16(s))
	}
	return b
}

// buildWAV assembles a minimal RIFF/WAVE container around PCM16 data.
func buildWAV(sampleRate int, channels int, pcm []byte) []byte {
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(36+len(pcm)))
	b = append(b, []byte("WAVE")...)

	b = append(b, []byte("fmt ")...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1) // PCM
	b = binary.LittleEndian.AppendUint16(b, uint16(channels))
	b = binary.LittleEndian.AppendUint32(b, uint32(sampleRate))
	b = binary.LittleEndian.AppendUint32(b, uint32(sampleRate*channels*2))
	b = binary.LittleEndian.AppendUint16(b, uint16(channels*2))
	b = binary.LittleEndian.AppendUint16(b, 16) // bits per sample

	b = append(b, []byte("data")...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(pcm)))
	b = append(b, pcm...)
	return b
}

func TestDecodePCM16_Normalization(t *testing.T) {
	tests := []struct {
		in   int16
		want float32
	}{
		{0, 0},
		{16384, 0.5},
		{-16384, -0.5},
		{32767, 32767.0 / 32768.0},
		{-32768, -1.0},
	}

	for _, tt := range tests {
		got := DecodePCM16(pcm16(tt.in))
		if len(got) != 1 {
			t.Fatalf("DecodePCM16 returned %d samples, want 1", len(got))
		}
		if math.Abs(float64(got[0]-tt.want)) > 1e-6 {
			t.Errorf("DecodePCM16(%d) = %f, want %f", tt.in, got[0], tt.want)
		}
	}
}

func TestDecodePCM16_OddTrailingByteDropped(t *testing.T) {
	data := append(pcm16(100, 200), 0x7f)
	if got := DecodePCM16(data); len(got) != 2 {
		t.Errorf("samples = %d, want 2 (trailing byte dropped)", len(got))
	}
}

func TestDecode_WAVContainer(t *testing.T) {
	wav := buildWAV(44100, 2, pcm16(0, 16384, -16384, 0))

	samples, format, err := Decode(wav)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format.SampleRate != 44100 || format.Channels != 2 {
		t.Errorf("format = %+v, want 44100Hz stereo", format)
	}
	if len(samples) != 4 {
		t.Errorf("samples = %d, want 4", len(samples))
	}
}

func TestDecode_RawPCMFallback(t *testing.T) {
	// No container header: interpreted as PCM16 at the fallback rate.
	samples, format, err := Decode(pcm16(0, 16384, -32768))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format.SampleRate != FallbackSampleRate || format.Channels != FallbackChannels {
		t.Errorf("format = %+v, want fallback 16kHz mono", format)
	}
	if len(samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(samples))
	}
	if samples[1] != 0.5 {
		t.Errorf("samples[1] = %f, want 0.5", samples[1])
	}
}

func TestDecode_TruncatedWAVFallsBack(t *testing.T) {
	wav := buildWAV(16000, 1, pcm16(1, 2, 3, 4))
	truncated := wav[:len(wav)-2]

	// A corrupt container is not fatal; the buffer decodes as raw PCM.
	_, format, err := Decode(truncated)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if format.SampleRate != FallbackSampleRate {
		t.Errorf("format = %+v, want raw PCM fallback", format)
	}
}

func TestDecode_EmptyBuffer(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Error("Decode(nil) returned nil error, want failure")
	}
	if _, _, err := Decode([]byte{0x01}); err == nil {
		t.Error("Decode(single byte) returned nil error, want failure")
	}
}

func TestDuration(t *testing.T) {
	samples := make([]float32, 16000)
	if got := Duration(samples, Format{SampleRate: 16000, Channels: 1}); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := Duration(samples, Format{SampleRate: 16000, Channels: 2}); got != 500*time.Millisecond {
		t.Errorf("Duration stereo = %v, want 500ms", got)
	}
	if got := Duration(samples, Format{}); got != 0 {
		t.Errorf("Duration with zero format = %v, want 0", got)
	}
}

package audio

import (
	"encoding/base64"
	"testing"
)

func TestSampleRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1000}

	raw := SamplesToBytes(samples)
	if len(raw) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(raw))
	}

	back, err := BytesToSamples(raw)
	if err != nil {
		t.Fatalf("failed to convert back: %v", err)
	}
	for i, s := range back {
		if s != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], s)
		}
	}
}

func TestBytesToSamplesOddLength(t *testing.T) {
	if _, err := BytesToSamples([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length input")
	}
}

func TestDecodeBase64Frame(t *testing.T) {
	raw := SamplesToBytes([]int16{10, -20, 30})
	frame := base64.StdEncoding.EncodeToString(raw)

	samples, err := DecodeBase64Frame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 10 || samples[1] != -20 || samples[2] != 30 {
		t.Errorf("unexpected samples: %v", samples)
	}
}

func TestDecodeBase64FrameInvalid(t *testing.T) {
	if _, err := DecodeBase64Frame("not base64!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestConcat(t *testing.T) {
	joined := Concat([][]int16{
		make([]int16, 100),
		make([]int16, 50),
	})
	if len(joined) != 150 {
		t.Errorf("expected 150 samples, got %d", len(joined))
	}
}

func TestWAVFromPCM(t *testing.T) {
	pcm := SamplesToBytes(make([]int16, 8))
	wav := WAVFromPCM(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !IsWAV(wav) {
		t.Error("generated data should carry a WAV header")
	}
	if IsWAV(pcm) {
		t.Error("raw pcm should not look like WAV")
	}
}

package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Chunked audio on the push channel is 16-bit signed little-endian PCM,
// mono, at this fixed rate.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
)

// DecodeBase64Frame decodes one base64 push-channel frame into PCM16 samples.
// The frame must hold an even number of bytes.
func DecodeBase64Frame(frame string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio frame: %w", err)
	}
	return BytesToSamples(raw)
}

// EncodeFrame encodes raw PCM16 bytes into a base64 push-channel frame.
func EncodeFrame(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// BytesToSamples converts little-endian PCM16 bytes to samples.
func BytesToSamples(raw []byte) ([]int16, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("pcm16 data has odd length %d", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}

// SamplesToBytes converts samples back to little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return raw
}

// Concat joins decoded chunk sample arrays into one continuous buffer.
func Concat(chunks [][]int16) []int16 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]int16, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// WAVFromPCM wraps raw PCM16 bytes in a WAV container so they can be
// submitted to the transcription service.
func WAVFromPCM(pcm []byte, sampleRate int) []byte {
	if sampleRate == 0 {
		sampleRate = SampleRate
	}

	byteRate := sampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(BitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	wav := make([]byte, 0, 44+len(pcm))
	wav = append(wav, header...)
	wav = append(wav, pcm...)
	return wav
}

// IsWAV reports whether data already carries a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// Package audio provides the frame type and PCM utilities shared by the
// Vocalis capture and analysis pipeline: format conversion, linear-interpolation
// resampling, and the per-frame level meter used for UI feedback.
//
// The pipeline's native format is 16 kHz mono 16-bit little-endian PCM. All
// conversion helpers operate on that encoding.
package audio

import "time"

// PipelineSampleRate is the native sample rate of the analysis pipeline in Hz.
// All audio is resampled to this rate before voice activity detection.
const PipelineSampleRate = 16000

// Frame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — produced by a capture
// source, gated by VAD, and accumulated into recordings for feature
// extraction.
type Frame struct {
	// PCM audio data, 16-bit little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from an Opus source, 16000 native).
	SampleRate int

	// Channels: 1 for mono (pipeline native), 2 for stereo sources.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame, 0 for malformed frames.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// BytesToInt16s reinterprets little-endian 16-bit PCM bytes as int16 samples.
// A trailing odd byte is ignored.
func BytesToInt16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Int16sToBytes serialises int16 samples as little-endian 16-bit PCM bytes.
func Int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

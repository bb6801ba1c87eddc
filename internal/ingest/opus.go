package ingest

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser capture streams 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// opusDecoder wraps a gopus Opus decoder for a single connection's stream.
// Each connection gets its own decoder to maintain decoder state correctly
// across consecutive packets.
type opusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// newOpusDecoder creates an Opus decoder for the negotiated channel count.
func newOpusDecoder(channels int) (*opusDecoder, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("ingest: opus channels must be 1 or 2, got %d", channels)
	}
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("ingest: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, channels: channels}, nil
}

// decode decodes an Opus packet into interleaved PCM int16 samples and
// returns the result as little-endian bytes.
func (d *opusDecoder) decode(pkt []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(pkt, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("ingest: opus decode: %w", err)
	}
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b, nil
}

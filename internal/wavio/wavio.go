// Package wavio reads a canonical PCM WAV file into a mono []float64 sample
// buffer. This is ambient CLI plumbing, not part of the query pipeline core:
// spec.md's Non-goals list "audio file I/O" as an external collaborator, so
// this stays stdlib-only (encoding/binary, os) rather than reaching for a
// codec library — there is nothing "hard" here for a third-party dependency
// to earn its place against (see DESIGN.md).
package wavio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ErrNotWAV is returned when the file lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("wavio: not a RIFF/WAVE file")

// ErrUnsupportedFormat is returned for sample formats this reader does not
// decode (anything other than 16-bit integer PCM or 32-bit IEEE float).
var ErrUnsupportedFormat = errors.New("wavio: unsupported sample format")

const (
	formatPCM   = 1
	formatFloat = 3
)

// ReadFile opens path and decodes it via Read.
func ReadFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavio: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a canonical PCM WAV stream: a RIFF header, a "fmt " chunk
// (AudioFormat 1 = linear PCM or 3 = IEEE float), and a "data" chunk.
// Multi-channel input is down-mixed to mono by channel averaging, the same
// convention the teacher's PCM ingestion uses (AudioAnalyzer.ProcessSamples:
// sum channel samples, divide by channel count). Returns the mono samples
// normalized to [-1,1] and the file's sample rate.
func Read(r io.Reader) ([]float64, int, error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		channels      int
		sampleRate    int
		bitsPerSample int
		audioFormat   int
		haveFmt       bool
		samples       []float64
		haveData      bool
	)

	for {
		var chunkHeader [8]byte
		_, err := io.ReadFull(r, chunkHeader[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("wavio: read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("wavio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, 0, fmt.Errorf("%w: fmt chunk too short", ErrNotWAV)
			}
			audioFormat = int(binary.LittleEndian.Uint16(body[0:2]))
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if chunkSize%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, 0, fmt.Errorf("wavio: read fmt pad: %w", err)
				}
			}

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("%w: data chunk before fmt chunk", ErrNotWAV)
			}
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("wavio: read data chunk: %w", err)
			}
			samples, err = decodeSamples(body, channels, bitsPerSample, audioFormat)
			if err != nil {
				return nil, 0, err
			}
			haveData = true
			if chunkSize%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, 0, fmt.Errorf("wavio: read data pad: %w", err)
				}
			}

		default:
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil && err != io.EOF {
				return nil, 0, fmt.Errorf("wavio: skip chunk %q: %w", chunkID, err)
			}
			if chunkSize%2 == 1 {
				io.CopyN(io.Discard, r, 1)
			}
		}
	}

	if !haveFmt || !haveData {
		return nil, 0, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}
	return samples, sampleRate, nil
}

// decodeSamples converts raw PCM bytes into mono float64 samples in
// [-1,1], down-mixing multi-channel input by averaging channels per frame —
// the teacher's AudioAnalyzer.ProcessSamples convention, generalized to also
// accept IEEE-float samples.
func decodeSamples(data []byte, channels, bitsPerSample, audioFormat int) ([]float64, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrUnsupportedFormat, channels)
	}

	switch {
	case audioFormat == formatPCM && bitsPerSample == 16:
		return decodeInt16Mono(data, channels), nil
	case audioFormat == formatFloat && bitsPerSample == 32:
		return decodeFloat32Mono(data, channels), nil
	default:
		return nil, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedFormat, audioFormat, bitsPerSample)
	}
}

func decodeInt16Mono(data []byte, channels int) []float64 {
	const bytesPerSample = 2
	frameSize := bytesPerSample * channels
	numFrames := len(data) / frameSize
	out := make([]float64, numFrames)

	for i := 0; i < numFrames; i++ {
		var sum float64
		base := i * frameSize
		for ch := 0; ch < channels; ch++ {
			offset := base + ch*bytesPerSample
			sample := int16(data[offset]) | int16(data[offset+1])<<8
			sum += float64(sample) / 32768.0
		}
		out[i] = sum / float64(channels)
	}
	return out
}

func decodeFloat32Mono(data []byte, channels int) []float64 {
	const bytesPerSample = 4
	frameSize := bytesPerSample * channels
	numFrames := len(data) / frameSize
	out := make([]float64, numFrames)

	for i := 0; i < numFrames; i++ {
		var sum float64
		base := i * frameSize
		for ch := 0; ch < channels; ch++ {
			offset := base + ch*bytesPerSample
			bits := binary.LittleEndian.Uint32(data[offset : offset+4])
			sum += float64(math.Float32frombits(bits))
		}
		out[i] = sum / float64(channels)
	}
	return out
}

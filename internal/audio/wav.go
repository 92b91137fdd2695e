package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// Declared chunk sizes are untrusted input; a crafted header must not drive
// huge allocations or out-of-range reads.
const (
	minFmtChunkSize  = 16
	maxFmtChunkSize  = 1 << 12
	maxDataChunkSize = 1 << 30
)

// DecodeWAV reads a PCM WAV file and returns normalized mono samples in
// [-1, 1] plus the sample rate. Multi-channel audio is averaged down to mono.
// Only 16-bit integer PCM is supported; other encodings go through the ffmpeg
// transcode path first.
func DecodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, ErrNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		channels   uint16
		sampleRate uint32
		bitDepth   uint16
		audioFmt   uint16
		data       []byte
	)

	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			break
		}
		chunkID := string(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])

		switch chunkID {
		case "fmt ":
			if size < minFmtChunkSize || size > maxFmtChunkSize {
				return nil, 0, fmt.Errorf("%w: fmt chunk size %d", ErrNotWAV, size)
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(f, buf); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			audioFmt = binary.LittleEndian.Uint16(buf[0:2])
			channels = binary.LittleEndian.Uint16(buf[2:4])
			sampleRate = binary.LittleEndian.Uint32(buf[4:8])
			bitDepth = binary.LittleEndian.Uint16(buf[14:16])
		case "data":
			if size > maxDataChunkSize {
				return nil, 0, fmt.Errorf("%w: data chunk size %d", ErrNotWAV, size)
			}
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			// Chunks are word-aligned; skip padding byte on odd sizes.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		}
		if data != nil && sampleRate != 0 {
			break
		}
	}

	if sampleRate == 0 || data == nil {
		return nil, 0, ErrNotWAV
	}
	if audioFmt != 1 || bitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", audioFmt, bitDepth)
	}
	if channels == 0 {
		return nil, 0, errors.New("wav has zero channels")
	}

	frameBytes := int(channels) * 2
	frames := len(data) / frameBytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < int(channels); ch++ {
			off := i*frameBytes + ch*2
			v := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples, int(sampleRate), nil
}

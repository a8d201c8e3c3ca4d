// Package audio holds the WAV segment codec and the segment editor used to
// splice recordings together.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	riffHeaderSize = 44
	formatPCM      = 1
)

var (
	// ErrFormatMismatch is returned when two segments cannot be spliced because
	// their sample formats differ.
	ErrFormatMismatch = errors.New("audio format mismatch")

	// ErrOffsetOutOfRange is returned when a trim offset lies outside a segment.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrMalformed is returned when bytes cannot be decoded as PCM WAV.
	ErrMalformed = errors.New("malformed wav data")
)

// Format describes interleaved PCM samples.
type Format struct {
	SampleRate    uint32 `json:"sample_rate"`
	Channels      uint16 `json:"channels"`
	BitsPerSample uint16 `json:"bits_per_sample"`
}

// DefaultFormat is 44.1kHz mono 16-bit PCM.
var DefaultFormat = Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

// FrameSize is the number of bytes holding one sample for every channel.
func (f Format) FrameSize() int {
	return int(f.Channels) * int(f.BitsPerSample) / 8
}

// ByteRate is the number of bytes per second of audio.
func (f Format) ByteRate() int {
	return int(f.SampleRate) * f.FrameSize()
}

// Validate reports whether the format can be encoded.
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrMalformed)
	}
	if f.Channels == 0 {
		return fmt.Errorf("%w: zero channels", ErrMalformed)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported bits per sample %d", ErrMalformed, f.BitsPerSample)
	}
	return nil
}

// FramesFor converts a duration into a frame count, rounding to the nearest
// frame. Durations produced by Segment.Duration always convert back to the
// exact frame count they were computed from.
func (f Format) FramesFor(d time.Duration) int64 {
	rate := int64(f.SampleRate)
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return sec*rate + (rem*rate+int64(time.Second)/2)/int64(time.Second)
}

// DurationOf converts a frame count into a duration, truncated to the nanosecond.
func (f Format) DurationOf(frames int64) time.Duration {
	rate := int64(f.SampleRate)
	sec := frames / rate
	rem := frames % rate
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/rate)
}

// Segment is a decoded PCM recording.
type Segment struct {
	Format Format
	PCM    []byte
}

// NewSegment wraps PCM data, dropping any trailing partial frame.
func NewSegment(format Format, pcm []byte) *Segment {
	fs := format.FrameSize()
	if fs > 0 {
		pcm = pcm[:len(pcm)-len(pcm)%fs]
	}
	return &Segment{Format: format, PCM: pcm}
}

// Frames is the number of complete frames held by the segment.
func (s *Segment) Frames() int64 {
	fs := s.Format.FrameSize()
	if fs == 0 {
		return 0
	}
	return int64(len(s.PCM) / fs)
}

// Duration is the playback length of the segment.
func (s *Segment) Duration() time.Duration {
	if s.Format.SampleRate == 0 {
		return 0
	}
	return s.Format.DurationOf(s.Frames())
}

// Equal reports whether two segments hold the same format and samples.
func (s *Segment) Equal(o *Segment) bool {
	return s.Format == o.Format && bytes.Equal(s.PCM, o.PCM)
}

// Encode writes the segment as a canonical 44-byte header RIFF/WAVE file.
func (s *Segment) Encode(w io.Writer) error {
	if err := s.Format.Validate(); err != nil {
		return err
	}

	dataLen := uint32(len(s.PCM))
	header := make([]byte, riffHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], s.Format.Channels)
	binary.LittleEndian.PutUint32(header[24:28], s.Format.SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], uint32(s.Format.ByteRate()))
	binary.LittleEndian.PutUint16(header[32:34], uint16(s.Format.FrameSize()))
	binary.LittleEndian.PutUint16(header[34:36], s.Format.BitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing wav header: %w", err)
	}
	if _, err := w.Write(s.PCM); err != nil {
		return fmt.Errorf("writing wav data: %w", err)
	}
	return nil
}

// Bytes returns the encoded WAV file.
func (s *Segment) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(riffHeaderSize + len(s.PCM))
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a PCM RIFF/WAVE file. Chunks other than "fmt " and "data" are
// skipped.
func Decode(r io.Reader) (*Segment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading wav: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory file.
func DecodeBytes(data []byte) (*Segment, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformed)
	}

	var (
		format    Format
		haveFmt   bool
		pcm       []byte
		haveData  bool
		pos       = 12
		remaining = data[12:]
	)

	for len(remaining) >= 8 {
		id := string(remaining[0:4])
		size := int(binary.LittleEndian.Uint32(remaining[4:8]))
		body := remaining[8:]
		if size > len(body) {
			// Streaming writers leave the data size unset; take what is there.
			if id != "data" {
				return nil, fmt.Errorf("%w: chunk %q at %d overruns file", ErrMalformed, id, pos)
			}
			size = len(body)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrMalformed)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			if tag != formatPCM {
				return nil, fmt.Errorf("%w: unsupported format tag %d", ErrMalformed, tag)
			}
			format = Format{
				Channels:      binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			haveFmt = true
		case "data":
			pcm = body[:size]
			haveData = true
		}

		advance := 8 + size + size%2
		if advance > len(remaining) {
			advance = len(remaining)
		}
		remaining = remaining[advance:]
		pos += advance
	}

	if !haveFmt || !haveData {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrMalformed)
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	out := make([]byte, len(pcm))
	copy(out, pcm)
	return NewSegment(format, out), nil
}

// Concat returns a new segment holding base followed by addition.
func Concat(base, addition *Segment) (*Segment, error) {
	if base.Format != addition.Format {
		return nil, fmt.Errorf("%w: %+v vs %+v", ErrFormatMismatch, base.Format, addition.Format)
	}

	pcm := make([]byte, 0, len(base.PCM)+len(addition.PCM))
	pcm = append(pcm, base.PCM...)
	pcm = append(pcm, addition.PCM...)
	return &Segment{Format: base.Format, PCM: pcm}, nil
}

// Slice returns a new segment covering seg from start to its end.
func Slice(seg *Segment, start time.Duration) (*Segment, error) {
	if start < 0 || start > seg.Duration() {
		return nil, fmt.Errorf("%w: %s not within [0, %s]", ErrOffsetOutOfRange, start, seg.Duration())
	}

	frame := seg.Format.FramesFor(start)
	if frame > seg.Frames() {
		frame = seg.Frames()
	}

	offset := int(frame) * seg.Format.FrameSize()
	pcm := make([]byte, len(seg.PCM)-offset)
	copy(pcm, seg.PCM[offset:])
	return &Segment{Format: seg.Format, PCM: pcm}, nil
}

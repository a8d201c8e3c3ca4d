// Package testutils holds fakes and fixtures shared by package tests.
package testutils

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
)

// TestFormat is a small format that keeps fixtures tiny.
var TestFormat = audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

// Tone returns d of 16-bit mono PCM whose samples are derived from seed, so
// segments built from different seeds never compare equal.
func Tone(format audio.Format, d time.Duration, seed int) *audio.Segment {
	frames := format.FramesFor(d)
	fs := format.FrameSize()
	pcm := make([]byte, int(frames)*fs)
	for i := int64(0); i < frames; i++ {
		v := uint16((int(i)*31 + seed*977) % 65521)
		for c := 0; c < int(format.Channels); c++ {
			off := int(i)*fs + c*2
			binary.LittleEndian.PutUint16(pcm[off:off+2], v)
		}
	}
	return audio.NewSegment(format, pcm)
}

// SaveTone stores a tone segment through the editor and returns its ref.
func SaveTone(ctx context.Context, editor *audio.Editor, d time.Duration, seed int) audio.Ref {
	ref, err := editor.Save(ctx, Tone(TestFormat, d, seed))
	if err != nil {
		panic(err)
	}
	return ref
}

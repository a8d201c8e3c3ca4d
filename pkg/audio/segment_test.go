package audio_test

import (
	"bytes"
	"encoding/binary"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

var _ = Describe("Segment", func() {
	Describe("Encode and Decode", func() {
		It("writes a canonical header and reads the samples back", func() {
			seg := testutils.Tone(audio.DefaultFormat, 250*time.Millisecond, 1)

			data, err := seg.Bytes()
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveLen(44 + len(seg.PCM)))
			Expect(string(data[0:4])).To(Equal("RIFF"))
			Expect(string(data[8:12])).To(Equal("WAVE"))
			Expect(binary.LittleEndian.Uint32(data[24:28])).To(Equal(uint32(44100)))

			decoded, err := audio.Decode(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Equal(seg)).To(BeTrue())
		})

		It("skips unknown chunks", func() {
			seg := testutils.Tone(testutils.TestFormat, 10*time.Millisecond, 2)
			data, err := seg.Bytes()
			Expect(err).NotTo(HaveOccurred())

			list := []byte("LIST\x04\x00\x00\x00abcd")
			withList := append([]byte{}, data[:36]...)
			withList = append(withList, list...)
			withList = append(withList, data[36:]...)

			decoded, err := audio.DecodeBytes(withList)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Equal(seg)).To(BeTrue())
		})

		It("rejects data that is not wav", func() {
			_, err := audio.DecodeBytes([]byte("definitely not audio"))
			Expect(err).To(MatchError(audio.ErrMalformed))
		})

		It("rejects non-PCM format tags", func() {
			seg := testutils.Tone(testutils.TestFormat, 10*time.Millisecond, 2)
			data, err := seg.Bytes()
			Expect(err).NotTo(HaveOccurred())
			binary.LittleEndian.PutUint16(data[20:22], 3)

			_, err = audio.DecodeBytes(data)
			Expect(err).To(MatchError(audio.ErrMalformed))
		})
	})

	Describe("Duration", func() {
		It("is derived from the frame count", func() {
			seg := testutils.Tone(testutils.TestFormat, 2*time.Second, 1)
			Expect(seg.Frames()).To(Equal(int64(16000)))
			Expect(seg.Duration()).To(Equal(2 * time.Second))
		})

		It("converts back to the same frame count", func() {
			f := audio.DefaultFormat
			for _, frames := range []int64{1, 7, 441, 44099, 123457} {
				Expect(f.FramesFor(f.DurationOf(frames))).To(Equal(frames))
			}
		})
	})

	Describe("Concat", func() {
		It("appends the addition after the base", func() {
			a := testutils.Tone(testutils.TestFormat, time.Second, 1)
			b := testutils.Tone(testutils.TestFormat, 500*time.Millisecond, 2)

			merged, err := audio.Concat(a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Duration()).To(Equal(1500 * time.Millisecond))
			Expect(merged.PCM[:len(a.PCM)]).To(Equal(a.PCM))
			Expect(merged.PCM[len(a.PCM):]).To(Equal(b.PCM))
		})

		It("fails on mismatched formats", func() {
			a := testutils.Tone(testutils.TestFormat, time.Second, 1)
			b := testutils.Tone(audio.DefaultFormat, time.Second, 2)

			_, err := audio.Concat(a, b)
			Expect(err).To(MatchError(audio.ErrFormatMismatch))
		})

		It("does not alias its inputs", func() {
			a := testutils.Tone(testutils.TestFormat, 10*time.Millisecond, 1)
			b := testutils.Tone(testutils.TestFormat, 10*time.Millisecond, 2)
			before := append([]byte{}, a.PCM...)

			merged, err := audio.Concat(a, b)
			Expect(err).NotTo(HaveOccurred())
			merged.PCM[0] ^= 0xff
			Expect(a.PCM).To(Equal(before))
		})
	})

	Describe("Slice", func() {
		It("recovers the addition from a merged segment", func() {
			for _, d := range []time.Duration{
				3 * time.Millisecond,
				time.Second,
				1234567 * time.Microsecond,
			} {
				a := testutils.Tone(audio.DefaultFormat, d, 1)
				b := testutils.Tone(audio.DefaultFormat, 700*time.Millisecond, 2)

				merged, err := audio.Concat(a, b)
				Expect(err).NotTo(HaveOccurred())

				delta, err := audio.Slice(merged, a.Duration())
				Expect(err).NotTo(HaveOccurred())
				Expect(delta.Equal(b)).To(BeTrue(), "duration %s", d)
			}
		})

		It("returns an empty segment at the end", func() {
			a := testutils.Tone(testutils.TestFormat, time.Second, 1)
			out, err := audio.Slice(a, a.Duration())
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Frames()).To(BeZero())
		})

		It("fails when the offset exceeds the duration", func() {
			a := testutils.Tone(testutils.TestFormat, time.Second, 1)
			_, err := audio.Slice(a, 2*time.Second)
			Expect(err).To(MatchError(audio.ErrOffsetOutOfRange))

			_, err = audio.Slice(a, -time.Millisecond)
			Expect(err).To(MatchError(audio.ErrOffsetOutOfRange))
		})
	})
})

package audio_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob"
	"github.com/papercomputeco/voicenotes/pkg/blob/memory"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

var _ = Describe("Editor", func() {
	var (
		ctx    context.Context
		store  *memory.Store
		editor *audio.Editor
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New()
		editor = audio.NewEditor(store, logger.Nop())
	})

	Describe("Merge", func() {
		It("writes a new segment and leaves the inputs untouched", func() {
			base := testutils.SaveTone(ctx, editor, time.Second, 1)
			addition := testutils.SaveTone(ctx, editor, 2*time.Second, 2)

			merged, err := editor.Merge(ctx, base, addition)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged).NotTo(Equal(base))
			Expect(merged).NotTo(Equal(addition))

			d, err := editor.Duration(ctx, merged)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(3 * time.Second))

			d, err = editor.Duration(ctx, base)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(time.Second))
		})

		It("returns a MergeError for an unreadable segment", func() {
			addition := testutils.SaveTone(ctx, editor, time.Second, 2)

			_, err := editor.Merge(ctx, "segments/missing.wav", addition)
			var mergeErr *audio.MergeError
			Expect(errors.As(err, &mergeErr)).To(BeTrue())
			Expect(mergeErr.Base).To(Equal(audio.Ref("segments/missing.wav")))
			Expect(err).To(MatchError(blob.ErrNotFound))
		})

		It("returns a MergeError for incompatible formats", func() {
			base := testutils.SaveTone(ctx, editor, time.Second, 1)
			other, err := editor.Save(ctx, testutils.Tone(audio.DefaultFormat, time.Second, 2))
			Expect(err).NotTo(HaveOccurred())

			_, err = editor.Merge(ctx, base, other)
			var mergeErr *audio.MergeError
			Expect(errors.As(err, &mergeErr)).To(BeTrue())
			Expect(err).To(MatchError(audio.ErrFormatMismatch))
		})
	})

	Describe("Trim", func() {
		It("recovers the addition from a merge", func() {
			base := testutils.SaveTone(ctx, editor, 1300*time.Millisecond, 1)
			addition := testutils.SaveTone(ctx, editor, 900*time.Millisecond, 2)

			merged, err := editor.Merge(ctx, base, addition)
			Expect(err).NotTo(HaveOccurred())

			baseDur, err := editor.Duration(ctx, base)
			Expect(err).NotTo(HaveOccurred())

			delta, err := editor.Trim(ctx, merged, baseDur)
			Expect(err).NotTo(HaveOccurred())

			want, err := editor.Load(ctx, addition)
			Expect(err).NotTo(HaveOccurred())
			got, err := editor.Load(ctx, delta)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Equal(want)).To(BeTrue())
		})

		It("returns a TrimError past the end", func() {
			ref := testutils.SaveTone(ctx, editor, time.Second, 1)

			_, err := editor.Trim(ctx, ref, 5*time.Second)
			var trimErr *audio.TrimError
			Expect(errors.As(err, &trimErr)).To(BeTrue())
			Expect(trimErr.Offset).To(Equal(5 * time.Second))
			Expect(err).To(MatchError(audio.ErrOffsetOutOfRange))
		})
	})

	Describe("Import", func() {
		It("stores bytes under the given ref once", func() {
			data, err := testutils.Tone(testutils.TestFormat, time.Second, 1).Bytes()
			Expect(err).NotTo(HaveOccurred())

			Expect(editor.Import(ctx, "segments/peer.wav", data)).To(Succeed())
			Expect(editor.Import(ctx, "segments/peer.wav", data)).To(Succeed())

			got, err := editor.ReadAll(ctx, "segments/peer.wav")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(data))
		})
	})

	Describe("Release and Discard", func() {
		It("removes content and tolerates missing refs", func() {
			ref := testutils.SaveTone(ctx, editor, time.Second, 1)

			Expect(editor.Release(ctx, ref)).To(Succeed())
			Expect(editor.Release(ctx, ref)).To(Succeed())
			Expect(editor.Release(ctx, "")).To(Succeed())

			_, err := store.Head(ctx, string(ref))
			Expect(err).To(MatchError(blob.ErrNotFound))
		})

		It("discards several refs", func() {
			a := testutils.SaveTone(ctx, editor, time.Second, 1)
			b := testutils.SaveTone(ctx, editor, time.Second, 2)

			editor.Discard(ctx, a, "", b)

			infos, err := store.List(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(infos).To(BeEmpty())
		})
	})
})

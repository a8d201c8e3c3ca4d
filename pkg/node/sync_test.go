package node_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/loopback"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

var _ = Describe("Two devices", func() {
	var (
		ctx          context.Context
		phoneEnd     *loopback.Endpoint
		watchEnd     *loopback.Endpoint
		phone, watch *device
	)

	storedIn := func(d *device, id string) func() *memo.Memo {
		return func() *memo.Memo {
			m, err := d.store.Get(ctx, id)
			if err != nil {
				return nil
			}
			return m
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		phoneEnd, watchEnd = loopback.NewPair(logger.Nop())
	})

	AfterEach(func() {
		watch.stop()
		phone.stop()
		phoneEnd.Close()
		watchEnd.Close()
	})

	Context("a companion without speech recognition", func() {
		BeforeEach(func() {
			phone = newDevice("phone", peer.RolePrimary, phoneEnd, func(c *node.Config) {
				c.TranscribeRemotePending = true
			})
			watch = newDevice("watch", peer.RoleCompanion, watchEnd, func(c *node.Config) {
				c.RequestCatalogOnConnect = true
				c.DeferTranscription = true
			})
			watch.transcriber.Default = testutils.Response{Err: transcribe.ErrUnavailable}
		})

		It("has its recording transcribed by the primary", func() {
			phone.transcriber.Default = testutils.Response{Text: "remember the milk"}

			m := watch.record(ctx, 200*time.Millisecond, 1)
			Expect(m.Status).To(Equal(memo.StatusPending))

			Eventually(storedIn(watch, m.ID)).Should(And(
				HaveField("Status", memo.StatusCompleted),
				HaveField("Transcript", "remember the milk"),
			))

			onPhone := phone.get(ctx, m.ID)
			Expect(onPhone.Transcript).To(Equal("remember the milk"))
			Expect(watch.transcriber.Calls()).To(BeEmpty())

			// The primary received the audio bytes and can play them back.
			d, err := phone.editor.Duration(ctx, m.AudioRef)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(200 * time.Millisecond))
		})

		It("splices an extension locally and has the primary transcribe only the added audio", func() {
			phone.transcriber.Editor = phone.editor
			phone.transcriber.Responses = []testutils.Response{{Text: "hello"}, {Text: "and the eggs"}}

			m := watch.record(ctx, 100*time.Millisecond, 1)
			Eventually(storedIn(watch, m.ID)).Should(And(
				HaveField("Status", memo.StatusCompleted),
				HaveField("Transcript", "hello"),
			))

			pending := watch.extend(ctx, m.ID, 200*time.Millisecond, 2)
			Expect(pending.Status).To(Equal(memo.StatusPending))
			Expect(pending.Transcript).To(Equal("hello"))

			want := And(
				HaveField("Status", memo.StatusCompleted),
				HaveField("Transcript", "hello\n\nand the eggs"),
				HaveField("DeltaOffset", BeZero()),
			)
			Eventually(storedIn(watch, m.ID)).Should(want)
			Eventually(storedIn(phone, m.ID)).Should(want)

			for _, d := range []*device{watch, phone} {
				got := d.get(ctx, m.ID)
				Expect(got.AudioRef).NotTo(Equal(m.AudioRef))
				dur, err := d.editor.Duration(ctx, got.AudioRef)
				Expect(err).NotTo(HaveOccurred())
				Expect(dur).To(Equal(300 * time.Millisecond))
			}

			// The whole file was never sent again; only the 200ms delta was.
			Expect(phone.transcriber.Durations()).To(Equal([]time.Duration{
				100 * time.Millisecond,
				200 * time.Millisecond,
			}))
			Expect(watch.transcriber.Calls()).To(BeEmpty())
		})

		It("retries a failed delta on the primary without transcribing the whole file", func() {
			phone.transcriber.Editor = phone.editor
			phone.transcriber.Responses = []testutils.Response{
				{Text: "hello"},
				{Err: transcribe.ErrRecognitionFailed},
				{Text: "second try"},
			}

			m := watch.record(ctx, 100*time.Millisecond, 1)
			Eventually(storedIn(watch, m.ID)).Should(HaveField("Status", memo.StatusCompleted))

			watch.extend(ctx, m.ID, 200*time.Millisecond, 2)
			Eventually(storedIn(watch, m.ID)).Should(And(
				HaveField("Status", memo.StatusFailed),
				HaveField("Transcript", "hello"),
				HaveField("DeltaOffset", 100*time.Millisecond),
			))

			_, err := watch.node.Retry(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Eventually(storedIn(watch, m.ID)).Should(And(
				HaveField("Status", memo.StatusCompleted),
				HaveField("Transcript", "hello\n\nsecond try"),
			))

			Expect(phone.transcriber.Durations()).To(Equal([]time.Duration{
				100 * time.Millisecond,
				200 * time.Millisecond,
				200 * time.Millisecond,
			}))
		})

		It("completes a retried memo whose transcript already covers its audio", func() {
			ref := testutils.SaveTone(ctx, watch.editor, 100*time.Millisecond, 1)
			failed := memo.New(ref, time.Now())
			failed.Transcript = "hello"
			failed.Status = memo.StatusFailed
			Expect(watch.store.InsertOrReplace(ctx, failed)).To(Succeed())

			retried, err := watch.node.Retry(ctx, failed.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.Status).To(Equal(memo.StatusCompleted))
			Expect(retried.Transcript).To(Equal("hello"))

			Eventually(storedIn(phone, failed.ID)).Should(HaveField("Status", memo.StatusCompleted))
			phone.node.Wait()
			Expect(phone.transcriber.Calls()).To(BeEmpty())
		})

		It("pulls the primary's catalog when the link comes back", func() {
			phoneEnd.SetReachable(false)

			phone.transcriber.Default = testutils.Response{Text: "offline note"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()
			Consistently(storedIn(watch, m.ID), 50*time.Millisecond).Should(BeNil())

			phoneEnd.SetReachable(true)
			Eventually(storedIn(watch, m.ID)).Should(HaveField("Transcript", "offline note"))
		})
	})

	Context("a primary that transcribes for its peer", func() {
		BeforeEach(func() {
			phone = newDevice("phone", peer.RolePrimary, phoneEnd, func(c *node.Config) {
				c.TranscribeRemotePending = true
			})
			watch = newDevice("watch", peer.RoleCompanion, watchEnd, nil)
		})

		It("leaves an extension in progress on the peer alone", func() {
			now := time.Now()
			extending := memo.New("segments/base.wav", now)
			extending.Transcript = "hello"
			marker := memo.New("segments/marker.wav", now)
			marker.Status = memo.StatusCompleted

			origin := watch.node.Origin()
			Expect(watchEnd.Send(ctx, origin.MemoUpdate(peer.Snapshot{Memo: *extending}))).To(Succeed())
			Expect(watchEnd.Send(ctx, origin.MemoUpdate(peer.Snapshot{Memo: *marker}))).To(Succeed())

			Eventually(storedIn(phone, marker.ID)).ShouldNot(BeNil())
			phone.node.Wait()
			Expect(phone.get(ctx, extending.ID).Status).To(Equal(memo.StatusPending))
			Expect(phone.transcriber.Calls()).To(BeEmpty())
		})
	})

	Context("scenario: stale update", func() {
		BeforeEach(func() {
			phone = newDevice("phone", peer.RolePrimary, phoneEnd, nil)
			watch = newDevice("watch", peer.RoleCompanion, watchEnd, nil)
		})

		It("never downgrades a newer local copy", func() {
			t5 := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
			t7 := t5.Add(2 * time.Second)

			local := memo.New("segments/x.wav", t7)
			local.Transcript = "newer"
			Expect(watch.store.InsertOrReplace(ctx, local)).To(Succeed())

			stale := local.Clone()
			stale.Timestamp = t5
			stale.Transcript = "older"
			marker := memo.New("segments/marker.wav", t5)

			origin := phone.node.Origin()
			Expect(phoneEnd.Send(ctx, origin.MemoUpdate(peer.Snapshot{Memo: *stale}))).To(Succeed())
			Expect(phoneEnd.Send(ctx, origin.MemoUpdate(peer.Snapshot{Memo: *marker}))).To(Succeed())

			// Messages are handled in order, so the stale one has been seen.
			Eventually(storedIn(watch, marker.ID)).ShouldNot(BeNil())
			got := watch.get(ctx, local.ID)
			Expect(got.Timestamp).To(Equal(t7))
			Expect(got.Transcript).To(Equal("newer"))
		})
	})

	Context("scenario: catalog request to an unreachable peer", func() {
		BeforeEach(func() {
			phone = newDevice("phone", peer.RolePrimary, phoneEnd, nil)
			watch = newDevice("watch", peer.RoleCompanion, watchEnd, nil)
		})

		It("gets no answer, then succeeds once reachable", func() {
			phone.transcriber.Default = testutils.Response{Text: "on the phone"}
			phoneEnd.SetReachable(false)
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			before, err := watch.node.List(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(watch.node.RequestCatalog(ctx)).To(MatchError(peer.ErrUnreachable))
			Consistently(func() int {
				memos, _ := watch.node.List(ctx)
				return len(memos)
			}, 50*time.Millisecond).Should(Equal(len(before)))

			phoneEnd.SetReachable(true)
			Expect(watch.node.RequestCatalog(ctx)).To(Succeed())
			Eventually(storedIn(watch, m.ID)).Should(HaveField("Transcript", "on the phone"))
		})
	})

	Context("deletes", func() {
		BeforeEach(func() {
			phone = newDevice("phone", peer.RolePrimary, phoneEnd, nil)
			watch = newDevice("watch", peer.RoleCompanion, watchEnd, nil)
		})

		It("stay local to the device", func() {
			phone.transcriber.Default = testutils.Response{Text: "shared"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()
			Eventually(storedIn(watch, m.ID)).Should(HaveField("Status", memo.StatusCompleted))

			Expect(phone.node.Delete(ctx, m.ID)).To(Succeed())
			Consistently(storedIn(watch, m.ID), 50*time.Millisecond).ShouldNot(BeNil())

			_, err := phone.store.Get(ctx, m.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})
})

package node_test

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/eventstream"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/loopback"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

// nextUpdate returns the next memo_update received on ep.
func nextUpdate(ep *loopback.Endpoint) *peer.Snapshot {
	var snap *peer.Snapshot
	Eventually(func() bool {
		select {
		case ev := <-ep.Events():
			if ev.Kind == peer.EventMessage && ev.Message.Kind == peer.KindMemoUpdate {
				snap = ev.Message.Memo
				return true
			}
		default:
		}
		return false
	}).Should(BeTrue())
	return snap
}

var _ = Describe("Node", func() {
	var (
		ctx     context.Context
		local   *loopback.Endpoint
		peerEnd *loopback.Endpoint
		phone   *device
	)

	BeforeEach(func() {
		ctx = context.Background()
		local, peerEnd = loopback.NewPair(logger.Nop())
		phone = newDevice("phone", peer.RolePrimary, local, nil)
	})

	AfterEach(func() {
		phone.stop()
		local.Close()
		peerEnd.Close()
	})

	It("validates its configuration", func() {
		_, err := node.New(node.Config{DeviceID: "x", Role: "tablet"})
		Expect(err).To(HaveOccurred())
		_, err = node.New(node.Config{Role: peer.RolePrimary})
		Expect(err).To(HaveOccurred())
	})

	Describe("a fresh recording", func() {
		It("is stored pending, then completed by transcription", func() {
			phone.transcriber.Default = testutils.Response{Text: "hello world"}

			m := phone.record(ctx, 300*time.Millisecond, 1)
			Expect(m.Status).To(Equal(memo.StatusPending))
			Expect(m.Transcript).To(BeEmpty())

			phone.node.Wait()
			got := phone.get(ctx, m.ID)
			Expect(got.Status).To(Equal(memo.StatusCompleted))
			Expect(got.Transcript).To(Equal("hello world"))
			Expect(got.AudioRef).To(Equal(m.AudioRef))
			Expect(got.Timestamp.After(m.Timestamp)).To(BeTrue())
			Expect(phone.capture.Active).To(BeFalse())
		})

		It("is marked failed when transcription fails", func() {
			phone.transcriber.Default = testutils.Response{Err: transcribe.ErrUnavailable}

			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			got := phone.get(ctx, m.ID)
			Expect(got.Status).To(Equal(memo.StatusFailed))
			Expect(got.Transcript).To(BeEmpty())
		})

		It("publishes a stored event for every change", func() {
			phone.transcriber.Default = testutils.Response{Text: "hi"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			Expect(phone.publisher.EventTypes(m.ID)).To(Equal([]string{
				eventstream.EventTypeMemoStored,
				eventstream.EventTypeMemoStored,
			}))
		})

		It("pushes the pending and completed memo with its audio", func() {
			phone.transcriber.Default = testutils.Response{Text: "hi"}
			m := phone.record(ctx, 100*time.Millisecond, 1)

			first := nextUpdate(peerEnd)
			Expect(first.Memo.ID).To(Equal(m.ID))
			Expect(first.Memo.Status).To(Equal(memo.StatusPending))
			Expect(first.Audio).NotTo(BeEmpty())

			second := nextUpdate(peerEnd)
			Expect(second.Memo.Status).To(Equal(memo.StatusCompleted))
		})

		It("surfaces an unavailable capture device", func() {
			phone.capture.Unavailable = true
			err := phone.node.StartRecording(ctx)
			Expect(err).To(MatchError(session.ErrDeviceUnavailable))
			Expect(phone.node.SessionState()).To(Equal(session.StateIdle))
		})
	})

	Describe("extending a memo", func() {
		var original *memo.Memo

		BeforeEach(func() {
			phone.transcriber.Responses = []testutils.Response{{Text: "hello"}}
			original = phone.record(ctx, 300*time.Millisecond, 1)
			phone.node.Wait()
			original = phone.get(ctx, original.ID)
			Expect(original.Transcript).To(Equal("hello"))
		})

		It("appends the delta transcript and swaps in the merged audio", func() {
			phone.transcriber.Responses = []testutils.Response{{Text: "world"}}

			pending := phone.extend(ctx, original.ID, 200*time.Millisecond, 2)
			Expect(pending.ID).To(Equal(original.ID))
			Expect(pending.Status).To(Equal(memo.StatusPending))

			phone.node.Wait()
			got := phone.get(ctx, original.ID)
			Expect(got.ID).To(Equal(original.ID))
			Expect(got.Transcript).To(Equal("hello\n\nworld"))
			Expect(got.Status).To(Equal(memo.StatusCompleted))
			Expect(got.AudioRef).NotTo(Equal(original.AudioRef))

			d, err := phone.editor.Duration(ctx, got.AudioRef)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(500 * time.Millisecond))

			// Only the merged segment survives.
			Expect(phone.blobCount(ctx)).To(Equal(1))
		})

		It("rolls back when the delta cannot be transcribed", func() {
			phone.transcriber.Responses = []testutils.Response{{Err: transcribe.ErrRecognitionFailed}}

			phone.extend(ctx, original.ID, 200*time.Millisecond, 2)
			phone.node.Wait()

			got := phone.get(ctx, original.ID)
			Expect(got.Transcript).To(Equal("hello"))
			Expect(got.AudioRef).To(Equal(original.AudioRef))
			Expect(got.Status).To(Equal(memo.StatusFailed))
			Expect(phone.blobCount(ctx)).To(Equal(1))
		})

		It("stays recoverable across repeated failed extensions", func() {
			phone.transcriber.Default = testutils.Response{Err: transcribe.ErrUnavailable}

			for i := range 3 {
				phone.extend(ctx, original.ID, 100*time.Millisecond, i+2)
				phone.node.Wait()
			}

			got := phone.get(ctx, original.ID)
			Expect(got.Transcript).To(Equal("hello"))
			Expect(got.AudioRef).To(Equal(original.AudioRef))

			d, err := phone.editor.Duration(ctx, got.AudioRef)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(300 * time.Millisecond))
		})

		It("rejects a second extension while one is in flight", func() {
			phone.transcriber.Gate = make(chan struct{})
			phone.extend(ctx, original.ID, 100*time.Millisecond, 2)

			err := phone.node.StartExtend(ctx, original.ID)
			Expect(err).To(MatchError(node.ErrBusy))

			close(phone.transcriber.Gate)
		})

		It("rejects extending an unknown memo", func() {
			err := phone.node.StartExtend(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(phone.node.SessionState()).To(Equal(session.StateIdle))
		})

		It("drops the result when the memo is deleted mid-pipeline", func() {
			phone.transcriber.Gate = make(chan struct{})
			phone.extend(ctx, original.ID, 100*time.Millisecond, 2)

			Expect(phone.node.Delete(ctx, original.ID)).To(Succeed())
			close(phone.transcriber.Gate)
			phone.node.Wait()

			_, err := phone.store.Get(ctx, original.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(phone.blobCount(ctx)).To(Equal(0))
		})
	})

	Describe("Delete", func() {
		It("removes the memo and releases its audio", func() {
			phone.transcriber.Default = testutils.Response{Text: "bye"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			Expect(phone.node.Delete(ctx, m.ID)).To(Succeed())
			_, err := phone.store.Get(ctx, m.ID)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(phone.blobCount(ctx)).To(Equal(0))
			Expect(phone.publisher.EventTypes(m.ID)).To(ContainElement(eventstream.EventTypeMemoRemoved))
		})

		It("reports unknown memos", func() {
			err := phone.node.Delete(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("Retry", func() {
		It("transcribes a failed memo again", func() {
			phone.transcriber.Responses = []testutils.Response{
				{Err: transcribe.ErrUnavailable},
				{Text: "second time lucky"},
			}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()
			Expect(phone.get(ctx, m.ID).Status).To(Equal(memo.StatusFailed))

			retried, err := phone.node.Retry(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.Status).To(Equal(memo.StatusPending))

			phone.node.Wait()
			got := phone.get(ctx, m.ID)
			Expect(got.Status).To(Equal(memo.StatusCompleted))
			Expect(got.Transcript).To(Equal("second time lucky"))
		})

		It("refuses completed memos", func() {
			phone.transcriber.Default = testutils.Response{Text: "done"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			_, err := phone.node.Retry(ctx, m.ID)
			Expect(err).To(MatchError(node.ErrNotRetryable))
		})
	})

	Describe("OpenAudio", func() {
		It("streams the memo's WAV bytes", func() {
			phone.transcriber.Default = testutils.Response{Text: "x"}
			m := phone.record(ctx, 100*time.Millisecond, 1)
			phone.node.Wait()

			_, rc, err := phone.node.OpenAudio(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			defer rc.Close()
			data, err := io.ReadAll(rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data[0:4])).To(Equal("RIFF"))
		})
	})

	It("lists memos newest first", func() {
		phone.transcriber.Default = testutils.Response{Text: "x"}
		first := phone.record(ctx, 50*time.Millisecond, 1)
		phone.node.Wait()
		second := phone.record(ctx, 50*time.Millisecond, 2)
		phone.node.Wait()

		memos, err := phone.node.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(memos).To(HaveLen(2))
		Expect(memos[0].ID).To(Equal(second.ID))
		Expect(memos[1].ID).To(Equal(first.ID))
	})

	It("answers catalog requests with every memo", func() {
		phone.transcriber.Default = testutils.Response{Text: "x"}
		m := phone.record(ctx, 50*time.Millisecond, 1)
		phone.node.Wait()

		watch := peer.Origin{DeviceID: "watch", Role: peer.RoleCompanion}
		Expect(peerEnd.Send(ctx, watch.CatalogRequest())).To(Succeed())

		Eventually(func() []peer.Snapshot {
			select {
			case ev := <-peerEnd.Events():
				if ev.Kind == peer.EventMessage && ev.Message.Kind == peer.KindCatalogResponse {
					return ev.Message.Catalog
				}
			default:
			}
			return nil
		}).Should(ContainElement(HaveField("Memo.ID", m.ID)))
	})

	It("returns ErrStopped once the owner loop has ended", func() {
		phone.cancel()
		<-phone.done
		err := phone.node.StartRecording(ctx)
		Expect(errors.Is(err, node.ErrStopped)).To(BeTrue())
	})
})

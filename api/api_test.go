package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob/memory"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/loopback"
	"github.com/papercomputeco/voicenotes/pkg/pipeline"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

func decode[T any](resp *http.Response) T {
	defer resp.Body.Close()
	var out T
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return out
}

var _ = Describe("Server", func() {
	var (
		server      *Server
		n           *node.Node
		store       *storage.Store
		transcriber *testutils.ScriptedTranscriber
		link        *loopback.Endpoint
		cancel      context.CancelFunc
		done        chan struct{}
		ctx         context.Context
	)

	do := func(method, path string, body []byte, contentType string) *http.Response {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	record := func(seed int) *memo.Memo {
		Expect(do(http.MethodPost, "/recording/start", nil, "").StatusCode).To(Equal(fiber.StatusOK))
		pcm := testutils.Tone(testutils.TestFormat, 200*time.Millisecond, seed).PCM
		Expect(do(http.MethodPost, "/recording/audio", pcm, "application/octet-stream").StatusCode).To(Equal(fiber.StatusOK))
		resp := do(http.MethodPost, "/recording/stop", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		return decode[*memo.Memo](resp)
	}

	BeforeEach(func() {
		ctx = context.Background()
		log := logger.Nop()

		var other *loopback.Endpoint
		link, other = loopback.NewPair(log)
		DeferCleanup(func() { other.Close() })

		blobs := memory.New()
		editor := audio.NewEditor(blobs, log)
		store = storage.NewStore(inmemory.NewDriver(), editor, log)
		transcriber = &testutils.ScriptedTranscriber{Default: testutils.Response{Text: "hello"}}

		var err error
		n, err = node.New(node.Config{
			DeviceID: "phone",
			Role:     peer.RolePrimary,
			Store:    store,
			Editor:   editor,
			Session:  session.New(&testutils.FakeDevice{}, editor, testutils.TestFormat, log),
			Pipeline: pipeline.New(editor, transcriber, log),
			Channel:  link,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		var runCtx context.Context
		runCtx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			_ = n.Run(runCtx)
		}()

		server, err = NewServer(Config{ListenAddr: ":0"}, n, log)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		n.Wait()
		cancel()
		<-done
		n.Close()
		link.Close()
	})

	It("rejects a nil node", func() {
		_, err := NewServer(Config{}, nil, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("answers ping", func() {
		resp := do(http.MethodGet, "/ping", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(decode[string](resp)).To(Equal("pong"))
	})

	It("identifies the device", func() {
		dev := decode[DeviceResponse](do(http.MethodGet, "/device", nil, ""))
		Expect(dev.DeviceID).To(Equal("phone"))
		Expect(dev.Role).To(Equal("primary"))
	})

	It("records a memo and transcribes it in the background", func() {
		m := record(1)
		Expect(m.Status).To(Equal(memo.StatusPending))

		n.Wait()
		got := decode[*memo.Memo](do(http.MethodGet, "/memos/"+m.ID, nil, ""))
		Expect(got.Status).To(Equal(memo.StatusCompleted))
		Expect(got.Transcript).To(Equal("hello"))
	})

	It("accepts WAV uploads in the session format", func() {
		Expect(do(http.MethodPost, "/recording/start", nil, "").StatusCode).To(Equal(fiber.StatusOK))
		wav, err := testutils.Tone(testutils.TestFormat, 100*time.Millisecond, 3).Bytes()
		Expect(err).NotTo(HaveOccurred())

		resp := do(http.MethodPost, "/recording/audio", wav, "audio/wav")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(decode[UploadResponse](resp).Bytes).To(Equal(len(wav) - 44))
	})

	It("rejects WAV uploads in another format", func() {
		Expect(do(http.MethodPost, "/recording/start", nil, "").StatusCode).To(Equal(fiber.StatusOK))
		other := audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
		wav, err := testutils.Tone(other, 100*time.Millisecond, 3).Bytes()
		Expect(err).NotTo(HaveOccurred())

		resp := do(http.MethodPost, "/recording/audio", wav, "audio/wav")
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		Expect(decode[ErrorResponse](resp).Error).To(ContainSubstring("format mismatch"))
	})

	It("reports recording state transitions", func() {
		Expect(decode[RecordingResponse](do(http.MethodGet, "/recording", nil, "")).State).To(Equal(session.StateIdle))

		Expect(decode[RecordingResponse](do(http.MethodPost, "/recording/start", nil, "")).State).To(Equal(session.StateRecording))
		Expect(decode[RecordingResponse](do(http.MethodPost, "/recording/pause", nil, "")).State).To(Equal(session.StatePaused))
		Expect(decode[RecordingResponse](do(http.MethodPost, "/recording/resume", nil, "")).State).To(Equal(session.StateRecording))

		resp := do(http.MethodPost, "/recording/start", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
	})

	It("rejects audio when no capture is running", func() {
		resp := do(http.MethodPost, "/recording/audio", []byte{1, 2}, "application/octet-stream")
		Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
	})

	It("extends an existing memo", func() {
		m := record(1)
		n.Wait()

		resp := do(http.MethodPost, "/memos/"+m.ID+"/extend", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(decode[RecordingResponse](resp).State).To(Equal(session.StateExtending))

		pcm := testutils.Tone(testutils.TestFormat, 100*time.Millisecond, 2).PCM
		Expect(do(http.MethodPost, "/recording/audio", pcm, "").StatusCode).To(Equal(fiber.StatusOK))
		stopped := decode[*memo.Memo](do(http.MethodPost, "/recording/stop", nil, ""))
		Expect(stopped.ID).To(Equal(m.ID))
		Expect(stopped.Status).To(Equal(memo.StatusPending))

		n.Wait()
		got := decode[*memo.Memo](do(http.MethodGet, "/memos/"+m.ID, nil, ""))
		Expect(got.Transcript).To(Equal("hello" + memo.TranscriptSeparator + "hello"))
		Expect(got.AudioRef).NotTo(Equal(m.AudioRef))
	})

	It("returns 404 for unknown memos", func() {
		for _, req := range []struct{ method, path string }{
			{http.MethodGet, "/memos/missing"},
			{http.MethodDelete, "/memos/missing"},
			{http.MethodGet, "/memos/missing/audio"},
			{http.MethodPost, "/memos/missing/retry"},
			{http.MethodPost, "/memos/missing/extend"},
		} {
			resp := do(req.method, req.path, nil, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound), req.path)
			Expect(decode[ErrorResponse](resp).Error).To(ContainSubstring("missing"))
		}
	})

	It("lists memos newest first and filters by status", func() {
		transcriber.Responses = []testutils.Response{{Err: errors.New("garbled")}}
		first := record(1)
		n.Wait()
		second := record(2)
		n.Wait()

		all := decode[MemoListResponse](do(http.MethodGet, "/memos", nil, ""))
		Expect(all.Count).To(Equal(2))
		Expect(all.Memos[0].ID).To(Equal(second.ID))
		Expect(all.Memos[1].ID).To(Equal(first.ID))

		failed := decode[MemoListResponse](do(http.MethodGet, "/memos?status=failed", nil, ""))
		Expect(failed.Count).To(Equal(1))
		Expect(failed.Memos[0].ID).To(Equal(first.ID))

		Expect(do(http.MethodGet, "/memos?status=lost", nil, "").StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("retries failed memos and refuses completed ones", func() {
		transcriber.Responses = []testutils.Response{{Err: errors.New("garbled")}}
		m := record(1)
		n.Wait()

		resp := do(http.MethodPost, "/memos/"+m.ID+"/retry", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))
		n.Wait()

		Expect(decode[*memo.Memo](do(http.MethodGet, "/memos/"+m.ID, nil, "")).Status).To(Equal(memo.StatusCompleted))
		Expect(do(http.MethodPost, "/memos/"+m.ID+"/retry", nil, "").StatusCode).To(Equal(fiber.StatusConflict))
	})

	It("streams memo audio as WAV", func() {
		m := record(4)
		n.Wait()

		resp := do(http.MethodGet, "/memos/"+m.ID+"/audio", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal(audio.ContentType))

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		seg, err := audio.DecodeBytes(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(seg.Equal(testutils.Tone(testutils.TestFormat, 200*time.Millisecond, 4))).To(BeTrue())
	})

	It("deletes memos", func() {
		m := record(1)
		n.Wait()

		Expect(do(http.MethodDelete, "/memos/"+m.ID, nil, "").StatusCode).To(Equal(fiber.StatusNoContent))
		_, err := store.Get(ctx, m.ID)
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("requests the peer catalog", func() {
		Expect(do(http.MethodPost, "/sync/catalog", nil, "").StatusCode).To(Equal(fiber.StatusAccepted))

		link.SetReachable(false)
		resp := do(http.MethodPost, "/sync/catalog", nil, "")
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
		Expect(decode[ErrorResponse](resp).Error).To(ContainSubstring("unreachable"))
	})
})

var _ = Describe("statusFor", func() {
	It("maps domain errors", func() {
		Expect(statusFor(storage.NotFoundError{ID: "x"})).To(Equal(fiber.StatusNotFound))
		Expect(statusFor(node.ErrBusy)).To(Equal(fiber.StatusConflict))
		Expect(statusFor(session.ErrDeviceUnavailable)).To(Equal(fiber.StatusServiceUnavailable))
		Expect(statusFor(peer.ErrUnreachable)).To(Equal(fiber.StatusBadGateway))
		Expect(statusFor(&audio.MergeError{Err: errors.New("x")})).To(Equal(fiber.StatusUnprocessableEntity))
		Expect(statusFor(errors.New("boom"))).To(Equal(fiber.StatusInternalServerError))
	})
})

package openai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob/memory"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
	"github.com/papercomputeco/voicenotes/pkg/transcribe/openai"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

func TestOpenAI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OpenAI Transcribe Suite")
}

var _ = Describe("Transcriber", func() {
	var (
		ctx     context.Context
		editor  *audio.Editor
		ref     audio.Ref
		status  int
		body    string
		calls   atomic.Int32
		srv     *httptest.Server
		mu      sync.Mutex
		uploads []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		editor = audio.NewEditor(memory.New(), logger.Nop())
		ref = testutils.SaveTone(ctx, editor, 200*time.Millisecond, 1)
		status = http.StatusOK
		body = `{"text":" hello world "}`
		calls.Store(0)
		uploads = nil

		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				mu.Lock()
				uploads = append(uploads, r.FormValue("model"))
				mu.Unlock()
				if f, _, err := r.FormFile("file"); err == nil {
					_, _ = io.Copy(io.Discard, f)
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}))
	})

	AfterEach(func() {
		srv.Close()
	})

	newTranscriber := func() *openai.Transcriber {
		t, err := openai.New(openai.Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/"}, editor, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	It("requires an api key", func() {
		_, err := openai.New(openai.Config{}, editor, logger.Nop())
		Expect(err).To(MatchError(transcribe.ErrUnavailable))
	})

	It("returns the trimmed transcription", func() {
		text, err := newTranscriber().Transcribe(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("hello world"))
		mu.Lock()
		defer mu.Unlock()
		Expect(uploads).To(ConsistOf("whisper-1"))
	})

	It("treats empty text as a recognition failure", func() {
		body = `{"text":""}`
		_, err := newTranscriber().Transcribe(ctx, ref)
		Expect(err).To(MatchError(transcribe.ErrRecognitionFailed))
	})

	It("maps rejected audio to a recognition failure", func() {
		status = http.StatusBadRequest
		body = `{"error":{"message":"bad audio","type":"invalid_request_error"}}`
		_, err := newTranscriber().Transcribe(ctx, ref)
		Expect(err).To(MatchError(transcribe.ErrRecognitionFailed))
	})

	It("maps server errors to unavailable without retrying", func() {
		status = http.StatusServiceUnavailable
		body = `{"error":{"message":"down","type":"server_error"}}`
		_, err := newTranscriber().Transcribe(ctx, ref)
		Expect(err).To(MatchError(transcribe.ErrUnavailable))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("fails recognition when the audio is missing", func() {
		_, err := newTranscriber().Transcribe(ctx, "segments/missing.wav")
		Expect(err).To(MatchError(transcribe.ErrRecognitionFailed))
		Expect(calls.Load()).To(BeZero())
	})
})
